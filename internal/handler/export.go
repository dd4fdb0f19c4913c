package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

// ExportHandler produces the daily settlement report for back-office use.
type ExportHandler struct {
	Settlements ports.SettlementStore
}

func (h ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/settlements/export", h.exportDay)
}

func (h ExportHandler) exportDay(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(r.URL.Query().Get("storeId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "storeId is required")
		return
	}
	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		day, err = time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	settlements, err := h.Settlements.ListByStoreAndDay(r.Context(), storeID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := exportSettlementsXLSX(settlements)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("settlements-%d-%s.xlsx", storeID, day.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

func exportSettlementsXLSX(items []domain.Settlement) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Settlements"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	header := []string{"ID", "Code", "Owner", "Table", "Original", "Points", "Coupon", "Final", "Method", "Reference", "Channel", "Paid At"}
	for c, v := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for rIdx, s := range items {
		row := rIdx + 2
		values := []any{
			s.ID,
			s.Code,
			ownerLabel(s.Owner),
			s.TableNumber,
			s.OriginalAmount,
			s.PointsApplied,
			s.CouponDiscount,
			s.FinalAmount,
			s.PaymentMethod,
			s.PaymentReference,
			string(s.Channel),
			s.PaidAt.Format("2006-01-02 15:04"),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 10)
	_ = f.SetColWidth(sheet, "B", "B", 20)
	_ = f.SetColWidth(sheet, "C", "C", 24)
	_ = f.SetColWidth(sheet, "D", "D", 10)
	_ = f.SetColWidth(sheet, "E", "H", 12)
	_ = f.SetColWidth(sheet, "I", "K", 14)
	_ = f.SetColWidth(sheet, "L", "L", 18)

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "L1", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ownerLabel(o domain.SettlementOwner) string {
	switch o.Kind {
	case domain.OwnerMember:
		return fmt.Sprintf("member:%d", *o.UserID)
	case domain.OwnerGuest:
		return "guest:" + *o.GuestPhone
	}
	return string(o.Kind)
}
