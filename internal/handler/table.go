package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"
	"tablelink-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

// TableHandler exposes occupancy transitions and the table snapshot.
type TableHandler struct {
	Tables    ports.TableStore
	Occupancy *service.OccupancyService
}

func (h TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stores/{storeID}/tables", h.list)
	r.Post("/tables/occupy", h.occupy)
}

// RegisterStaffRoutes carries the staff-only release action.
func (h TableHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/tables/release", h.release)
}

type occupyPayload struct {
	StoreID         int64  `json:"storeId"`
	TableDesignator string `json:"tableDesignator"`
	Source          string `json:"source"`
	TTLMinutes      int    `json:"ttlMinutes"`
}

func (h TableHandler) occupy(w http.ResponseWriter, r *http.Request) {
	var req occupyPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	source := domain.TableSource(req.Source)
	switch source {
	case domain.SourceTLL, domain.SourceTLM, domain.SourceOrder:
	default:
		writeError(w, http.StatusBadRequest, "source must be TLL, TLM or ORDER")
		return
	}

	tableNumber := service.ResolveTableNumber(r.Context(), h.Tables, req.StoreID, req.TableDesignator)
	table, err := h.Occupancy.Occupy(r.Context(), req.StoreID, tableNumber, source,
		time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"occupiedSince": table.OccupiedSince,
	})
}

type releasePayload struct {
	StoreID         int64  `json:"storeId"`
	TableDesignator string `json:"tableDesignator"`
}

func (h TableHandler) release(w http.ResponseWriter, r *http.Request) {
	var req releasePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	tableNumber := service.ResolveTableNumber(r.Context(), h.Tables, req.StoreID, req.TableDesignator)
	if _, err := h.Occupancy.Release(r.Context(), req.StoreID, tableNumber); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

func (h TableHandler) list(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	tables, err := h.Tables.ListByStore(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	occupied := 0
	out := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		if t.IsOccupied {
			occupied++
		}
		out = append(out, tableJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"storeId":        storeID,
		"tables":         out,
		"totalTables":    len(tables),
		"occupiedTables": occupied,
	})
}

func tableJSON(t domain.Table) map[string]any {
	return map[string]any{
		"id":            t.UniqueID,
		"tableNumber":   t.TableNumber,
		"seats":         t.Seats,
		"isOccupied":    t.IsOccupied,
		"occupiedSince": t.OccupiedSince,
		"source":        t.AutoReleaseSource,
	}
}
