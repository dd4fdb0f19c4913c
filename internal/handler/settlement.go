package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

type SettlementHandler struct {
	Service *service.SettlementService
}

func (h SettlementHandler) RegisterRoutes(r chi.Router) {
	r.Post("/settle", h.settle)
}

type settlePayload struct {
	OwnerKind        string       `json:"ownerKind"`
	OwnerKey         string       `json:"ownerKey"`
	StoreID          int64        `json:"storeId"`
	TableDesignator  string       `json:"tableDesignator"`
	Items            []settleLine `json:"items"`
	RequestedPoints  int64        `json:"requestedPoints"`
	CouponID         *int64       `json:"couponId"`
	PaymentMethod    string       `json:"paymentMethod"`
	PaymentReference string       `json:"paymentReference"`
	PaidAmount       int64        `json:"paidAmount"`
	Channel          string       `json:"channel"`
}

type settleLine struct {
	Name      string `json:"name"`
	Quantity  int    `json:"qty"`
	UnitPrice int64  `json:"price"`
}

func (h SettlementHandler) settle(w http.ResponseWriter, r *http.Request) {
	var req settlePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.StoreID == 0 || len(req.Items) == 0 || req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "storeId, items and paymentReference are required")
		return
	}

	items := make([]domain.SettlementItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.SettlementItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	sreq := service.SettleRequest{
		OwnerKind:        domain.OwnerKind(req.OwnerKind),
		StoreID:          req.StoreID,
		TableDesignator:  req.TableDesignator,
		Items:            items,
		RequestedPoints:  req.RequestedPoints,
		CouponID:         req.CouponID,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		PaidAmount:       req.PaidAmount,
		Channel:          domain.Channel(req.Channel),
	}
	switch sreq.OwnerKind {
	case domain.OwnerMember:
		userID, err := strconv.ParseInt(req.OwnerKey, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ownerKey must be a user id for member settlements")
			return
		}
		sreq.UserID = userID
	case domain.OwnerGuest:
		sreq.GuestPhone = req.OwnerKey
	default:
		writeError(w, http.StatusBadRequest, "ownerKind must be guest or member")
		return
	}
	if sreq.Channel == "" {
		sreq.Channel = domain.ChannelPOS
	}

	result, err := h.Service.Settle(r.Context(), sreq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"settlementId":        result.SettlementID,
		"ticketId":            result.TicketID,
		"appliedPoints":       result.AppliedPoints,
		"accruedPoints":       result.AccruedPoints,
		"finalAmount":         result.FinalAmount,
		"welcomeCouponIssued": result.WelcomeCouponIssued,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}
