package handler

import (
	"net/http"
	"strconv"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"
	"tablelink-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

type LoyaltyHandler struct {
	Service *service.LoyaltyService
	Coupons ports.CouponStore
}

func (h LoyaltyHandler) RegisterRoutes(r chi.Router) {
	r.Get("/loyalty/{userID}/stores/{storeID}", h.overview)
	r.Get("/loyalty/{userID}/coupons", h.unusedCoupons)
}

func (h LoyaltyHandler) overview(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	overview, err := h.Service.Overview(r.Context(), userID, storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"points":       overview.Stat.Points,
		"totalSpent":   overview.Stat.TotalSpent,
		"visitCount":   overview.Stat.VisitCount,
		"lastVisitAt":  overview.Stat.LastVisitAt,
		"currentLevel": levelJSON(overview.CurrentLevel),
		"nextLevel":    levelJSON(overview.NextLevel),
	})
}

func (h LoyaltyHandler) unusedCoupons(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	coupons, err := h.Coupons.ListUnused(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, map[string]any{
			"id":        c.ID,
			"name":      c.Name,
			"discount":  c.Discount,
			"createdAt": c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func levelJSON(l *domain.Level) map[string]any {
	if l == nil {
		return nil
	}
	return map[string]any{
		"id":                 l.ID,
		"rank":               l.Rank,
		"name":               l.Name,
		"description":        l.Description,
		"requiredPoints":     l.RequiredPoints,
		"requiredTotalSpent": l.RequiredTotalSpent,
		"requiredVisitCount": l.RequiredVisitCount,
		"evalPolicy":         l.EvalPolicy,
	}
}
