package handler

import (
	"net/http"
	"strconv"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"

	"github.com/go-chi/chi/v5"
)

// TicketHandler drives the KDS cooking flow. Every status transition is
// written first, then broadcast to the store's terminals.
type TicketHandler struct {
	Repo ports.TicketStore
	Hub  ports.Broadcaster
}

func (h TicketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stores/{storeID}/tickets", h.listOpen)
	r.Post("/tickets/{ticketID}/items/{itemID}/start", h.startItem)
	r.Post("/tickets/{ticketID}/items/{itemID}/complete", h.completeItem)
	r.Post("/tickets/{ticketID}/complete", h.completeTicket)
}

func (h TicketHandler) listOpen(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	tickets, err := h.Repo.ListOpenByStore(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h TicketHandler) startItem(w http.ResponseWriter, r *http.Request) {
	ticketID, itemID, ok := ticketItemParams(w, r)
	if !ok {
		return
	}

	t, err := h.Repo.StartItem(r.Context(), ticketID, itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Hub.Broadcast(t.StoreID, domain.EventCookingStarted, domain.CookingPayload{
		TicketID:    t.ID,
		ItemID:      &itemID,
		TableNumber: t.TableNumber,
		Status:      t.Status,
	})
	writeJSON(w, http.StatusOK, ticketJSON(*t))
}

func (h TicketHandler) completeItem(w http.ResponseWriter, r *http.Request) {
	ticketID, itemID, ok := ticketItemParams(w, r)
	if !ok {
		return
	}

	t, err := h.Repo.CompleteItem(r.Context(), ticketID, itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	event := domain.EventCookingCompleted
	if t.Status == domain.TicketCompleted {
		event = domain.EventOrderCompleted
	}
	h.Hub.Broadcast(t.StoreID, event, domain.CookingPayload{
		TicketID:    t.ID,
		ItemID:      &itemID,
		TableNumber: t.TableNumber,
		Status:      t.Status,
	})
	writeJSON(w, http.StatusOK, ticketJSON(*t))
}

func (h TicketHandler) completeTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	t, err := h.Repo.CompleteTicket(r.Context(), ticketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Hub.Broadcast(t.StoreID, domain.EventOrderCompleted, domain.CookingPayload{
		TicketID:    t.ID,
		TableNumber: t.TableNumber,
		Status:      t.Status,
	})
	writeJSON(w, http.StatusOK, ticketJSON(*t))
}

func ticketItemParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return 0, 0, false
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, 0, false
	}
	return ticketID, itemID, true
}

func ticketJSON(t domain.Ticket) map[string]any {
	items := make([]map[string]any, 0, len(t.Items))
	for _, it := range t.Items {
		items = append(items, map[string]any{
			"id":       it.ID,
			"menuName": it.MenuName,
			"quantity": it.Quantity,
			"price":    it.Price,
			"status":   it.Status,
		})
	}
	return map[string]any{
		"id":          t.ID,
		"code":        t.Code,
		"tableNumber": t.TableNumber,
		"status":      t.Status,
		"isVisible":   t.IsVisible,
		"items":       items,
		"createdAt":   t.CreatedAt,
	}
}
