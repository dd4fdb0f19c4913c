package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"
	"tablelink-backend/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades KDS and POS terminals onto the store's realtime channel.
type WSHandler struct {
	Hub    *realtime.Hub
	Tables ports.TableStore
	Logger *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Terminals connect from store-local devices; origin is not meaningful.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.serve)
}

type inboundMessage struct {
	Type string `json:"type"`
}

func (h WSHandler) serve(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(r.URL.Query().Get("storeId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "storeId is required")
		return
	}
	audience := domain.Audience(r.URL.Query().Get("audience"))
	if audience != domain.AudienceKDS && audience != domain.AudiencePOS {
		audience = domain.AudiencePOS
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", "storeId", storeID, "err", err)
		return
	}

	client := realtime.NewClient(conn, audience)
	h.Hub.Subscribe(storeID, client)
	defer h.Hub.Unsubscribe(storeID, client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "request_table_update" {
			h.resync(r, storeID, client)
		}
	}
}

// resync pushes the full table snapshot to one client. Offline clients catch
// up this way instead of event replay.
func (h WSHandler) resync(r *http.Request, storeID int64, client *realtime.Client) {
	tables, err := h.Tables.ListByStore(r.Context(), storeID)
	if err != nil {
		h.Logger.Error("table resync query failed", "storeId", storeID, "err", err)
		return
	}

	out := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableJSON(t))
	}
	if err := h.Hub.SendTo(client, domain.EventTableSnapshot, map[string]any{
		"storeId": storeID,
		"tables":  out,
	}); err != nil {
		h.Logger.Error("table resync push failed", "storeId", storeID, "err", err)
	}
}
