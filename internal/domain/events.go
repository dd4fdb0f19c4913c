package domain

import "time"

// Realtime event types pushed to KDS and POS terminals subscribed to a store.
const (
	EventNewOrder         EventType = "new-order"
	EventTableUpdate      EventType = "table-update"
	EventCookingStarted   EventType = "cooking-started"
	EventCookingCompleted EventType = "cooking-completed"
	EventOrderCompleted   EventType = "order-completed"
	EventTableSnapshot    EventType = "table_snapshot"

	AudienceKDS Audience = "kds"
	AudiencePOS Audience = "pos"
)

type EventType string
type Audience string

// EventEnvelope is the JSON frame written to every subscribed socket.
type EventEnvelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// TableUpdatePayload accompanies every occupancy transition.
type TableUpdatePayload struct {
	TableNumber   string      `json:"tableNumber"`
	IsOccupied    bool        `json:"isOccupied"`
	Source        TableSource `json:"source"`
	OccupiedSince *time.Time  `json:"occupiedSince"`
}

// NewOrderPayload is the KDS-shaped frame for a freshly settled order.
type NewOrderPayload struct {
	SettlementID int64          `json:"settlementId"`
	TicketID     int64          `json:"ticketId"`
	TicketCode   string         `json:"ticketCode"`
	TableNumber  string         `json:"tableNumber"`
	Status       TicketStatus   `json:"status"`
	Items        []NewOrderItem `json:"items"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type NewOrderItem struct {
	MenuName string     `json:"menuName"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Status   ItemStatus `json:"status"`
}

// CookingPayload accompanies item and ticket status transitions.
type CookingPayload struct {
	TicketID    int64        `json:"ticketId"`
	ItemID      *int64       `json:"itemId,omitempty"`
	TableNumber string       `json:"tableNumber"`
	Status      TicketStatus `json:"status"`
}
