package ports

import (
	"context"
	"time"

	"tablelink-backend/internal/domain"
)

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Broadcaster pushes a store-scoped event to every subscribed terminal.
// Delivery is at-most-once; offline clients recover via resync.
type Broadcaster interface {
	Broadcast(storeID int64, event domain.EventType, payload any)
}

// TableStore persists table occupancy. Occupy and ReleaseIfHeldBy are single
// conditional statements so concurrent transitions cannot interleave.
type TableStore interface {
	GetByNumber(ctx context.Context, storeID int64, tableNumber string) (*domain.Table, error)
	ListByStore(ctx context.Context, storeID int64) ([]domain.Table, error)
	Occupy(ctx context.Context, storeID int64, tableNumber string, source domain.TableSource, since time.Time) (*domain.Table, error)
	Release(ctx context.Context, storeID int64, tableNumber string) (*domain.Table, error)
	// ReleaseIfHeldBy frees the table only while it is still occupied by the
	// given source and since; reports whether a release happened.
	ReleaseIfHeldBy(ctx context.Context, tableID int64, source domain.TableSource, since time.Time) (bool, error)
	ListOverdue(ctx context.Context, source domain.TableSource, occupiedBefore time.Time) ([]domain.Table, error)
}

// CreateSettlementInput carries one validated checkout into the transactional
// write path. The owner variant selects the guest or member lane.
type CreateSettlementInput struct {
	Owner            domain.SettlementOwner
	StoreID          int64
	TableNumber      string
	Channel          domain.Channel
	Items            []domain.SettlementItem
	OriginalAmount   int64
	PointsToApply    int64
	CouponID         *int64
	CouponDiscount   int64
	FinalAmount      int64
	PaymentMethod    string
	PaymentReference string
	PaidAt           time.Time
}

type CreateSettlementResult struct {
	Settlement          *domain.Settlement
	Ticket              *domain.Ticket
	WelcomeCouponIssued bool
}

// SettlementStore owns the single-transaction settlement write path: the
// settlement row, its cooking ticket, the coupon move and point deduction for
// members, and the guest visit counter for guests.
type SettlementStore interface {
	Create(ctx context.Context, in CreateSettlementInput) (*CreateSettlementResult, error)
	// FindRecentOnTable returns settlements written for the table within the
	// trailing window, newest first.
	FindRecentOnTable(ctx context.Context, storeID int64, tableNumber string, window time.Duration) ([]domain.Settlement, error)
	ListByStoreAndDay(ctx context.Context, storeID int64, day time.Time) ([]domain.Settlement, error)
}

// TicketStore persists cooking tickets and their per-item statuses.
type TicketStore interface {
	Get(ctx context.Context, ticketID int64) (*domain.Ticket, error)
	ListOpenByStore(ctx context.Context, storeID int64) ([]domain.Ticket, error)
	StartItem(ctx context.Context, ticketID, itemID int64) (*domain.Ticket, error)
	CompleteItem(ctx context.Context, ticketID, itemID int64) (*domain.Ticket, error)
	CompleteTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error)
	// ArchiveForReleasedTable marks the table's visible tickets from the
	// trailing window TABLE_RELEASED and hides them.
	ArchiveForReleasedTable(ctx context.Context, storeID int64, tableNumber string, window time.Duration) (int, error)
	// ForceCompleteOpenForOwner closes a previous owner's still-open tickets
	// on a table that changed hands.
	ForceCompleteOpenForOwner(ctx context.Context, storeID int64, tableNumber string, owner domain.SettlementOwner, window time.Duration) (int, error)
}

// LoyaltyStore is the per (user, store) point ledger. Accrue and Spend are
// single atomic statements, safe under concurrent settlements.
type LoyaltyStore interface {
	GetStat(ctx context.Context, userID, storeID int64) (*domain.LoyaltyStat, error)
	Spend(ctx context.Context, userID, storeID, points int64) error
	Accrue(ctx context.Context, userID, storeID, points, spent int64, visitAt time.Time) (*domain.LoyaltyStat, error)
	ListLevels(ctx context.Context, storeID int64) ([]domain.Level, error)
	SetCurrentLevel(ctx context.Context, userID, storeID, levelID int64, fromLevelID *int64, reason string) error
}

// CouponStore reads coupon state; the unused-to-used move itself happens
// inside the settlement transaction.
type CouponStore interface {
	GetUnused(ctx context.Context, userID, couponID int64) (*domain.Coupon, error)
	ListUnused(ctx context.Context, userID int64) ([]domain.Coupon, error)
}
