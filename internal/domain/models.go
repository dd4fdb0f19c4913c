package domain

import "time"

// Enumerations
const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"

	// Occupation sources. The source tag scopes auto-release: a timer may only
	// free a table still held by the source (and since) it was scheduled for.
	SourceNone  TableSource = ""
	SourceTLL   TableSource = "TLL"
	SourceTLM   TableSource = "TLM"
	SourceOrder TableSource = "ORDER"

	ChannelTLL Channel = "TLL"
	ChannelPOS Channel = "POS"

	OwnerGuest  OwnerKind = "guest"
	OwnerMember OwnerKind = "member"

	ItemPending   ItemStatus = "PENDING"
	ItemCooking   ItemStatus = "COOKING"
	ItemCompleted ItemStatus = "COMPLETED"

	TicketPending       TicketStatus = "PENDING"
	TicketCooking       TicketStatus = "COOKING"
	TicketOpen          TicketStatus = "OPEN"
	TicketCompleted     TicketStatus = "COMPLETED"
	TicketTableReleased TicketStatus = "TABLE_RELEASED"
	TicketArchived      TicketStatus = "ARCHIVED"

	EvalPolicyAnd EvalPolicy = "AND"
	EvalPolicyOr  EvalPolicy = "OR"
)

type UserRole string
type TableSource string
type Channel string
type OwnerKind string
type ItemStatus string
type TicketStatus string
type EvalPolicy string

// Table is a physical table in a store. Occupancy fields are mutated only by
// the occupancy service; occupiedSince is non-nil iff isOccupied is true.
type Table struct {
	ID                int64
	StoreID           int64
	UniqueID          string
	TableNumber       string
	Seats             int
	IsOccupied        bool
	OccupiedSince     *time.Time
	AutoReleaseSource TableSource
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SettlementOwner is the tagged union of the two ownership lanes: a guest
// keyed by phone number or a registered member keyed by user id, never both.
type SettlementOwner struct {
	Kind       OwnerKind
	UserID     *int64
	GuestPhone *string
}

func GuestOwner(phone string) SettlementOwner {
	return SettlementOwner{Kind: OwnerGuest, GuestPhone: &phone}
}

func MemberOwner(userID int64) SettlementOwner {
	return SettlementOwner{Kind: OwnerMember, UserID: &userID}
}

// Same reports whether two owners are the same guest or the same member.
func (o SettlementOwner) Same(other SettlementOwner) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OwnerMember:
		return o.UserID != nil && other.UserID != nil && *o.UserID == *other.UserID
	case OwnerGuest:
		return o.GuestPhone != nil && other.GuestPhone != nil && *o.GuestPhone == *other.GuestPhone
	}
	return false
}

// Settlement is a completed, externally-confirmed payment. Immutable once
// written; refund/void is handled elsewhere.
type Settlement struct {
	ID               int64
	Code             string
	Owner            SettlementOwner
	StoreID          int64
	TableNumber      string
	Items            []SettlementItem
	OriginalAmount   int64
	PointsApplied    int64
	CouponDiscount   int64
	FinalAmount      int64
	PaymentMethod    string
	PaymentReference string
	Channel          Channel
	PaidAt           time.Time
	CreatedAt        time.Time
}

type SettlementItem struct {
	ID        int64
	Name      string
	Quantity  int
	UnitPrice int64
}

// Ticket is the kitchen-facing record of one settlement. Status is derived
// from the items but stored for fast filtering; TABLE_RELEASED is a terminal
// override applied when the owning table is freed before completion.
type Ticket struct {
	ID           int64
	Code         string
	SettlementID int64
	StoreID      int64
	TableNumber  string
	Status       TicketStatus
	IsVisible    bool
	Items        []TicketItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TicketItem struct {
	ID       int64
	TicketID int64
	MenuName string
	Quantity int
	Price    int64
	Status   ItemStatus
}

// DeriveTicketStatus computes the stored ticket status from its items.
func DeriveTicketStatus(items []TicketItem) TicketStatus {
	if len(items) == 0 {
		return TicketPending
	}
	allCompleted := true
	anyStarted := false
	for _, it := range items {
		if it.Status != ItemCompleted {
			allCompleted = false
		}
		if it.Status != ItemPending {
			anyStarted = true
		}
	}
	switch {
	case allCompleted:
		return TicketCompleted
	case anyStarted:
		return TicketCooking
	default:
		return TicketPending
	}
}

// LoyaltyStat is the per (user, store) ledger row. Points, spend and visit
// counters are only ever moved by single atomic statements.
type LoyaltyStat struct {
	UserID         int64
	StoreID        int64
	Points         int64
	TotalSpent     int64
	VisitCount     int
	LastVisitAt    *time.Time
	CurrentLevelID *int64
	CurrentLevelAt *time.Time
}

// Level is a store-defined loyalty tier. EvalPolicy decides whether the
// required thresholds combine with AND or OR.
type Level struct {
	ID                 int64
	StoreID            int64
	Rank               int
	Name               string
	Description        string
	RequiredPoints     int64
	RequiredTotalSpent int64
	RequiredVisitCount int
	EvalPolicy         EvalPolicy
	IsActive           bool
}

// Satisfies reports whether the stat meets this level's thresholds under its
// evaluation policy.
func (l Level) Satisfies(stat LoyaltyStat) bool {
	points := stat.Points >= l.RequiredPoints
	spent := stat.TotalSpent >= l.RequiredTotalSpent
	visits := stat.VisitCount >= l.RequiredVisitCount
	if l.EvalPolicy == EvalPolicyOr {
		return points || spent || visits
	}
	return points && spent && visits
}

type LevelHistory struct {
	ID          int64
	UserID      int64
	StoreID     int64
	FromLevelID *int64
	ToLevelID   int64
	Reason      string
	CreatedAt   time.Time
}

// Coupon belongs to a user and moves from unused to used exactly once.
type Coupon struct {
	ID        int64
	UserID    int64
	Name      string
	Discount  int64
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

type GuestVisit struct {
	Phone       string
	VisitCount  int
	LastVisitAt time.Time
}
