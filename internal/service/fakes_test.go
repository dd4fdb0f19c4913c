package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"
)

// In-memory stores mirroring the repositories' conditional-update semantics.

type fakeTableStore struct {
	mu     sync.Mutex
	nextID int64
	tables map[int64]*domain.Table
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{tables: make(map[int64]*domain.Table)}
}

func (f *fakeTableStore) add(storeID int64, number string) *domain.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &domain.Table{ID: f.nextID, StoreID: storeID, TableNumber: number, Seats: 4,
		UniqueID: fmt.Sprintf("uid-%d", f.nextID)}
	f.tables[t.ID] = t
	return t
}

func (f *fakeTableStore) get(id int64) domain.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tables[id]
}

func (f *fakeTableStore) findLocked(storeID int64, number string) *domain.Table {
	for _, t := range f.tables {
		if t.StoreID == storeID && t.TableNumber == number {
			return t
		}
	}
	return nil
}

func (f *fakeTableStore) GetByNumber(_ context.Context, storeID int64, number string) (*domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t := f.findLocked(storeID, number); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, domain.ErrTableNotFound
}

func (f *fakeTableStore) ListByStore(_ context.Context, storeID int64) ([]domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Table
	for _, t := range f.tables {
		if t.StoreID == storeID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTableStore) Occupy(_ context.Context, storeID int64, number string, source domain.TableSource, since time.Time) (*domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.findLocked(storeID, number)
	if t == nil {
		return nil, domain.ErrTableNotFound
	}
	t.IsOccupied = true
	t.OccupiedSince = &since
	t.AutoReleaseSource = source
	cp := *t
	return &cp, nil
}

func (f *fakeTableStore) Release(_ context.Context, storeID int64, number string) (*domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.findLocked(storeID, number)
	if t == nil {
		return nil, domain.ErrTableNotFound
	}
	t.IsOccupied = false
	t.OccupiedSince = nil
	t.AutoReleaseSource = domain.SourceNone
	cp := *t
	return &cp, nil
}

func (f *fakeTableStore) ReleaseIfHeldBy(_ context.Context, tableID int64, source domain.TableSource, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableID]
	if !ok || !t.IsOccupied || t.AutoReleaseSource != source ||
		t.OccupiedSince == nil || !t.OccupiedSince.Equal(since) {
		return false, nil
	}
	t.IsOccupied = false
	t.OccupiedSince = nil
	t.AutoReleaseSource = domain.SourceNone
	return true, nil
}

func (f *fakeTableStore) ListOverdue(_ context.Context, source domain.TableSource, occupiedBefore time.Time) ([]domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Table
	for _, t := range f.tables {
		if t.IsOccupied && t.AutoReleaseSource == source &&
			t.OccupiedSince != nil && !t.OccupiedSince.After(occupiedBefore) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type archiveCall struct {
	storeID     int64
	tableNumber string
}

type forceCompleteCall struct {
	storeID     int64
	tableNumber string
	owner       domain.SettlementOwner
}

type fakeTicketStore struct {
	mu             sync.Mutex
	archived       []archiveCall
	forceCompleted []forceCompleteCall
}

func (f *fakeTicketStore) Get(context.Context, int64) (*domain.Ticket, error) {
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTicketStore) ListOpenByStore(context.Context, int64) ([]domain.Ticket, error) {
	return nil, nil
}

func (f *fakeTicketStore) StartItem(context.Context, int64, int64) (*domain.Ticket, error) {
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTicketStore) CompleteItem(context.Context, int64, int64) (*domain.Ticket, error) {
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTicketStore) CompleteTicket(context.Context, int64) (*domain.Ticket, error) {
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTicketStore) ArchiveForReleasedTable(_ context.Context, storeID int64, tableNumber string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, archiveCall{storeID, tableNumber})
	return 1, nil
}

func (f *fakeTicketStore) ForceCompleteOpenForOwner(_ context.Context, storeID int64, tableNumber string, owner domain.SettlementOwner, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceCompleted = append(f.forceCompleted, forceCompleteCall{storeID, tableNumber, owner})
	return 1, nil
}

func (f *fakeTicketStore) archiveCalls() []archiveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]archiveCall(nil), f.archived...)
}

func (f *fakeTicketStore) forceCompleteCalls() []forceCompleteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forceCompleteCall(nil), f.forceCompleted...)
}

type broadcastEvent struct {
	storeID int64
	event   domain.EventType
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) Broadcast(storeID int64, event domain.EventType, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{storeID, event, payload})
}

func (f *fakeBroadcaster) all() []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcastEvent(nil), f.events...)
}

func (f *fakeBroadcaster) byType(event domain.EventType) []broadcastEvent {
	var out []broadcastEvent
	for _, e := range f.all() {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type statKey struct {
	userID  int64
	storeID int64
}

type fakeLoyaltyStore struct {
	mu        sync.Mutex
	stats     map[statKey]*domain.LoyaltyStat
	levels    map[int64][]domain.Level
	histories []domain.LevelHistory
	accrueErr error
}

func newFakeLoyaltyStore() *fakeLoyaltyStore {
	return &fakeLoyaltyStore{
		stats:  make(map[statKey]*domain.LoyaltyStat),
		levels: make(map[int64][]domain.Level),
	}
}

func (f *fakeLoyaltyStore) setPoints(userID, storeID, points int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[statKey{userID, storeID}] = &domain.LoyaltyStat{UserID: userID, StoreID: storeID, Points: points}
}

func (f *fakeLoyaltyStore) GetStat(_ context.Context, userID, storeID int64) (*domain.LoyaltyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stats[statKey{userID, storeID}]; ok {
		cp := *s
		return &cp, nil
	}
	return &domain.LoyaltyStat{UserID: userID, StoreID: storeID}, nil
}

func (f *fakeLoyaltyStore) Spend(_ context.Context, userID, storeID, points int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[statKey{userID, storeID}]
	if !ok || s.Points < points {
		return domain.ErrInsufficientPoints
	}
	s.Points -= points
	return nil
}

func (f *fakeLoyaltyStore) Accrue(_ context.Context, userID, storeID, points, spent int64, visitAt time.Time) (*domain.LoyaltyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accrueErr != nil {
		return nil, f.accrueErr
	}
	key := statKey{userID, storeID}
	s, ok := f.stats[key]
	if !ok {
		s = &domain.LoyaltyStat{UserID: userID, StoreID: storeID}
		f.stats[key] = s
	}
	s.Points += points
	s.TotalSpent += spent
	s.VisitCount++
	s.LastVisitAt = &visitAt
	cp := *s
	return &cp, nil
}

func (f *fakeLoyaltyStore) ListLevels(_ context.Context, storeID int64) ([]domain.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Level(nil), f.levels[storeID]...), nil
}

func (f *fakeLoyaltyStore) SetCurrentLevel(_ context.Context, userID, storeID, levelID int64, fromLevelID *int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[statKey{userID, storeID}]
	if !ok {
		s = &domain.LoyaltyStat{UserID: userID, StoreID: storeID}
		f.stats[statKey{userID, storeID}] = s
	}
	s.CurrentLevelID = &levelID
	now := time.Now()
	s.CurrentLevelAt = &now
	f.histories = append(f.histories, domain.LevelHistory{
		UserID: userID, StoreID: storeID, FromLevelID: fromLevelID, ToLevelID: levelID, Reason: reason,
	})
	return nil
}

type fakeCouponStore struct {
	mu      sync.Mutex
	coupons map[int64]*domain.Coupon
}

func newFakeCouponStore() *fakeCouponStore {
	return &fakeCouponStore{coupons: make(map[int64]*domain.Coupon)}
}

func (f *fakeCouponStore) add(c domain.Coupon) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons[c.ID] = &c
}

func (f *fakeCouponStore) GetUnused(_ context.Context, userID, couponID int64) (*domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[couponID]
	if !ok || c.UserID != userID || c.Used {
		return nil, domain.ErrInvalidCoupon
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCouponStore) ListUnused(_ context.Context, userID int64) ([]domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Coupon
	for _, c := range f.coupons {
		if c.UserID == userID && !c.Used {
			out = append(out, *c)
		}
	}
	return out, nil
}

// consume mirrors the conditional unused-to-used move inside the settlement
// transaction.
func (f *fakeCouponStore) consume(userID, couponID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[couponID]
	if !ok || c.UserID != userID || c.Used {
		return false
	}
	c.Used = true
	now := time.Now()
	c.UsedAt = &now
	return true
}

type fakeSettlementStore struct {
	mu          sync.Mutex
	nextID      int64
	settlements []domain.Settlement
	loyalty     *fakeLoyaltyStore
	coupons     *fakeCouponStore
	guestVisits map[string]int
	createErr   error
}

func newFakeSettlementStore(loyalty *fakeLoyaltyStore, coupons *fakeCouponStore) *fakeSettlementStore {
	return &fakeSettlementStore{loyalty: loyalty, coupons: coupons, guestVisits: make(map[string]int)}
}

func (f *fakeSettlementStore) Create(ctx context.Context, in ports.CreateSettlementInput) (*ports.CreateSettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}

	welcome := false
	switch in.Owner.Kind {
	case domain.OwnerMember:
		if in.CouponID != nil && !f.coupons.consume(*in.Owner.UserID, *in.CouponID) {
			return nil, domain.ErrInvalidCoupon
		}
		if in.PointsToApply > 0 {
			if err := f.loyalty.Spend(ctx, *in.Owner.UserID, in.StoreID, in.PointsToApply); err != nil {
				return nil, err
			}
		}
		welcome = true
		for _, s := range f.settlements {
			if s.Owner.Kind == domain.OwnerMember && *s.Owner.UserID == *in.Owner.UserID && s.StoreID == in.StoreID {
				welcome = false
				break
			}
		}
	case domain.OwnerGuest:
		f.guestVisits[*in.Owner.GuestPhone]++
	}

	f.nextID++
	s := domain.Settlement{
		ID:               f.nextID,
		Code:             fmt.Sprintf("STL-%d", f.nextID),
		Owner:            in.Owner,
		StoreID:          in.StoreID,
		TableNumber:      in.TableNumber,
		Items:            in.Items,
		OriginalAmount:   in.OriginalAmount,
		PointsApplied:    in.PointsToApply,
		CouponDiscount:   in.CouponDiscount,
		FinalAmount:      in.FinalAmount,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		Channel:          in.Channel,
		PaidAt:           in.PaidAt,
		CreatedAt:        in.PaidAt,
	}
	f.settlements = append(f.settlements, s)

	ticket := domain.Ticket{
		ID:           f.nextID,
		Code:         fmt.Sprintf("TCK-%d", f.nextID),
		SettlementID: s.ID,
		StoreID:      in.StoreID,
		TableNumber:  in.TableNumber,
		Status:       domain.TicketPending,
		IsVisible:    true,
		CreatedAt:    in.PaidAt,
	}
	for i, it := range in.Items {
		ticket.Items = append(ticket.Items, domain.TicketItem{
			ID: int64(i + 1), TicketID: ticket.ID, MenuName: it.Name,
			Quantity: it.Quantity, Price: it.UnitPrice, Status: domain.ItemPending,
		})
	}

	return &ports.CreateSettlementResult{
		Settlement:          &s,
		Ticket:              &ticket,
		WelcomeCouponIssued: welcome,
	}, nil
}

func (f *fakeSettlementStore) FindRecentOnTable(_ context.Context, storeID int64, tableNumber string, window time.Duration) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-window)
	var out []domain.Settlement
	for i := len(f.settlements) - 1; i >= 0; i-- {
		s := f.settlements[i]
		if s.StoreID == storeID && s.TableNumber == tableNumber && s.PaidAt.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSettlementStore) ListByStoreAndDay(_ context.Context, storeID int64, day time.Time) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Settlement
	for _, s := range f.settlements {
		if s.StoreID == storeID && s.PaidAt.YearDay() == day.YearDay() && s.PaidAt.Year() == day.Year() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSettlementStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settlements)
}
