package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/metrics"
	"tablelink-backend/internal/ports"
)

// staleWindow is how far back a table's settlements are considered when
// deciding whether it changed hands.
const staleWindow = 24 * time.Hour

// SettleRequest is one externally-confirmed checkout. Exactly one of UserID
// and GuestPhone is set, selected by OwnerKind.
type SettleRequest struct {
	OwnerKind        domain.OwnerKind
	UserID           int64
	GuestPhone       string
	StoreID          int64
	TableDesignator  string
	Items            []domain.SettlementItem
	RequestedPoints  int64
	CouponID         *int64
	PaymentMethod    string
	PaymentReference string
	PaidAmount       int64
	Channel          domain.Channel
}

type SettleResult struct {
	SettlementID        int64
	TicketID            int64
	AppliedPoints       int64
	AccruedPoints       int64
	FinalAmount         int64
	WelcomeCouponIssued bool
	// Warning carries best-effort bookkeeping failures that did not void the
	// already-confirmed payment.
	Warning string
}

// SettlementService validates a payment intent against loyalty constraints,
// writes the settlement atomically, and drives the occupancy transition and
// realtime fan-out that follow it.
type SettlementService struct {
	Tables      ports.TableStore
	Settlements ports.SettlementStore
	Tickets     ports.TicketStore
	Loyalty     ports.LoyaltyStore
	Coupons     ports.CouponStore
	Occupancy   *OccupancyService
	LoyaltySvc  *LoyaltyService
	Hub         ports.Broadcaster
	Logger      *slog.Logger
}

// Settle runs the full checkout. All validation happens before any write;
// the write path is one transaction; loyalty accrual afterwards is
// best-effort because the payment is already confirmed externally.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	owner, err := buildOwner(req)
	if err != nil {
		return nil, err
	}

	var original int64
	for _, it := range req.Items {
		original += int64(it.Quantity) * it.UnitPrice
	}

	tableNumber := ResolveTableNumber(ctx, s.Tables, req.StoreID, req.TableDesignator)

	var applied int64
	if owner.Kind == domain.OwnerMember {
		stat, err := s.Loyalty.GetStat(ctx, req.UserID, req.StoreID)
		if err != nil {
			return nil, err
		}
		if req.RequestedPoints > stat.Points {
			return nil, domain.ErrInsufficientPoints
		}
		applied = min3(req.RequestedPoints, stat.Points, original)
	}

	var discount int64
	if req.CouponID != nil {
		if owner.Kind != domain.OwnerMember {
			return nil, domain.ErrInvalidCoupon
		}
		coupon, err := s.Coupons.GetUnused(ctx, req.UserID, *req.CouponID)
		if err != nil {
			return nil, err
		}
		discount = coupon.Discount
	}

	final := original - applied - discount
	if final < 0 {
		final = 0
	}
	if req.PaidAmount != final {
		return nil, domain.ErrPaymentMismatch
	}

	paidAt := time.Now()
	created, err := s.Settlements.Create(ctx, ports.CreateSettlementInput{
		Owner:            owner,
		StoreID:          req.StoreID,
		TableNumber:      tableNumber,
		Channel:          req.Channel,
		Items:            req.Items,
		OriginalAmount:   original,
		PointsToApply:    applied,
		CouponID:         req.CouponID,
		CouponDiscount:   discount,
		FinalAmount:      final,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		PaidAt:           paidAt,
	})
	if err != nil {
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues(string(owner.Kind)).Inc()

	result := &SettleResult{
		SettlementID:        created.Settlement.ID,
		TicketID:            created.Ticket.ID,
		AppliedPoints:       applied,
		FinalAmount:         final,
		WelcomeCouponIssued: created.WelcomeCouponIssued,
	}

	s.reconcileStaleSession(ctx, req.StoreID, tableNumber, owner, created.Settlement.ID)

	if owner.Kind == domain.OwnerMember {
		accrued := final / 10
		if _, err := s.Loyalty.Accrue(ctx, req.UserID, req.StoreID, accrued, final, paidAt); err != nil {
			// The payment is confirmed; bookkeeping stays best-effort.
			s.Logger.Error("loyalty accrual failed after confirmed payment",
				"userId", req.UserID, "storeId", req.StoreID, "settlementId", created.Settlement.ID, "err", err)
			result.Warning = "loyalty accrual failed"
		} else {
			result.AccruedPoints = accrued
			if err := s.LoyaltySvc.EvaluateLevel(ctx, req.UserID, req.StoreID); err != nil {
				s.Logger.Warn("level evaluation failed", "userId", req.UserID, "storeId", req.StoreID, "err", err)
			}
		}
	}

	s.broadcastNewOrder(req.StoreID, created)

	source := domain.SourceOrder
	if req.Channel == domain.ChannelTLL {
		source = domain.SourceTLL
	}
	if _, err := s.Occupancy.Occupy(ctx, req.StoreID, tableNumber, source, 0); err != nil {
		if errors.Is(err, domain.ErrTableNotFound) {
			// Pass-through designator with no backing table row; the
			// settlement stands on its own.
			s.Logger.Info("settlement on unregistered table", "storeId", req.StoreID, "table", tableNumber)
		} else {
			s.Logger.Error("table occupation failed after settlement",
				"storeId", req.StoreID, "table", tableNumber, "err", err)
			result.Warning = "table occupation failed"
		}
	}

	return result, nil
}

func buildOwner(req SettleRequest) (domain.SettlementOwner, error) {
	switch req.OwnerKind {
	case domain.OwnerMember:
		if req.UserID == 0 {
			return domain.SettlementOwner{}, errors.New("member settlement requires user id")
		}
		return domain.MemberOwner(req.UserID), nil
	case domain.OwnerGuest:
		if req.GuestPhone == "" {
			return domain.SettlementOwner{}, errors.New("guest settlement requires phone number")
		}
		return domain.GuestOwner(req.GuestPhone), nil
	default:
		return domain.SettlementOwner{}, errors.New("unknown owner kind")
	}
}

// reconcileStaleSession force-completes open tickets left by a different
// owner on the same table within the stale window, so the new occupation
// does not inherit another party's cooking queue.
func (s *SettlementService) reconcileStaleSession(ctx context.Context, storeID int64, tableNumber string, owner domain.SettlementOwner, newSettlementID int64) {
	recent, err := s.Settlements.FindRecentOnTable(ctx, storeID, tableNumber, staleWindow)
	if err != nil {
		s.Logger.Error("stale session lookup failed", "storeId", storeID, "table", tableNumber, "err", err)
		return
	}
	for _, prev := range recent {
		if prev.ID == newSettlementID || prev.Owner.Same(owner) {
			continue
		}
		n, err := s.Tickets.ForceCompleteOpenForOwner(ctx, storeID, tableNumber, prev.Owner, staleWindow)
		if err != nil {
			s.Logger.Error("stale ticket reconciliation failed", "storeId", storeID, "table", tableNumber, "err", err)
			return
		}
		if n > 0 {
			s.Logger.Info("stale tickets force-completed", "storeId", storeID, "table", tableNumber, "count", n)
		}
		return
	}
}

func (s *SettlementService) broadcastNewOrder(storeID int64, created *ports.CreateSettlementResult) {
	items := make([]domain.NewOrderItem, 0, len(created.Ticket.Items))
	for _, it := range created.Ticket.Items {
		items = append(items, domain.NewOrderItem{
			MenuName: it.MenuName,
			Quantity: it.Quantity,
			Price:    it.Price,
			Status:   it.Status,
		})
	}
	s.Hub.Broadcast(storeID, domain.EventNewOrder, domain.NewOrderPayload{
		SettlementID: created.Settlement.ID,
		TicketID:     created.Ticket.ID,
		TicketCode:   created.Ticket.Code,
		TableNumber:  created.Ticket.TableNumber,
		Status:       created.Ticket.Status,
		Items:        items,
		CreatedAt:    created.Ticket.CreatedAt,
	})
}

func min3(a, b, c int64) int64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
