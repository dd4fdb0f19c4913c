package repository

import (
	"context"
	"fmt"
	"time"

	"tablelink-backend/internal/db"
	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	welcomeCouponName     = "첫 주문 감사 쿠폰"
	welcomeCouponDiscount = 3000
)

type SettlementRepository struct {
	DB *db.Postgres
}

const settlementColumns = `id, code, owner_kind, user_id, guest_phone, store_id, table_number,
	original_amount, points_applied, coupon_discount, final_amount,
	payment_method, payment_reference, channel, paid_at, created_at`

// Create writes one settlement and everything that must land with it in a
// single transaction: line items, the cooking ticket, the coupon move and
// point deduction on the member lane, the visit counter on the guest lane.
// Any failure rolls the whole settlement back.
func (r SettlementRepository) Create(ctx context.Context, in ports.CreateSettlementInput) (*ports.CreateSettlementResult, error) {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	code := fmt.Sprintf("STL-%d", time.Now().UnixNano()/1e6)
	s := domain.Settlement{
		Code:             code,
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
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO settlements
		(code, owner_kind, user_id, guest_phone, store_id, table_number,
		 original_amount, points_applied, coupon_discount, final_amount,
		 payment_method, payment_reference, channel, paid_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
		RETURNING id, created_at
	`, code, string(in.Owner.Kind), in.Owner.UserID, in.Owner.GuestPhone, in.StoreID, in.TableNumber,
		in.OriginalAmount, in.PointsToApply, in.CouponDiscount, in.FinalAmount,
		in.PaymentMethod, in.PaymentReference, string(in.Channel), in.PaidAt).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range in.Items {
		err := tx.QueryRow(ctx, `
			INSERT INTO settlement_items (settlement_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, s.ID, in.Items[i].Name, in.Items[i].Quantity, in.Items[i].UnitPrice).Scan(&s.Items[i].ID)
		if err != nil {
			return nil, err
		}
	}

	welcomeIssued := false
	switch in.Owner.Kind {
	case domain.OwnerMember:
		if in.CouponID != nil {
			// Conditional move: a coupon already consumed by a concurrent
			// settlement matches zero rows here.
			tag, err := tx.Exec(ctx, `
				UPDATE coupons SET used = true, used_at = now()
				WHERE id = $1 AND user_id = $2 AND used = false
			`, *in.CouponID, *in.Owner.UserID)
			if err != nil {
				return nil, err
			}
			if tag.RowsAffected() == 0 {
				return nil, domain.ErrInvalidCoupon
			}
		}
		if in.PointsToApply > 0 {
			tag, err := tx.Exec(ctx, `
				UPDATE user_store_stats SET points = points - $3
				WHERE user_id = $1 AND store_id = $2 AND points >= $3
			`, *in.Owner.UserID, in.StoreID, in.PointsToApply)
			if err != nil {
				return nil, err
			}
			if tag.RowsAffected() == 0 {
				return nil, domain.ErrInsufficientPoints
			}
		}
		var memberCount int64
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM settlements
			WHERE owner_kind = 'member' AND user_id = $1 AND store_id = $2
		`, *in.Owner.UserID, in.StoreID).Scan(&memberCount)
		if err != nil {
			return nil, err
		}
		if memberCount == 1 {
			_, err = tx.Exec(ctx, `
				INSERT INTO coupons (user_id, name, discount, used, created_at)
				VALUES ($1,$2,$3,false, now())
			`, *in.Owner.UserID, welcomeCouponName, welcomeCouponDiscount)
			if err != nil {
				return nil, err
			}
			welcomeIssued = true
		}
	case domain.OwnerGuest:
		_, err = tx.Exec(ctx, `
			INSERT INTO guest_visits (phone, visit_count, last_visit_at)
			VALUES ($1, 1, $2)
			ON CONFLICT (phone) DO UPDATE
			SET visit_count = guest_visits.visit_count + 1, last_visit_at = EXCLUDED.last_visit_at
		`, *in.Owner.GuestPhone, in.PaidAt)
		if err != nil {
			return nil, err
		}
	}

	ticket := domain.Ticket{
		Code:         uuid.NewString(),
		SettlementID: s.ID,
		StoreID:      in.StoreID,
		TableNumber:  in.TableNumber,
		Status:       domain.TicketPending,
		IsVisible:    true,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO tickets (code, settlement_id, store_id, table_number, status, is_visible, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true, now(), now())
		RETURNING id, created_at, updated_at
	`, ticket.Code, s.ID, in.StoreID, in.TableNumber, string(domain.TicketPending)).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, it := range in.Items {
		item := domain.TicketItem{
			TicketID: ticket.ID,
			MenuName: it.Name,
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
			Status:   domain.ItemPending,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO ticket_items (ticket_id, menu_name, quantity, price, status)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, ticket.ID, it.Name, it.Quantity, it.UnitPrice, string(domain.ItemPending)).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		ticket.Items = append(ticket.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ports.CreateSettlementResult{
		Settlement:          &s,
		Ticket:              &ticket,
		WelcomeCouponIssued: welcomeIssued,
	}, nil
}

func (r SettlementRepository) FindRecentOnTable(ctx context.Context, storeID int64, tableNumber string, window time.Duration) ([]domain.Settlement, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE store_id = $1 AND table_number = $2 AND paid_at >= $3
		ORDER BY paid_at DESC, id DESC
	`, storeID, tableNumber, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSettlements(rows)
}

func (r SettlementRepository) ListByStoreAndDay(ctx context.Context, storeID int64, day time.Time) ([]domain.Settlement, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE store_id = $1 AND paid_at >= $2 AND paid_at < $3
		ORDER BY paid_at ASC, id ASC
	`, storeID, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSettlements(rows)
}

func collectSettlements(rows pgx.Rows) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		var kind, channel string
		var userID pgtype.Int8
		var guestPhone pgtype.Text
		if err := rows.Scan(&s.ID, &s.Code, &kind, &userID, &guestPhone, &s.StoreID, &s.TableNumber,
			&s.OriginalAmount, &s.PointsApplied, &s.CouponDiscount, &s.FinalAmount,
			&s.PaymentMethod, &s.PaymentReference, &channel, &s.PaidAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Owner.Kind = domain.OwnerKind(kind)
		if userID.Valid {
			s.Owner.UserID = &userID.Int64
		}
		if guestPhone.Valid {
			phone := guestPhone.String
			s.Owner.GuestPhone = &phone
		}
		s.Channel = domain.Channel(channel)
		out = append(out, s)
	}
	return out, rows.Err()
}
