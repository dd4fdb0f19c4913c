package repository

import (
	"context"
	"errors"

	"tablelink-backend/internal/db"
	"tablelink-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type CouponRepository struct {
	DB *db.Postgres
}

func (r CouponRepository) GetUnused(ctx context.Context, userID, couponID int64) (*domain.Coupon, error) {
	c, err := scanCoupon(r.DB.Pool.QueryRow(ctx, `
		SELECT id, user_id, name, discount, used, used_at, created_at
		FROM coupons
		WHERE id = $1 AND user_id = $2 AND used = false
	`, couponID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidCoupon
		}
		return nil, err
	}
	return c, nil
}

func (r CouponRepository) ListUnused(ctx context.Context, userID int64) ([]domain.Coupon, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, user_id, name, discount, used, used_at, created_at
		FROM coupons
		WHERE user_id = $1 AND used = false
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var c domain.Coupon
	var usedAt pgtype.Timestamptz
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Discount, &c.Used, &usedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	return &c, nil
}
