package repository

import (
	"context"
	"errors"
	"time"

	"tablelink-backend/internal/db"
	"tablelink-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type LoyaltyRepository struct {
	DB *db.Postgres
}

// pgxQuerier is satisfied by both pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// GetStat returns the (user, store) ledger row, or a zero stat if the user
// has never settled at the store.
func (r LoyaltyRepository) GetStat(ctx context.Context, userID, storeID int64) (*domain.LoyaltyStat, error) {
	stat := domain.LoyaltyStat{UserID: userID, StoreID: storeID}
	var lastVisit, levelAt pgtype.Timestamptz
	var levelID pgtype.Int8
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT points, total_spent, visit_count, last_visit_at, current_level_id, current_level_at
		FROM user_store_stats
		WHERE user_id = $1 AND store_id = $2
	`, userID, storeID).Scan(&stat.Points, &stat.TotalSpent, &stat.VisitCount, &lastVisit, &levelID, &levelAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &stat, nil
		}
		return nil, err
	}
	if lastVisit.Valid {
		stat.LastVisitAt = &lastVisit.Time
	}
	if levelID.Valid {
		stat.CurrentLevelID = &levelID.Int64
	}
	if levelAt.Valid {
		stat.CurrentLevelAt = &levelAt.Time
	}
	return &stat, nil
}

// Spend decrements points in one conditional statement; a balance below the
// requested amount matches zero rows.
func (r LoyaltyRepository) Spend(ctx context.Context, userID, storeID, points int64) error {
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE user_store_stats SET points = points - $3
		WHERE user_id = $1 AND store_id = $2 AND points >= $3
	`, userID, storeID, points)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientPoints
	}
	return nil
}

// Accrue adds earned points, spend and one visit as a single upsert, safe
// under concurrent settlements for the same (user, store).
func (r LoyaltyRepository) Accrue(ctx context.Context, userID, storeID, points, spent int64, visitAt time.Time) (*domain.LoyaltyStat, error) {
	stat := domain.LoyaltyStat{UserID: userID, StoreID: storeID}
	var lastVisit, levelAt pgtype.Timestamptz
	var levelID pgtype.Int8
	err := r.DB.Pool.QueryRow(ctx, `
		INSERT INTO user_store_stats (user_id, store_id, points, total_spent, visit_count, last_visit_at)
		VALUES ($1,$2,$3,$4,1,$5)
		ON CONFLICT (user_id, store_id) DO UPDATE
		SET points = user_store_stats.points + EXCLUDED.points,
		    total_spent = user_store_stats.total_spent + EXCLUDED.total_spent,
		    visit_count = user_store_stats.visit_count + 1,
		    last_visit_at = EXCLUDED.last_visit_at
		RETURNING points, total_spent, visit_count, last_visit_at, current_level_id, current_level_at
	`, userID, storeID, points, spent, visitAt).Scan(&stat.Points, &stat.TotalSpent, &stat.VisitCount, &lastVisit, &levelID, &levelAt)
	if err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		stat.LastVisitAt = &lastVisit.Time
	}
	if levelID.Valid {
		stat.CurrentLevelID = &levelID.Int64
	}
	if levelAt.Valid {
		stat.CurrentLevelAt = &levelAt.Time
	}
	return &stat, nil
}

func (r LoyaltyRepository) ListLevels(ctx context.Context, storeID int64) ([]domain.Level, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, store_id, level_rank, name, description,
		       required_points, required_total_spent, required_visit_count, eval_policy, is_active
		FROM regular_levels
		WHERE store_id = $1 AND is_active = true
		ORDER BY level_rank ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []domain.Level
	for rows.Next() {
		var l domain.Level
		var policy string
		if err := rows.Scan(&l.ID, &l.StoreID, &l.Rank, &l.Name, &l.Description,
			&l.RequiredPoints, &l.RequiredTotalSpent, &l.RequiredVisitCount, &policy, &l.IsActive); err != nil {
			return nil, err
		}
		l.EvalPolicy = domain.EvalPolicy(policy)
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// SetCurrentLevel advances the user's level and appends the history record in
// one transaction.
func (r LoyaltyRepository) SetCurrentLevel(ctx context.Context, userID, storeID, levelID int64, fromLevelID *int64, reason string) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE user_store_stats
		SET current_level_id = $3, current_level_at = now()
		WHERE user_id = $1 AND store_id = $2
	`, userID, storeID, levelID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO level_history (user_id, store_id, from_level_id, to_level_id, reason, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
	`, userID, storeID, fromLevelID, levelID, reason)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
