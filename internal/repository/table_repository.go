package repository

import (
	"context"
	"errors"
	"time"

	"tablelink-backend/internal/db"
	"tablelink-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type TableRepository struct {
	DB *db.Postgres
}

const tableColumns = `id, store_id, unique_id, table_number, seats, is_occupied, occupied_since, auto_release_source, created_at, updated_at`

func (r TableRepository) GetByNumber(ctx context.Context, storeID int64, tableNumber string) (*domain.Table, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+tableColumns+`
		FROM store_tables
		WHERE store_id = $1 AND table_number = $2
	`, storeID, tableNumber)
	return scanTable(row)
}

func (r TableRepository) ListByStore(ctx context.Context, storeID int64) ([]domain.Table, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+tableColumns+`
		FROM store_tables
		WHERE store_id = $1
		ORDER BY id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

// Occupy marks the table occupied in one statement, overwriting any previous
// source and since (last writer wins across channels).
func (r TableRepository) Occupy(ctx context.Context, storeID int64, tableNumber string, source domain.TableSource, since time.Time) (*domain.Table, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		UPDATE store_tables
		SET is_occupied = true, occupied_since = $3, auto_release_source = $4, updated_at = now()
		WHERE store_id = $1 AND table_number = $2
		RETURNING `+tableColumns+`
	`, storeID, tableNumber, since, string(source))
	return scanTable(row)
}

// Release unconditionally frees the table.
func (r TableRepository) Release(ctx context.Context, storeID int64, tableNumber string) (*domain.Table, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		UPDATE store_tables
		SET is_occupied = false, occupied_since = NULL, auto_release_source = '', updated_at = now()
		WHERE store_id = $1 AND table_number = $2
		RETURNING `+tableColumns+`
	`, storeID, tableNumber)
	return scanTable(row)
}

// ReleaseIfHeldBy frees the table only while it is still held by the exact
// (source, since) pair the caller scheduled against. A table reassigned in the
// meantime no longer matches and stays untouched.
func (r TableRepository) ReleaseIfHeldBy(ctx context.Context, tableID int64, source domain.TableSource, since time.Time) (bool, error) {
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE store_tables
		SET is_occupied = false, occupied_since = NULL, auto_release_source = '', updated_at = now()
		WHERE id = $1 AND is_occupied = true AND auto_release_source = $2 AND occupied_since = $3
	`, tableID, string(source), since)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r TableRepository) ListOverdue(ctx context.Context, source domain.TableSource, occupiedBefore time.Time) ([]domain.Table, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+tableColumns+`
		FROM store_tables
		WHERE is_occupied = true AND auto_release_source = $1 AND occupied_since <= $2
	`, string(source), occupiedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

func scanTable(row pgx.Row) (*domain.Table, error) {
	var t domain.Table
	var since pgtype.Timestamptz
	var source string
	err := row.Scan(&t.ID, &t.StoreID, &t.UniqueID, &t.TableNumber, &t.Seats,
		&t.IsOccupied, &since, &source, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTableNotFound
		}
		return nil, err
	}
	if since.Valid {
		t.OccupiedSince = &since.Time
	}
	t.AutoReleaseSource = domain.TableSource(source)
	return &t, nil
}
