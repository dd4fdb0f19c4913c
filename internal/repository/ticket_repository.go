package repository

import (
	"context"
	"errors"
	"time"

	"tablelink-backend/internal/db"
	"tablelink-backend/internal/domain"

	"github.com/jackc/pgx/v5"
)

type TicketRepository struct {
	DB *db.Postgres
}

const ticketColumns = `id, code, settlement_id, store_id, table_number, status, is_visible, created_at, updated_at`

func (r TicketRepository) Get(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	t, err := r.getWith(ctx, r.DB.Pool, ticketID)
	if err != nil {
		return nil, err
	}
	items, err := r.itemsWith(ctx, r.DB.Pool, []int64{ticketID})
	if err != nil {
		return nil, err
	}
	t.Items = items[ticketID]
	return t, nil
}

func (r TicketRepository) ListOpenByStore(ctx context.Context, storeID int64) ([]domain.Ticket, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE store_id = $1 AND is_visible = true AND status NOT IN ('ARCHIVED','TABLE_RELEASED')
		ORDER BY created_at ASC, id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	var ids []int64
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return tickets, nil
	}

	itemsByTicket, err := r.itemsWith(ctx, r.DB.Pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		tickets[i].Items = itemsByTicket[tickets[i].ID]
	}
	return tickets, nil
}

// StartItem moves one pending item to COOKING and refreshes the stored
// ticket status.
func (r TicketRepository) StartItem(ctx context.Context, ticketID, itemID int64) (*domain.Ticket, error) {
	return r.updateItem(ctx, ticketID, itemID, `
		UPDATE ticket_items SET status = 'COOKING'
		WHERE id = $2 AND ticket_id = $1 AND status = 'PENDING'
	`)
}

// CompleteItem moves one item to COMPLETED and refreshes the stored ticket
// status.
func (r TicketRepository) CompleteItem(ctx context.Context, ticketID, itemID int64) (*domain.Ticket, error) {
	return r.updateItem(ctx, ticketID, itemID, `
		UPDATE ticket_items SET status = 'COMPLETED'
		WHERE id = $2 AND ticket_id = $1 AND status IN ('PENDING','COOKING')
	`)
}

func (r TicketRepository) updateItem(ctx context.Context, ticketID, itemID int64, stmt string) (*domain.Ticket, error) {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, stmt, ticketID, itemID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrTicketNotFound
	}

	t, err := r.refreshStatus(ctx, tx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteTicket finishes every remaining item and the ticket itself.
func (r TicketRepository) CompleteTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE ticket_items SET status = 'COMPLETED'
		WHERE ticket_id = $1 AND status IN ('PENDING','COOKING')
	`, ticketID)
	if err != nil {
		return nil, err
	}

	t, err := r.refreshStatus(ctx, tx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// refreshStatus recomputes the derived ticket status from its items. The
// TABLE_RELEASED and ARCHIVED overrides are terminal and never recomputed.
func (r TicketRepository) refreshStatus(ctx context.Context, tx pgx.Tx, ticketID int64) (*domain.Ticket, error) {
	itemsByTicket, err := r.itemsWith(ctx, tx, []int64{ticketID})
	if err != nil {
		return nil, err
	}
	items := itemsByTicket[ticketID]
	derived := domain.DeriveTicketStatus(items)

	_, err = tx.Exec(ctx, `
		UPDATE tickets SET status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('TABLE_RELEASED','ARCHIVED')
	`, ticketID, string(derived))
	if err != nil {
		return nil, err
	}

	t, err := r.getWith(ctx, tx, ticketID)
	if err != nil {
		return nil, err
	}
	t.Items = items
	return t, nil
}

// ArchiveForReleasedTable hides the table's visible tickets from the trailing
// window, marking them TABLE_RELEASED. Fired by the occupancy service on
// every release.
func (r TicketRepository) ArchiveForReleasedTable(ctx context.Context, storeID int64, tableNumber string, window time.Duration) (int, error) {
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE tickets
		SET status = 'TABLE_RELEASED', is_visible = false, updated_at = now()
		WHERE store_id = $1 AND table_number = $2 AND is_visible = true
		  AND status <> 'ARCHIVED' AND created_at >= $3
	`, storeID, tableNumber, time.Now().Add(-window))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ForceCompleteOpenForOwner closes a previous owner's still-open tickets on a
// table that changed hands, so a new occupation never inherits orphaned work.
func (r TicketRepository) ForceCompleteOpenForOwner(ctx context.Context, storeID int64, tableNumber string, owner domain.SettlementOwner, window time.Duration) (int, error) {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	ownerCond := `s.owner_kind = 'guest' AND s.guest_phone = $4`
	var ownerKey any
	if owner.Kind == domain.OwnerMember {
		ownerCond = `s.owner_kind = 'member' AND s.user_id = $4`
		ownerKey = *owner.UserID
	} else {
		ownerKey = *owner.GuestPhone
	}

	rows, err := tx.Query(ctx, `
		UPDATE tickets t
		SET status = 'COMPLETED', updated_at = now()
		FROM settlements s
		WHERE t.settlement_id = s.id
		  AND t.store_id = $1 AND t.table_number = $2
		  AND t.is_visible = true
		  AND t.status IN ('PENDING','COOKING','OPEN')
		  AND t.created_at >= $3
		  AND `+ownerCond+`
		RETURNING t.id
	`, storeID, tableNumber, time.Now().Add(-window), ownerKey)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE ticket_items SET status = 'COMPLETED'
			WHERE ticket_id = ANY($1) AND status IN ('PENDING','COOKING')
		`, ids)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (r TicketRepository) getWith(ctx context.Context, q pgxQuerier, ticketID int64) (*domain.Ticket, error) {
	t, err := scanTicket(q.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets WHERE id = $1
	`, ticketID))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r TicketRepository) itemsWith(ctx context.Context, q pgxQuerier, ticketIDs []int64) (map[int64][]domain.TicketItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, ticket_id, menu_name, quantity, price, status
		FROM ticket_items
		WHERE ticket_id = ANY($1)
		ORDER BY id ASC
	`, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTicket := make(map[int64][]domain.TicketItem)
	for rows.Next() {
		var it domain.TicketItem
		var status string
		if err := rows.Scan(&it.ID, &it.TicketID, &it.MenuName, &it.Quantity, &it.Price, &status); err != nil {
			return nil, err
		}
		it.Status = domain.ItemStatus(status)
		byTicket[it.TicketID] = append(byTicket[it.TicketID], it)
	}
	return byTicket, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	var status string
	err := row.Scan(&t.ID, &t.Code, &t.SettlementID, &t.StoreID, &t.TableNumber, &status, &t.IsVisible, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return &t, nil
}
