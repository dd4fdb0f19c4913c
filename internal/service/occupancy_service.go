package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/metrics"
	"tablelink-backend/internal/ports"
)

// archiveWindow bounds the ticket archival cascade to the trailing day.
const archiveWindow = 24 * time.Hour

// OccupancyService owns every table occupancy transition. Tables move between
// Free and Occupied(source, since); each occupation may carry a deferred
// release that re-validates (source, since) when it fires, so a timer that
// outlived a manual release or a re-occupation is a no-op.
type OccupancyService struct {
	Tables  ports.TableStore
	Tickets ports.TicketStore
	Hub     ports.Broadcaster
	Logger  *slog.Logger

	TLLReleaseTTL     time.Duration
	OrderReleaseTTL   time.Duration
	ReconcileInterval time.Duration

	mu     sync.Mutex
	timers map[int64]*releaseTimer
}

type releaseTimer struct {
	source domain.TableSource
	since  time.Time
	timer  *time.Timer
}

// TTLFor resolves the auto-release policy for a source. An explicit duration
// wins; TLM holds without one never expire.
func (s *OccupancyService) TTLFor(source domain.TableSource, explicit time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	switch source {
	case domain.SourceTLL:
		return s.TLLReleaseTTL
	case domain.SourceOrder:
		return s.OrderReleaseTTL
	default:
		return 0
	}
}

// Occupy marks the table occupied for the given source, schedules the
// deferred release when a TTL applies, and publishes the table update.
// Re-occupation is allowed; the last writer wins and the previous timer is
// cancelled.
func (s *OccupancyService) Occupy(ctx context.Context, storeID int64, tableNumber string, source domain.TableSource, ttl time.Duration) (*domain.Table, error) {
	table, err := s.Tables.Occupy(ctx, storeID, tableNumber, source, time.Now())
	if err != nil {
		return nil, err
	}

	s.schedule(table.ID, storeID, tableNumber, source, *table.OccupiedSince, s.TTLFor(source, ttl))
	s.broadcastTable(table)
	return table, nil
}

// Release is the manual (staff) release: unconditionally frees the table,
// cancels any pending timer, archives the table's visible tickets and
// publishes the update.
func (s *OccupancyService) Release(ctx context.Context, storeID int64, tableNumber string) (*domain.Table, error) {
	table, err := s.Tables.Release(ctx, storeID, tableNumber)
	if err != nil {
		return nil, err
	}

	s.cancel(table.ID)
	s.archiveTickets(ctx, storeID, tableNumber)
	s.broadcastTable(table)
	return table, nil
}

func (s *OccupancyService) schedule(tableID, storeID int64, tableNumber string, source domain.TableSource, since time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[tableID]; ok {
		existing.timer.Stop()
		delete(s.timers, tableID)
	}
	if ttl <= 0 {
		return
	}
	if s.timers == nil {
		s.timers = make(map[int64]*releaseTimer)
	}

	rt := &releaseTimer{source: source, since: since}
	rt.timer = time.AfterFunc(ttl, func() {
		s.fireRelease(tableID, storeID, tableNumber, source, since, ttl)
	})
	s.timers[tableID] = rt
}

func (s *OccupancyService) cancel(tableID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.timers[tableID]; ok {
		rt.timer.Stop()
		delete(s.timers, tableID)
	}
}

// fireRelease runs when a scheduled release elapses. The conditional update
// only frees the table while it is still held by the same (source, since) the
// timer was scheduled for; anything else happened in between and the timer
// quietly steps aside.
func (s *OccupancyService) fireRelease(tableID, storeID int64, tableNumber string, source domain.TableSource, since time.Time, ttl time.Duration) {
	s.mu.Lock()
	if rt, ok := s.timers[tableID]; ok && rt.source == source && rt.since.Equal(since) {
		delete(s.timers, tableID)
	}
	s.mu.Unlock()

	if time.Since(since) < ttl {
		return
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	released, err := s.Tables.ReleaseIfHeldBy(ctx, tableID, source, since)
	if err != nil {
		s.Logger.Error("scheduled table release failed", "tableId", tableID, "source", source, "err", err)
		return
	}
	if !released {
		// Manual release or re-occupation beat the timer.
		return
	}

	metrics.TableAutoReleases.WithLabelValues(string(source)).Inc()
	s.Logger.Info("table auto-released", "storeId", storeID, "table", tableNumber, "source", source)

	s.archiveTickets(ctx, storeID, tableNumber)
	s.Hub.Broadcast(storeID, domain.EventTableUpdate, domain.TableUpdatePayload{
		TableNumber: tableNumber,
		IsOccupied:  false,
		Source:      domain.SourceNone,
	})
}

// Run sweeps for overdue occupations until the context ends. Timers live
// in-process and do not survive a restart; the sweep re-derives releases from
// the persisted occupiedSince instead.
func (s *OccupancyService) Run(ctx context.Context) {
	interval := s.ReconcileInterval
	if interval <= 0 {
		interval = time.Minute
	}

	s.ReconcileOverdue(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReconcileOverdue(ctx)
		}
	}
}

// ReconcileOverdue releases every table occupied past its source TTL.
func (s *OccupancyService) ReconcileOverdue(ctx context.Context) {
	for _, policy := range []struct {
		source domain.TableSource
		ttl    time.Duration
	}{
		{domain.SourceTLL, s.TLLReleaseTTL},
		{domain.SourceOrder, s.OrderReleaseTTL},
	} {
		if policy.ttl <= 0 {
			continue
		}
		tables, err := s.Tables.ListOverdue(ctx, policy.source, time.Now().Add(-policy.ttl))
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.Logger.Error("overdue table sweep failed", "source", policy.source, "err", err)
			}
			continue
		}
		for _, t := range tables {
			released, err := s.Tables.ReleaseIfHeldBy(ctx, t.ID, policy.source, *t.OccupiedSince)
			if err != nil {
				s.Logger.Error("overdue table release failed", "tableId", t.ID, "err", err)
				continue
			}
			if !released {
				continue
			}
			metrics.TableAutoReleases.WithLabelValues(string(policy.source)).Inc()
			s.cancel(t.ID)
			s.archiveTickets(ctx, t.StoreID, t.TableNumber)
			s.Hub.Broadcast(t.StoreID, domain.EventTableUpdate, domain.TableUpdatePayload{
				TableNumber: t.TableNumber,
				IsOccupied:  false,
				Source:      domain.SourceNone,
			})
		}
	}
}

func (s *OccupancyService) archiveTickets(ctx context.Context, storeID int64, tableNumber string) {
	n, err := s.Tickets.ArchiveForReleasedTable(ctx, storeID, tableNumber, archiveWindow)
	if err != nil {
		s.Logger.Error("ticket archival failed", "storeId", storeID, "table", tableNumber, "err", err)
		return
	}
	if n > 0 {
		s.Logger.Info("tickets archived on release", "storeId", storeID, "table", tableNumber, "count", n)
	}
}

func (s *OccupancyService) broadcastTable(t *domain.Table) {
	s.Hub.Broadcast(t.StoreID, domain.EventTableUpdate, domain.TableUpdatePayload{
		TableNumber:   t.TableNumber,
		IsOccupied:    t.IsOccupied,
		Source:        t.AutoReleaseSource,
		OccupiedSince: t.OccupiedSince,
	})
}
