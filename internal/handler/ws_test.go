package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/realtime"
)

type snapshotTableStore struct {
	tables []domain.Table
}

func (s snapshotTableStore) GetByNumber(context.Context, int64, string) (*domain.Table, error) {
	return nil, domain.ErrTableNotFound
}

func (s snapshotTableStore) ListByStore(context.Context, int64) ([]domain.Table, error) {
	return s.tables, nil
}

func (s snapshotTableStore) Occupy(context.Context, int64, string, domain.TableSource, time.Time) (*domain.Table, error) {
	return nil, domain.ErrTableNotFound
}

func (s snapshotTableStore) Release(context.Context, int64, string) (*domain.Table, error) {
	return nil, domain.ErrTableNotFound
}

func (s snapshotTableStore) ReleaseIfHeldBy(context.Context, int64, domain.TableSource, time.Time) (bool, error) {
	return false, nil
}

func (s snapshotTableStore) ListOverdue(context.Context, domain.TableSource, time.Time) ([]domain.Table, error) {
	return nil, nil
}

type captureConn struct {
	frames [][]byte
}

func (c *captureConn) WriteMessage(_ int, data []byte) error {
	c.frames = append(c.frames, data)
	return nil
}

func (c *captureConn) SetWriteDeadline(time.Time) error { return nil }
func (c *captureConn) Close() error                     { return nil }

func TestResyncPushesTableSnapshot(t *testing.T) {
	since := time.Now()
	h := WSHandler{
		Hub: realtime.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil))),
		Tables: snapshotTableStore{tables: []domain.Table{
			{UniqueID: "uid-1", TableNumber: "1", Seats: 4, IsOccupied: true, OccupiedSince: &since, AutoReleaseSource: domain.SourceTLL},
			{UniqueID: "uid-2", TableNumber: "2", Seats: 2},
		}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	conn := &captureConn{}
	client := realtime.NewClient(conn, domain.AudiencePOS)
	h.Hub.Subscribe(1, client)

	h.resync(httptest.NewRequest("GET", "/ws?storeId=1", nil), 1, client)

	require.Len(t, conn.frames, 1)
	var env struct {
		Type    domain.EventType `json:"type"`
		Payload struct {
			StoreID int64 `json:"storeId"`
			Tables  []struct {
				TableNumber string             `json:"tableNumber"`
				IsOccupied  bool               `json:"isOccupied"`
				Source      domain.TableSource `json:"source"`
			} `json:"tables"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(conn.frames[0], &env))
	assert.Equal(t, domain.EventTableSnapshot, env.Type)
	assert.Equal(t, int64(1), env.Payload.StoreID)
	require.Len(t, env.Payload.Tables, 2)
	assert.Equal(t, "1", env.Payload.Tables[0].TableNumber)
	assert.True(t, env.Payload.Tables[0].IsOccupied)
	assert.Equal(t, domain.SourceTLL, env.Payload.Tables[0].Source)
	assert.False(t, env.Payload.Tables[1].IsOccupied)
}
