package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablelink-backend/internal/domain"
)

type fakeConn struct {
	writeErr error
	closed   bool
	frames   [][]byte
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBroadcastReachesAllStoreSubscribers(t *testing.T) {
	hub := newTestHub()
	kds := &fakeConn{}
	pos := &fakeConn{}
	other := &fakeConn{}

	hub.Subscribe(1, NewClient(kds, domain.AudienceKDS))
	hub.Subscribe(1, NewClient(pos, domain.AudiencePOS))
	hub.Subscribe(2, NewClient(other, domain.AudienceKDS))

	hub.Broadcast(1, domain.EventTableUpdate, domain.TableUpdatePayload{TableNumber: "3", IsOccupied: true})

	require.Len(t, kds.frames, 1)
	require.Len(t, pos.frames, 1)
	assert.Empty(t, other.frames, "scoped to the store")

	var env struct {
		Type    domain.EventType `json:"type"`
		Payload struct {
			TableNumber string `json:"tableNumber"`
			IsOccupied  bool   `json:"isOccupied"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(kds.frames[0], &env))
	assert.Equal(t, domain.EventTableUpdate, env.Type)
	assert.Equal(t, "3", env.Payload.TableNumber)
	assert.True(t, env.Payload.IsOccupied)
}

func TestBroadcastPrunesFailingSocket(t *testing.T) {
	hub := newTestHub()
	healthy := &fakeConn{}
	broken := &fakeConn{writeErr: errors.New("broken pipe")}

	hub.Subscribe(1, NewClient(healthy, domain.AudienceKDS))
	hub.Subscribe(1, NewClient(broken, domain.AudiencePOS))
	require.Equal(t, 2, hub.Subscribers(1))

	hub.Broadcast(1, domain.EventNewOrder, domain.NewOrderPayload{TicketID: 9})

	assert.Equal(t, 1, hub.Subscribers(1))
	assert.True(t, broken.closed)
	assert.Len(t, healthy.frames, 1, "the healthy socket still gets the frame")

	// The pruned socket stays gone on the next broadcast.
	hub.Broadcast(1, domain.EventNewOrder, domain.NewOrderPayload{TicketID: 10})
	assert.Len(t, healthy.frames, 2)
	assert.Equal(t, 1, hub.Subscribers(1))
}

func TestUnsubscribeClosesConn(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	client := NewClient(conn, domain.AudienceKDS)

	hub.Subscribe(1, client)
	hub.Unsubscribe(1, client)

	assert.True(t, conn.closed)
	assert.Zero(t, hub.Subscribers(1))

	// Idempotent for a client that already left.
	hub.Unsubscribe(1, client)
	assert.Zero(t, hub.Subscribers(1))
}

func TestBroadcastToEmptyStore(t *testing.T) {
	hub := newTestHub()
	hub.Broadcast(42, domain.EventTableUpdate, domain.TableUpdatePayload{TableNumber: "1"})
	assert.Zero(t, hub.Subscribers(42))
}

func TestSendTo(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	client := NewClient(conn, domain.AudiencePOS)
	hub.Subscribe(1, client)

	err := hub.SendTo(client, domain.EventTableSnapshot, []domain.TableUpdatePayload{{TableNumber: "1"}})
	require.NoError(t, err)
	require.Len(t, conn.frames, 1)

	var env domain.EventEnvelope
	require.NoError(t, json.Unmarshal(conn.frames[0], &env))
	assert.Equal(t, domain.EventTableSnapshot, env.Type)
}
