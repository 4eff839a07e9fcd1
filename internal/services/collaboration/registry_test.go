package collaboration

import (
	"testing"

	"pixelboard/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSession(queueSize int) *Session {
	return newSession(models.NewSession("127.0.0.1:1", models.RolePlayer), nil, queueSize)
}

func drain(s *Session) []outbound {
	var out []outbound
	for {
		select {
		case msg := <-s.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestSessionRegistry_RegisterUnregister(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	a, b := newTestSession(4), newTestSession(4)

	r.Register(a)
	r.Register(b)
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a), "second unregister is a no-op")
	assert.Equal(t, 1, r.Count())

	// A stale value with the same id must not evict the registered one.
	stale := newSession(&models.Session{ID: b.ID}, nil, 1)
	assert.False(t, r.Unregister(stale))
	assert.Equal(t, 1, r.Count())
}

func TestSessionRegistry_BroadcastAll(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	sessions := []*Session{newTestSession(4), newTestSession(4), newTestSession(4)}
	for _, s := range sessions {
		r.Register(s)
	}

	n := r.BroadcastAll(websocket.TextMessage, []byte(`{"type":"update"}`))
	assert.Equal(t, 3, n)

	for _, s := range sessions {
		got := drain(s)
		require.Len(t, got, 1)
		assert.Equal(t, websocket.TextMessage, got[0].kind)
		assert.JSONEq(t, `{"type":"update"}`, string(got[0].data))
	}
}

func TestSessionRegistry_BroadcastExcept(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	sender, other := newTestSession(4), newTestSession(4)
	r.Register(sender)
	r.Register(other)

	n := r.BroadcastExcept(websocket.BinaryMessage, []byte{1, 2, 3}, sender.ID)
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(sender))

	got := drain(other)
	require.Len(t, got, 1)
	assert.Equal(t, websocket.BinaryMessage, got[0].kind)
	assert.Equal(t, []byte{1, 2, 3}, got[0].data)
}

func TestSessionRegistry_OverflowClosesSession(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	slow, fast := newTestSession(1), newTestSession(8)
	r.Register(slow)
	r.Register(fast)

	assert.Equal(t, 2, r.BroadcastAll(websocket.TextMessage, []byte("1")))
	assert.Equal(t, 1, r.BroadcastAll(websocket.TextMessage, []byte("2")), "slow session overflows")

	select {
	case <-slow.Done():
	default:
		t.Fatal("overflowing session should be closed")
	}

	// Closed sessions are skipped without blocking until their pump unregisters them.
	assert.Equal(t, 1, r.BroadcastAll(websocket.TextMessage, []byte("3")))
	assert.Len(t, drain(fast), 3)
	assert.Len(t, drain(slow), 1)
}

func TestSessionRegistry_SendAndCloseAll(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	a, b := newTestSession(2), newTestSession(2)
	r.Register(a)
	r.Register(b)

	assert.True(t, r.Send(a, websocket.TextMessage, []byte("pong")))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))

	r.CloseAll()
	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s not closed", s.ID)
		}
	}
	assert.False(t, r.Send(a, websocket.TextMessage, []byte("late")))

	// Close is idempotent.
	a.Close()
}

func TestSessionRegistry_List(t *testing.T) {
	r := NewSessionRegistry(zaptest.NewLogger(t), nil)
	a := newTestSession(1)
	b := newSession(models.NewSession("127.0.0.1:2", models.RoleAdmin), nil, 1)
	r.Register(b)
	r.Register(a)

	list := r.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].ID < list[1].ID)

	roles := map[string]models.Role{}
	for _, info := range list {
		roles[info.ID] = info.Role
		assert.False(t, info.LastActiveAt.IsZero())
	}
	assert.Equal(t, models.RoleAdmin, roles[b.ID])
	assert.Equal(t, models.RolePlayer, roles[a.ID])
}
