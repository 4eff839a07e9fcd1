package collaboration

import (
	"errors"
	"sort"
	"sync"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"

	"go.uber.org/zap"
)

/*
SESSION REGISTRY AND BROADCAST

The registry maps session id -> *Session under its own RWMutex, independent
of the world lock. Register/Unregister take the write lock; broadcasts only
read the map, so they take the read lock and may run concurrently.

Delivery never blocks: each session has a bounded queue and a session that
cannot accept a message is closed (disconnect-on-overflow). Its read pump
then unregisters it through the normal disconnect path.
*/

// SessionRegistry tracks connected sessions and fans messages out to them.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger  *zap.Logger
	metrics *middleware.Metrics
}

// NewSessionRegistry creates an empty registry. metrics may be nil.
func NewSessionRegistry(logger *zap.Logger, metrics *middleware.Metrics) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register adds s.
func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session registered",
		zap.String("session", s.ID),
		zap.Int("total", total),
	)
}

// Unregister removes s and reports whether it was registered. Only the
// exact session value is removed, so a late call cannot evict a newer
// session that happens to share the id.
func (r *SessionRegistry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.ID)
	return true
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns session metadata ordered by id (connect order).
func (r *SessionRegistry) List() []models.Session {
	r.mu.RLock()
	out := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BroadcastAll queues a frame for every registered session and returns how
// many accepted it.
func (r *SessionRegistry) BroadcastAll(kind int, data []byte) int {
	return r.broadcast(outbound{kind: kind, data: data}, "")
}

// BroadcastExcept is BroadcastAll minus the session with excludedID.
func (r *SessionRegistry) BroadcastExcept(kind int, data []byte, excludedID string) int {
	return r.broadcast(outbound{kind: kind, data: data}, excludedID)
}

func (r *SessionRegistry) broadcast(msg outbound, excludedID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, s := range r.sessions {
		if excludedID != "" && id == excludedID {
			continue
		}
		if r.deliver(s, msg) {
			delivered++
		}
	}
	r.metrics.Broadcast()
	return delivered
}

// Send queues a frame for one session.
func (r *SessionRegistry) Send(s *Session, kind int, data []byte) bool {
	return r.deliver(s, outbound{kind: kind, data: data})
}

func (r *SessionRegistry) deliver(s *Session, msg outbound) bool {
	err := s.enqueue(msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errQueueFull):
		r.metrics.Dropped("overflow")
		r.logger.Warn("outbound queue full, disconnecting session",
			zap.String("session", s.ID),
			zap.String("remote", s.RemoteAddr),
		)
	default:
		r.metrics.Dropped("closed")
	}
	return false
}

// CloseAll closes every session; their pumps then unregister them.
func (r *SessionRegistry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		s.Close()
	}
}
