package collaboration

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pixelboard/internal/models"

	"github.com/gorilla/websocket"
)

var (
	errSessionClosed = errors.New("session closed")
	errQueueFull     = errors.New("outbound queue full")
)

// outbound is one queued websocket frame.
type outbound struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

// Session is a registered connection: its metadata, the websocket, and a
// bounded outbound queue drained by the session's write pump.
//
// The send channel is never closed. Shutdown is signalled by closing done,
// which is safe to do from any goroutine and happens exactly once.
type Session struct {
	*models.Session
	conn *websocket.Conn
	send chan outbound
	done chan struct{}

	closeOnce  sync.Once
	lastActive atomic.Int64 // unix nanos
}

func newSession(meta *models.Session, conn *websocket.Conn, queueSize int) *Session {
	s := &Session{
		Session: meta,
		conn:    conn,
		send:    make(chan outbound, queueSize),
		done:    make(chan struct{}),
	}
	s.touch()
	return s
}

// enqueue queues msg without blocking. A full queue means the peer is not
// keeping up: the message is dropped and the session is closed.
func (s *Session) enqueue(msg outbound) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	default:
		s.Close()
		return errQueueFull
	}
}

// Close signals the write pump to stop. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the session is shutting down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// Info returns a copy of the session metadata with the current activity time.
func (s *Session) Info() models.Session {
	info := *s.Session
	info.LastActiveAt = time.Unix(0, s.lastActive.Load())
	return info
}
