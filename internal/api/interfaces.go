package api

import (
	"context"
	"net/http"

	"pixelboard/internal/models"
	"pixelboard/internal/world"
)

// Handlers depend on these narrow views; world.World, the session
// registry, the websocket handler and the journal repository satisfy them.

// CanvasReader is the read side of the world.
type CanvasReader interface {
	Board() (width, height int, board [][]string)
	ChangeCount() int
	SnapshotCount() int
	ReadHistory(fn func(*world.History) error) error
}

// SessionLister reports connected sessions.
type SessionLister interface {
	Count() int
	List() []models.Session
}

// ConnectionHandler accepts websocket upgrades.
type ConnectionHandler interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
}

// JournalReader queries the change journal.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]*models.ChangeRecord, error)
	Since(ctx context.Context, bootID string, afterSeq int64, limit int) ([]*models.ChangeRecord, error)
}
