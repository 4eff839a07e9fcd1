package services

import (
	"context"

	"pixelboard/internal/models"
	"pixelboard/internal/world"
)

// Interfaces are declared here, where they are consumed, and satisfied by
// the concrete types in world and repository.

// HistorySource gives read access to the live history. fn runs under the
// world's read lock and must not block.
type HistorySource interface {
	ReadHistory(fn func(*world.History) error) error
}

// HistoryWriter persists an encoded history atomically.
type HistoryWriter interface {
	WriteAtomic(data []byte) error
	Path() string
}

// JournalRepository stores applied changes.
type JournalRepository interface {
	Append(ctx context.Context, records ...*models.ChangeRecord) error
}
