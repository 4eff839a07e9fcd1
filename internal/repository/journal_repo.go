package repository

import (
	"context"
	"fmt"

	"pixelboard/internal/models"

	"gorm.io/gorm"
)

/*
CHANGE JOURNAL

An optional postgres mirror of every applied change. The history file is
still the recovery source; the journal is an audit trail that survives
history-file rotation and can be queried while the server runs.

Query patterns:
- Append: batch insert from the journal workers
- Recent: newest rows first, for the /api/journal endpoint
- Since: rows of one boot after a sequence number
*/

// JournalRepositoryImpl stores change records with gorm.
type JournalRepositoryImpl struct {
	db *gorm.DB
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *gorm.DB) *JournalRepositoryImpl {
	return &JournalRepositoryImpl{db: db}
}

// Append inserts records in one batch.
func (r *JournalRepositoryImpl) Append(ctx context.Context, records ...*models.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("failed to append change records: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *JournalRepositoryImpl) Recent(ctx context.Context, limit int) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord

	err := r.db.WithContext(ctx).
		Order("id DESC"). // KSUID is time-ordered
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}

	return records, nil
}

// Since returns up to limit records of one boot with Seq greater than
// afterSeq, in order.
func (r *JournalRepositoryImpl) Since(ctx context.Context, bootID string, afterSeq int64, limit int) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord

	err := r.db.WithContext(ctx).
		Where("boot_id = ? AND seq > ?", bootID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}

	return records, nil
}
