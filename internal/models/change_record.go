package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// ChangeKind names the variant stored in a journal row.
type ChangeKind string

const (
	ChangeKindPaint  ChangeKind = "paint"
	ChangeKindResize ChangeKind = "resize"
)

// ChangeRecord is one applied change mirrored into the postgres journal.
// BootID groups rows written by one server process; Seq is the history
// change count right after the change was applied.
type ChangeRecord struct {
	ID        string     `gorm:"type:char(27);primaryKey" json:"id"`
	BootID    string     `gorm:"type:char(36);not null;index:idx_boot_seq" json:"boot_id"`
	Seq       int64      `gorm:"not null;index:idx_boot_seq" json:"seq"`
	Kind      ChangeKind `gorm:"type:varchar(16);not null" json:"kind"`
	X         *int       `json:"x,omitempty"`
	Y         *int       `json:"y,omitempty"`
	Color     *string    `gorm:"type:char(7)" json:"color,omitempty"`
	Width     *int       `json:"width,omitempty"`
	Height    *int       `json:"height,omitempty"`
	Anchor    *string    `gorm:"type:varchar(16)" json:"anchor,omitempty"`
	AppliedAt int64      `gorm:"not null" json:"applied_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// BeforeCreate generates KSUID
func (c *ChangeRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ChangeRecord) TableName() string {
	return "canvas_changes"
}

// NewChangeRecord flattens an applied change into a journal row.
func NewChangeRecord(bootID string, seq int, change Change) *ChangeRecord {
	rec := &ChangeRecord{
		BootID:    bootID,
		Seq:       int64(seq),
		AppliedAt: change.Timestamp,
	}

	switch ev := change.Event.(type) {
	case Paint:
		color := ev.Color.Hex()
		rec.Kind = ChangeKindPaint
		rec.X, rec.Y, rec.Color = &ev.X, &ev.Y, &color
	case Resize:
		anchor := ev.Anchor.String()
		rec.Kind = ChangeKindResize
		rec.Width, rec.Height, rec.Anchor = &ev.Width, &ev.Height, &anchor
	}

	return rec
}
