package world

import (
	"fmt"
	"sort"

	"pixelboard/internal/models"
)

// Snapshot is a full copy of the canvas taken once ChangeCount changes had
// been recorded. Snapshot canvases are never mutated after capture.
type Snapshot struct {
	Canvas      *Canvas
	ChangeCount int
}

// History is the append-only change log plus periodic snapshots.
//
// Invariants:
//   - there is always a snapshot with ChangeCount 0 (the initial canvas)
//   - snapshots are ascending by ChangeCount
//   - a snapshot is added exactly when len(changes) becomes a multiple of interval
type History struct {
	changes   []models.Change
	snapshots []Snapshot
	interval  int
}

// NewHistory starts a history over initial, which is cloned.
func NewHistory(interval int, initial *Canvas) (*History, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSnapshotInterval, interval)
	}
	if initial == nil {
		return nil, fmt.Errorf("%w: nil initial canvas", ErrInvalidDimensions)
	}
	return &History{
		snapshots: []Snapshot{{Canvas: initial.Clone(), ChangeCount: 0}},
		interval:  interval,
	}, nil
}

// RestoreHistory rebuilds a history from decoded parts, checking the
// invariants a live history maintains and that the log replays cleanly.
// Used by the persistence layer.
func RestoreHistory(interval int, changes []models.Change, snapshots []Snapshot) (*History, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSnapshotInterval, interval)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: no snapshots", ErrCorruptHistory)
	}
	if snapshots[0].ChangeCount != 0 {
		return nil, fmt.Errorf("%w: first snapshot at change %d", ErrCorruptHistory, snapshots[0].ChangeCount)
	}
	for i, s := range snapshots {
		if s.Canvas == nil {
			return nil, fmt.Errorf("%w: snapshot %d has no canvas", ErrCorruptHistory, i)
		}
		if s.ChangeCount > len(changes) {
			return nil, fmt.Errorf("%w: snapshot %d beyond log (%d > %d)", ErrCorruptHistory, i, s.ChangeCount, len(changes))
		}
		if i > 0 && s.ChangeCount <= snapshots[i-1].ChangeCount {
			return nil, fmt.Errorf("%w: snapshots out of order at %d", ErrCorruptHistory, i)
		}
	}
	h := &History{
		changes:   append([]models.Change(nil), changes...),
		snapshots: append([]Snapshot(nil), snapshots...),
		interval:  interval,
	}
	if err := h.verifyReplay(); err != nil {
		return nil, err
	}
	return h, nil
}

// verifyReplay replays every segment of the log from the snapshot that
// starts it, so any CanvasAt on the restored history succeeds.
func (h *History) verifyReplay() error {
	for i, snap := range h.snapshots {
		end := len(h.changes)
		if i+1 < len(h.snapshots) {
			end = h.snapshots[i+1].ChangeCount
		}
		canvas := snap.Canvas.Clone()
		for j := snap.ChangeCount; j < end; j++ {
			if err := canvas.apply(h.changes[j].Event); err != nil {
				return fmt.Errorf("%w: replay change %d: %v", ErrCorruptHistory, j, err)
			}
		}
	}
	return nil
}

// RecordChange appends an already-applied change. canvasAfter must be the
// canvas state right after the change; it is cloned when a snapshot is due.
func (h *History) RecordChange(change models.Change, canvasAfter *Canvas) {
	h.changes = append(h.changes, change)

	if len(h.changes)%h.interval == 0 {
		h.snapshots = append(h.snapshots, Snapshot{
			Canvas:      canvasAfter.Clone(),
			ChangeCount: len(h.changes),
		})
	}
}

func (h *History) Interval() int    { return h.interval }
func (h *History) ChangeCount() int { return len(h.changes) }

// Changes returns a copy of the log.
func (h *History) Changes() []models.Change {
	return append([]models.Change(nil), h.changes...)
}

// Snapshots returns a copy of the snapshot list. The canvases are shared and
// must not be modified.
func (h *History) Snapshots() []Snapshot {
	return append([]Snapshot(nil), h.snapshots...)
}

// LatestSnapshotBefore returns the snapshot with the greatest ChangeCount
// not exceeding changeIndex.
func (h *History) LatestSnapshotBefore(changeIndex int) (Snapshot, bool) {
	i := sort.Search(len(h.snapshots), func(i int) bool {
		return h.snapshots[i].ChangeCount > changeIndex
	})
	if i == 0 {
		return Snapshot{}, false
	}
	return h.snapshots[i-1], true
}

// ReconstructCanvas replays the log from the newest snapshot. The result is
// identical to the live canvas the changes were applied to.
func (h *History) ReconstructCanvas() (*Canvas, error) {
	return h.CanvasAt(len(h.changes))
}

// CanvasAt reconstructs the canvas as it was after changeCount changes.
func (h *History) CanvasAt(changeCount int) (*Canvas, error) {
	if changeCount < 0 || changeCount > len(h.changes) {
		return nil, fmt.Errorf("change count %d outside log of %d", changeCount, len(h.changes))
	}
	snap, ok := h.LatestSnapshotBefore(changeCount)
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot before change %d", ErrCorruptHistory, changeCount)
	}

	canvas := snap.Canvas.Clone()
	for i := snap.ChangeCount; i < changeCount; i++ {
		if err := canvas.apply(h.changes[i].Event); err != nil {
			return nil, fmt.Errorf("%w: replay change %d: %v", ErrCorruptHistory, i, err)
		}
	}
	return canvas, nil
}
