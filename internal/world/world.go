package world

import (
	"sync"
	"time"

	"pixelboard/internal/models"
)

// World owns the live canvas and its history. Every mutation goes through
// ApplyEvent under the write lock, so the two never diverge; readers share
// the read lock. No method holds the lock while doing I/O.
type World struct {
	mu      sync.RWMutex
	canvas  *Canvas
	history *History
	now     func() time.Time
}

// Option configures a World.
type Option func(*World)

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(w *World) { w.now = now }
}

// New creates a world over a blank canvas.
func New(width, height, snapshotInterval int, opts ...Option) (*World, error) {
	canvas, err := NewCanvas(width, height)
	if err != nil {
		return nil, err
	}
	history, err := NewHistory(snapshotInterval, canvas)
	if err != nil {
		return nil, err
	}
	return newWorld(canvas, history, opts), nil
}

// FromHistory resumes a world from a loaded history, rebuilding the live
// canvas by replay.
func FromHistory(history *History, opts ...Option) (*World, error) {
	canvas, err := history.ReconstructCanvas()
	if err != nil {
		return nil, err
	}
	return newWorld(canvas, history, opts), nil
}

func newWorld(canvas *Canvas, history *History, opts []Option) *World {
	w := &World{canvas: canvas, history: history, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ApplyEvent mutates the canvas and, only if that succeeds, records the
// timestamped change. It returns the recorded change and the new change count.
func (w *World) ApplyEvent(ev models.ChangeEvent) (models.Change, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.canvas.apply(ev); err != nil {
		return models.Change{}, w.history.ChangeCount(), err
	}

	change := models.Change{Event: ev, Timestamp: w.now().UnixMilli()}
	w.history.RecordChange(change, w.canvas)
	return change, w.history.ChangeCount(), nil
}

// Dimensions returns the current canvas width and height.
func (w *World) Dimensions() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canvas.Width(), w.canvas.Height()
}

// ChangeCount returns the number of changes applied so far.
func (w *World) ChangeCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.history.ChangeCount()
}

// SnapshotCount returns the number of snapshots in the history.
func (w *World) SnapshotCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.history.snapshots)
}

// Pixel reads one pixel of the live canvas.
func (w *World) Pixel(x, y int) (models.Color, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canvas.Pixel(x, y)
}

// Board returns the dimensions and hex rows of the live canvas, read
// atomically.
func (w *World) Board() (int, int, [][]string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canvas.Width(), w.canvas.Height(), w.canvas.HexRows()
}

// Canvas returns a copy of the live canvas.
func (w *World) Canvas() *Canvas {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canvas.Clone()
}

// ReadHistory runs fn with the history under the read lock. fn must not
// retain the history or block on I/O.
func (w *World) ReadHistory(fn func(*History) error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fn(w.history)
}
