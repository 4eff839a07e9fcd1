package services

import (
	"context"
	"sync"
	"time"

	"pixelboard/internal/middleware"
	"pixelboard/internal/repository"
	"pixelboard/internal/world"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Autosaver periodically writes the history to disk. The history is
// encoded under the world's read lock and written after the lock is
// released, so painting never waits on the filesystem.
type Autosaver struct {
	source   HistorySource
	store    HistoryWriter
	interval time.Duration
	logger   *zap.Logger
	metrics  *middleware.Metrics

	mu        sync.Mutex // serializes saves
	lastSaved int        // change count of the last successful save, -1 if none
}

// NewAutosaver creates an autosaver. metrics may be nil.
func NewAutosaver(source HistorySource, store HistoryWriter, interval time.Duration, logger *zap.Logger, metrics *middleware.Metrics) *Autosaver {
	return &Autosaver{
		source:    source,
		store:     store,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		lastSaved: -1,
	}
}

// Run saves every interval until ctx is done. Ticks where nothing changed
// since the last successful save are skipped. A failed save is logged and
// retried on the next tick; it never stops the loop.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("autosave started",
		zap.Duration("interval", a.interval),
		zap.String("path", a.store.Path()),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("autosave stopped")
			return
		case <-ticker.C:
			if _, err := a.save(ctx, false); err != nil {
				a.logger.Error("autosave failed", zap.Error(err))
			}
		}
	}
}

// SaveNow writes the history unconditionally and returns the change count
// that was saved.
func (a *Autosaver) SaveNow(ctx context.Context) (int, error) {
	return a.save(ctx, true)
}

func (a *Autosaver) save(ctx context.Context, force bool) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := middleware.StartSpan(ctx, "History.Save",
		attribute.String("path", a.store.Path()),
		attribute.Bool("forced", force),
	)
	defer span.End()

	start := time.Now()

	var (
		data  []byte
		count int
		skip  bool
	)
	err := a.source.ReadHistory(func(h *world.History) error {
		count = h.ChangeCount()
		if !force && count == a.lastSaved {
			skip = true
			return nil
		}
		var err error
		data, err = repository.EncodeHistory(h)
		return err
	})
	if err != nil {
		err = &repository.PersistenceError{Op: "save", Path: a.store.Path(), Kind: repository.ErrSerialization, Err: err}
		middleware.AddSpanError(ctx, err)
		a.metrics.Save(time.Since(start), err)
		return 0, err
	}
	if skip {
		middleware.AddSpanEvent(ctx, "unchanged", attribute.Int("history.changes", count))
		return count, nil
	}

	if err := a.store.WriteAtomic(data); err != nil {
		middleware.AddSpanError(ctx, err)
		a.metrics.Save(time.Since(start), err)
		return 0, err
	}

	a.lastSaved = count
	a.metrics.Save(time.Since(start), nil)
	span.SetAttributes(attribute.Int("history.changes", count), attribute.Int("history.bytes", len(data)))

	a.logger.Debug("history saved",
		zap.Int("changes", count),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)),
	)
	return count, nil
}
