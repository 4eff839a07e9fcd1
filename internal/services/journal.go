package services

import (
	"context"
	"sync"
	"time"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*
CHANGE JOURNAL WORKER POOL

Every accepted change is mirrored into Postgres for auditing. The database
is never on the paint path:

  Record -> bounded jobs channel -> N workers -> batched INSERT

Record never blocks. When the queue is full the change is dropped from the
journal (counted in metrics); the history file remains the source of truth.
*/

const (
	journalBatchSize     = 64
	journalAppendTimeout = 5 * time.Second
)

type journalJob struct {
	seq    int
	change models.Change
}

// JournalWriter batches applied changes into a JournalRepository.
type JournalWriter struct {
	repo    JournalRepository
	bootID  string
	logger  *zap.Logger
	metrics *middleware.Metrics

	jobs    chan journalJob
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex // guards closed against Record racing Shutdown
	closed bool
}

// NewJournalWriter creates the pool; call Start to run it. Each writer gets
// a fresh boot id so rows from different server runs do not mix.
func NewJournalWriter(repo JournalRepository, numWorkers, queueSize int, logger *zap.Logger, metrics *middleware.Metrics) *JournalWriter {
	return &JournalWriter{
		repo:    repo,
		bootID:  uuid.NewString(),
		logger:  logger,
		metrics: metrics,
		jobs:    make(chan journalJob, queueSize),
		workers: numWorkers,
	}
}

// BootID identifies the rows written by this process.
func (j *JournalWriter) BootID() string { return j.bootID }

// Start spawns the workers.
func (j *JournalWriter) Start() {
	for i := 0; i < j.workers; i++ {
		j.wg.Add(1)
		go j.worker(i)
	}
	j.logger.Info("journal workers started",
		zap.Int("workers", j.workers),
		zap.String("boot_id", j.bootID),
	)
}

// Record queues one applied change. It never blocks.
func (j *JournalWriter) Record(seq int, change models.Change) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.metrics.Journal("dropped", 1)
		return
	}

	select {
	case j.jobs <- journalJob{seq: seq, change: change}:
	default:
		j.metrics.Journal("dropped", 1)
		j.logger.Warn("journal queue full, dropping change", zap.Int("seq", seq))
	}
}

// QueueLength returns the number of pending changes.
func (j *JournalWriter) QueueLength() int {
	return len(j.jobs)
}

// Shutdown stops accepting changes, lets the workers flush what is queued
// and waits for them.
func (j *JournalWriter) Shutdown() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.jobs)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal workers stopped")
}

func (j *JournalWriter) worker(id int) {
	defer j.wg.Done()

	for job := range j.jobs {
		batch := make([]*models.ChangeRecord, 0, journalBatchSize)
		batch = append(batch, models.NewChangeRecord(j.bootID, job.seq, job.change))

		// Take whatever else is already queued, up to one batch.
	fill:
		for len(batch) < journalBatchSize {
			select {
			case next, ok := <-j.jobs:
				if !ok {
					break fill
				}
				batch = append(batch, models.NewChangeRecord(j.bootID, next.seq, next.change))
			default:
				break fill
			}
		}

		j.flush(id, batch)
	}
}

func (j *JournalWriter) flush(worker int, batch []*models.ChangeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalAppendTimeout)
	defer cancel()

	if err := j.repo.Append(ctx, batch...); err != nil {
		j.metrics.Journal("failed", len(batch))
		j.logger.Error("journal append failed",
			zap.Int("worker", worker),
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		return
	}
	j.metrics.Journal("written", len(batch))
}
