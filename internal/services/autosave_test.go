package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"
	"pixelboard/internal/repository"
	"pixelboard/internal/world"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (f *fakeWriter) WriteAtomic(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeWriter) Path() string { return "fake" }

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func paint(t *testing.T, w *world.World, x, y int) {
	t.Helper()
	_, _, err := w.ApplyEvent(models.Paint{X: x, Y: y, Color: models.Black()})
	require.NoError(t, err)
}

func TestAutosaver_SaveNowRoundTrip(t *testing.T) {
	w, err := world.New(4, 4, 2)
	require.NoError(t, err)
	paint(t, w, 1, 1)
	paint(t, w, 2, 3)
	paint(t, w, 0, 0)

	store := repository.NewHistoryStore(filepath.Join(t.TempDir(), "history.bin"), zaptest.NewLogger(t))
	a := NewAutosaver(w, store, time.Hour, zaptest.NewLogger(t), nil)

	n, err := a.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ChangeCount())

	restored, err := world.FromHistory(loaded)
	require.NoError(t, err)
	assert.True(t, w.Canvas().Equal(restored.Canvas()))
}

func TestAutosaver_SkipsUnchangedTicks(t *testing.T) {
	w, err := world.New(2, 2, 10)
	require.NoError(t, err)
	writer := &fakeWriter{}
	a := NewAutosaver(w, writer, time.Hour, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	_, err = a.save(ctx, false)
	require.NoError(t, err)
	_, err = a.save(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.count(), "second tick has nothing new")

	paint(t, w, 0, 0)
	_, err = a.save(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, writer.count())

	_, err = a.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, writer.count(), "SaveNow always writes")
}

func TestAutosaver_FailureIsRetried(t *testing.T) {
	w, err := world.New(2, 2, 10)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	writer := &fakeWriter{err: errors.New("disk full")}
	a := NewAutosaver(w, writer, time.Hour, zaptest.NewLogger(t), middleware.NewMetrics(reg))

	_, err = a.SaveNow(context.Background())
	require.ErrorContains(t, err, "disk full")

	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	// The failed save did not count as saved, so the next tick writes.
	_, err = a.save(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.count())
}

func TestAutosaver_RunUntilCancelled(t *testing.T) {
	w, err := world.New(2, 2, 10)
	require.NoError(t, err)
	writer := &fakeWriter{}
	a := NewAutosaver(w, writer, 10*time.Millisecond, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 5*time.Millisecond)
	paint(t, w, 1, 1)
	require.Eventually(t, func() bool { return writer.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
