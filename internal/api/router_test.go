package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"
	"pixelboard/internal/world"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSessions struct{ sessions []models.Session }

func (f fakeSessions) Count() int             { return len(f.sessions) }
func (f fakeSessions) List() []models.Session { return f.sessions }

type fakeWS struct{ called bool }

func (f *fakeWS) HandleConnection(w http.ResponseWriter, r *http.Request) {
	f.called = true
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type fakeJournal struct {
	records   []*models.ChangeRecord
	err       error
	gotBootID string
	gotAfter  int64
	gotLimit  int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]*models.ChangeRecord, error) {
	f.gotLimit = limit
	return f.records, f.err
}

func (f *fakeJournal) Since(_ context.Context, bootID string, afterSeq int64, limit int) ([]*models.ChangeRecord, error) {
	f.gotBootID, f.gotAfter, f.gotLimit = bootID, afterSeq, limit
	records := f.records
	if len(records) > limit {
		records = records[:limit]
	}
	return records, f.err
}

type fixture struct {
	router http.Handler
	world  *world.World
	ws     *fakeWS
	h      *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, err := world.New(2, 2, 2)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	metrics.SessionOpened()

	logger := zaptest.NewLogger(t)
	ws := &fakeWS{}
	sessions := fakeSessions{sessions: []models.Session{*models.NewSession("10.0.0.1:1234", models.RoleAdmin)}}
	h := NewHandler(w, sessions, ws, logger)

	return &fixture{router: SetupRoutes(h, reg, logger), world: w, ws: ws, h: h}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Board(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.world.ApplyEvent(models.Paint{X: 1, Y: 0, Color: models.Black()})
	require.NoError(t, err)

	rec := f.get(t, "/api/board")
	require.Equal(t, http.StatusOK, rec.Code)

	var msg models.InitMessage
	decode(t, rec, &msg)
	assert.Equal(t, models.MessageTypeInit, msg.Type)
	assert.Equal(t, 2, msg.Width)
	assert.Equal(t, [][]string{{"#FFFFFF", "#000000"}, {"#FFFFFF", "#FFFFFF"}}, msg.Board)
}

func TestRouter_BoardAt(t *testing.T) {
	f := newFixture(t)
	for _, ev := range []models.ChangeEvent{
		models.Paint{X: 0, Y: 0, Color: models.Black()},
		models.Resize{Width: 3, Height: 1, Anchor: models.AnchorTopLeft},
		models.Paint{X: 2, Y: 0, Color: models.Black()},
	} {
		_, _, err := f.world.ApplyEvent(ev)
		require.NoError(t, err)
	}

	tests := []struct {
		path   string
		code   int
		width  int
		height int
	}{
		{"/api/board/0", http.StatusOK, 2, 2},
		{"/api/board/1", http.StatusOK, 2, 2},
		{"/api/board/2", http.StatusOK, 3, 1},
		{"/api/board/3", http.StatusOK, 3, 1},
		{"/api/board/4", http.StatusNotFound, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.get(t, tt.path)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var msg models.InitMessage
			decode(t, rec, &msg)
			assert.Equal(t, tt.width, msg.Width)
			assert.Equal(t, tt.height, msg.Height)
		})
	}

	var msg models.InitMessage
	decode(t, f.get(t, "/api/board/1"), &msg)
	assert.Equal(t, "#000000", msg.Board[0][0])
	assert.Equal(t, "#FFFFFF", msg.Board[1][1])
}

func TestRouter_Stats(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, _, err := f.world.ApplyEvent(models.Paint{X: 0, Y: 0, Color: models.Black()})
		require.NoError(t, err)
	}

	rec := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats statsResponse
	decode(t, rec, &stats)
	assert.Equal(t, 2, stats.Width)
	assert.Equal(t, 2, stats.Height)
	assert.Equal(t, 3, stats.Changes)
	assert.Equal(t, 2, stats.Snapshots)
	assert.Equal(t, 2, stats.SnapshotInterval)
	assert.Equal(t, 1, stats.Clients)
	require.Len(t, stats.Sessions, 1)
	assert.Equal(t, models.RoleAdmin, stats.Sessions[0].Role)
}

func TestRouter_Journal(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/journal").Code)
	})

	t.Run("recent", func(t *testing.T) {
		f := newFixture(t)
		journal := &fakeJournal{records: []*models.ChangeRecord{{ID: "a", Seq: 1}}}
		f.h.SetJournal(journal, "boot-1")

		rec := f.get(t, "/api/journal?limit=5000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, maxJournalLimit, journal.gotLimit)
		assert.Contains(t, rec.Body.String(), `"boot_id":"boot-1"`)
	})

	t.Run("since", func(t *testing.T) {
		f := newFixture(t)
		journal := &fakeJournal{records: []*models.ChangeRecord{{Seq: 8}, {Seq: 9}, {Seq: 10}}}
		f.h.SetJournal(journal, "boot-1")

		rec := f.get(t, "/api/journal?after=7&limit=2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "boot-1", journal.gotBootID)
		assert.Equal(t, int64(7), journal.gotAfter)
		assert.Equal(t, 2, journal.gotLimit)

		var body struct {
			Records []*models.ChangeRecord `json:"records"`
		}
		decode(t, rec, &body)
		assert.Len(t, body.Records, 2)
	})

	t.Run("bad params", func(t *testing.T) {
		f := newFixture(t)
		f.h.SetJournal(&fakeJournal{}, "boot-1")
		assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/journal?limit=0").Code)
		assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/journal?after=x").Code)
	})

	t.Run("query error", func(t *testing.T) {
		f := newFixture(t)
		f.h.SetJournal(&fakeJournal{err: errors.New("db down")}, "boot-1")
		assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/journal").Code)
	})
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pixelboard_sessions_total 1"))
}

func TestRouter_WebSocketRoute(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/ws")
	assert.True(t, f.ws.called)
}
