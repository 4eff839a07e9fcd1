package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"
	"pixelboard/internal/world"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

// Handler handles HTTP requests
type Handler struct {
	canvas   CanvasReader
	sessions SessionLister
	ws       ConnectionHandler
	logger   *zap.Logger

	// journal is nil when no database is configured.
	journal JournalReader
	bootID  string
}

func NewHandler(canvas CanvasReader, sessions SessionLister, ws ConnectionHandler, logger *zap.Logger) *Handler {
	return &Handler{
		canvas:   canvas,
		sessions: sessions,
		ws:       ws,
		logger:   logger,
	}
}

// SetJournal enables the journal endpoint. bootID identifies this process's rows.
func (h *Handler) SetJournal(journal JournalReader, bootID string) {
	h.journal = journal
	h.bootID = bootID
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.ws.HandleConnection(w, r)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// GetBoard returns the current board in the same shape as the websocket init message.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	width, height, board := h.canvas.Board()
	h.writeJSON(w, r, http.StatusOK, models.NewInitMessage(width, height, board))
}

// GetBoardAt reconstructs the board as it was after the given number of changes.
func (h *Handler) GetBoardAt(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["changes"])
	if err != nil || n < 0 {
		h.writeError(w, r, http.StatusBadRequest, "change count must be a non-negative integer")
		return
	}

	var (
		canvas   *world.Canvas
		total    int
		notFound bool
	)
	err = h.canvas.ReadHistory(func(hist *world.History) error {
		total = hist.ChangeCount()
		if n > total {
			notFound = true
			return nil
		}
		var err error
		canvas, err = hist.CanvasAt(n)
		return err
	})
	switch {
	case err != nil:
		middleware.AddSpanError(r.Context(), err)
		h.logger.Error("reconstruct canvas failed", zap.Int("changes", n), zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError, "failed to reconstruct canvas")
		return
	case notFound:
		h.writeError(w, r, http.StatusNotFound, "history has only "+strconv.Itoa(total)+" changes")
		return
	}

	h.writeJSON(w, r, http.StatusOK, models.NewInitMessage(canvas.Width(), canvas.Height(), canvas.HexRows()))
}

type statsResponse struct {
	Width            int              `json:"width"`
	Height           int              `json:"height"`
	Changes          int              `json:"changes"`
	Snapshots        int              `json:"snapshots"`
	SnapshotInterval int              `json:"snapshot_interval"`
	Clients          int              `json:"clients"`
	Sessions         []models.Session `json:"sessions"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	// One read-locked view so the counts agree with each other.
	_ = h.canvas.ReadHistory(func(hist *world.History) error {
		resp.Changes = hist.ChangeCount()
		resp.Snapshots = len(hist.Snapshots())
		resp.SnapshotInterval = hist.Interval()
		return nil
	})
	resp.Width, resp.Height, _ = h.canvas.Board()
	resp.Sessions = h.sessions.List()
	resp.Clients = len(resp.Sessions)

	h.writeJSON(w, r, http.StatusOK, resp)
}

// GetJournal lists journal rows: the most recent ones, or with ?after=N the
// rows of this process with a sequence number above N.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "change journal is not configured")
		return
	}

	limit := defaultJournalLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxJournalLimit)
	}

	var (
		records []*models.ChangeRecord
		err     error
	)
	if s := r.URL.Query().Get("after"); s != "" {
		after, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil || after < 0 {
			h.writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		records, err = h.journal.Since(r.Context(), h.bootID, after, limit)
	} else {
		records, err = h.journal.Recent(r.Context(), limit)
	}
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		h.logger.Error("journal query failed", zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError, "journal query failed")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"boot_id": h.bootID,
		"records": records,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, map[string]string{"error": msg})
}
