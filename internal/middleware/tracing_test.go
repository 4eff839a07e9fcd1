package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTracing_SetsRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := Tracing(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, seen)
	assert.NotEqual(t, "unknown", seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	t.Parallel()

	h := Recovery(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oh no")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	t.Parallel()

	called := false
	h := CORSMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/board", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResponseWriterWrapper_HijackUnsupported(t *testing.T) {
	t.Parallel()

	w := &responseWriterWrapper{ResponseWriter: httptest.NewRecorder()}
	_, _, err := w.Hijack()
	assert.Error(t, err)
}

func TestGetRequestID_Unknown(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", GetRequestID(req.Context()))
}
