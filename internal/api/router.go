package api

import (
	"net/http"

	"pixelboard/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRoutes builds the HTTP router. gatherer backs /metrics.
func SetupRoutes(h *Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing, then recovery, then CORS.
	r.Use(middleware.Tracing(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORSMiddleware)

	// Websocket endpoint; the role comes from the ?auth= parameter.
	r.HandleFunc("/ws", h.HandleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/board", h.GetBoard).Methods(http.MethodGet)
	api.HandleFunc("/board/{changes:[0-9]+}", h.GetBoardAt).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/journal", h.GetJournal).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
