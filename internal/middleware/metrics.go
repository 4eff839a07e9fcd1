package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	activeSessions  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	eventsTotal     *prometheus.CounterVec
	messagesTotal   *prometheus.CounterVec
	broadcastsTotal prometheus.Counter
	droppedTotal    *prometheus.CounterVec
	savesTotal      *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	journalTotal    *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "pixelboard"

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_sessions",
			Help:      "Number of registered websocket sessions",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sessions_total",
			Help:      "Total number of websocket sessions opened",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "change_events_total",
			Help:      "Change events submitted to the world, by kind and outcome",
		}, []string{"kind", "status"}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "client_messages_total",
			Help:      "Inbound client messages, by type",
		}, []string{"type"}),
		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to sessions",
		}),
		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped, by reason",
		}, []string{"reason"}),
		savesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "history_saves_total",
			Help:      "History saves, by outcome",
		}, []string{"status"}),
		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "history_save_duration_seconds",
			Help:      "Time to encode and write the history file",
			Buckets:   prometheus.DefBuckets,
		}),
		journalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "journal_records_total",
			Help:      "Change journal records, by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ChangeEvent counts one apply attempt; kind is "paint" or "resize".
func (m *Metrics) ChangeEvent(kind string, err error) {
	if m == nil {
		return
	}
	status := "applied"
	if err != nil {
		status = "rejected"
	}
	m.eventsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ClientMessage(msgType string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}

// Dropped counts an outbound message that was not queued ("closed" or "overflow").
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Save(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.savesTotal.WithLabelValues(status).Inc()
	m.saveDuration.Observe(d.Seconds())
}

// Journal counts journal records ("written", "failed", "dropped").
func (m *Metrics) Journal(status string, n int) {
	if m == nil {
		return
	}
	m.journalTotal.WithLabelValues(status).Add(float64(n))
}
