package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsTotal))

	m.ChangeEvent("paint", nil)
	m.ChangeEvent("paint", errors.New("out of bounds"))
	m.ChangeEvent("paint", nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("paint", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("paint", "rejected")))

	m.Dropped("overflow")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedTotal.WithLabelValues("overflow")))

	m.Save(time.Millisecond, nil)
	m.Save(time.Millisecond, errors.New("disk full"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.savesTotal.WithLabelValues("error")))

	m.Journal("written", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.journalTotal.WithLabelValues("written")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed()
		m.ChangeEvent("paint", nil)
		m.ClientMessage("ping")
		m.Broadcast()
		m.Dropped("closed")
		m.Save(time.Second, nil)
		m.Journal("dropped", 1)
	})
}
