package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("test")

	m.EventsConsumed.Inc()
	m.EventsConsumed.Inc()
	m.EventsProcessed.WithLabelValues(OutcomeSuccess).Inc()
	m.EventsProcessed.WithLabelValues(OutcomeDeadLetter).Inc()
	m.RetriesTotal.Inc()
	m.UnknownStates.Inc()
	m.InFlight.Inc()
	m.QueueDepth.Set(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsConsumed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues(OutcomeDeadLetter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnknownStates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
}

func TestObserveBreaker(t *testing.T) {
	m := New("test")

	m.ObserveBreaker(gobreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	m.ObserveBreaker(gobreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))

	m.ObserveBreaker(gobreaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New("test")
	m.EventsConsumed.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_events_consumed_total 1")
}
