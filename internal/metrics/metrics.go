// Package metrics exposes the pipeline's Prometheus instrumentation on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

// Outcome label values for EventsProcessed.
const (
	OutcomeSuccess    = "success"
	OutcomeDeadLetter = "dead_letter"
)

// Metrics holds the pipeline's instruments.
type Metrics struct {
	registry *prometheus.Registry

	// EventsConsumed counts events pulled off the queue.
	EventsConsumed prometheus.Counter
	// EventsProcessed counts terminal outcomes, labeled by outcome.
	EventsProcessed *prometheus.CounterVec
	// RetriesTotal counts individual retry waits.
	RetriesTotal prometheus.Counter
	// UnknownStates counts unknown-state fallbacks in the machine.
	UnknownStates prometheus.Counter
	// InFlight gauges currently processing events.
	InFlight prometheus.Gauge
	// QueueDepth gauges the queue length (sampled).
	QueueDepth prometheus.Gauge
	// BreakerState gauges the circuit: 0 closed, 1 half-open, 2 open.
	BreakerState prometheus.Gauge
}

// New creates the instruments on a fresh registry.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Total events pulled from the event queue",
		}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total events that reached a terminal outcome",
		}, []string{"outcome"}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_retries_total",
			Help:      "Total per-event retry attempts",
		}),
		UnknownStates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_state_fallbacks_total",
			Help:      "Total transitions to an unregistered state name",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_in_flight",
			Help:      "Events currently being processed",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in the queue",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_breaker_state",
			Help:      "Event queue circuit state (0=closed, 1=half-open, 2=open)",
		}),
	}
}

// ObserveBreaker records a breaker transition.
func (m *Metrics) ObserveBreaker(state gobreaker.State) {
	switch state {
	case gobreaker.StateClosed:
		m.BreakerState.Set(0)
	case gobreaker.StateHalfOpen:
		m.BreakerState.Set(1)
	case gobreaker.StateOpen:
		m.BreakerState.Set(2)
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
