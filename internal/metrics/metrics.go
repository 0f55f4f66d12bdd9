// ABOUTME: Prometheus collectors for chat streams, emitted events, and thread deletions.
// ABOUTME: Registration reuses identical collectors that are already registered.

package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agent_relay"

// Deletion results recorded by ObserveDeletion.
const (
	DeletionOK       = "ok"
	DeletionNotFound = "not_found"
	DeletionFailed   = "error"
)

// Metrics holds the relay's collectors.
type Metrics struct {
	chatRequests    *prometheus.CounterVec
	events          *prometheus.CounterVec
	runFailures     *prometheus.CounterVec
	threadDeletions *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	streamsActive   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.chatRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_requests_total",
		Help:      "Chat turns accepted, by normalizer mode.",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if m.events, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "NDJSON events emitted to clients, by event type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if m.runFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_failures_total",
		Help:      "Error events emitted to clients, by error code.",
	}, []string{"code"})); err != nil {
		return nil, err
	}
	if m.threadDeletions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thread_deletions_total",
		Help:      "Thread deletion requests, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.streamDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stream_duration_seconds",
		Help:      "Time from accepting a chat turn to the end of its event stream.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if m.streamsActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams_active",
		Help:      "Chat event streams currently open.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the already registered collector when
// an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("registering collector: %w", err)
	}
	return c, nil
}

// StreamStarted records an accepted chat turn and returns a func that
// closes the stream's accounting.
func (m *Metrics) StreamStarted(mode string) func() {
	if m == nil {
		return func() {}
	}
	m.chatRequests.WithLabelValues(mode).Inc()
	m.streamsActive.Inc()
	start := time.Now()
	return func() {
		m.streamsActive.Dec()
		m.streamDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

// ObserveEvent counts one emitted event.
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveFailure counts one emitted error event. An empty code is recorded
// as "unknown".
func (m *Metrics) ObserveFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.runFailures.WithLabelValues(code).Inc()
}

// ObserveDeletion counts one thread deletion request.
func (m *Metrics) ObserveDeletion(result string) {
	if m == nil {
		return
	}
	m.threadDeletions.WithLabelValues(result).Inc()
}
