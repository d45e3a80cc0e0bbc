package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "opendrive"

// relayMetrics holds the Prometheus instruments for the relay and the observer hub.
// A nil *relayMetrics is valid and records nothing.
type relayMetrics struct {
	eventsPublished  *prometheus.CounterVec
	sinkErrors       prometheus.Counter
	decodeErrors     prometheus.Counter
	sessionsOpened   prometheus.Counter
	sessionsActive   prometheus.Gauge
	mode             *prometheus.GaugeVec
	observers        prometheus.Gauge
	observerDrops    prometheus.Counter
	observerMessages prometheus.Counter
}

func newRelayMetrics(reg prometheus.Registerer) (*relayMetrics, error) {
	m := &relayMetrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_published_total",
			Help:      "Vehicle states handed to the sink, by source.",
		}, []string{"source"}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sink_errors_total",
			Help:      "Publish calls that returned an error.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Chunks dropped as malformed.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_opened_total",
			Help:      "Producer connections accepted.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Producer connections currently open.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "relay_mode",
			Help:      "1 for the current relay mode, 0 otherwise.",
		}, []string{"mode"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "observers_connected",
			Help:      "Websocket observers currently registered.",
		}),
		observerDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "observer_drops_total",
			Help:      "Messages dropped because an observer queue was full.",
		}),
		observerMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "observer_messages_total",
			Help:      "Messages written to observers.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.eventsPublished, m.sinkErrors, m.decodeErrors, m.sessionsOpened,
		m.sessionsActive, m.mode, m.observers, m.observerDrops, m.observerMessages,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *relayMetrics) recordPublished(mode RelayMode) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(mode.String()).Inc()
}

func (m *relayMetrics) recordSinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

func (m *relayMetrics) recordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *relayMetrics) recordSessions(opened bool, active int) {
	if m == nil {
		return
	}
	if opened {
		m.sessionsOpened.Inc()
	}
	m.sessionsActive.Set(float64(active))
}

func (m *relayMetrics) recordMode(mode RelayMode) {
	if m == nil {
		return
	}
	for _, other := range []RelayMode{ModeSynthetic, ModeLive} {
		v := 0.0
		if other == mode {
			v = 1
		}
		m.mode.WithLabelValues(other.String()).Set(v)
	}
}

func (m *relayMetrics) recordObservers(n int) {
	if m == nil {
		return
	}
	m.observers.Set(float64(n))
}

func (m *relayMetrics) recordObserverDrop() {
	if m == nil {
		return
	}
	m.observerDrops.Inc()
}

func (m *relayMetrics) recordObserverMessage() {
	if m == nil {
		return
	}
	m.observerMessages.Inc()
}
