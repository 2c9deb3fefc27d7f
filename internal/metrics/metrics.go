// Package metrics exposes broker activity as Prometheus collectors.
//
// Every method is safe to call on a nil *Metrics, so code paths that record
// metrics need no guards when metrics are disabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "databroker"

// Delivery modes used as the "mode" label.
const (
	ModeSync      = "sync"
	ModeAsync     = "async"
	ModeTimed     = "timed"
	ModeTriggered = "triggered"
)

// Metrics holds the broker collectors.
type Metrics struct {
	pushes         prometheus.Counter
	deliveries     *prometheus.CounterVec
	dispatchCycles prometheus.Counter
	streams        prometheus.Gauge
	pending        prometheus.Gauge
	panics         prometheus.Counter
	timerSteps     *prometheus.CounterVec
	connections    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Total number of packages pushed to streams.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of receiver callbacks by delivery mode.",
		}, []string{"mode"}),
		dispatchCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_cycles_total",
			Help:      "Total number of dispatch loop drains.",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams",
			Help:      "Number of registered streams.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_registrations",
			Help:      "Number of parked registrations.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Total number of recovered producer or receiver panics.",
		}),
		timerSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_steps_total",
			Help:      "Total number of timer steps by timer.",
		}, []string{"timer"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of item-to-item connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.pushes,
			m.deliveries,
			m.dispatchCycles,
			m.streams,
			m.pending,
			m.panics,
			m.timerSteps,
			m.connections,
		)
	}
	return m
}

// Push records one push.
func (m *Metrics) Push() {
	if m == nil {
		return
	}
	m.pushes.Inc()
}

// Delivered records one receiver callback in the given mode.
func (m *Metrics) Delivered(mode string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(mode).Inc()
}

// DispatchCycle records one dispatch drain.
func (m *Metrics) DispatchCycle() {
	if m == nil {
		return
	}
	m.dispatchCycles.Inc()
}

// SetStreams sets the stream gauge.
func (m *Metrics) SetStreams(n int) {
	if m == nil {
		return
	}
	m.streams.Set(float64(n))
}

// SetPending sets the pending registration gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// CallbackPanic records a recovered panic.
func (m *Metrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

// TimerStep records a step of the named timer.
func (m *Metrics) TimerStep(timer string) {
	if m == nil {
		return
	}
	m.timerSteps.WithLabelValues(timer).Inc()
}

// SetConnections sets the connection gauge.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}
