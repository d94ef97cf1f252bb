package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for worker lifecycle events.
type Metrics struct {
	launched       *prometheus.CounterVec
	launchFailures *prometheus.CounterVec
	stopRequests   prometheus.Counter
	running        prometheus.Gauge
	exits          *prometheus.CounterVec
}

// MustNewMetrics registers the supervisor collectors with reg. Collectors
// that are already registered are reused, so tests and repeated wiring can
// share one registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		launched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasnotifier",
			Subsystem: "supervisor",
			Name:      "launched_total",
			Help:      "Delivery workers spawned.",
		}, []string{"mode"}),
		launchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasnotifier",
			Subsystem: "supervisor",
			Name:      "launch_failures_total",
			Help:      "Delivery workers that could not be spawned or died during the crash probe.",
		}, []string{"mode"}),
		stopRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gasnotifier",
			Subsystem: "supervisor",
			Name:      "stop_requests_total",
			Help:      "Stop signals written for running jobs.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gasnotifier",
			Subsystem: "supervisor",
			Name:      "workers_running",
			Help:      "Worker processes that have not exited yet.",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasnotifier",
			Subsystem: "supervisor",
			Name:      "worker_exits_total",
			Help:      "Worker exits by result.",
		}, []string{"result"}),
	}

	m.launched = register(reg, m.launched)
	m.launchFailures = register(reg, m.launchFailures)
	m.stopRequests = register(reg, m.stopRequests)
	m.running = register(reg, m.running)
	m.exits = register(reg, m.exits)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) incLaunched(mode string) {
	if m == nil {
		return
	}
	m.launched.WithLabelValues(mode).Inc()
	m.running.Inc()
}

func (m *Metrics) incLaunchFailure(mode string) {
	if m == nil {
		return
	}
	m.launchFailures.WithLabelValues(mode).Inc()
}

func (m *Metrics) incStop() {
	if m == nil {
		return
	}
	m.stopRequests.Inc()
}

func (m *Metrics) observeExit(result string) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.exits.WithLabelValues(result).Inc()
}
