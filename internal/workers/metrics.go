package workers

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks pool activity per task kind.
type Metrics struct {
	submitted *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewMetrics creates pool metrics registered against reg. A nil reg uses the
// default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_tasks_submitted_total",
				Help:      "Tasks submitted to the worker pool",
			},
			[]string{"kind"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_tasks_completed_total",
				Help:      "Tasks completed by the worker pool",
			},
			[]string{"kind"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_tasks_failed_total",
				Help:      "Tasks that returned an error or panicked",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(m.submitted, m.completed, m.failed)
	return m
}

// NewTestMetrics creates metrics on a private registry, for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics("omnibot_test", prometheus.NewRegistry())
}
