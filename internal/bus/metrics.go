package bus

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks bus activity per topic.
type Metrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewMetrics creates bus metrics registered against reg. A nil reg uses the
// default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_published_total",
				Help:      "Total messages published per topic",
			},
			[]string{"topic"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_dropped_total",
				Help:      "Messages dropped for lagging subscribers per topic",
			},
			[]string{"topic"},
		),
	}

	reg.MustRegister(m.published, m.dropped)
	return m
}

// NewTestMetrics creates metrics on a private registry, for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics("omnibot_test", prometheus.NewRegistry())
}
