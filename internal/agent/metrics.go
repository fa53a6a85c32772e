package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks run outcomes per channel and tool executions per tool.
type Metrics struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsCancelled *prometheus.CounterVec
	runsFailed    *prometheus.CounterVec
	toolsExecuted *prometheus.CounterVec
}

// NewMetrics creates executor metrics registered against reg. A nil reg
// uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_started_total",
				Help:      "Runs started by the executor",
			},
			[]string{"channel"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_completed_total",
				Help:      "Runs that finished normally",
			},
			[]string{"channel"},
		),
		runsCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_cancelled_total",
				Help:      "Runs aborted by disconnect or fatal channel error",
			},
			[]string{"channel"},
		),
		runsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_failed_total",
				Help:      "Runs that ended with an internal error",
			},
			[]string{"channel"},
		),
		toolsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tools_executed_total",
				Help:      "Tool executions by tool name and outcome",
			},
			[]string{"tool", "outcome"},
		),
	}

	reg.MustRegister(m.runsStarted, m.runsCompleted, m.runsCancelled, m.runsFailed, m.toolsExecuted)
	return m
}

// NewTestMetrics creates metrics on a private registry, for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics("omnibot_test", prometheus.NewRegistry())
}

// RunStarted counts a run start.
func (m *Metrics) RunStarted(channel string) {
	m.runsStarted.WithLabelValues(channel).Inc()
}

// RunCompleted counts a normal run completion.
func (m *Metrics) RunCompleted(channel string) {
	m.runsCompleted.WithLabelValues(channel).Inc()
}

// RunCancelled counts a cancelled run.
func (m *Metrics) RunCancelled(channel string) {
	m.runsCancelled.WithLabelValues(channel).Inc()
}

// RunFailed counts a run that ended with an internal error.
func (m *Metrics) RunFailed(channel string) {
	m.runsFailed.WithLabelValues(channel).Inc()
}

// ToolExecuted counts one tool execution.
func (m *Metrics) ToolExecuted(tool string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.toolsExecuted.WithLabelValues(tool, outcome).Inc()
}
