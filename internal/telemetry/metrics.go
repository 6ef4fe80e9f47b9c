package telemetry

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fieldlab"

// Metrics holds the pipeline collectors. All methods accept a nil
// receiver so callers can run without metrics.
type Metrics struct {
	SolverSteps   *prometheus.CounterVec   // labels: pipeline
	StageDuration *prometheus.HistogramVec // labels: pipeline, stage
	LPSolves      *prometheus.CounterVec   // labels: status
	BnBNodes      prometheus.Counter
	Integrations  *prometheus.CounterVec // labels: scheme
	Scenarios     *prometheus.CounterVec // labels: outcome

	registry *prometheus.Registry
}

func newCollectors() *Metrics {
	return &Metrics{
		SolverSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_steps_total",
			Help:      "Time steps taken by a pipeline's solver.",
		}, []string{"pipeline"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600},
		}, []string{"pipeline", "stage"}),
		LPSolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lp_solves_total",
			Help:      "LP and MILP solves by final status.",
		}, []string{"status"}),
		BnBNodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bnb_nodes_total",
			Help:      "Branch-and-bound nodes explored.",
		}),
		Integrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrations_total",
			Help:      "CDF integrations by scheme.",
		}, []string{"scheme"}),
		Scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Hydraulic scenarios by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.SolverSteps, m.StageDuration, m.LPSolves, m.BnBNodes, m.Integrations, m.Scenarios}
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newCollectors()
	reg.MustRegister(m.collectors()...)
	if r, ok := reg.(*prometheus.Registry); ok {
		m.registry = r
	}
	return m
}

// NewMetricsForTesting registers into a private registry to avoid
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Registry is the registry passed to NewMetrics when it was a
// *prometheus.Registry, nil otherwise.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Gatherer is Registry when known, else the default gatherer.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if r := m.Registry(); r != nil {
		return r
	}
	return prometheus.DefaultGatherer
}

// Stage starts timing a stage. Call the returned func when it ends.
func (m *Metrics) Stage(clock clockwork.Clock, pipeline, stage string) func() time.Duration {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	start := clock.Now()
	return func() time.Duration {
		d := clock.Since(start)
		if m != nil {
			m.StageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
		}
		return d
	}
}

func (m *Metrics) Steps(pipeline string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SolverSteps.WithLabelValues(pipeline).Add(float64(n))
}

func (m *Metrics) LPSolve(status string, nodes int) {
	if m == nil {
		return
	}
	m.LPSolves.WithLabelValues(status).Inc()
	if nodes > 0 {
		m.BnBNodes.Add(float64(nodes))
	}
}

func (m *Metrics) Integration(scheme string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Integrations.WithLabelValues(scheme).Add(float64(n))
}

func (m *Metrics) Scenario(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Scenarios.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps everything gathered by g into path in the text
// exposition format.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
