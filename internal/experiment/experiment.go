// Package experiment wires configuration, solvers and the run store into
// the turbulence, rainfall and EcoNex pipelines.
package experiment

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/telemetry"
)

const (
	PipelineTurbulence = "turbulence"
	PipelineRainfall   = "rainfall"
	PipelineEconex     = "econex"
	PipelineHydraulic  = "hydraulic"
	PipelineSimulation = "simulation"
)

// MetricsFile is where a run's prometheus registry is dumped.
const MetricsFile = "metrics.prom"

type Experiment struct {
	store    *storage.Store
	registry *Registry
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	clock    clockwork.Clock
	workers  int
}

type Option func(*Experiment)

func WithLogger(l *zap.Logger) Option { return func(e *Experiment) { e.logger = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(e *Experiment) { e.metrics = m } }

func WithClock(c clockwork.Clock) Option { return func(e *Experiment) { e.clock = c } }

func WithWorkers(n int) Option { return func(e *Experiment) { e.workers = n } }

func New(store *storage.Store, opts ...Option) *Experiment {
	e := &Experiment{
		store:    store,
		registry: NewRegistry(),
		logger:   zap.NewNop(),
		clock:    clockwork.NewRealClock(),
		workers:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Experiment) Registry() *Registry { return e.registry }

func (e *Experiment) Store() *storage.Store { return e.store }

// stage logs and times one step of a pipeline. The returned func ends it.
func (e *Experiment) stage(pipeline, name string) func() time.Duration {
	log := e.logger.With(zap.String("pipeline", pipeline), zap.String("stage", name))
	log.Info("stage started")
	done := e.metrics.Stage(e.clock, pipeline, name)
	return func() time.Duration {
		d := done()
		log.Info("stage finished", zap.Duration("elapsed", d))
		return d
	}
}

// finish stamps the run metadata and dumps the metrics registry.
func (e *Experiment) finish(run *storage.Run, meta *storage.RunMetadata, yamlName string) error {
	meta.Finish(e.clock.Now())
	if err := run.SaveMetadata(meta, yamlName); err != nil {
		return err
	}
	if e.metrics != nil {
		if err := telemetry.WriteTextfile(e.metrics.Gatherer(), run.Path(MetricsFile)); err != nil {
			e.logger.Warn("metrics textfile not written", zap.Error(err))
		}
	}
	e.logger.Info("run finished",
		zap.String("run", run.ID),
		zap.Float64("duration_min", meta.DurationMinutes))
	return nil
}

// fail logs err against the run before it is returned.
func (e *Experiment) fail(pipeline string, err error) error {
	e.logger.Error("pipeline failed", zap.String("pipeline", pipeline), zap.Error(err))
	return err
}
