package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/integrators"
)

type Solver struct {
	op        *integrators.Operators
	scheme    integrators.Scheme
	metrics   []dynamo.Metric
	observers []dynamo.Observer
}

func New(op *integrators.Operators, scheme integrators.Scheme) *Solver {
	return &Solver{
		op:        op,
		scheme:    scheme,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
	}
}

func (s *Solver) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Solver) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run advances w0 for iterations 0…cfg.Iterations inclusive. On failure
// the partial result is returned together with the error.
func (s *Solver) Run(ctx context.Context, w0 dynamo.Spectrum, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if r, c := w0.Dims(); r != s.op.Grid.N || c != s.op.Grid.N {
		return nil, fmt.Errorf("initial spectrum is %dx%d, grid is %d: %w", r, c, s.op.Grid.N, dynamo.ErrDimensionMismatch)
	}

	result := &Result{
		MonitorNames: make([]string, 0, len(s.metrics)),
		Monitor:      make([]dynamo.MonitorRecord, 0, cfg.Iterations/cfg.MonitorEvery+1),
		Snapshots:    make([]Snapshot, 0, cfg.Iterations/cfg.SnapshotEvery+1),
		Metrics:      make(map[string]float64),
		Errors:       make([]error, 0),
	}
	for _, m := range s.metrics {
		m.Reset()
		result.MonitorNames = append(result.MonitorNames, m.Name())
	}

	cfl := CFL{Courant: cfg.Courant, Dx: s.op.Grid.Dx, MaxTau: cfg.MaxTau}
	w := w0.Clone()
	tau := cfg.Tau
	t := 0.0

	for i := 0; i <= cfg.Iterations; i++ {
		select {
		case <-ctx.Done():
			result.Final, result.SimTime = w, t
			return result, &dynamo.SimulationError{
				Step:    i,
				Time:    t,
				Wrapped: fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err()),
			}
		default:
		}

		next := s.scheme.Step(s.op, w, tau)
		if cfg.ValidateState && !next.IsValid() {
			result.Errors = append(result.Errors, dynamo.SimError{Time: t, Step: i, Message: "invalid spectrum (NaN/Inf)"})
			result.Final, result.SimTime = w, t
			return result, &dynamo.SimulationError{Step: i, Time: t, Wrapped: dynamo.ErrUnstable}
		}
		w = next

		flow := s.op.Grid.Velocity(w)
		frame := &dynamo.Frame{Iteration: i, Time: t, Tau: tau, W: w, UK: flow.UK, VK: flow.VK, MaxSpeed: flow.MaxSpeed}
		for _, m := range s.metrics {
			m.Observe(frame)
		}

		if i > cfg.AdaptAfter {
			tau = cfl.Next(flow.MaxSpeed)
		}

		if i%cfg.MonitorEvery == 0 {
			rec := dynamo.MonitorRecord{Iteration: i, Time: t, Tau: tau, Values: make(map[string]float64, len(s.metrics))}
			for _, m := range s.metrics {
				rec.Values[m.Name()] = m.Value()
			}
			result.Monitor = append(result.Monitor, rec)
			for _, obs := range s.observers {
				obs.OnMonitor(rec)
			}
		}

		if i%cfg.SnapshotEvery == 0 {
			result.Snapshots = append(result.Snapshots, Snapshot{Iteration: i, Time: t, W: w.Clone()})
		}

		t += tau
		result.StepsTaken++
	}

	result.Final, result.SimTime = w, t
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func (s *Solver) validateConfig(cfg Config) error {
	if cfg.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", cfg.Iterations)
	}
	if cfg.Tau <= 0 {
		return fmt.Errorf("tau must be positive, got %f", cfg.Tau)
	}
	if cfg.Courant <= 0 {
		return fmt.Errorf("courant must be positive, got %f", cfg.Courant)
	}
	if cfg.MonitorEvery <= 0 || cfg.SnapshotEvery <= 0 {
		return fmt.Errorf("monitor and snapshot intervals must be positive, got %d and %d", cfg.MonitorEvery, cfg.SnapshotEvery)
	}
	return nil
}
