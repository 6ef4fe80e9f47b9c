package sim

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"go.uber.org/goleak"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/integrators"
	"github.com/san-kum/fieldlab/internal/metrics"
	"github.com/san-kum/fieldlab/internal/spectral"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingObserver struct {
	records []dynamo.MonitorRecord
}

func (r *recordingObserver) OnMonitor(rec dynamo.MonitorRecord) { r.records = append(r.records, rec) }

// blowUp returns NaN after a few steps.
type blowUp struct{ calls int }

func (b *blowUp) Name() string { return "blowup" }

func (b *blowUp) Step(op *integrators.Operators, w dynamo.Spectrum, tau float64) dynamo.Spectrum {
	b.calls++
	out := w.Clone()
	if b.calls > 3 {
		out[0][1] = cmplx.NaN()
	}
	return out
}

func newTestOperators(t *testing.T, n int) *integrators.Operators {
	t.Helper()
	g, err := spectral.Discretize(2*math.Pi, n)
	if err != nil {
		t.Fatalf("discretize: %v", err)
	}
	visc := spectral.PVC{V0: 0.05, VRatio: 1, KMin: 3, KMax: 4}.Viscosity(g)
	return integrators.NewOperators(g, visc)
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Iterations = 30
	cfg.Tau = 1e-3
	cfg.MaxTau = 2e-3
	cfg.AdaptAfter = 20
	cfg.MonitorEvery = 10
	cfg.SnapshotEvery = 15
	return cfg
}

func TestSolverRun(t *testing.T) {
	op := newTestOperators(t, 16)
	s := New(op, integrators.NewRK3())
	s.AddMetric(metrics.NewShellEnergy(op.Grid))
	s.AddMetric(metrics.NewMaxVelocity())
	obs := &recordingObserver{}
	s.AddObserver(obs)

	result, err := s.Run(context.Background(), spectral.InitialCondition(16, 1), smallConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.StepsTaken != 31 {
		t.Errorf("expected 31 steps (inclusive), got %d", result.StepsTaken)
	}
	if len(result.Monitor) != 4 {
		t.Errorf("expected 4 monitor rows, got %d", len(result.Monitor))
	}
	if len(obs.records) != len(result.Monitor) {
		t.Errorf("observer saw %d rows, result has %d", len(obs.records), len(result.Monitor))
	}
	if len(result.Snapshots) != 3 {
		t.Errorf("expected snapshots at 0, 15, 30, got %d", len(result.Snapshots))
	}
	if result.Snapshots[1].Iteration != 15 {
		t.Errorf("second snapshot at %d, want 15", result.Snapshots[1].Iteration)
	}
	if len(result.MonitorNames) != 2 || result.MonitorNames[0] != "E(k=1)" {
		t.Errorf("unexpected monitor names %v", result.MonitorNames)
	}

	before := result.Monitor[2]
	after := result.Monitor[3]
	if before.Tau != 1e-3 {
		t.Errorf("tau before adaptation = %g, want 1e-3", before.Tau)
	}
	if after.Tau == 1e-3 {
		t.Error("tau should follow the CFL controller after AdaptAfter")
	}
	if _, ok := after.Values["max velocity"]; !ok {
		t.Error("monitor row missing max velocity")
	}
}

func TestSolverRun_InvalidConfig(t *testing.T) {
	op := newTestOperators(t, 8)
	s := New(op, integrators.NewEuler())

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"zero tau", func(c *Config) { c.Tau = 0 }},
		{"negative iterations", func(c *Config) { c.Iterations = -1 }},
		{"zero courant", func(c *Config) { c.Courant = 0 }},
		{"zero monitor interval", func(c *Config) { c.MonitorEvery = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mod(&cfg)
			if _, err := s.Run(context.Background(), spectral.InitialCondition(8, 1), cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSolverRun_DimensionMismatch(t *testing.T) {
	s := New(newTestOperators(t, 8), integrators.NewEuler())
	_, err := s.Run(context.Background(), spectral.InitialCondition(16, 1), smallConfig())
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSolverRun_Unstable(t *testing.T) {
	s := New(newTestOperators(t, 8), &blowUp{})
	result, err := s.Run(context.Background(), spectral.InitialCondition(8, 1), smallConfig())

	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected SimulationError, got %v", err)
	}
	if !errors.Is(err, dynamo.ErrUnstable) {
		t.Errorf("expected ErrUnstable, got %v", err)
	}
	if simErr.Step != 3 {
		t.Errorf("failure at step %d, want 3", simErr.Step)
	}
	if result == nil || len(result.Errors) != 1 {
		t.Error("partial result should carry the step error")
	}
}

func TestSolverRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(newTestOperators(t, 8), integrators.NewEuler())
	_, err := s.Run(ctx, spectral.InitialCondition(8, 1), smallConfig())
	if !errors.Is(err, dynamo.ErrContextCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped cancellation, got %v", err)
	}
}

func TestCFL(t *testing.T) {
	tests := []struct {
		name string
		cfl  CFL
		maxU float64
		want float64
	}{
		{"basic", CFL{Courant: 0.5, Dx: 0.1}, 1.0, 0.05},
		{"faster flow, smaller step", CFL{Courant: 0.5, Dx: 0.1}, 10.0, 0.005},
		{"capped", CFL{Courant: 0.5, Dx: 0.1, MaxTau: 0.01}, 1.0, 0.01},
		{"still flow", CFL{Courant: 0.5, Dx: 0.1, MaxTau: 0.2}, 0, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfl.Next(tt.maxU); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Next(%f) = %f, want %f", tt.maxU, got, tt.want)
			}
		})
	}

	if tau := (CFL{Courant: 0.5, Dx: 0.1}).Next(1e-10); tau < 1e8 {
		t.Errorf("near-still flow should give a huge step, got %g", tau)
	}
}

func TestEnsemble(t *testing.T) {
	op := newTestOperators(t, 8)
	ens := NewEnsemble(op,
		func() integrators.Scheme { return integrators.NewRK3() },
		func() []dynamo.Metric { return []dynamo.Metric{metrics.NewMaxVelocity()} },
		2)

	cfg := smallConfig()
	cfg.Iterations = 5
	results, err := ens.Run(context.Background(), []uint64{1, 2, 3}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Final[1][1] == results[1].Final[1][1] {
		t.Error("different seeds should evolve differently")
	}
}
