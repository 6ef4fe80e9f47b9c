package sim

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/integrators"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// Ensemble runs independent random initial conditions on a shared grid.
// Schemes and metrics carry per-run state, so both come from factories.
type Ensemble struct {
	op         *integrators.Operators
	newScheme  func() integrators.Scheme
	newMetrics func() []dynamo.Metric
	workers    int
}

func NewEnsemble(op *integrators.Operators, newScheme func() integrators.Scheme, newMetrics func() []dynamo.Metric, workers int) *Ensemble {
	return &Ensemble{op: op, newScheme: newScheme, newMetrics: newMetrics, workers: workers}
}

func (e *Ensemble) Run(ctx context.Context, seeds []uint64, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for idx, seed := range seeds {
		g.Go(func() error {
			s := New(e.op, e.newScheme())
			if e.newMetrics != nil {
				for _, m := range e.newMetrics() {
					s.AddMetric(m)
				}
			}
			w0 := spectral.InitialCondition(e.op.Grid.N, seed)
			res, err := s.Run(gctx, w0, cfg)
			results[idx] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
