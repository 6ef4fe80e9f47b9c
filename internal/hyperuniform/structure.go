package hyperuniform

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

const minRowsPerWorker = 4

// StructureFactor evaluates S(k) = |Σ_p exp(−i k·x_p)|² / Np on the grid's
// wavenumber mesh. Points are rows whose first two columns are x and y.
// Modes on either axis (kx = 0 or ky = 0) are set to zero.
func StructureFactor(points dynamo.Field, g *spectral.Grid) (dynamo.Field, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("structure factor: %w", dynamo.ErrEmptyInput)
	}
	for i, p := range points {
		if len(p) < 2 {
			return nil, fmt.Errorf("point %d has %d coordinates: %w", i, len(p), dynamo.ErrDimensionMismatch)
		}
	}

	n := float64(len(points))
	s := dynamo.NewField(g.N, g.N)
	dynamo.ParallelFor(g.N, minRowsPerWorker, func(start, end int) {
		for i := start; i < end; i++ {
			for j := range s[i] {
				kx, ky := g.KX[i][j], g.KY[i][j]
				if kx == 0 || ky == 0 {
					continue
				}
				var re, im float64
				for _, p := range points {
					sin, cos := math.Sincos(kx*p[0] + ky*p[1])
					re += cos
					im -= sin
				}
				s[i][j] = (re*re + im*im) / n
			}
		}
	})
	return s, nil
}

// PointSet is a point cloud tagged with the snapshot it came from.
type PointSet struct {
	Iteration int
	Points    dynamo.Field
}

// Batch computes structure factors for many point sets, preserving order.
func Batch(ctx context.Context, sets []PointSet, g *spectral.Grid, workers int) ([]dynamo.Field, error) {
	out := make([]dynamo.Field, len(sets))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, set := range sets {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
			}
			s, err := StructureFactor(set.Points, g)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", set.Iteration, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
