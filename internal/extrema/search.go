package extrema

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/sim"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// Options tune a snapshot search.
type Options struct {
	Threshold float64
	// KCut applies LowPass before the search when positive.
	KCut    float64
	Workers int
}

// SearchSnapshots finds extrema of the physical vorticity of every
// snapshot, keyed by iteration.
func SearchSnapshots(ctx context.Context, g *spectral.Grid, snapshots []sim.Snapshot, opts Options) (map[int]*Extrema, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("extrema search: %w", dynamo.ErrEmptyInput)
	}

	found := make([]*Extrema, len(snapshots))
	eg, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		eg.SetLimit(opts.Workers)
	}
	for i, snap := range snapshots {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
			}
			wk := snap.W
			if opts.KCut > 0 {
				wk = LowPass(g, wk, opts.KCut)
			}
			e := Find(spectral.IFFT2Real(wk), g.X, g.X, opts.Threshold)
			e.Iteration = snap.Iteration
			found[i] = e
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int]*Extrema, len(found))
	for _, e := range found {
		out[e.Iteration] = e
	}
	return out, nil
}

// CountTable summarizes extrema counts per iteration in ascending order.
func CountTable(found map[int]*Extrema, order []int) *dynamo.Table {
	t := dynamo.NewTable("Iteration", "All Extrema", "Minima", "Maxima")
	for _, it := range order {
		e, ok := found[it]
		if !ok {
			continue
		}
		all, mn, mx := e.Counts()
		t.Rows = append(t.Rows, []float64{float64(it), float64(all), float64(mn), float64(mx)})
	}
	return t
}
