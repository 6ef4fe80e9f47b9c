package steady

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/sim"
	"github.com/san-kum/fieldlab/internal/spectral"
	"github.com/san-kum/fieldlab/internal/storage"
)

// Fields are the physical quantities recovered from one snapshot.
type Fields struct {
	Iteration int
	W         dynamo.Field
	Psi       dynamo.Field
	U, V      dynamo.Field
	Speed     dynamo.Field
	Modes     []float64
	Energy    []float64
}

// CalculateFields inverts w_k into vorticity, stream function, velocity
// and the shell energy spectrum. The mean mode of ψ keeps w_k[0,0].
func CalculateFields(g *spectral.Grid, iteration int, wk dynamo.Spectrum) *Fields {
	psik := dynamo.NewSpectrum(g.N, g.N)
	for i := range wk {
		for j := range wk[i] {
			k2 := g.K2[i][j]
			if i == 0 && j == 0 {
				k2 = 1
			}
			psik[i][j] = wk[i][j] / complex(k2, 0)
		}
	}

	flow := g.Velocity(wk)
	speed := dynamo.NewField(g.N, g.N)
	for i := range speed {
		for j := range speed[i] {
			speed[i][j] = math.Hypot(flow.U[i][j], flow.V[i][j])
		}
	}
	modes, energy := g.EnergySpectrum(flow.UK, flow.VK)

	return &Fields{
		Iteration: iteration,
		W:         spectral.IFFT2Real(wk),
		Psi:       spectral.IFFT2Real(psik),
		U:         flow.U,
		V:         flow.V,
		Speed:     speed,
		Modes:     modes,
		Energy:    energy,
	}
}

// Analysis holds the per-snapshot fields keyed by Key(iteration) and the
// spectrum averaged over all snapshots.
type Analysis struct {
	Order        []string
	Fields       map[string]*Fields
	Modes        []float64
	MeanSpectrum []float64
}

// Analyze computes fields for every snapshot concurrently.
func Analyze(ctx context.Context, g *spectral.Grid, snapshots []sim.Snapshot, workers int) (*Analysis, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("steady-state analysis: %w", dynamo.ErrEmptyInput)
	}

	out := make([]*Fields, len(snapshots))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, snap := range snapshots {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
			}
			if r, c := snap.W.Dims(); r != g.N || c != g.N {
				return fmt.Errorf("snapshot %d is %dx%d on a %d grid: %w", snap.Iteration, r, c, g.N, dynamo.ErrDimensionMismatch)
			}
			out[i] = CalculateFields(g, snap.Iteration, snap.W)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	a := &Analysis{Fields: make(map[string]*Fields, len(out)), Modes: out[0].Modes}
	a.MeanSpectrum = make([]float64, len(out[0].Energy))
	for _, f := range out {
		key := Key(f.Iteration)
		a.Order = append(a.Order, key)
		a.Fields[key] = f
		for m, e := range f.Energy {
			a.MeanSpectrum[m] += e / float64(len(out))
		}
	}
	return a, nil
}

// SpectrumTable lays the spectra out as columns k, one per snapshot and
// the mean.
func (a *Analysis) SpectrumTable() *dynamo.Table {
	cols := append([]string{"k"}, a.Order...)
	t := dynamo.NewTable(append(cols, "mean")...)
	for m, k := range a.Modes {
		row := []float64{k}
		for _, key := range a.Order {
			row = append(row, a.Fields[key].Energy[m])
		}
		t.Rows = append(t.Rows, append(row, a.MeanSpectrum[m]))
	}
	return t
}

// LoadSnapshots reads physical vorticity NPY files from dir and moves
// them back to spectral space.
func LoadSnapshots(dir string, locations []int) ([]sim.Snapshot, error) {
	snaps := make([]sim.Snapshot, 0, len(locations))
	for _, it := range locations {
		w, err := storage.ReadField(filepath.Join(dir, SnapshotFile(it)))
		if err != nil {
			return nil, fmt.Errorf("load snapshot %d: %w", it, err)
		}
		snaps = append(snaps, sim.Snapshot{Iteration: it, W: spectral.FFT2(w)})
	}
	return snaps, nil
}
