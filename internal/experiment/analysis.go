package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/extrema"
	"github.com/san-kum/fieldlab/internal/hyperuniform"
	"github.com/san-kum/fieldlab/internal/steady"
	"github.com/san-kum/fieldlab/internal/storage"
)

// Snapshot analysis layout inside a turbulence run.
const (
	SteadyDir       = "steady"
	ExtremaDir      = "extrema"
	HyperuniformDir = "hyperuniform"
)

// Steady recovers vorticity, stream function and velocity fields of the
// selected snapshots and stores them with the shell energy spectra.
func (e *Experiment) Steady(ctx context.Context, runID string, entries []string) (*steady.Analysis, error) {
	defer e.stage(PipelineTurbulence, "steady_state")()
	sr, err := e.loadSnapshots(runID, entries)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	an, err := steady.Analyze(ctx, sr.grid, sr.snaps, e.workers)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}

	run := sr.run
	if err := run.WriteTable(filepath.Join(SteadyDir, "energy_spectrum.csv"), an.SpectrumTable()); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	for _, key := range an.Order {
		f := an.Fields[key]
		for name, field := range map[string]dynamo.Field{"psi": f.Psi, "u": f.U, "v": f.V, "speed": f.Speed} {
			rel := filepath.Join(SteadyDir, fmt.Sprintf("%s_%08d.npy", name, f.Iteration))
			if err := run.WriteField(rel, field); err != nil {
				return nil, e.fail(PipelineTurbulence, err)
			}
		}
	}
	e.logger.Info("steady state fields written", zap.String("run", run.ID), zap.Int("snapshots", len(an.Order)))
	return an, nil
}

// Extrema finds vorticity extrema of the selected snapshots and stores
// the point clouds and their counts.
func (e *Experiment) Extrema(ctx context.Context, runID string, entries []string) (map[int]*extrema.Extrema, error) {
	defer e.stage(PipelineTurbulence, "extrema_search")()
	sr, err := e.loadSnapshots(runID, entries)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	found, err := extrema.SearchSnapshots(ctx, sr.grid, sr.snaps, sr.cfg.ExtremaOptions(e.workers))
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	if err := saveExtrema(sr.run, found, sr.order); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	return found, nil
}

func saveExtrema(run *storage.Run, found map[int]*extrema.Extrema, order []int) error {
	for _, it := range order {
		ex, ok := found[it]
		if !ok {
			continue
		}
		for name, pts := range map[string]dynamo.Field{"all": ex.All, "minima": ex.Minima, "maxima": ex.Maxima} {
			if len(pts) == 0 {
				continue
			}
			if err := run.WriteField(filepath.Join(ExtremaDir, fmt.Sprintf("%s_%08d.npy", name, it)), pts); err != nil {
				return err
			}
		}
	}
	return run.WriteTable(filepath.Join(ExtremaDir, "extrema_count.csv"), extrema.CountTable(found, order))
}

type HyperuniformResult struct {
	Profiles  []hyperuniform.Profile
	Mean      hyperuniform.Profile
	Fit       hyperuniform.Line
	Intervals []hyperuniform.IntervalFit
}

// Hyperuniform computes the structure factor of the extrema point cloud
// of every selected snapshot, its radial profile and the low-k fit.
func (e *Experiment) Hyperuniform(ctx context.Context, runID string, entries []string) (*HyperuniformResult, error) {
	defer e.stage(PipelineTurbulence, "hyperuniformity")()
	sr, err := e.loadSnapshots(runID, entries)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	found, err := extrema.SearchSnapshots(ctx, sr.grid, sr.snaps, sr.cfg.ExtremaOptions(e.workers))
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}

	var sets []hyperuniform.PointSet
	for _, it := range sr.order {
		ex, ok := found[it]
		if !ok || len(ex.All) == 0 {
			e.logger.Warn("snapshot has no extrema", zap.Int("iteration", it))
			continue
		}
		sets = append(sets, hyperuniform.PointSet{Iteration: it, Points: ex.All})
	}
	if len(sets) == 0 {
		return nil, e.fail(PipelineTurbulence, fmt.Errorf("hyperuniformity of run %s: %w", runID, dynamo.ErrEmptyInput))
	}

	factors, err := hyperuniform.Batch(ctx, sets, sr.grid, e.workers)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	res := &HyperuniformResult{}
	for i, s := range factors {
		p, err := hyperuniform.RadialProfile(s, sr.grid)
		if err != nil {
			return nil, e.fail(PipelineTurbulence, err)
		}
		p.Iteration = sets[i].Iteration
		res.Profiles = append(res.Profiles, p)
	}
	if res.Mean, err = hyperuniform.Mean(res.Profiles); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	k := sr.cfg.Analysis.KInterval
	if res.Fit, err = hyperuniform.FitSnapshots(res.Profiles, k[0], k[1], sr.cfg.Analysis.Normalized); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	if len(sr.cfg.Analysis.Intervals) > 0 {
		res.Intervals = hyperuniform.CompareIntervals(res.Profiles, sr.cfg.Analysis.Intervals)
	}
	e.logger.Info("structure factor fitted",
		zap.Float64("slope", res.Fit.Slope),
		zap.Float64("intercept", res.Fit.Intercept),
		zap.Float64("r2", res.Fit.R2))

	if err := saveHyperuniform(sr.run, res, k); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	return res, nil
}

func saveHyperuniform(run *storage.Run, res *HyperuniformResult, k [2]float64) error {
	profiles := dynamo.NewTable("Iteration", "k", "S")
	for _, p := range res.Profiles {
		for i := range p.K {
			profiles.Rows = append(profiles.Rows, []float64{float64(p.Iteration), p.K[i], p.S[i]})
		}
	}
	if err := run.WriteTable(filepath.Join(HyperuniformDir, "radial_profiles.csv"), profiles); err != nil {
		return err
	}

	mean := dynamo.NewTable("k", "S")
	for i := range res.Mean.K {
		mean.Rows = append(mean.Rows, []float64{res.Mean.K[i], res.Mean.S[i]})
	}
	if err := run.WriteTable(filepath.Join(HyperuniformDir, "mean_profile.csv"), mean); err != nil {
		return err
	}

	fits := dynamo.NewTable("k_min", "k_max", "slope", "intercept", "r2")
	fits.Rows = append(fits.Rows, []float64{k[0], k[1], res.Fit.Slope, res.Fit.Intercept, res.Fit.R2})
	for _, f := range res.Intervals {
		fits.Rows = append(fits.Rows, []float64{f.KMin, f.KMax, f.Slope, f.Intercept, f.R2})
	}
	return run.WriteTable(filepath.Join(HyperuniformDir, "fits.csv"), fits)
}
