package experiment

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/fieldlab/internal/config"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/integrators"
	"github.com/san-kum/fieldlab/internal/metrics"
	"github.com/san-kum/fieldlab/internal/sim"
	"github.com/san-kum/fieldlab/internal/spectral"
	"github.com/san-kum/fieldlab/internal/steady"
	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/sweep"
)

// Turbulence run layout.
const (
	ArraysDir      = "arrays"
	SnapshotDir    = "snapshots/w"
	TablesDir      = "tables"
	ParametersFile = "parameters.yaml"
	MonitoringFile = "monitoring.csv"
)

type TurbulenceRun struct {
	Run    *storage.Run
	Grid   *spectral.Grid
	Result *sim.Result
}

// monitorLog forwards monitor records to the logger and counts steps.
type monitorLog struct {
	logger  *zap.Logger
	steps   func(n int)
	last    int
	started bool
}

func (m *monitorLog) OnMonitor(rec dynamo.MonitorRecord) {
	if m.started {
		m.steps(rec.Iteration - m.last)
	}
	m.last, m.started = rec.Iteration, true
	fields := []zap.Field{
		zap.Int("iteration", rec.Iteration),
		zap.Float64("time", rec.Time),
		zap.Float64("tau", rec.Tau),
	}
	for name, v := range rec.Values {
		fields = append(fields, zap.Float64(name, v))
	}
	m.logger.Debug("monitor", fields...)
}

func (e *Experiment) operators(cfg *config.Turbulence) (*spectral.Grid, *integrators.Operators, error) {
	g, err := spectral.Discretize(cfg.Discretization.DomainLength, cfg.Discretization.Points)
	if err != nil {
		return nil, nil, err
	}
	return g, integrators.NewOperators(g, cfg.PVC().Viscosity(g)), nil
}

// Turbulence integrates the PVC vorticity equation and stores the axes,
// physical vorticity snapshots and the monitoring table.
func (e *Experiment) Turbulence(ctx context.Context, cfg *config.Turbulence) (*TurbulenceRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	scheme, err := e.registry.GetScheme(cfg.Discretization.Scheme)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}

	end := e.stage(PipelineTurbulence, "preprocessing")
	g, op, err := e.operators(cfg)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	d := cfg.Discretization
	run, err := e.store.CreateRun(storage.TurbulenceRunName(d.DomainLength, d.Points, d.Iterations, cfg.Physical.VRatio))
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	meta := storage.NewMetadata(run, PipelineTurbulence)
	if err := run.WriteYAML(ParametersFile, cfg); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	log := e.logger.With(zap.String("run", run.ID))
	log.Info("grid ready",
		zap.Int("N", g.N),
		zap.Float64("dx", g.Dx),
		zap.Float64("dk", g.Dk),
		zap.String("scheme", scheme.Name()))
	end()

	end = e.stage(PipelineTurbulence, "algorithm")
	solver := sim.New(op, scheme)
	solver.AddMetric(metrics.NewMaxVelocity())
	solver.AddMetric(metrics.NewShellEnergy(g))
	solver.AddObserver(&monitorLog{
		logger: log,
		steps:  func(n int) { e.metrics.Steps(PipelineTurbulence, n) },
	})
	res, err := solver.Run(ctx, spectral.InitialCondition(g.N, d.Seed), cfg.SimConfig())
	end()
	if err != nil && res == nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	if err != nil {
		log.Warn("solver stopped early", zap.Int("steps", res.StepsTaken), zap.Error(err))
	}

	end = e.stage(PipelineTurbulence, "postprocessing")
	if serr := saveTurbulence(run, g, res); serr != nil {
		return nil, e.fail(PipelineTurbulence, serr)
	}
	for k, v := range res.Metrics {
		meta.Metrics[k] = v
	}
	meta.Metrics["sim_time"] = res.SimTime
	meta.Metrics["steps"] = float64(res.StepsTaken)
	end()

	if ferr := e.finish(run, meta, "run_metadata.yaml"); ferr != nil {
		return nil, e.fail(PipelineTurbulence, ferr)
	}
	out := &TurbulenceRun{Run: run, Grid: g, Result: res}
	if err != nil {
		return out, e.fail(PipelineTurbulence, err)
	}
	return out, nil
}

func saveTurbulence(run *storage.Run, g *spectral.Grid, res *sim.Result) error {
	if err := run.WriteVector(filepath.Join(ArraysDir, "x_vectors.npy"), g.X); err != nil {
		return err
	}
	if err := run.WriteVector(filepath.Join(ArraysDir, "k_vectors.npy"), g.K); err != nil {
		return err
	}
	for _, snap := range res.Snapshots {
		if err := run.WriteField(filepath.Join(SnapshotDir, steady.SnapshotFile(snap.Iteration)), spectral.IFFT2Real(snap.W)); err != nil {
			return err
		}
	}
	return run.WriteTable(filepath.Join(TablesDir, MonitoringFile), MonitorTable(res))
}

// MonitorTable lays out the monitoring records as Iterations, Time, tau
// and one column per metric in registration order.
func MonitorTable(res *sim.Result) *dynamo.Table {
	t := dynamo.NewTable(append([]string{"Iterations", "Time", "tau"}, res.MonitorNames...)...)
	for _, rec := range res.Monitor {
		row := []float64{float64(rec.Iteration), rec.Time, rec.Tau}
		for _, name := range res.MonitorNames {
			row = append(row, rec.Values[name])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// openTurbulence reloads the grid and parameters of a stored run.
func (e *Experiment) openTurbulence(runID string) (*storage.Run, *config.Turbulence, *spectral.Grid, error) {
	run, err := e.store.Open(runID)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(run.Path(ParametersFile), config.DefaultTurbulence())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}
	g, err := spectral.Discretize(cfg.Discretization.DomainLength, cfg.Discretization.Points)
	if err != nil {
		return nil, nil, nil, err
	}
	return run, cfg, g, nil
}

// locations resolves the snapshot iterations to analyse: explicit
// entries, then the run's configured ones, then every stored snapshot.
func locations(run *storage.Run, cfg *config.Turbulence, entries []string) ([]int, error) {
	if len(entries) == 0 {
		entries = cfg.Analysis.Locations
	}
	if len(entries) > 0 {
		return steady.ParseLocations(entries)
	}
	files, err := filepath.Glob(run.Path(SnapshotDir, "w_*.npy"))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, f := range files {
		var it int
		if _, err := fmt.Sscanf(filepath.Base(f), "w_%d.npy", &it); err == nil {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no snapshots in %s: %w", run.Path(SnapshotDir), dynamo.ErrEmptyInput)
	}
	sort.Ints(out)
	return out, nil
}

// storedRun is a turbulence run reopened for snapshot analysis.
type storedRun struct {
	run   *storage.Run
	cfg   *config.Turbulence
	grid  *spectral.Grid
	snaps []sim.Snapshot
	order []int
}

func (e *Experiment) loadSnapshots(runID string, entries []string) (*storedRun, error) {
	run, cfg, g, err := e.openTurbulence(runID)
	if err != nil {
		return nil, err
	}
	locs, err := locations(run, cfg, entries)
	if err != nil {
		return nil, err
	}
	snaps, err := steady.LoadSnapshots(run.Path(SnapshotDir), locs)
	if err != nil {
		return nil, err
	}
	e.logger.Info("snapshots loaded", zap.String("run", run.ID), zap.Int("count", len(snaps)))
	return &storedRun{run: run, cfg: cfg, grid: g, snaps: snaps, order: locs}, nil
}

// SweepPoint is one evaluated combination of a turbulence sweep.
type SweepPoint struct {
	VRatio    float64
	Courant   float64
	Variation float64
	SimTime   float64
}

type SweepRun struct {
	Run    *storage.Run
	Points []SweepPoint
	Best   map[string]float64
}

// TurbulenceSweep runs an ensemble for every (v_ratio, courant) pair and
// keeps the pair whose shell energy fluctuates least over the second
// half of the run.
func (e *Experiment) TurbulenceSweep(ctx context.Context, cfg *config.Turbulence) (*SweepRun, error) {
	sw := cfg.Sweep
	vr, cr := sw.VRatio, sw.Courant
	if len(vr) == 0 {
		vr = []float64{cfg.Physical.VRatio}
	}
	if len(cr) == 0 {
		cr = []float64{cfg.Discretization.Courant}
	}
	seeds := sw.Seeds
	if len(seeds) == 0 {
		seeds = []uint64{cfg.Discretization.Seed}
	}
	grid, err := sweep.NewGrid([]string{"v_ratio", "courant"}, [][]float64{vr, cr})
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	newScheme, err := e.registry.SchemeFactory(cfg.Discretization.Scheme)
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	run, err := e.store.CreateRun("sweep_" + e.clock.Now().Format("20060102_150405"))
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	meta := storage.NewMetadata(run, PipelineTurbulence+"_sweep")

	end := e.stage(PipelineTurbulence, "sweep")
	var points []SweepPoint
	best, score, err := grid.Best(ctx, func(params map[string]float64) (float64, error) {
		c := *cfg
		c.Physical.VRatio = params["v_ratio"]
		c.Discretization.Courant = params["courant"]
		if sw.Iterations > 0 {
			c.Discretization.Iterations = sw.Iterations
		}
		if err := c.Validate(); err != nil {
			return 0, err
		}
		g, op, err := e.operators(&c)
		if err != nil {
			return 0, err
		}
		ens := sim.NewEnsemble(op, newScheme,
			func() []dynamo.Metric { return []dynamo.Metric{metrics.NewShellEnergy(g)} },
			e.workers)
		results, err := ens.Run(ctx, seeds, c.SimConfig())
		if err != nil {
			e.logger.Warn("sweep combination failed",
				zap.Float64("v_ratio", c.Physical.VRatio),
				zap.Float64("courant", c.Discretization.Courant),
				zap.Error(err))
			return 0, err
		}
		p := SweepPoint{VRatio: c.Physical.VRatio, Courant: c.Discretization.Courant}
		for _, r := range results {
			e.metrics.Steps(PipelineTurbulence, r.StepsTaken)
			p.Variation += energyVariation(r) / float64(len(results))
			p.SimTime += r.SimTime / float64(len(results))
		}
		points = append(points, p)
		e.logger.Debug("sweep combination done",
			zap.Float64("v_ratio", p.VRatio),
			zap.Float64("courant", p.Courant),
			zap.Float64("variation", p.Variation))
		return p.Variation, nil
	})
	end()
	if err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}

	if err := run.WriteTable(filepath.Join(TablesDir, "sweep.csv"), SweepTable(points)); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	if err := run.WriteYAML(ParametersFile, cfg); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	meta.Metrics["best_v_ratio"] = best["v_ratio"]
	meta.Metrics["best_courant"] = best["courant"]
	meta.Metrics["best_energy_variation"] = score
	if err := e.finish(run, meta, ""); err != nil {
		return nil, e.fail(PipelineTurbulence, err)
	}
	return &SweepRun{Run: run, Points: points, Best: best}, nil
}

// energyVariation is the coefficient of variation of the first-shell
// energy over the second half of the records.
func energyVariation(r *sim.Result) float64 {
	if !slices.Contains(r.MonitorNames, metrics.ShellEnergyName) || len(r.Monitor) < 2 {
		return math.Inf(1)
	}
	name := metrics.ShellEnergyName
	half := r.Monitor[len(r.Monitor)/2:]
	xs := make([]float64, len(half))
	for i, rec := range half {
		xs[i] = rec.Values[name]
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if mean == 0 || math.IsNaN(std) {
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// SweepTable lays out sweep points for storage.
func SweepTable(points []SweepPoint) *dynamo.Table {
	t := dynamo.NewTable("v_ratio", "courant", "energy_variation", "sim_time")
	for _, p := range points {
		t.Rows = append(t.Rows, []float64{p.VRatio, p.Courant, p.Variation, p.SimTime})
	}
	return t
}
