package runoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/fieldlab/internal/copula"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/sweep"
)

// Engine bundles what every CDF evaluation needs.
type Engine struct {
	Physical   Physical
	Analysis   Analysis
	Integrator Integrator
	Workers    int
	Logger     *zap.Logger
}

func NewEngine(p Physical, an Analysis, integ Integrator, workers int, logger *zap.Logger) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, fmt.Errorf("nil integrator: %w", dynamo.ErrUnknownScheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Physical: p, Analysis: an, Integrator: integ, Workers: workers, Logger: logger}, nil
}

// CDF integrates the densities over the engine's v0 grid.
func (e *Engine) CDF(ctx context.Context, densities []NamedDensity) (*dynamo.Table, error) {
	return ComputeCDF(ctx, densities, e.Physical, e.Analysis, e.Integrator, e.Workers)
}

// Levels computes the CDF and its return period table.
func (e *Engine) Levels(ctx context.Context, densities []NamedDensity) (cdf, levels *dynamo.Table, err error) {
	cdf, err = e.CDF(ctx, densities)
	if err != nil {
		return nil, nil, err
	}
	levels, err = ReturnPeriods(cdf, e.Analysis.ReturnPeriods, e.Analysis.EventsPerYear)
	if err != nil {
		return nil, nil, err
	}
	return cdf, levels, nil
}

// BootstrapRow is one family fitted on one resample.
type BootstrapRow struct {
	Iteration int
	Family    string
	Param     float64
	Levels    []float64
}

// BootstrapHeader names the columns of BootstrapRow.Record.
func BootstrapHeader(periods []float64) []string {
	h := []string{"iteration", "copula_type", "parameter"}
	for _, p := range periods {
		h = append(h, fmt.Sprintf("RP_%d", int(p)))
	}
	return h
}

func (r BootstrapRow) Record(format func(float64) string) []string {
	rec := []string{fmt.Sprint(r.Iteration), r.Family, format(r.Param)}
	for _, l := range r.Levels {
		rec = append(rec, format(l))
	}
	return rec
}

// Bootstrap resamples the events with replacement n times, refits the
// margins and every family, and records the return levels per family.
func (e *Engine) Bootstrap(ctx context.Context, volumes, durations []float64, families []string, n int, seed uint64) ([]BootstrapRow, error) {
	if len(volumes) != len(durations) {
		return nil, fmt.Errorf("bootstrap over %d volumes and %d durations: %w", len(volumes), len(durations), dynamo.ErrDimensionMismatch)
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("bootstrap: %w", dynamo.ErrEmptyInput)
	}
	for _, name := range families {
		if _, err := copula.New(name, 0.5); err != nil && isUnknown(err) {
			return nil, err
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	size := len(volumes)
	vol := make([]float64, size)
	dur := make([]float64, size)

	var rows []BootstrapRow
	for it := range n {
		if err := ctx.Err(); err != nil {
			return rows, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
		}
		for i := range size {
			k := rng.IntN(size)
			vol[i], dur[i] = volumes[k], durations[k]
		}
		lv, lt := FitRates(vol, dur)
		u, v, err := copula.PseudoObservations(dur, vol)
		if err != nil {
			return rows, err
		}

		var densities []NamedDensity
		var params []float64
		for _, name := range families {
			f, err := copula.Fit(name, u, v)
			if err != nil {
				e.Logger.Warn("bootstrap fit failed",
					zap.Int("iteration", it+1),
					zap.String("family", name),
					zap.Error(err))
				continue
			}
			densities = append(densities, NamedDensity{Name: f.Name(), F: JointDensity(f, lv, lt)})
			params = append(params, f.Params()[0])
		}
		if len(densities) == 0 {
			continue
		}

		_, levels, err := e.Levels(ctx, densities)
		if err != nil {
			return rows, err
		}
		for di, d := range densities {
			col, _ := levels.Column(d.Name)
			rows = append(rows, BootstrapRow{Iteration: it + 1, Family: d.Name, Param: params[di], Levels: col})
		}
		e.Logger.Debug("bootstrap iteration done", zap.Int("iteration", it+1), zap.Int("families", len(densities)))
	}
	return rows, nil
}

func isUnknown(err error) bool { return errors.Is(err, dynamo.ErrUnknownScheme) }

// LevelSummary describes the spread of one family's return level.
type LevelSummary struct {
	Family       string
	ReturnPeriod float64
	Mean         float64
	Std          float64
	Lower        float64
	Upper        float64
}

// SummarizeBootstrap reduces bootstrap rows to mean, population standard
// deviation and a 95% percentile interval per family and return period.
func SummarizeBootstrap(rows []BootstrapRow, periods []float64) []LevelSummary {
	byFamily := map[string][][]float64{}
	var order []string
	for _, r := range rows {
		if _, ok := byFamily[r.Family]; !ok {
			order = append(order, r.Family)
			byFamily[r.Family] = make([][]float64, len(periods))
		}
		for j := range periods {
			if j < len(r.Levels) && !math.IsNaN(r.Levels[j]) {
				byFamily[r.Family][j] = append(byFamily[r.Family][j], r.Levels[j])
			}
		}
	}

	var out []LevelSummary
	for _, fam := range order {
		for j, p := range periods {
			xs := byFamily[fam][j]
			s := LevelSummary{Family: fam, ReturnPeriod: p, Mean: math.NaN(), Std: math.NaN(), Lower: math.NaN(), Upper: math.NaN()}
			if len(xs) > 0 {
				sort.Float64s(xs)
				s.Mean, s.Std = stat.PopMeanStdDev(xs, nil)
				s.Lower = dynamo.Percentile(xs, 0.025)
				s.Upper = dynamo.Percentile(xs, 0.975)
			}
			out = append(out, s)
		}
	}
	return out
}

// SensitivityName labels a density evaluated at a fixed parameter.
func SensitivityName(family string, param float64) string {
	return fmt.Sprintf("%s_param_%.2f", family, param)
}

// Sensitivity evaluates each family at every value of its parameter
// range with fixed margins. Values the family rejects are skipped.
func (e *Engine) Sensitivity(ctx context.Context, families []string, paramRange map[string][]float64, lambdaV, lambdaT float64) (cdf, levels *dynamo.Table, err error) {
	var densities []NamedDensity
	for _, name := range families {
		rng, ok := paramRange[name]
		if !ok {
			e.Logger.Warn("no parameter range for family", zap.String("family", name))
			continue
		}
		g, err := sweep.NewGrid([]string{"param"}, [][]float64{rng})
		if err != nil {
			return nil, nil, err
		}
		err = g.Each(ctx, func(params map[string]float64) error {
			p := params["param"]
			f, err := copula.New(name, p)
			if err != nil {
				if isUnknown(err) {
					return err
				}
				e.Logger.Warn("parameter outside family range",
					zap.String("family", name),
					zap.Float64("param", p),
					zap.Error(err))
				return nil
			}
			densities = append(densities, NamedDensity{Name: SensitivityName(name, p), F: JointDensity(f, lambdaV, lambdaT)})
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return e.Levels(ctx, densities)
}
