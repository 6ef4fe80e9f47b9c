package runoff

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Analysis controls the v0 grid and return period targets.
type Analysis struct {
	V0RangeMax    float64   `yaml:"v0_range_max"`
	V0Limit       float64   `yaml:"v0_limit"`
	ReturnPeriods []float64 `yaml:"return_periods"`
	EventsPerYear float64   `yaml:"events_per_year"`
}

func DefaultAnalysis() Analysis {
	return Analysis{
		V0RangeMax:    100,
		V0Limit:       100,
		ReturnPeriods: []float64{2, 5, 10, 25, 50, 100},
		EventsPerYear: 60,
	}
}

// V0Grid is int(max) evenly spaced values from 0 to max inclusive.
func V0Grid(max float64) []float64 {
	n := int(max)
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, max)
}

// ComputeCDF integrates every density over the runoff regions of each v0.
// The table has a v0 column followed by one column per density.
func ComputeCDF(ctx context.Context, densities []NamedDensity, p Physical, an Analysis, integ Integrator, workers int) (*dynamo.Table, error) {
	v0s := V0Grid(an.V0RangeMax)
	bounds := make([][]Region, len(v0s))
	for i, v0 := range v0s {
		bounds[i] = Bounds(v0, p, an.V0Limit)
	}

	results := make([][]float64, len(densities))
	for i := range results {
		results[i] = make([]float64, len(v0s))
	}

	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for fi, d := range densities {
		for vi := range v0s {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
				}
				total := 0.0
				for _, r := range bounds[vi] {
					total += integ.Integrate(d.F, r)
				}
				results[fi][vi] = total
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	cols := []string{"v0"}
	for _, d := range densities {
		cols = append(cols, d.Name)
	}
	t := dynamo.NewTable(cols...)
	for vi, v0 := range v0s {
		row := []float64{v0}
		for fi := range densities {
			row = append(row, results[fi][vi])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// AnalyticalCDF is the closed-form runoff CDF for independent
// exponential volume and duration.
func AnalyticalCDF(p Physical, lambdaV, lambdaT float64, v0s []float64) []float64 {
	th1, th2 := p.Thresholds()
	sd, sdd := p.Sd(), p.Sdd()
	c := lambdaT / (lambdaT + lambdaV*p.Fc*(1-p.H))

	out := make([]float64, len(v0s))
	for i, v0 := range v0s {
		switch {
		case v0 < 0:
		case v0 <= th1:
			out[i] = 1 - math.Exp(-lambdaV*p.Sdi-lambdaV*v0/p.H)
		case v0 <= th2:
			t1 := (1 - c) * math.Exp(-lambdaV*p.Sdi-lambdaV*v0/p.H-lambdaT*(v0-p.H*sdd)/(p.H*p.Fc))
			t2 := c * math.Exp(-lambdaV*sd-lambdaV*v0)
			out[i] = 1 - t1 - t2
		default:
			t1 := (1 - c) * math.Exp(-lambdaV*sd-lambdaV*v0-lambdaV*(1-p.H)*p.Sm-lambdaT*p.Ts)
			t2 := c * math.Exp(-lambdaV*sd-lambdaV*v0)
			out[i] = 1 - t1 - t2
		}
	}
	return out
}

// Interp evaluates the piecewise-linear map xp → fp at x, clamping to
// the end values outside the range. Points that do not increase xp are
// dropped first.
func Interp(x float64, xp, fp []float64) float64 {
	var xs, ys []float64
	for i := range xp {
		if math.IsNaN(xp[i]) || (len(xs) > 0 && xp[i] <= xs[len(xs)-1]) {
			continue
		}
		xs = append(xs, xp[i])
		ys = append(ys, fp[i])
	}
	switch len(xs) {
	case 0:
		return math.NaN()
	case 1:
		return ys[0]
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return math.NaN()
	}
	return pl.Predict(x)
}

// ReturnPeriods finds the v0 whose CDF reaches 1 − 1/(eventsPerYear·T)
// for each return period T, per CDF column.
func ReturnPeriods(cdf *dynamo.Table, periods []float64, eventsPerYear float64) (*dynamo.Table, error) {
	v0s, err := cdf.Column("v0")
	if err != nil {
		return nil, err
	}
	if eventsPerYear <= 0 {
		return nil, fmt.Errorf("events per year must be positive, got %f: %w", eventsPerYear, dynamo.ErrParameterBounds)
	}

	var names []string
	for _, c := range cdf.Columns {
		if c != "v0" {
			names = append(names, c)
		}
	}
	curves := make([][]float64, len(names))
	for i, n := range names {
		curves[i], _ = cdf.Column(n)
	}

	t := dynamo.NewTable(append([]string{"ReturnPeriod"}, names...)...)
	for _, rp := range periods {
		target := 1 - 1/(eventsPerYear*rp)
		row := []float64{rp}
		for _, curve := range curves {
			row = append(row, Interp(target, curve, v0s))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
