package copula

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// KendallTau is the τ-b rank correlation, corrected for ties.
func KendallTau(x, y []float64) (float64, error) {
	n := len(x)
	if n != len(y) {
		return 0, fmt.Errorf("kendall tau over %d and %d samples: %w", n, len(y), dynamo.ErrDimensionMismatch)
	}
	if n < 2 {
		return 0, fmt.Errorf("kendall tau needs 2 samples, got %d: %w", n, dynamo.ErrEmptyInput)
	}

	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := x[i] - x[j]
			dy := y[i] - y[j]
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx*dy > 0:
				concordant++
			default:
				discordant++
			}
		}
	}
	den := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if den == 0 {
		return math.NaN(), nil
	}
	return (concordant - discordant) / den, nil
}

// Ranks assigns 1-based ranks with ties sharing their average rank.
func Ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// PseudoObservations maps samples to (0, 1) by rank/(n+1).
func PseudoObservations(x, y []float64) (u, v []float64, err error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("pseudo observations over %d and %d samples: %w", len(x), len(y), dynamo.ErrDimensionMismatch)
	}
	n1 := float64(len(x) + 1)
	u, v = Ranks(x), Ranks(y)
	for i := range u {
		u[i] /= n1
		v[i] /= n1
	}
	return u, v, nil
}

// Metrics is the goodness of fit of one family.
type Metrics struct {
	Family       string
	Param        float64
	DF           float64
	LogLik       float64
	AIC          float64
	BIC          float64
	TailLower    float64
	TailUpper    float64
	Tau          float64
	EmpiricalTau float64
}

// Evaluate scores a fitted family on pseudo observations.
func Evaluate(f Family, u, v []float64) (Metrics, error) {
	if len(u) != len(v) {
		return Metrics{}, fmt.Errorf("evaluate over %d and %d samples: %w", len(u), len(v), dynamo.ErrDimensionMismatch)
	}
	if len(u) == 0 {
		return Metrics{}, fmt.Errorf("evaluate %s: %w", f.Name(), dynamo.ErrEmptyInput)
	}

	ll := 0.0
	for i := range u {
		ll += math.Log(f.PDF(u[i], v[i]) + 1e-15)
	}
	k := 1.0
	if f.NumParams() == 2 {
		k = 2
	}
	emp, err := KendallTau(u, v)
	if err != nil {
		emp = math.NaN()
	}
	lower, upper := f.TailDependence()

	m := Metrics{
		Family:       f.Name(),
		Param:        f.Params()[0],
		DF:           math.NaN(),
		LogLik:       ll,
		AIC:          2*k - 2*ll,
		BIC:          k*math.Log(float64(len(u))) - 2*ll,
		TailLower:    lower,
		TailUpper:    upper,
		Tau:          f.Tau(),
		EmpiricalTau: emp,
	}
	if s, ok := f.(*Student); ok {
		m.DF = s.DF
	}
	return m, nil
}

// MetricsHeader names the columns of Metrics.Record.
var MetricsHeader = []string{
	"Family", "param", "df", "LogLik", "AIC", "BIC",
	"taildep.lower", "taildep.upper", "tau", "empirical_tau",
}

// Record formats the metrics as a CSV row.
func (m Metrics) Record(format func(float64) string) []string {
	return []string{
		m.Family, format(m.Param), format(m.DF), format(m.LogLik),
		format(m.AIC), format(m.BIC), format(m.TailLower), format(m.TailUpper),
		format(m.Tau), format(m.EmpiricalTau),
	}
}

// Fitted is a family together with its metrics.
type Fitted struct {
	Family  Family
	Metrics Metrics
}

// FitAll fits every named family to (u, v) in the given order. Any
// unsupported name fails the whole call.
func FitAll(names []string, u, v []float64) ([]Fitted, error) {
	for _, name := range names {
		if _, _, err := lookup(name); err != nil {
			return nil, err
		}
	}
	out := make([]Fitted, 0, len(names))
	for _, name := range names {
		f, err := Fit(name, u, v)
		if err != nil {
			return nil, err
		}
		m, err := Evaluate(f, u, v)
		if err != nil {
			return nil, err
		}
		out = append(out, Fitted{Family: f, Metrics: m})
	}
	return out, nil
}
