package hyperuniform

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// averageAbove is the snapshot count beyond which profiles are averaged
// before fitting rather than fitted one by one.
const averageAbove = 6

// Line is a least-squares fit S ≈ Slope·k + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// Fit regresses S on k over kmin ≤ k ≤ kmax.
func Fit(k, s []float64, kmin, kmax float64) (Line, error) {
	if len(k) != len(s) {
		return Line{}, fmt.Errorf("fit %d k values against %d samples: %w", len(k), len(s), dynamo.ErrDimensionMismatch)
	}
	var xs, ys []float64
	for i := range k {
		if k[i] >= kmin && k[i] <= kmax {
			xs = append(xs, k[i])
			ys = append(ys, s[i])
		}
	}
	if len(xs) < 2 {
		return Line{}, fmt.Errorf("fit interval [%g, %g] holds %d points: %w", kmin, kmax, len(xs), dynamo.ErrEmptyInput)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return Line{
		Slope:     beta,
		Intercept: alpha,
		R2:        stat.RSquared(xs, ys, nil, alpha, beta),
	}, nil
}

// FitSnapshots fits the low-k trend across snapshots. With more than six
// profiles they are averaged first; otherwise each is fitted and the
// coefficients averaged. Normalized profiles are rescaled by their peak.
func FitSnapshots(profiles []Profile, kmin, kmax float64, normalized bool) (Line, error) {
	if len(profiles) == 0 {
		return Line{}, fmt.Errorf("fit snapshots: %w", dynamo.ErrEmptyInput)
	}

	if len(profiles) > averageAbove {
		set := profiles
		if normalized {
			set = make([]Profile, len(profiles))
			for i, p := range profiles {
				_, smax := Peak(p)
				set[i] = Profile{K: p.K, S: scaled(p.S, 1/smax)}
			}
		}
		mean, err := Mean(set)
		if err != nil {
			return Line{}, err
		}
		if normalized {
			mean = Normalize(mean)
		}
		return Fit(mean.K, mean.S, kmin, kmax)
	}

	var acc Line
	for _, p := range profiles {
		if normalized {
			p = Normalize(p)
		}
		l, err := Fit(p.K, p.S, kmin, kmax)
		if err != nil {
			return Line{}, fmt.Errorf("iteration %d: %w", p.Iteration, err)
		}
		acc.Slope += l.Slope
		acc.Intercept += l.Intercept
		acc.R2 += l.R2
	}
	n := float64(len(profiles))
	return Line{Slope: acc.Slope / n, Intercept: acc.Intercept / n, R2: acc.R2 / n}, nil
}

func scaled(v []float64, f float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * f
	}
	return out
}

// IntervalFit is the fit quality of one k window.
type IntervalFit struct {
	KMin, KMax float64
	Line
}

// CompareIntervals fits every window and ranks them by r², best first.
// Windows with too few points are skipped.
func CompareIntervals(profiles []Profile, intervals [][2]float64) []IntervalFit {
	out := make([]IntervalFit, 0, len(intervals))
	for _, iv := range intervals {
		l, err := FitSnapshots(profiles, iv[0], iv[1], false)
		if err != nil {
			continue
		}
		out = append(out, IntervalFit{KMin: iv[0], KMax: iv[1], Line: l})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].R2 > out[j].R2 })
	return out
}
