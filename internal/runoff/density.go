package runoff

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/fieldlab/internal/copula"
)

// Density is a joint probability density over rainfall volume v and
// duration t.
type Density func(v, t float64) float64

// NamedDensity labels a density for CDF tables.
type NamedDensity struct {
	Name string
	F    Density
}

// uvClamp keeps copula arguments away from 0 and 1 where quantile
// transforms diverge.
const uvClamp = 1e-12

// JointDensity couples exponential margins with rates lambdaV and
// lambdaT through c: f(v, t) = c(F_V(v), F_T(t))·f_V(v)·f_T(t).
func JointDensity(c copula.Family, lambdaV, lambdaT float64) Density {
	vol := distuv.Exponential{Rate: lambdaV}
	dur := distuv.Exponential{Rate: lambdaT}
	return func(v, t float64) float64 {
		fv, ft := vol.Prob(v), dur.Prob(t)
		if fv == 0 || ft == 0 {
			return 0
		}
		u := clamp(vol.CDF(v))
		w := clamp(dur.CDF(t))
		d := c.PDF(u, w) * fv * ft
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return 0
		}
		return d
	}
}

func clamp(x float64) float64 {
	return math.Min(math.Max(x, uvClamp), 1-uvClamp)
}

// FitRates returns the exponential rates 1/mean of volumes and durations.
func FitRates(volumes, durations []float64) (lambdaV, lambdaT float64) {
	return 1 / stat.Mean(volumes, nil), 1 / stat.Mean(durations, nil)
}
