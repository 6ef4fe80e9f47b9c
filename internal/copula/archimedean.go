package copula

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// Clayton has lower tail dependence for θ > 0. Negative θ in (−1, 0)
// covers weak negative dependence; the density is zero outside the
// support.
type Clayton struct {
	Theta float64
}

func NewClayton(theta float64) (*Clayton, error) {
	if !(theta > -1) || theta == 0 || math.IsInf(theta, 0) {
		return nil, paramError("Clayton", "theta", theta, "> -1 and non-zero")
	}
	return &Clayton{Theta: theta}, nil
}

func (c *Clayton) Name() string      { return "Clayton" }
func (c *Clayton) Params() []float64 { return []float64{c.Theta} }
func (c *Clayton) NumParams() int    { return 1 }

func (c *Clayton) LogPDF(u, v float64) float64 {
	th := c.Theta
	base := math.Pow(u, -th) + math.Pow(v, -th) - 1
	if base <= 0 {
		return math.Inf(-1)
	}
	return math.Log1p(th) - (th+1)*(math.Log(u)+math.Log(v)) - (2+1/th)*math.Log(base)
}

func (c *Clayton) PDF(u, v float64) float64 { return math.Exp(c.LogPDF(u, v)) }

func (c *Clayton) Tau() float64 { return c.Theta / (c.Theta + 2) }

func (c *Clayton) TailDependence() (float64, float64) {
	if c.Theta <= 0 {
		return 0, 0
	}
	return math.Pow(2, -1/c.Theta), 0
}

// Gumbel has upper tail dependence; θ ≥ 1 with θ = 1 the independence
// copula.
type Gumbel struct {
	Theta float64
}

func NewGumbel(theta float64) (*Gumbel, error) {
	if !(theta >= 1) || math.IsInf(theta, 0) {
		return nil, paramError("Gumbel", "theta", theta, ">= 1")
	}
	return &Gumbel{Theta: theta}, nil
}

func (g *Gumbel) Name() string      { return "Gumbel" }
func (g *Gumbel) Params() []float64 { return []float64{g.Theta} }
func (g *Gumbel) NumParams() int    { return 1 }

func (g *Gumbel) LogPDF(u, v float64) float64 {
	th := g.Theta
	x, y := -math.Log(u), -math.Log(v)
	a := math.Pow(x, th) + math.Pow(y, th)
	w := math.Pow(a, 1/th)
	return -w - math.Log(u) - math.Log(v) +
		(th-1)*(math.Log(x)+math.Log(y)) +
		(2/th-2)*math.Log(a) +
		math.Log1p((th-1)/w)
}

func (g *Gumbel) PDF(u, v float64) float64 { return math.Exp(g.LogPDF(u, v)) }

func (g *Gumbel) Tau() float64 { return 1 - 1/g.Theta }

func (g *Gumbel) TailDependence() (float64, float64) {
	return 0, 2 - math.Pow(2, 1/g.Theta)
}

// Frank is radially symmetric with no tail dependence. θ = 0 is the
// independence copula.
type Frank struct {
	Theta float64
}

func NewFrank(theta float64) (*Frank, error) {
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return nil, paramError("Frank", "theta", theta, "finite")
	}
	return &Frank{Theta: theta}, nil
}

func (f *Frank) Name() string      { return "Frank" }
func (f *Frank) Params() []float64 { return []float64{f.Theta} }
func (f *Frank) NumParams() int    { return 1 }

func (f *Frank) PDF(u, v float64) float64 {
	th := f.Theta
	if th == 0 {
		return 1
	}
	g1 := -math.Expm1(-th)
	den := g1 - (-math.Expm1(-th*u))*(-math.Expm1(-th*v))
	return th * g1 * math.Exp(-th*(u+v)) / (den * den)
}

func (f *Frank) LogPDF(u, v float64) float64 { return logOf(f.PDF(u, v)) }

func (f *Frank) Tau() float64 { return frankTau(f.Theta) }

func (f *Frank) TailDependence() (float64, float64) { return 0, 0 }

// debyeNodes is the Gauss–Legendre order used for the Debye integral;
// beyond debyeCutoff the integrand is below double precision.
const (
	debyeNodes  = 64
	debyeCutoff = 60.0
)

// debye1 is D1(θ) = (1/θ)∫₀^θ t/(eᵗ−1) dt, with D1(−x) = D1(x) + x/2.
func debye1(theta float64) float64 {
	switch {
	case theta == 0:
		return 1
	case theta < 0:
		return debye1(-theta) - theta/2
	}
	f := func(t float64) float64 {
		if t == 0 {
			return 1
		}
		return t / math.Expm1(t)
	}
	return quad.Fixed(f, 0, math.Min(theta, debyeCutoff), debyeNodes, nil, 0) / theta
}

func frankTau(theta float64) float64 {
	if theta == 0 {
		return 0
	}
	return 1 - 4/theta*(1-debye1(theta))
}

// frankFromTau inverts τ(θ) by bisection. τ is odd and increasing in θ.
func frankFromTau(tau float64) (float64, error) {
	if !(tau > -1 && tau < 1) {
		return 0, paramError("Frank", "tau", tau, "in (-1, 1)")
	}
	if tau == 0 {
		return 0, nil
	}
	target := math.Abs(tau)
	lo, hi := 0.0, 1.0
	for frankTau(hi) < target {
		hi *= 2
		if hi > 1e4 {
			return 0, paramError("Frank", "tau", tau, "reachable")
		}
	}
	for range 200 {
		mid := 0.5 * (lo + hi)
		if frankTau(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12*math.Max(1, hi) {
			break
		}
	}
	return math.Copysign(0.5*(lo+hi), tau), nil
}
