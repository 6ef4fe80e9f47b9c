package integrators

import (
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// Operators bundles the linear and nonlinear parts of the vorticity
// equation ∂w/∂t + u·∇w = −ν_eff k² w on a fixed grid.
type Operators struct {
	Grid      *spectral.Grid
	Viscosity dynamo.Field
	Dealias   dynamo.Field

	pool *spectral.SpectrumPool
}

func NewOperators(g *spectral.Grid, viscosity dynamo.Field) *Operators {
	return &Operators{
		Grid:      g,
		Viscosity: viscosity,
		Dealias:   g.Dealias(),
		pool:      spectral.NewSpectrumPool(g.N),
	}
}

// Linear returns A(w) = ν_eff·k²·w, dealiased.
func (o *Operators) Linear(w dynamo.Spectrum) dynamo.Spectrum {
	out := dynamo.NewSpectrum(o.Grid.N, o.Grid.N)
	for i := range w {
		for j := range w[i] {
			out[i][j] = complex(o.Viscosity[i][j]*o.Grid.K2[i][j]*o.Dealias[i][j], 0) * w[i][j]
		}
	}
	return out
}

// Nonlinear returns the dealiased advection term C(w) = FFT(u·∂x w + v·∂y w).
func (o *Operators) Nonlinear(w dynamo.Spectrum) dynamo.Spectrum {
	g := o.Grid
	uk, wxk := o.pool.Get(), o.pool.Get()
	vk, wyk := o.pool.Get(), o.pool.Get()
	defer func() {
		o.pool.Put(uk)
		o.pool.Put(wxk)
		o.pool.Put(vk)
		o.pool.Put(wyk)
	}()

	for i := range w {
		for j := range w[i] {
			psi := w[i][j] * complex(g.KInv[i][j], 0)
			uk[i][j] = complex(0, g.KY[i][j]) * psi
			vk[i][j] = complex(0, -g.KX[i][j]) * psi
			wxk[i][j] = complex(0, g.KX[i][j]) * w[i][j]
			wyk[i][j] = complex(0, g.KY[i][j]) * w[i][j]
		}
	}

	u := spectral.IFFT2Real(uk)
	wx := spectral.IFFT2Real(wxk)
	v := spectral.IFFT2Real(vk)
	wy := spectral.IFFT2Real(wyk)

	adv := dynamo.NewField(g.N, g.N)
	for i := range adv {
		for j := range adv[i] {
			adv[i][j] = u[i][j]*wx[i][j] + v[i][j]*wy[i][j]
		}
	}
	return spectral.FFT2(adv).Mask(o.Dealias)
}

// Implicit returns μ(a) = 1/(1 + τ·a·ν_eff·k²).
func (o *Operators) Implicit(tau, a float64) dynamo.Field {
	mu := dynamo.NewField(o.Grid.N, o.Grid.N)
	for i := range mu {
		for j := range mu[i] {
			mu[i][j] = 1 / (1 + tau*a*o.Viscosity[i][j]*o.Grid.K2[i][j])
		}
	}
	return mu
}

// Scheme advances a vorticity spectrum by one step of size tau.
type Scheme interface {
	Name() string
	Step(op *Operators, w dynamo.Spectrum, tau float64) dynamo.Spectrum
}

func ensure(s dynamo.Spectrum, n int) dynamo.Spectrum {
	if r, _ := s.Dims(); r != n {
		return dynamo.NewSpectrum(n, n)
	}
	return s
}
