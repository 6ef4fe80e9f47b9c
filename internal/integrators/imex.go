package integrators

import "github.com/san-kum/fieldlab/internal/dynamo"

// IMEX is a four-stage implicit-explicit Runge-Kutta scheme. Advection is
// explicit; every stage solves the viscous term with μ(½).
type IMEX struct {
	stage dynamo.Spectrum
}

func NewIMEX() *IMEX {
	return &IMEX{}
}

func (m *IMEX) Name() string { return "IMEX Runge-Kutta" }

// solve writes (w + τ·Σ coef·terms)·μ into dst.
func (m *IMEX) solve(dst, w dynamo.Spectrum, mu dynamo.Field, tau float64, coef []float64, terms ...dynamo.Spectrum) dynamo.Spectrum {
	dynamo.Combine(dst, coef, terms...)
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] = (w[i][j] + complex(tau, 0)*dst[i][j]) * complex(mu[i][j], 0)
		}
	}
	return dst
}

func (m *IMEX) Step(op *Operators, w dynamo.Spectrum, tau float64) dynamo.Spectrum {
	n := op.Grid.N
	m.stage = ensure(m.stage, n)
	mu := op.Implicit(tau, 0.5)

	c0 := op.Nonlinear(w)
	w1 := m.solve(m.stage, w, mu, tau, []float64{-0.5}, c0)

	c1, a1 := op.Nonlinear(w1), op.Linear(w1)
	w2 := m.solve(m.stage, w, mu, tau, []float64{-11.0 / 18.0, -1.0 / 18.0, -1.0 / 6.0}, c0, c1, a1)

	c2, a2 := op.Nonlinear(w2), op.Linear(w2)
	w3 := m.solve(m.stage, w, mu, tau,
		[]float64{-5.0 / 6.0, 5.0 / 6.0, -0.5, 0.5, -0.5},
		c0, c1, c2, a1, a2)

	c3, a3 := op.Nonlinear(w3), op.Linear(w3)
	out := dynamo.NewSpectrum(n, n)
	m.solve(out, w, mu, tau,
		[]float64{-0.25, -1.75, -0.75, 1.75, -1.5, 1.5, -0.5},
		c0, c1, c2, c3, a1, a2, a3)
	return out.Mask(op.Dealias)
}
