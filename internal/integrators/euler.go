package integrators

import "github.com/san-kum/fieldlab/internal/dynamo"

// Euler is the semi-implicit Euler step: explicit advection, implicit viscosity.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "Euler Semi-Implicit" }

func (e *Euler) Step(op *Operators, w dynamo.Spectrum, tau float64) dynamo.Spectrum {
	nn := op.Nonlinear(w)
	mu := op.Implicit(tau, 1)
	out := dynamo.NewSpectrum(op.Grid.N, op.Grid.N)
	for i := range w {
		for j := range w[i] {
			out[i][j] = (w[i][j] - complex(tau, 0)*nn[i][j]) * complex(mu[i][j]*op.Dealias[i][j], 0)
		}
	}
	return out
}
