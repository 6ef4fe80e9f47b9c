package integrators

import "github.com/san-kum/fieldlab/internal/dynamo"

// RK3 is the three-stage strong-stability-preserving Runge-Kutta scheme,
// fully explicit in both operators.
type RK3 struct {
	w1, w2 dynamo.Spectrum
}

func NewRK3() *RK3 {
	return &RK3{}
}

func (r *RK3) Name() string { return "RK3" }

func (r *RK3) rhs(op *Operators, w dynamo.Spectrum) dynamo.Spectrum {
	c := op.Nonlinear(w)
	a := op.Linear(w)
	return dynamo.Combine(c, []float64{-1, -1}, c, a)
}

func (r *RK3) Step(op *Operators, w dynamo.Spectrum, tau float64) dynamo.Spectrum {
	n := op.Grid.N
	r.w1 = ensure(r.w1, n)
	r.w2 = ensure(r.w2, n)

	dynamo.Combine(r.w1, []float64{1, tau}, w, r.rhs(op, w))
	dynamo.Combine(r.w2, []float64{0.75, 0.25, 0.25 * tau}, w, r.w1, r.rhs(op, r.w1))

	out := dynamo.NewSpectrum(n, n)
	dynamo.Combine(out, []float64{1.0 / 3.0, 2.0 / 3.0, 2.0 / 3.0 * tau}, w, r.w2, r.rhs(op, r.w2))
	return out.Mask(op.Dealias)
}
