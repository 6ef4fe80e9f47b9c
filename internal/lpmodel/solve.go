package lpmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTol = 1e-10
	zeroTol    = 1e-12
	rowTol     = 1e-9
)

// column maps one model variable onto standard-form columns:
// x = offset + Σ sign[k]·y[cols[k]], y ≥ 0.
type column struct {
	offset float64
	cols   []int
	signs  []float64
}

// Solve solves the continuous relaxation. A non-nil error accompanies
// every status other than Optimal; the returned solution still carries
// the status.
func (m *Model) Solve() (*Solution, error) {
	lo, hi := m.bounds()
	sol := m.solveRelaxation(lo, hi)
	return sol, sol.Status.Err()
}

func (m *Model) bounds() (lo, hi []float64) {
	lo = make([]float64, len(m.vars))
	hi = make([]float64, len(m.vars))
	for i, v := range m.vars {
		lo[i], hi[i] = v.Lower, v.Upper
	}
	return lo, hi
}

// solveRelaxation converts to min cᵀy, Ay = b, y ≥ 0 and runs the
// simplex. Every inequality row gets its own slack. When the compact
// form is rank deficient the equalities are split so that every row has
// a slack.
func (m *Model) solveRelaxation(lo, hi []float64) *Solution {
	sol := m.relax(lo, hi, false)
	if sol.Status == Error {
		sol = m.relax(lo, hi, true)
	}
	return sol
}

// relax builds the standard form. Equalities stay single rows without a
// slack unless split is set, in which case each becomes two ≤ rows.
func (m *Model) relax(lo, hi []float64, split bool) *Solution {
	for i := range lo {
		if lo[i] > hi[i]+rowTol {
			return &Solution{Status: Infeasible}
		}
	}

	mapping := make([]column, len(m.vars))
	ncols := 0
	var ubRows []struct {
		col int
		cap float64
	}
	for i := range m.vars {
		l, h := lo[i], hi[i]
		switch {
		case h-l <= rowTol && !math.IsInf(l, 0):
			mapping[i] = column{offset: l}
		case !math.IsInf(l, -1):
			mapping[i] = column{offset: l, cols: []int{ncols}, signs: []float64{1}}
			if !math.IsInf(h, 1) {
				ubRows = append(ubRows, struct {
					col int
					cap float64
				}{ncols, h - l})
			}
			ncols++
		case !math.IsInf(h, 1):
			mapping[i] = column{offset: h, cols: []int{ncols}, signs: []float64{-1}}
			ncols++
		default:
			mapping[i] = column{cols: []int{ncols, ncols + 1}, signs: []float64{1, -1}}
			ncols += 2
		}
	}

	c := make([]float64, ncols)
	objConst := m.objOff
	for _, t := range m.obj {
		mp := mapping[t.Var]
		objConst += t.Coef * mp.offset
		for k, col := range mp.cols {
			c[col] += t.Coef * mp.signs[k]
		}
	}

	// Rows in ≤ form.
	type row struct {
		coef map[int]float64
		rhs  float64
		eq   bool
	}
	var rows []row
	addRow := func(coef map[int]float64, rhs float64, eq bool) bool {
		nonzero := false
		for _, v := range coef {
			if math.Abs(v) > zeroTol {
				nonzero = true
				break
			}
		}
		if !nonzero {
			if eq {
				return math.Abs(rhs) <= rowTol
			}
			return rhs >= -rowTol
		}
		rows = append(rows, row{coef: coef, rhs: rhs, eq: eq})
		return true
	}

	for _, con := range m.cons {
		coef := make(map[int]float64)
		rhs := con.RHS
		for _, t := range con.Terms {
			mp := mapping[t.Var]
			rhs -= t.Coef * mp.offset
			for k, col := range mp.cols {
				coef[col] += t.Coef * mp.signs[k]
			}
		}
		neg := func() map[int]float64 {
			out := make(map[int]float64, len(coef))
			for k, v := range coef {
				out[k] = -v
			}
			return out
		}
		ok := true
		switch con.Sense {
		case LE:
			ok = addRow(coef, rhs, false)
		case GE:
			ok = addRow(neg(), -rhs, false)
		case EQ:
			if split {
				ok = addRow(coef, rhs, false) && addRow(neg(), -rhs, false)
			} else {
				ok = addRow(coef, rhs, true)
			}
		}
		if !ok {
			return &Solution{Status: Infeasible}
		}
	}
	for _, ub := range ubRows {
		addRow(map[int]float64{ub.col: 1}, ub.cap, false)
	}

	// Columns that appear in no row.
	used := make([]bool, ncols)
	for _, r := range rows {
		for col, v := range r.coef {
			if math.Abs(v) > zeroTol {
				used[col] = true
			}
		}
	}
	active := make([]int, 0, ncols)
	pos := make([]int, ncols)
	for col := range ncols {
		pos[col] = -1
		if used[col] {
			pos[col] = len(active)
			active = append(active, col)
			continue
		}
		if c[col] < -zeroTol {
			return &Solution{Status: Unbounded}
		}
	}

	y := make([]float64, ncols)
	if len(rows) > 0 {
		nr, na := len(rows), len(active)
		slacks := 0
		for _, r := range rows {
			if !r.eq {
				slacks++
			}
		}
		A := mat.NewDense(nr, na+slacks, nil)
		b := make([]float64, nr)
		cs := make([]float64, na+slacks)
		for j, col := range active {
			cs[j] = c[col]
		}
		slack := na
		for i, r := range rows {
			sign := 1.0
			if r.rhs < 0 {
				sign = -1
			}
			for col, v := range r.coef {
				if pos[col] >= 0 {
					A.Set(i, pos[col], sign*v)
				}
			}
			if !r.eq {
				A.Set(i, slack, sign)
				slack++
			}
			b[i] = sign * r.rhs
		}
		if nr > na+slacks {
			return &Solution{Status: Error}
		}

		_, opt, err := lp.Simplex(cs, A, b, simplexTol, nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return &Solution{Status: Infeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return &Solution{Status: Unbounded}
		case err != nil:
			return &Solution{Status: Error}
		}
		for j, col := range active {
			y[col] = opt[j]
		}
	}

	x := make([]float64, len(m.vars))
	for i, mp := range mapping {
		x[i] = mp.offset
		for k, col := range mp.cols {
			x[i] += mp.signs[k] * y[col]
		}
	}
	obj := objConst
	for col, v := range y {
		obj += c[col] * v
	}
	return &Solution{Status: Optimal, Objective: obj, X: x}
}

// Check reports the first constraint violated by more than tol.
func (m *Model) Check(x []float64, tol float64) error {
	for _, v := range m.vars {
		if x[v.Index] < v.Lower-tol || x[v.Index] > v.Upper+tol {
			return fmt.Errorf("variable %s = %g outside [%g, %g]", v.Name, x[v.Index], v.Lower, v.Upper)
		}
	}
	for _, con := range m.cons {
		lhs := 0.0
		for _, t := range con.Terms {
			lhs += t.Coef * x[t.Var]
		}
		bad := false
		switch con.Sense {
		case LE:
			bad = lhs > con.RHS+tol
		case GE:
			bad = lhs < con.RHS-tol
		case EQ:
			bad = math.Abs(lhs-con.RHS) > tol
		}
		if bad {
			return fmt.Errorf("constraint %s: %g %s %g violated", con.Name, lhs, con.Sense, con.RHS)
		}
	}
	return nil
}
