// Package lpmodel is a small algebraic modeling layer over gonum's
// simplex solver with a branch-and-bound driver for integer variables.
package lpmodel

import (
	"fmt"
	"math"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

func (k VarKind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "continuous"
	}
}

type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case GE:
		return ">="
	case EQ:
		return "="
	default:
		return "<="
	}
}

// Var is a decision variable. Infinite bounds are allowed.
type Var struct {
	Index int
	Name  string
	Lower float64
	Upper float64
	Kind  VarKind
}

// Term is coef·x[Var].
type Term struct {
	Var  int
	Coef float64
}

type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a minimization problem.
type Model struct {
	Name string

	vars   []Var
	byName map[string]int
	cons   []Constraint
	obj    []Term
	objOff float64
}

func NewModel(name string) *Model {
	return &Model{Name: name, byName: make(map[string]int)}
}

// AddVar declares a variable and returns its index. Binary variables are
// clamped to [0, 1].
func (m *Model) AddVar(name string, lb, ub float64, kind VarKind) (int, error) {
	if _, ok := m.byName[name]; ok {
		return -1, fmt.Errorf("duplicate variable %q", name)
	}
	if kind == Binary {
		lb, ub = math.Max(lb, 0), math.Min(ub, 1)
	}
	if math.IsNaN(lb) || math.IsNaN(ub) || lb > ub {
		return -1, fmt.Errorf("variable %s bounds [%g, %g]: %w", name, lb, ub, dynamo.ErrParameterBounds)
	}
	idx := len(m.vars)
	m.vars = append(m.vars, Var{Index: idx, Name: name, Lower: lb, Upper: ub, Kind: kind})
	m.byName[name] = idx
	return idx, nil
}

// MustVar is AddVar for generated names that cannot collide.
func (m *Model) MustVar(name string, lb, ub float64, kind VarKind) int {
	idx, err := m.AddVar(name, lb, ub, kind)
	if err != nil {
		panic(err)
	}
	return idx
}

// Lookup finds a variable index by name.
func (m *Model) Lookup(name string) (int, bool) {
	idx, ok := m.byName[name]
	return idx, ok
}

func (m *Model) Var(idx int) Var { return m.vars[idx] }

func (m *Model) NumVars() int        { return len(m.vars) }
func (m *Model) NumConstraints() int { return len(m.cons) }

func (m *Model) Vars() []Var               { return m.vars }
func (m *Model) Constraints() []Constraint { return m.cons }

// AddConstraint adds Σ terms (sense) rhs. Repeated variables are merged.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) error {
	merged, err := m.merge(terms)
	if err != nil {
		return fmt.Errorf("constraint %s: %w", name, err)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("constraint %s rhs %g: %w", name, rhs, dynamo.ErrParameterBounds)
	}
	m.cons = append(m.cons, Constraint{Name: name, Terms: merged, Sense: sense, RHS: rhs})
	return nil
}

// SetObjective replaces the objective with Σ terms + constant.
func (m *Model) SetObjective(terms []Term, constant float64) error {
	merged, err := m.merge(terms)
	if err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	m.obj, m.objOff = merged, constant
	return nil
}

func (m *Model) Objective() ([]Term, float64) { return m.obj, m.objOff }

// Evaluate computes the objective at x.
func (m *Model) Evaluate(x []float64) float64 {
	v := m.objOff
	for _, t := range m.obj {
		v += t.Coef * x[t.Var]
	}
	return v
}

func (m *Model) merge(terms []Term) ([]Term, error) {
	pos := make(map[int]int, len(terms))
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		if t.Var < 0 || t.Var >= len(m.vars) {
			return nil, fmt.Errorf("variable index %d of %d: %w", t.Var, len(m.vars), dynamo.ErrDimensionMismatch)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return nil, fmt.Errorf("coefficient %g on %s: %w", t.Coef, m.vars[t.Var].Name, dynamo.ErrParameterBounds)
		}
		if i, ok := pos[t.Var]; ok {
			out[i].Coef += t.Coef
			continue
		}
		pos[t.Var] = len(out)
		out = append(out, t)
	}
	return out, nil
}
