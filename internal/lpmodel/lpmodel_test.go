package lpmodel

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

var inf = math.Inf(1)

func TestSolveLP(t *testing.T) {
	m := NewModel("lp")
	x := m.MustVar("x", 0, inf, Continuous)
	y := m.MustVar("y", 0, inf, Continuous)
	require.NoError(t, m.AddConstraint("a", []Term{{x, 1}, {y, 2}}, LE, 4))
	require.NoError(t, m.AddConstraint("b", []Term{{x, 3}, {y, 1}}, LE, 6))
	require.NoError(t, m.SetObjective([]Term{{x, -1}, {y, -1}}, 0))

	sol, err := m.Solve()
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 1.6, sol.Value(x), 1e-8)
	assert.InDelta(t, 1.2, sol.Value(y), 1e-8)
	assert.InDelta(t, -2.8, sol.Objective, 1e-8)
	assert.NoError(t, m.Check(sol.X, 1e-7))
}

func TestSolveBoundsAndFreeVars(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *Model) int
		want  float64
		obj   float64
	}{
		{
			name: "shifted lower bound with free variable",
			build: func(m *Model) int {
				x := m.MustVar("x", 1, 3, Continuous)
				y := m.MustVar("y", math.Inf(-1), inf, Continuous)
				_ = m.AddConstraint("c", []Term{{y, 1}, {x, -1}}, GE, -5)
				_ = m.SetObjective([]Term{{y, 1}}, 0)
				return y
			},
			want: -4, obj: -4,
		},
		{
			name: "upper bound only",
			build: func(m *Model) int {
				x := m.MustVar("x", math.Inf(-1), 2, Continuous)
				_ = m.SetObjective([]Term{{x, -1}}, 10)
				return x
			},
			want: 2, obj: 8,
		},
		{
			name: "equality",
			build: func(m *Model) int {
				x := m.MustVar("x", 0, inf, Continuous)
				y := m.MustVar("y", 0, inf, Continuous)
				_ = m.AddConstraint("sum", []Term{{x, 1}, {y, 1}}, EQ, 3)
				_ = m.SetObjective([]Term{{x, 2}, {y, 1}}, 0)
				return y
			},
			want: 3, obj: 3,
		},
		{
			name: "fixed variable",
			build: func(m *Model) int {
				x := m.MustVar("x", 2.5, 2.5, Continuous)
				_ = m.SetObjective([]Term{{x, 4}}, 0)
				return x
			},
			want: 2.5, obj: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(tt.name)
			idx := tt.build(m)
			sol, err := m.Solve()
			require.NoError(t, err)
			assert.InDelta(t, tt.want, sol.Value(idx), 1e-8)
			assert.InDelta(t, tt.obj, sol.Objective, 1e-8)
		})
	}
}

func TestSolveStatuses(t *testing.T) {
	m := NewModel("infeasible")
	x := m.MustVar("x", 0, inf, Continuous)
	require.NoError(t, m.AddConstraint("lo", []Term{{x, 1}}, GE, 5))
	require.NoError(t, m.AddConstraint("hi", []Term{{x, 1}}, LE, 3))
	sol, err := m.Solve()
	assert.ErrorIs(t, err, dynamo.ErrInfeasible)
	assert.Equal(t, Infeasible, sol.Status)

	m = NewModel("zero row")
	x = m.MustVar("x", 0, inf, Continuous)
	require.NoError(t, m.AddConstraint("z", []Term{{x, 0}}, GE, 1))
	_, err = m.Solve()
	assert.ErrorIs(t, err, dynamo.ErrInfeasible)

	m = NewModel("unused column")
	x = m.MustVar("x", 0, inf, Continuous)
	require.NoError(t, m.SetObjective([]Term{{x, -1}}, 0))
	_, err = m.Solve()
	assert.ErrorIs(t, err, dynamo.ErrUnbounded)

	m = NewModel("unbounded")
	x = m.MustVar("x", 0, inf, Continuous)
	y := m.MustVar("y", 0, inf, Continuous)
	require.NoError(t, m.AddConstraint("c", []Term{{x, 1}, {y, -1}}, LE, 1))
	require.NoError(t, m.SetObjective([]Term{{x, -1}, {y, -1}}, 0))
	sol, err = m.Solve()
	assert.ErrorIs(t, err, dynamo.ErrUnbounded)
	assert.Equal(t, Unbounded, sol.Status)
}

func TestModelErrors(t *testing.T) {
	m := NewModel("errors")
	_, err := m.AddVar("x", 2, 1, Continuous)
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)

	x, err := m.AddVar("x", -5, 5, Binary)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Var(x).Lower)
	assert.Equal(t, 1.0, m.Var(x).Upper)

	_, err = m.AddVar("x", 0, 1, Continuous)
	assert.Error(t, err)

	assert.ErrorIs(t, m.AddConstraint("bad", []Term{{7, 1}}, LE, 1), dynamo.ErrDimensionMismatch)
	require.NoError(t, m.AddConstraint("merged", []Term{{x, 1}, {x, 2}}, LE, 1))
	assert.Equal(t, []Term{{x, 3}}, m.Constraints()[0].Terms)
}

func knapsack() (*Model, int, int) {
	m := NewModel("milp")
	x := m.MustVar("x", 0, inf, Integer)
	y := m.MustVar("y", 0, inf, Integer)
	_ = m.AddConstraint("c1", []Term{{x, 1}, {y, 1}}, LE, 6)
	_ = m.AddConstraint("c2", []Term{{x, 5}, {y, 9}}, LE, 45)
	_ = m.SetObjective([]Term{{x, -5}, {y, -8}}, 0)
	return m, x, y
}

func TestSolveMILP(t *testing.T) {
	m, x, y := knapsack()

	relax, err := m.Solve()
	require.NoError(t, err)
	assert.InDelta(t, -41.25, relax.Objective, 1e-8)

	sol, err := m.SolveMILP(context.Background(), DefaultMILPOptions())
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 0.0, sol.Value(x))
	assert.Equal(t, 5.0, sol.Value(y))
	assert.InDelta(t, -40, sol.Objective, 1e-8)
	assert.Greater(t, sol.Nodes, 1)
}

func TestSolveMILPLimits(t *testing.T) {
	m, _, _ := knapsack()

	sol, err := m.SolveMILP(context.Background(), MILPOptions{MaxNodes: 1})
	assert.ErrorIs(t, err, ErrLimit)
	assert.Equal(t, LimitReached, sol.Status)
	assert.Equal(t, 1, sol.Nodes)

	clock := clockwork.NewFakeClock()
	sol, err = m.SolveMILP(context.Background(), MILPOptions{TimeLimit: time.Second, Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, time.Duration(0), sol.Elapsed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.SolveMILP(ctx, DefaultMILPOptions())
	assert.ErrorIs(t, err, dynamo.ErrContextCanceled)
}

func failRelaxations(t *testing.T, after int) {
	t.Helper()
	calls := 0
	relaxNode = func(m *Model, lo, hi []float64) *Solution {
		calls++
		if calls > after {
			return &Solution{Status: Error}
		}
		return m.solveRelaxation(lo, hi)
	}
	t.Cleanup(func() { relaxNode = (*Model).solveRelaxation })
}

func TestSolveMILPRelaxationError(t *testing.T) {
	m, _, _ := knapsack()

	failRelaxations(t, 0)
	sol, err := m.SolveMILP(context.Background(), DefaultMILPOptions())
	assert.ErrorIs(t, err, ErrSolver)
	assert.NotErrorIs(t, err, dynamo.ErrInfeasible)
	assert.Equal(t, Error, sol.Status)
	assert.Equal(t, 1, sol.Nodes)

	failRelaxations(t, 1)
	sol, err = m.SolveMILP(context.Background(), DefaultMILPOptions())
	assert.ErrorIs(t, err, ErrSolver)
	assert.Equal(t, Error, sol.Status)
	assert.Equal(t, 3, sol.Nodes)
}

func TestSolveMILPBinary(t *testing.T) {
	m := NewModel("binary")
	a := m.MustVar("a", 0, 1, Binary)
	b := m.MustVar("b", 0, 1, Binary)
	c := m.MustVar("c", 0, 1, Binary)
	require.NoError(t, m.AddConstraint("w", []Term{{a, 3}, {b, 4}, {c, 2}}, LE, 5))
	require.NoError(t, m.SetObjective([]Term{{a, -4}, {b, -5}, {c, -3}}, 0))

	sol, err := m.SolveMILP(context.Background(), DefaultMILPOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, sol.X)
	assert.InDelta(t, -7, sol.Objective, 1e-8)
}

func TestWriteLP(t *testing.T) {
	m, _, _ := knapsack()
	var buf bytes.Buffer
	require.NoError(t, m.WriteLP(&buf))
	out := buf.String()
	assert.Contains(t, out, "minimize\n obj: -5 x -8 y")
	assert.Contains(t, out, " c2: +5 x +9 y <= 45\n")
	assert.Contains(t, out, "general\n x\n y\n")
}
