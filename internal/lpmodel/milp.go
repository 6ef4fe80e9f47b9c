package lpmodel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

const (
	DefaultMaxNodes = 100000
	DefaultIntTol   = 1e-6
)

// MILPOptions bounds the branch-and-bound search. Zero values mean no
// limit for MaxNodes and TimeLimit.
type MILPOptions struct {
	MaxNodes  int
	TimeLimit time.Duration
	IntTol    float64
	Clock     clockwork.Clock
}

func DefaultMILPOptions() MILPOptions {
	return MILPOptions{MaxNodes: DefaultMaxNodes, TimeLimit: 60 * time.Second, IntTol: DefaultIntTol}
}

type node struct {
	lo, hi []float64
}

// relaxNode solves one node of the search tree.
var relaxNode = (*Model).solveRelaxation

// SolveMILP runs depth-first branch and bound, branching on the most
// fractional integer variable. The status is Optimal when the tree was
// exhausted and Feasible when a limit or a failed relaxation cut the
// search short with an incumbent in hand. A failed root relaxation, or
// failed nodes with no incumbent, give Error.
func (m *Model) SolveMILP(ctx context.Context, opts MILPOptions) (*Solution, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.IntTol <= 0 {
		opts.IntTol = DefaultIntTol
	}
	start := opts.Clock.Now()

	lo, hi := m.bounds()
	for i, v := range m.vars {
		if v.Kind != Continuous {
			lo[i], hi[i] = math.Ceil(lo[i]-opts.IntTol), math.Floor(hi[i]+opts.IntTol)
		}
	}

	var best *Solution
	stack := []node{{lo: lo, hi: hi}}
	nodes := 0
	limited, failed := false, false

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
		}
		if (opts.MaxNodes > 0 && nodes >= opts.MaxNodes) ||
			(opts.TimeLimit > 0 && opts.Clock.Since(start) >= opts.TimeLimit) {
			limited = true
			break
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		relax := relaxNode(m, n.lo, n.hi)
		switch relax.Status {
		case Optimal:
		case Unbounded, Error:
			if nodes == 1 {
				return m.finish(relax, nodes, opts.Clock.Since(start))
			}
			failed = failed || relax.Status == Error
			continue
		default:
			continue
		}
		if best != nil && relax.Objective >= best.Objective-1e-9 {
			continue
		}

		branch, frac := -1, 0.0
		for i, v := range m.vars {
			if v.Kind == Continuous {
				continue
			}
			f := relax.X[i] - math.Floor(relax.X[i])
			dist := math.Min(f, 1-f)
			if dist > opts.IntTol && dist > frac {
				branch, frac = i, dist
			}
		}
		if branch < 0 {
			for i, v := range m.vars {
				if v.Kind != Continuous {
					relax.X[i] = math.Round(relax.X[i])
				}
			}
			best = relax
			continue
		}

		val := relax.X[branch]
		down := node{lo: clone(n.lo), hi: clone(n.hi)}
		down.hi[branch] = math.Floor(val)
		up := node{lo: clone(n.lo), hi: clone(n.hi)}
		up.lo[branch] = math.Ceil(val)

		// The child nearer the relaxed value is explored first.
		if val-math.Floor(val) >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	elapsed := opts.Clock.Since(start)
	switch {
	case best != nil && (limited || failed):
		best.Status = Feasible
	case best != nil:
		best.Status = Optimal
	case failed:
		best = &Solution{Status: Error}
	case limited:
		best = &Solution{Status: LimitReached}
	default:
		best = &Solution{Status: Infeasible}
	}
	return m.finish(best, nodes, elapsed)
}

func (m *Model) finish(sol *Solution, nodes int, elapsed time.Duration) (*Solution, error) {
	sol.Nodes = nodes
	sol.Elapsed = elapsed
	return sol, sol.Status.Err()
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
