package lpmodel

import (
	"errors"
	"time"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

type Status int

const (
	Optimal Status = iota
	Feasible
	Infeasible
	Unbounded
	Error
	// LimitReached means the search stopped before finding any integer point.
	LimitReached
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case LimitReached:
		return "limit"
	default:
		return "error"
	}
}

// ErrLimit is returned when a search budget runs out without a solution.
var ErrLimit = errors.New("dynamo: search limit reached")

// ErrSolver is returned when the simplex fails on a relaxation.
var ErrSolver = errors.New("dynamo: solver error")

// Err maps a status to its sentinel error, nil for a usable solution.
func (s Status) Err() error {
	switch s {
	case Optimal, Feasible:
		return nil
	case Infeasible:
		return dynamo.ErrInfeasible
	case Unbounded:
		return dynamo.ErrUnbounded
	case LimitReached:
		return ErrLimit
	default:
		return ErrSolver
	}
}

// Solution holds variable values in model index order.
type Solution struct {
	Status    Status
	Objective float64
	X         []float64
	Nodes     int
	Elapsed   time.Duration
}

func (s *Solution) Value(idx int) float64 {
	if s == nil || idx < 0 || idx >= len(s.X) {
		return 0
	}
	return s.X[idx]
}
