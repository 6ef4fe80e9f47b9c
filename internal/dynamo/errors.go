package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors shared by the pipelines.
var (
	// ErrInvalidState indicates a field with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the simulation became numerically unstable.
	ErrUnstable = errors.New("dynamo: simulation unstable (field diverged)")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrContextCanceled indicates the run was interrupted.
	ErrContextCanceled = errors.New("dynamo: run canceled by context")

	// ErrDimensionMismatch indicates mismatched grid or table dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrUnknownScheme indicates a lookup by name found nothing.
	ErrUnknownScheme = errors.New("dynamo: unknown scheme")

	// ErrInfeasible indicates an optimization model has no feasible point.
	ErrInfeasible = errors.New("dynamo: model infeasible")

	// ErrUnbounded indicates an optimization objective is unbounded below.
	ErrUnbounded = errors.New("dynamo: model unbounded")

	// ErrEmptyInput indicates there was nothing to compute on.
	ErrEmptyInput = errors.New("dynamo: empty input")
)

// SimulationError wraps an error with solver context.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
