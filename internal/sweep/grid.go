package sweep

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Grid is a cartesian product of named parameter ranges.
type Grid struct {
	names  []string
	ranges [][]float64
}

func NewGrid(names []string, ranges [][]float64) (*Grid, error) {
	if len(names) != len(ranges) {
		return nil, fmt.Errorf("%d parameter names for %d ranges: %w", len(names), len(ranges), dynamo.ErrDimensionMismatch)
	}
	return &Grid{names: names, ranges: ranges}, nil
}

// Size is the number of combinations.
func (g *Grid) Size() int {
	if len(g.ranges) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Each calls fn for every combination, first name varying slowest. The
// first error from fn stops the walk.
func (g *Grid) Each(ctx context.Context, fn func(params map[string]float64) error) error {
	if len(g.names) == 0 {
		return nil
	}
	return g.each(ctx, 0, make(map[string]float64, len(g.names)), fn)
}

func (g *Grid) each(ctx context.Context, depth int, current map[string]float64, fn func(map[string]float64) error) error {
	if depth == len(g.names) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
		}
		return fn(maps.Clone(current))
	}

	name := g.names[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		if err := g.each(ctx, depth+1, current, fn); err != nil {
			return err
		}
	}
	return nil
}

// Best evaluates every combination and keeps the one with the smallest
// metric. Combinations whose evaluation fails are skipped.
func (g *Grid) Best(ctx context.Context, eval func(params map[string]float64) (float64, error)) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.Each(ctx, func(params map[string]float64) error {
		val, err := eval(params)
		if err != nil {
			return nil
		}
		if val < best {
			best = val
			bestParams = params
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("no combination could be evaluated: %w", dynamo.ErrEmptyInput)
	}
	return bestParams, best, nil
}
