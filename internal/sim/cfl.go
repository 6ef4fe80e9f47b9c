package sim

import "math"

// CFL picks the time step from the fastest velocity on the grid.
type CFL struct {
	Courant float64
	Dx      float64
	MaxTau  float64
}

func (c CFL) Next(maxU float64) float64 {
	if maxU <= 0 {
		if c.MaxTau > 0 {
			return c.MaxTau
		}
		return math.MaxFloat64
	}
	tau := c.Courant * c.Dx / maxU
	if c.MaxTau > 0 && tau > c.MaxTau {
		return c.MaxTau
	}
	return tau
}
