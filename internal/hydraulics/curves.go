package hydraulics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/epanet"
)

const (
	hwExponent = 1.852
	// minorCoef is 8/(g·π²), turning K·v²/2g into a coefficient on Q²/D⁴.
	minorCoef = 0.08262686
	// shutoffFactor is the shutoff head of a single-point pump curve
	// relative to its design head.
	shutoffFactor = 1.33
)

// HazenWilliams is the pipe resistance r in h = r·Q^1.852 (SI).
func HazenWilliams(length, diameter, c float64) float64 {
	return 10.667 * length / (math.Pow(c, hwExponent) * math.Pow(diameter, 4.871))
}

// MinorResistance is m in h = m·Q² for a loss coefficient k.
func MinorResistance(k, diameter float64) float64 {
	if k <= 0 || diameter <= 0 {
		return 0
	}
	return minorCoef * k / math.Pow(diameter, 4)
}

// PumpCurve is h = A − B·Q².
type PumpCurve struct {
	A, B float64
}

// Head is the gain at flow q for relative speed w.
func (c PumpCurve) Head(q, w float64) float64 {
	return w*w*c.A - c.B*q*q
}

// Cutoff is the flow where the head drops to zero.
func (c PumpCurve) Cutoff() float64 {
	if c.B <= 0 {
		return math.Inf(1)
	}
	return math.Sqrt(c.A / c.B)
}

// CurvePoints expands a single design point to (0, 1.33h), (q, h), (2q, 0).
func CurvePoints(c *epanet.Curve) (q, h []float64) {
	if len(c.X) == 1 {
		q0, h0 := c.X[0], c.Y[0]
		return []float64{0, q0, 2 * q0}, []float64{shutoffFactor * h0, h0, 0}
	}
	return c.X, c.Y
}

// FitPumpCurve fits A − B·Q² to the curve points by least squares.
func FitPumpCurve(c *epanet.Curve) (PumpCurve, error) {
	if c == nil || len(c.X) == 0 {
		return PumpCurve{}, fmt.Errorf("empty pump curve: %w", dynamo.ErrEmptyInput)
	}
	q, h := CurvePoints(c)
	if len(q) < 2 {
		return PumpCurve{}, fmt.Errorf("pump curve %s needs two points: %w", c.ID, dynamo.ErrEmptyInput)
	}

	X := mat.NewDense(len(q), 2, nil)
	for i, x := range q {
		X.Set(i, 0, 1)
		X.Set(i, 1, -x*x)
	}
	y := mat.NewVecDense(len(h), append([]float64(nil), h...))

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return PumpCurve{}, fmt.Errorf("fit pump curve %s: %w", c.ID, err)
	}
	pc := PumpCurve{A: beta.AtVec(0), B: beta.AtVec(1)}
	if pc.A <= 0 || pc.B <= 0 {
		return PumpCurve{}, fmt.Errorf("pump curve %s fits A=%g B=%g: %w", c.ID, pc.A, pc.B, dynamo.ErrParameterBounds)
	}
	return pc, nil
}
