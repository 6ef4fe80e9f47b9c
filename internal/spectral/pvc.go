package spectral

import (
	"fmt"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// PVC is the parity-violating viscosity profile. Modes inside
// [KMin, KMax] get a negative viscosity and inject energy; modes above
// KMax are damped ten times harder than the large scales.
type PVC struct {
	V0     float64
	VRatio float64
	KMin   float64
	KMax   float64
}

func (p PVC) Validate() error {
	if p.V0 <= 0 {
		return fmt.Errorf("v0 must be positive, got %f: %w", p.V0, dynamo.ErrParameterBounds)
	}
	if p.KMin < 0 || p.KMax < p.KMin {
		return fmt.Errorf("forcing band [%f, %f] is empty: %w", p.KMin, p.KMax, dynamo.ErrParameterBounds)
	}
	return nil
}

// Viscosity evaluates the effective viscosity at every grid mode.
func (p PVC) Viscosity(g *Grid) dynamo.Field {
	v := dynamo.NewField(g.N, g.N)
	for i := range v {
		for j := range v[i] {
			k := g.KNorm[i][j]
			switch {
			case k < p.KMin:
				v[i][j] = p.V0
			case k <= p.KMax:
				v[i][j] = -p.VRatio * p.V0
			default:
				v[i][j] = 10 * p.V0
			}
		}
	}
	return v
}
