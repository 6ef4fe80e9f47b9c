package runoff

import (
	"fmt"
	"math"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Physical are the catchment loss parameters of the runoff model.
type Physical struct {
	H   float64 `yaml:"h" mapstructure:"h"`     // impervious fraction
	Sdi float64 `yaml:"Sdi" mapstructure:"Sdi"` // impervious depression storage, mm
	Sil float64 `yaml:"Sil" mapstructure:"Sil"` // pervious initial loss, mm
	Fc  float64 `yaml:"fc" mapstructure:"fc"`   // ultimate infiltration rate, mm/h
	Sm  float64 `yaml:"Sm" mapstructure:"Sm"`   // maximum infiltration storage, mm
	Ts  float64 `yaml:"ts" mapstructure:"ts"`   // time to saturation, h
}

func DefaultPhysical() Physical {
	return Physical{H: 0.447, Sdi: 0.049, Sil: 5.20, Fc: 0.36, Sm: 4.90, Ts: 13.6}
}

func (p Physical) Validate() error {
	if !(p.H > 0 && p.H < 1) {
		return fmt.Errorf("h must be in (0, 1), got %f: %w", p.H, dynamo.ErrParameterBounds)
	}
	if p.Fc <= 0 {
		return fmt.Errorf("fc must be positive, got %f: %w", p.Fc, dynamo.ErrParameterBounds)
	}
	for name, v := range map[string]float64{"Sdi": p.Sdi, "Sil": p.Sil, "Sm": p.Sm, "ts": p.Ts} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s must be non-negative, got %f: %w", name, v, dynamo.ErrParameterBounds)
		}
	}
	return nil
}

// Sd is the area-weighted depression storage.
func (p Physical) Sd() float64 { return p.H*p.Sdi + (1-p.H)*p.Sil }

func (p Physical) Sdd() float64 { return p.Sil - p.Sdi }

// Thresholds split the v0 axis into the three runoff regimes.
func (p Physical) Thresholds() (th1, th2 float64) {
	return p.H * p.Sdd(), p.H * (p.Sdd() + p.Sm)
}

// T234 is the duration at which pervious runoff starts for volume v0.
func (p Physical) T234(v0 float64) float64 {
	return (v0/p.H - p.Sdi) / (p.Fc * (1 - p.H))
}

// Region is a (t, v) integration domain a ≤ t ≤ b, c(t) ≤ v ≤ d(t).
type Region struct {
	A, B float64
	C, D func(t float64) float64
}

func constant(x float64) func(float64) float64 {
	return func(float64) float64 { return x }
}

// Bounds returns the regions whose probability mass is P(V0 ≤ v0).
// Negative v0 has no regions.
func Bounds(v0 float64, p Physical, limit float64) []Region {
	th1, th2 := p.Thresholds()
	zero := constant(0)
	ramp := func(t float64) float64 { return p.Sd() + v0 + p.Fc*(1-p.H)*t }

	switch {
	case v0 < 0:
		return nil
	case v0 <= th1:
		return []Region{{A: 0, B: limit, C: zero, D: constant(v0/p.H + p.Sdi)}}
	case v0 <= th2:
		t234 := p.T234(v0)
		return []Region{
			{A: 0, B: t234, C: zero, D: ramp},
			{A: t234, B: limit, C: zero, D: constant(v0/p.H + p.Sdi)},
		}
	default:
		return []Region{
			{A: 0, B: p.Ts, C: zero, D: ramp},
			{A: p.Ts, B: limit, C: zero, D: constant(p.Sd() + v0 + (1-p.H)*p.Sm)},
		}
	}
}
