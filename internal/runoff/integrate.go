package runoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/integrate/quad"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

const (
	SchemeAdaptive   = "ADAPTIVE_2D_QUADRATURE"
	SchemeMonteCarlo = "MONTE_CARLO"
)

// Integrator integrates a density over a region.
type Integrator interface {
	Name() string
	Integrate(f Density, r Region) float64
}

// NewIntegrator selects a scheme by name and decodes its free-form
// options. Unknown option keys are rejected.
func NewIntegrator(name string, kwargs map[string]any) (Integrator, error) {
	switch name {
	case SchemeAdaptive:
		a := DefaultAdaptive()
		if err := decodeOptions(kwargs, a); err != nil {
			return nil, fmt.Errorf("%s options: %w", name, err)
		}
		if err := a.validate(); err != nil {
			return nil, err
		}
		return a, nil
	case SchemeMonteCarlo:
		m := DefaultMonteCarlo()
		if err := decodeOptions(kwargs, m); err != nil {
			return nil, fmt.Errorf("%s options: %w", name, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported integration scheme: %s (supported: %s, %s): %w",
			name, SchemeAdaptive, SchemeMonteCarlo, dynamo.ErrUnknownScheme)
	}
}

func decodeOptions(kwargs map[string]any, out any) error {
	if len(kwargs) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(kwargs)
}

// Adaptive is nested globally adaptive Gauss–Legendre quadrature: the
// panel with the largest error estimate is bisected until the tolerance
// or the panel limit is reached.
type Adaptive struct {
	EpsAbs float64   `mapstructure:"epsabs"`
	EpsRel float64   `mapstructure:"epsrel"`
	Limit  int       `mapstructure:"limit"`
	Order  int       `mapstructure:"order"`
	Points []float64 `mapstructure:"points"` // initial breakpoints on the t axis
}

func DefaultAdaptive() *Adaptive {
	return &Adaptive{EpsAbs: 1.49e-8, EpsRel: 1.49e-8, Limit: 50, Order: 15}
}

func (a *Adaptive) validate() error {
	if a.EpsAbs < 0 || a.EpsRel < 0 {
		return fmt.Errorf("tolerances must be non-negative, got epsabs=%g epsrel=%g: %w", a.EpsAbs, a.EpsRel, dynamo.ErrParameterBounds)
	}
	if a.Limit < 1 || a.Order < 1 {
		return fmt.Errorf("limit and order must be positive, got %d and %d: %w", a.Limit, a.Order, dynamo.ErrParameterBounds)
	}
	return nil
}

func (a *Adaptive) Name() string { return SchemeAdaptive }

func (a *Adaptive) Integrate(f Density, r Region) float64 {
	inner := func(t float64) float64 {
		c, d := r.C(t), r.D(t)
		return a.integrate1D(func(v float64) float64 { return f(v, t) }, c, d, nil)
	}
	return a.integrate1D(inner, r.A, r.B, a.Points)
}

type panel struct {
	lo, hi   float64
	est, err float64
}

func (a *Adaptive) panel(f func(float64) float64, lo, hi float64) panel {
	coarse := quad.Fixed(f, lo, hi, a.Order, nil, 0)
	fine := quad.Fixed(f, lo, hi, 2*a.Order, nil, 0)
	return panel{lo: lo, hi: hi, est: fine, err: math.Abs(fine - coarse)}
}

func (a *Adaptive) integrate1D(f func(float64) float64, lo, hi float64, breaks []float64) float64 {
	if hi <= lo {
		return 0
	}
	edges := []float64{lo}
	for _, b := range breaks {
		if b > lo && b < hi {
			edges = append(edges, b)
		}
	}
	edges = append(edges, hi)
	sort.Float64s(edges)

	panels := make([]panel, 0, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		panels = append(panels, a.panel(f, edges[i-1], edges[i]))
	}

	for {
		total, errSum, worst := 0.0, 0.0, 0
		for i, p := range panels {
			total += p.est
			errSum += p.err
			if p.err > panels[worst].err {
				worst = i
			}
		}
		if errSum <= math.Max(a.EpsAbs, a.EpsRel*math.Abs(total)) || len(panels) >= a.Limit {
			return total
		}
		p := panels[worst]
		mid := 0.5 * (p.lo + p.hi)
		panels[worst] = a.panel(f, p.lo, mid)
		panels = append(panels, a.panel(f, mid, p.hi))
	}
}

// MonteCarlo samples t ~ U(a, b) then v ~ U(c(t), d(t)) and averages
// (b−a)(d−c)·f. Every call reseeds from RandomState.
type MonteCarlo struct {
	NSamples    int    `mapstructure:"n_samples"`
	RandomState uint64 `mapstructure:"random_state"`
}

func DefaultMonteCarlo() *MonteCarlo {
	return &MonteCarlo{NSamples: 100000, RandomState: 42}
}

func (m *MonteCarlo) validate() error {
	if m.NSamples < 1 {
		return fmt.Errorf("n_samples must be positive, got %d: %w", m.NSamples, dynamo.ErrParameterBounds)
	}
	return nil
}

func (m *MonteCarlo) Name() string { return SchemeMonteCarlo }

func (m *MonteCarlo) Integrate(f Density, r Region) float64 {
	if r.B <= r.A {
		return 0
	}
	rng := rand.New(rand.NewPCG(m.RandomState, m.RandomState^0x9e3779b97f4a7c15))
	sum := 0.0
	for range m.NSamples {
		t := r.A + (r.B-r.A)*rng.Float64()
		c, d := r.C(t), r.D(t)
		v := c + (d-c)*rng.Float64()
		sum += (r.B - r.A) * (d - c) * f(v, t)
	}
	return sum / float64(m.NSamples)
}
