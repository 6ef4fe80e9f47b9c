package copula

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Family is a bivariate copula with a fixed parameter.
type Family interface {
	Name() string
	Params() []float64
	NumParams() int
	PDF(u, v float64) float64
	LogPDF(u, v float64) float64
	Tau() float64
	TailDependence() (lower, upper float64)
}

// StudentDF is the fixed degrees of freedom of the t copula.
const StudentDF = 4

type constructor struct {
	fromParam func(p float64) (Family, error)
	fromTau   func(tau float64) (float64, error)
}

var families = map[string]constructor{
	"Gaussian": {
		fromParam: func(p float64) (Family, error) { return NewGaussian(p) },
		fromTau:   ellipticalFromTau,
	},
	"t": {
		fromParam: func(p float64) (Family, error) { return NewStudent(p, StudentDF) },
		fromTau:   ellipticalFromTau,
	},
	"Clayton": {
		fromParam: func(p float64) (Family, error) { return NewClayton(p) },
		fromTau:   func(tau float64) (float64, error) { return 2 * tau / (1 - tau), nil },
	},
	"Gumbel": {
		fromParam: func(p float64) (Family, error) { return NewGumbel(p) },
		fromTau:   func(tau float64) (float64, error) { return math.Max(1, 1/(1-tau)), nil },
	},
	"Frank": {
		fromParam: func(p float64) (Family, error) { return NewFrank(p) },
		fromTau:   frankFromTau,
	},
}

var aliases = map[string]string{"Student": "t", "Normal": "Gaussian"}

func lookup(name string) (constructor, string, error) {
	if canon, ok := aliases[name]; ok {
		name = canon
	}
	c, ok := families[name]
	if !ok {
		return constructor{}, "", fmt.Errorf("unsupported copula family: %s (supported: %v): %w", name, Names(), dynamo.ErrUnknownScheme)
	}
	return c, name, nil
}

// Names lists the supported families in sorted order.
func Names() []string {
	out := make([]string, 0, len(families))
	for n := range families {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds a family from its dependence parameter.
func New(name string, param float64) (Family, error) {
	c, _, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return c.fromParam(param)
}

// Fit estimates the parameter by inverting Kendall's τ of (u, v).
func Fit(name string, u, v []float64) (Family, error) {
	c, canon, err := lookup(name)
	if err != nil {
		return nil, err
	}
	tau, err := KendallTau(u, v)
	if err != nil {
		return nil, err
	}
	p, err := c.fromTau(tau)
	if err != nil {
		return nil, fmt.Errorf("fit %s at tau %.4f: %w", canon, tau, err)
	}
	f, err := c.fromParam(p)
	if err != nil {
		return nil, fmt.Errorf("fit %s at tau %.4f: %w", canon, tau, err)
	}
	return f, nil
}

func ellipticalFromTau(tau float64) (float64, error) {
	return math.Sin(math.Pi * tau / 2), nil
}

func logOf(pdf float64) float64 {
	if pdf <= 0 {
		return math.Inf(-1)
	}
	return math.Log(pdf)
}

func paramError(family string, name string, value float64, want string) error {
	return fmt.Errorf("%s %s must be %s, got %g: %w", family, name, want, value, dynamo.ErrParameterBounds)
}
