package experiment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/fieldlab/internal/copula"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/hydraulics"
	"github.com/san-kum/fieldlab/internal/integrators"
	"github.com/san-kum/fieldlab/internal/runoff"
)

// Registry resolves the names used in configuration files.
type Registry struct {
	schemes   map[string]func() integrators.Scheme
	scenarios map[string]bool
}

func NewRegistry() *Registry {
	r := &Registry{
		schemes:   make(map[string]func() integrators.Scheme),
		scenarios: make(map[string]bool),
	}

	r.addScheme("euler", func() integrators.Scheme { return integrators.NewEuler() })
	r.addScheme("rk3", func() integrators.Scheme { return integrators.NewRK3() })
	r.addScheme("imex", func() integrators.Scheme { return integrators.NewIMEX() })

	r.scenarios[hydraulics.PipeBreak] = true
	r.scenarios[hydraulics.DemandSurge] = true
	r.scenarios[hydraulics.PumpFailure] = true

	return r
}

// addScheme registers a scheme under its short alias and its display name.
func (r *Registry) addScheme(alias string, fn func() integrators.Scheme) {
	r.schemes[alias] = fn
	r.schemes[strings.ToLower(fn().Name())] = fn
}

// SchemeFactory returns a constructor so each concurrent solver gets its
// own scheme scratch space.
func (r *Registry) SchemeFactory(name string) (func() integrators.Scheme, error) {
	fn, ok := r.schemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown time stepping scheme: %s: %w", name, dynamo.ErrUnknownScheme)
	}
	return fn, nil
}

func (r *Registry) GetScheme(name string) (integrators.Scheme, error) {
	fn, err := r.SchemeFactory(name)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

func (r *Registry) GetFamily(name string, param float64) (copula.Family, error) {
	return copula.New(name, param)
}

func (r *Registry) GetIntegrator(name string, kwargs map[string]any) (runoff.Integrator, error) {
	return runoff.NewIntegrator(name, kwargs)
}

// KnownScenario reports whether the simulator applies a disturbance of
// this type. Unknown types run unchanged.
func (r *Registry) KnownScenario(kind string) bool {
	return r.scenarios[kind]
}

// ListSchemes returns the display names of the time stepping schemes.
func (r *Registry) ListSchemes() []string {
	seen := map[string]bool{}
	var names []string
	for _, fn := range r.schemes {
		n := fn().Name()
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListFamilies() []string {
	return copula.Names()
}

func (r *Registry) ListIntegrators() []string {
	return []string{runoff.SchemeAdaptive, runoff.SchemeMonteCarlo}
}

func (r *Registry) ListScenarios() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isUnknown(err error) bool { return errors.Is(err, dynamo.ErrUnknownScheme) }
