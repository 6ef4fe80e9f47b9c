package config

import "sort"

// Presets are named turbulence settings, keyed by scheme family.
var Presets = map[string]map[string]*Turbulence{
	"pvc": {
		"quick":     turbulencePreset(32, 64, 2000, 5, 2, 4),
		"reference": turbulencePreset(DefaultDomainLength, DefaultPoints, 20000, DefaultVRatio, DefaultKMin, DefaultKMax),
		"wide_band": turbulencePreset(DefaultDomainLength, DefaultPoints, 40000, DefaultVRatio, 3, 8),
	},
	"pvc_imex": {
		"reference": withScheme(turbulencePreset(DefaultDomainLength, DefaultPoints, 20000, DefaultVRatio, DefaultKMin, DefaultKMax), "IMEX Runge-Kutta"),
		"large":     withScheme(turbulencePreset(100, 512, 50000, DefaultVRatio, 8, 12), "IMEX Runge-Kutta"),
	},
	"pvc_rk3": {
		"reference": withScheme(turbulencePreset(DefaultDomainLength, DefaultPoints, 20000, DefaultVRatio, DefaultKMin, DefaultKMax), "RK3"),
	},
}

func turbulencePreset(L float64, n, iterations int, vratio, kmin, kmax float64) *Turbulence {
	t := DefaultTurbulence()
	t.Discretization.DomainLength = L
	t.Discretization.Points = n
	t.Discretization.Iterations = iterations
	t.Physical.VRatio = vratio
	t.Physical.KMin = kmin
	t.Physical.KMax = kmax
	return t
}

func withScheme(t *Turbulence, scheme string) *Turbulence {
	t.Discretization.Scheme = scheme
	return t
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Turbulence {
	if presets, ok := Presets[model]; ok {
		if cfg, ok := presets[preset]; ok {
			c := *cfg
			return &c
		}
	}
	return nil
}

func ListPresets(model string) []string {
	presets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
