package metrics

import (
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// ShellEnergy reports the latest energy in the first wavenumber shell.
type ShellEnergy struct {
	name    string
	grid    *spectral.Grid
	current float64
}

// ShellEnergyName labels the first-shell energy column.
const ShellEnergyName = "E(k=1)"

func NewShellEnergy(g *spectral.Grid) *ShellEnergy {
	return &ShellEnergy{name: ShellEnergyName, grid: g}
}

func (e *ShellEnergy) Name() string { return e.name }

func (e *ShellEnergy) Observe(f *dynamo.Frame) {
	e.current = e.grid.ShellEnergy(f.UK, f.VK)
}

func (e *ShellEnergy) Value() float64 { return e.current }

func (e *ShellEnergy) Reset() { e.current = 0 }

// MeanShellEnergy averages the first-shell energy over every observed frame.
type MeanShellEnergy struct {
	name    string
	grid    *spectral.Grid
	total   float64
	samples int
}

func NewMeanShellEnergy(g *spectral.Grid) *MeanShellEnergy {
	return &MeanShellEnergy{name: "mean E(k=1)", grid: g}
}

func (e *MeanShellEnergy) Name() string { return e.name }

func (e *MeanShellEnergy) Observe(f *dynamo.Frame) {
	e.total += e.grid.ShellEnergy(f.UK, f.VK)
	e.samples++
}

func (e *MeanShellEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *MeanShellEnergy) Reset() {
	e.total = 0
	e.samples = 0
}
