package spectral

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Flow holds the velocity recovered from a vorticity spectrum.
type Flow struct {
	UK, VK   dynamo.Spectrum
	U, V     dynamo.Field
	MaxSpeed float64
}

// Velocity inverts the vorticity through the stream function:
// ψ = w/k², u = ∂ψ/∂y, v = −∂ψ/∂x.
func (g *Grid) Velocity(w dynamo.Spectrum) *Flow {
	uk := dynamo.NewSpectrum(g.N, g.N)
	vk := dynamo.NewSpectrum(g.N, g.N)
	for i := range w {
		for j := range w[i] {
			psi := w[i][j] * complex(g.KInv[i][j], 0)
			uk[i][j] = complex(0, g.KY[i][j]) * psi
			vk[i][j] = complex(0, -g.KX[i][j]) * psi
		}
	}

	fl := &Flow{UK: uk, VK: vk, U: IFFT2Real(uk), V: IFFT2Real(vk)}
	for i := range fl.U {
		for j := range fl.U[i] {
			s := math.Hypot(fl.U[i][j], fl.V[i][j])
			if s > fl.MaxSpeed {
				fl.MaxSpeed = s
			}
		}
	}
	return fl
}

func modeEnergy(uk, vk complex128) float64 {
	a, b := cmplx.Abs(uk), cmplx.Abs(vk)
	return a*a + b*b
}

// ShellEnergy is the kinetic energy in the first wavenumber shell,
// dk/2 ≤ |k| < 3dk/2, scaled by the radial bin width.
func (g *Grid) ShellEnergy(uk, vk dynamo.Spectrum) float64 {
	lo, hi := g.Dk/2, 3*g.Dk/2
	factor := g.MaxK() / float64(g.N-1)
	n4 := math.Pow(float64(g.N), 4)

	sum := 0.0
	for i := range uk {
		for j := range uk[i] {
			k := g.KNorm[i][j]
			if k >= lo && k < hi {
				sum += modeEnergy(uk[i][j], vk[i][j])
			}
		}
	}
	return 0.5 * sum / (factor * n4)
}

// EnergySpectrum bins the kinetic energy into unit shells
// k ≤ |k| < k+1 for k = 1 … max(kx)−1.
func (g *Grid) EnergySpectrum(uk, vk dynamo.Spectrum) (modes, energy []float64) {
	kmax := 0.0
	for _, k := range g.K {
		kmax = math.Max(kmax, k)
	}
	n := int(math.Ceil(kmax)) - 1
	if n < 1 {
		return nil, nil
	}
	modes = make([]float64, n)
	energy = make([]float64, n)
	for m := range modes {
		modes[m] = float64(m + 1)
	}

	n4 := math.Pow(float64(g.N), 4)
	for i := range uk {
		for j := range uk[i] {
			k := g.KNorm[i][j]
			bin := int(math.Floor(k)) - 1
			if k < 1 || bin < 0 || bin >= n {
				continue
			}
			energy[bin] += 0.5 * modeEnergy(uk[i][j], vk[i][j]) / n4
		}
	}
	return modes, energy
}
