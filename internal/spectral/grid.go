package spectral

import (
	"fmt"
	"math"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// Grid is a doubly periodic N×N collocation grid of side L and its
// wavenumber meshes.
type Grid struct {
	L  float64
	N  int
	Dx float64
	Dk float64

	X []float64 // physical axis, endpoint excluded
	K []float64 // 2π·fftfreq(N, dx)

	KX, KY dynamo.Field
	K2     dynamo.Field
	KInv   dynamo.Field // 1/K2, zero at the mean mode
	KNorm  dynamo.Field
}

// Discretize builds the physical and spectral axes for a square domain.
func Discretize(L float64, N int) (*Grid, error) {
	if L <= 0 {
		return nil, fmt.Errorf("domain length must be positive, got %f: %w", L, dynamo.ErrParameterBounds)
	}
	if N < 4 || N%2 != 0 {
		return nil, fmt.Errorf("collocation points must be even and >= 4, got %d: %w", N, dynamo.ErrParameterBounds)
	}

	g := &Grid{
		L:  L,
		N:  N,
		Dx: L / float64(N),
		Dk: 2 * math.Pi / L,
		X:  make([]float64, N),
		K:  FFTFreq(N, L/float64(N)),
	}
	for i := range g.X {
		g.X[i] = float64(i) * g.Dx
	}
	for i := range g.K {
		g.K[i] *= 2 * math.Pi
	}

	g.KX = dynamo.NewField(N, N)
	g.KY = dynamo.NewField(N, N)
	g.K2 = dynamo.NewField(N, N)
	g.KInv = dynamo.NewField(N, N)
	g.KNorm = dynamo.NewField(N, N)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			kx, ky := g.K[j], g.K[i]
			k2 := kx*kx + ky*ky
			g.KX[i][j] = kx
			g.KY[i][j] = ky
			g.K2[i][j] = k2
			g.KNorm[i][j] = math.Sqrt(k2)
			if k2 != 0 {
				g.KInv[i][j] = 1 / k2
			}
		}
	}
	return g, nil
}

// FFTFreq mirrors numpy.fft.fftfreq for sample spacing d.
func FFTFreq(n int, d float64) []float64 {
	out := make([]float64, n)
	half := (n-1)/2 + 1
	for i := 0; i < half; i++ {
		out[i] = float64(i) / (float64(n) * d)
	}
	for i := half; i < n; i++ {
		out[i] = float64(i-n) / (float64(n) * d)
	}
	return out
}

// Dealias returns the 2/3-rule mask: 1 where K2 < (2/3·N/2·dk)², else 0.
func (g *Grid) Dealias() dynamo.Field {
	cut := 2.0 / 3.0 * float64(g.N/2) * g.Dk
	cut2 := cut * cut
	mask := dynamo.NewField(g.N, g.N)
	for i := range mask {
		for j := range mask[i] {
			if g.K2[i][j] < cut2 {
				mask[i][j] = 1
			}
		}
	}
	return mask
}

// MaxK is the largest wavenumber magnitude on the grid.
func (g *Grid) MaxK() float64 {
	return g.KNorm.Max()
}

// PositiveModes returns the positive kx values of the first row.
func (g *Grid) PositiveModes() []float64 {
	var out []float64
	for _, k := range g.K {
		if k > 0 {
			out = append(out, k)
		}
	}
	return out
}
