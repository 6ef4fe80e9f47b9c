package extrema

import (
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// LowPass zeroes every mode with K2 ≥ kcut² and returns a new spectrum.
func LowPass(g *spectral.Grid, wk dynamo.Spectrum, kcut float64) dynamo.Spectrum {
	out := wk.Clone()
	cut2 := kcut * kcut
	for i := range out {
		for j := range out[i] {
			if g.K2[i][j] >= cut2 {
				out[i][j] = 0
			}
		}
	}
	return out
}

// Tile repeats a periodic field 3×3 and extends its axis by one period
// on each side.
func Tile(field dynamo.Field, axis []float64, L float64) (dynamo.Field, []float64) {
	rows, cols := field.Dims()
	out := dynamo.NewField(3*rows, 3*cols)
	for i := range out {
		for j := range out[i] {
			out[i][j] = field[i%rows][j%cols]
		}
	}

	n := len(axis)
	ext := make([]float64, 3*n)
	for k, a := range axis {
		ext[k] = a - L
		ext[n+k] = a
		ext[2*n+k] = a + L
	}
	return out, ext
}

// Subdomain cuts the window x0 ≤ x ≤ x1, y0 ≤ y ≤ y1 out of field along
// with its axes.
func Subdomain(field dynamo.Field, x, y []float64, x0, x1, y0, y1 float64) (dynamo.Field, []float64, []float64) {
	ci := window(x, x0, x1)
	ri := window(y, y0, y1)

	out := dynamo.NewField(len(ri), len(ci))
	xs := make([]float64, len(ci))
	ys := make([]float64, len(ri))
	for a, j := range ci {
		xs[a] = x[j]
	}
	for b, i := range ri {
		ys[b] = y[i]
		for a, j := range ci {
			out[b][a] = field[i][j]
		}
	}
	return out, xs, ys
}

func window(axis []float64, lo, hi float64) []int {
	var idx []int
	for i, v := range axis {
		if v >= lo && v <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}
