package extrema

import (
	"math"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// neighborhood lists the 8 offsets around a node, clockwise from above.
var neighborhood = [8][2]int{
	{-1, 0}, {-1, 1}, {0, 1}, {1, 1},
	{1, 0}, {1, -1}, {0, -1}, {-1, -1},
}

// Extrema are point clouds of [x, y, z] rows.
type Extrema struct {
	Iteration int
	All       dynamo.Field
	Minima    dynamo.Field
	Maxima    dynamo.Field
}

// Counts returns the sizes of All, Minima and Maxima.
func (e *Extrema) Counts() (all, minima, maxima int) {
	return len(e.All), len(e.Minima), len(e.Maxima)
}

// Find scans the interior of field for strict local extrema over the
// 8-neighborhood. Row i maps to y[i] and column j to x[j]. A positive
// threshold drops extrema with |z| below it.
func Find(field dynamo.Field, x, y []float64, threshold float64) *Extrema {
	rows, cols := field.Dims()
	e := &Extrema{}
	for i := 1; i < rows-1; i++ {
		for j := 1; j < cols-1; j++ {
			z := field[i][j]
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, d := range neighborhood {
				n := field[i+d[0]][j+d[1]]
				lo = math.Min(lo, n)
				hi = math.Max(hi, n)
			}
			isMin, isMax := z < lo, z > hi
			if !isMin && !isMax {
				continue
			}
			if threshold > 0 && math.Abs(z) < threshold {
				continue
			}
			pt := []float64{x[j], y[i], z}
			e.All = append(e.All, pt)
			if isMin {
				e.Minima = append(e.Minima, pt)
			} else {
				e.Maxima = append(e.Maxima, pt)
			}
		}
	}
	return e
}
