package hyperuniform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

// Profile is a radially averaged structure factor.
type Profile struct {
	Iteration int
	K         []float64
	S         []float64
}

// RadialProfile averages S over rings of width dk centred on the positive
// kx modes of the first row, excluding the last. Empty rings are dropped.
func RadialProfile(s dynamo.Field, g *spectral.Grid) (Profile, error) {
	if r, c := s.Dims(); r != g.N || c != g.N {
		return Profile{}, fmt.Errorf("structure factor is %dx%d on a %d grid: %w", r, c, g.N, dynamo.ErrDimensionMismatch)
	}
	dk := math.Abs(g.KNorm[0][2] - g.KNorm[0][1])
	modes := g.PositiveModes()
	if len(modes) > 0 {
		modes = modes[:len(modes)-1]
	}

	var p Profile
	for _, r := range modes {
		lo, hi := r-dk/2, r+dk/2
		sum, n := 0.0, 0
		for i := range s {
			for j := range s[i] {
				if k := g.KNorm[i][j]; k >= lo && k < hi {
					sum += s[i][j]
					n++
				}
			}
		}
		if n == 0 {
			continue
		}
		p.K = append(p.K, r)
		p.S = append(p.S, sum/float64(n))
	}
	return p, nil
}

// Peak returns the wavenumber and value of the profile maximum.
func Peak(p Profile) (k, s float64) {
	if len(p.S) == 0 {
		return math.NaN(), math.NaN()
	}
	idx := floats.MaxIdx(p.S)
	return p.K[idx], p.S[idx]
}

// Normalize rescales S by its peak value and k by the peak position.
func Normalize(p Profile) Profile {
	kmax, smax := Peak(p)
	out := Profile{Iteration: p.Iteration, K: make([]float64, len(p.K)), S: make([]float64, len(p.S))}
	for i := range p.K {
		out.K[i] = p.K[i] / kmax
		out.S[i] = p.S[i] / smax
	}
	return out
}

// Mean averages profiles that share the same k axis.
func Mean(profiles []Profile) (Profile, error) {
	if len(profiles) == 0 {
		return Profile{}, fmt.Errorf("mean profile: %w", dynamo.ErrEmptyInput)
	}
	n := len(profiles[0].S)
	out := Profile{K: append([]float64(nil), profiles[0].K...), S: make([]float64, n)}
	for _, p := range profiles {
		if len(p.S) != n {
			return Profile{}, fmt.Errorf("profile of %d points, want %d: %w", len(p.S), n, dynamo.ErrDimensionMismatch)
		}
		floats.Add(out.S, p.S)
	}
	floats.Scale(1/float64(len(profiles)), out.S)
	return out, nil
}
