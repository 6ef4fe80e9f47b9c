package spectral

import (
	"math/rand/v2"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// RandomVorticity draws an N×N standard normal vorticity field from a
// seeded generator so runs are reproducible.
func RandomVorticity(n int, seed uint64) dynamo.Field {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	w := dynamo.NewField(n, n)
	for i := range w {
		for j := range w[i] {
			w[i][j] = rng.NormFloat64()
		}
	}
	return w
}

// InitialCondition is the transformed random vorticity.
func InitialCondition(n int, seed uint64) dynamo.Spectrum {
	return FFT2(RandomVorticity(n, seed))
}
