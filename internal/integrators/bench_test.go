package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/fieldlab/internal/spectral"
)

func benchScheme(b *testing.B, s Scheme) {
	g, _ := spectral.Discretize(2*math.Pi, 64)
	op := NewOperators(g, spectral.PVC{V0: 1e-3, VRatio: 2, KMin: 10, KMax: 15}.Viscosity(g))
	w := spectral.InitialCondition(64, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w = s.Step(op, w, 1e-3)
	}
}

func BenchmarkEuler(b *testing.B) { benchScheme(b, NewEuler()) }
func BenchmarkRK3(b *testing.B)   { benchScheme(b, NewRK3()) }
func BenchmarkIMEX(b *testing.B)  { benchScheme(b, NewIMEX()) }
