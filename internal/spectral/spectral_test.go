package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

func TestFFTFreq(t *testing.T) {
	got := FFTFreq(8, 1.0)
	want := []float64{0, 0.125, 0.25, 0.375, -0.5, -0.375, -0.25, -0.125}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("freq[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDiscretize_Validation(t *testing.T) {
	tests := []struct {
		name string
		L    float64
		N    int
	}{
		{"zero length", 0, 16},
		{"odd points", 2 * math.Pi, 15},
		{"too few points", 2 * math.Pi, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discretize(tt.L, tt.N)
			if !errors.Is(err, dynamo.ErrParameterBounds) {
				t.Errorf("expected ErrParameterBounds, got %v", err)
			}
		})
	}
}

func TestDiscretize_Axes(t *testing.T) {
	g, err := Discretize(2*math.Pi, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(g.Dk-1) > 1e-12 {
		t.Errorf("dk = %f, want 1", g.Dk)
	}
	if math.Abs(g.X[1]-g.Dx) > 1e-12 || g.X[0] != 0 {
		t.Errorf("unexpected x axis start: %v", g.X[:2])
	}
	if g.KInv[0][0] != 0 {
		t.Error("mean mode must have zero inverse")
	}
	if math.Abs(g.KX[3][5]-5) > 1e-12 || math.Abs(g.KY[3][5]-3) > 1e-12 {
		t.Errorf("meshgrid orientation wrong: kx=%f ky=%f", g.KX[3][5], g.KY[3][5])
	}
}

func TestDealias(t *testing.T) {
	g, _ := Discretize(2*math.Pi, 16)
	mask := g.Dealias()
	cut := 2.0 / 3.0 * 8
	for i := range mask {
		for j := range mask[i] {
			keep := g.K2[i][j] < cut*cut
			if (mask[i][j] == 1) != keep {
				t.Fatalf("mask[%d][%d] = %f for k2 = %f", i, j, mask[i][j], g.K2[i][j])
			}
		}
	}
}

func TestFFTRoundTrip(t *testing.T) {
	w := RandomVorticity(12, 7)
	back := IFFT2Real(FFT2(w))
	for i := range w {
		for j := range w[i] {
			if math.Abs(back[i][j]-w[i][j]) > 1e-10 {
				t.Fatalf("round trip mismatch at (%d,%d): %f vs %f", i, j, back[i][j], w[i][j])
			}
		}
	}
}

func TestRandomVorticity_Seeded(t *testing.T) {
	a := RandomVorticity(8, 42)
	b := RandomVorticity(8, 42)
	c := RandomVorticity(8, 43)
	if a[3][4] != b[3][4] {
		t.Error("same seed should give same field")
	}
	if a[3][4] == c[3][4] {
		t.Error("different seeds should differ")
	}
}

func TestPVCViscosity(t *testing.T) {
	g, _ := Discretize(2*math.Pi, 32)
	p := PVC{V0: 1, VRatio: 2, KMin: 5, KMax: 10}
	v := p.Viscosity(g)

	tests := []struct {
		i, j int
		want float64
	}{
		{0, 1, 1},
		{0, 5, -2},
		{0, 10, -2},
		{0, 12, 10},
	}
	for _, tt := range tests {
		if got := v[tt.i][tt.j]; got != tt.want {
			t.Errorf("v[%d][%d] = %f, want %f", tt.i, tt.j, got, tt.want)
		}
	}
}

func TestVelocity_SingleMode(t *testing.T) {
	g, _ := Discretize(2*math.Pi, 16)
	w := dynamo.NewField(16, 16)
	for i := range w {
		for j := range w[i] {
			w[i][j] = math.Cos(g.X[j])
		}
	}

	fl := g.Velocity(FFT2(w))
	for i := range fl.U {
		for j := range fl.U[i] {
			if math.Abs(fl.U[i][j]) > 1e-10 {
				t.Fatalf("u should vanish, got %f", fl.U[i][j])
			}
			if math.Abs(fl.V[i][j]-math.Sin(g.X[j])) > 1e-10 {
				t.Fatalf("v(%d,%d) = %f, want %f", i, j, fl.V[i][j], math.Sin(g.X[j]))
			}
		}
	}
	if math.Abs(fl.MaxSpeed-1) > 0.05 {
		t.Errorf("max speed = %f, want ~1", fl.MaxSpeed)
	}

	factor := g.MaxK() / 15
	want := 0.25 / factor
	if got := g.ShellEnergy(fl.UK, fl.VK); math.Abs(got-want) > 1e-9 {
		t.Errorf("shell energy = %f, want %f", got, want)
	}

	modes, energy := g.EnergySpectrum(fl.UK, fl.VK)
	if len(modes) != 6 {
		t.Fatalf("expected 6 modes, got %d", len(modes))
	}
	if math.Abs(energy[0]-0.25) > 1e-9 {
		t.Errorf("E(1) = %f, want 0.25", energy[0])
	}
	for _, e := range energy[1:] {
		if e > 1e-12 {
			t.Errorf("higher shells should be empty, got %g", e)
		}
	}
}
