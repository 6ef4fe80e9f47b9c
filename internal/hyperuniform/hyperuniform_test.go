package hyperuniform

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/goleak"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func grid(t *testing.T) *spectral.Grid {
	t.Helper()
	g, err := spectral.Discretize(2*math.Pi, 16)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestStructureFactor(t *testing.T) {
	g := grid(t)
	pts := dynamo.Field{{0, 0, 1}, {math.Pi, 0, -1}}

	s, err := StructureFactor(pts, g)
	if err != nil {
		t.Fatal(err)
	}
	for i := range s {
		for j := range s[i] {
			kx, ky := g.KX[i][j], g.KY[i][j]
			want := 1 + math.Cos(kx*math.Pi)
			if kx == 0 || ky == 0 {
				want = 0
			}
			if math.Abs(s[i][j]-want) > 1e-9 {
				t.Fatalf("S at (%g, %g) = %f, want %f", kx, ky, s[i][j], want)
			}
		}
	}
}

func TestStructureFactorErrors(t *testing.T) {
	g := grid(t)
	if _, err := StructureFactor(nil, g); !errors.Is(err, dynamo.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := StructureFactor(dynamo.Field{{1}}, g); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBatch(t *testing.T) {
	g := grid(t)
	sets := []PointSet{
		{Iteration: 1000, Points: dynamo.Field{{0, 0, 1}}},
		{Iteration: 2000, Points: dynamo.Field{{0, 0, 1}, {math.Pi, 0, 1}}},
	}
	out, err := Batch(context.Background(), sets, g, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out[0][1][1] != 1 {
		t.Errorf("single point S = %f, want 1", out[0][1][1])
	}
	if math.Abs(out[1][1][1]) > 1e-12 {
		t.Errorf("odd mode of symmetric pair S = %g, want 0", out[1][1][1])
	}

	sets = append(sets, PointSet{Iteration: 3000})
	if _, err := Batch(context.Background(), sets, g, 1); !errors.Is(err, dynamo.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRadialProfile(t *testing.T) {
	g := grid(t)
	s := dynamo.NewField(16, 16)
	for i := range s {
		for j := range s[i] {
			s[i][j] = 1
		}
	}
	p, err := RadialProfile(s, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.K) != 6 {
		t.Fatalf("expected 6 radii, got %v", p.K)
	}
	for i, v := range p.S {
		if math.Abs(v-1) > 1e-12 || p.K[i] != float64(i+1) {
			t.Errorf("ring %d: k=%g S=%g", i, p.K[i], v)
		}
	}

	if _, err := RadialProfile(dynamo.NewField(4, 4), g); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func line(slope, intercept float64, k []float64) []float64 {
	out := make([]float64, len(k))
	for i := range k {
		out[i] = slope*k[i] + intercept
	}
	return out
}

var ks = []float64{1, 2, 3, 4, 5, 6}

func TestFit(t *testing.T) {
	l, err := Fit(ks, line(2, 1, ks), 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.Slope-2) > 1e-9 || math.Abs(l.Intercept-1) > 1e-9 || math.Abs(l.R2-1) > 1e-9 {
		t.Errorf("unexpected fit %+v", l)
	}

	if _, err := Fit(ks, line(2, 1, ks), 5.5, 10); !errors.Is(err, dynamo.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := Fit(ks, ks[:2], 0, 10); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFitSnapshots(t *testing.T) {
	few := []Profile{
		{K: ks, S: line(1, 0, ks)},
		{K: ks, S: line(2, 0, ks)},
		{K: ks, S: line(3, 0, ks)},
	}
	l, err := FitSnapshots(few, 0, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.Slope-2) > 1e-9 {
		t.Errorf("averaged slope %f, want 2", l.Slope)
	}

	var many []Profile
	for i := range 8 {
		many = append(many, Profile{K: ks, S: line(float64(i), 1, ks)})
	}
	l, err = FitSnapshots(many, 0, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.Slope-3.5) > 1e-9 || math.Abs(l.Intercept-1) > 1e-9 {
		t.Errorf("fit of mean profile %+v, want slope 3.5 intercept 1", l)
	}

	// Normalizing a line through the origin makes every profile k/6.
	l, err = FitSnapshots(few, 0, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.Slope-1) > 1e-9 || math.Abs(l.Intercept) > 1e-9 {
		t.Errorf("normalized fit %+v, want slope 1", l)
	}
}

func TestPeakNormalize(t *testing.T) {
	p := Profile{K: []float64{1, 2, 3}, S: []float64{0.5, 4, 2}}
	k, s := Peak(p)
	if k != 2 || s != 4 {
		t.Errorf("peak (%g, %g), want (2, 4)", k, s)
	}
	n := Normalize(p)
	if n.K[2] != 1.5 || n.S[1] != 1 || n.S[0] != 0.125 {
		t.Errorf("unexpected normalized profile %+v", n)
	}
	if k, _ := Peak(Profile{}); !math.IsNaN(k) {
		t.Errorf("empty profile peak %g, want NaN", k)
	}
}

func TestCompareIntervals(t *testing.T) {
	sq := make([]float64, len(ks))
	for i, k := range ks {
		sq[i] = k * k
	}
	ranked := CompareIntervals([]Profile{{K: ks, S: sq}}, [][2]float64{{1, 6}, {1, 2}, {10, 20}})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 usable intervals, got %d", len(ranked))
	}
	if ranked[0].KMax != 2 || ranked[0].R2 < ranked[1].R2 {
		t.Errorf("unexpected ranking %+v", ranked)
	}
}
