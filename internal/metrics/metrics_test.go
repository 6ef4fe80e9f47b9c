package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/spectral"
)

func TestMaxVelocity(t *testing.T) {
	m := NewMaxVelocity()
	m.Observe(&dynamo.Frame{MaxSpeed: 2.5})
	m.Observe(&dynamo.Frame{MaxSpeed: 1.5})
	if m.Value() != 1.5 {
		t.Errorf("expected latest value 1.5, got %f", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("reset should clear value")
	}
}

func TestShellEnergy(t *testing.T) {
	g, _ := spectral.Discretize(2*math.Pi, 16)
	w := dynamo.NewField(16, 16)
	for i := range w {
		for j := range w[i] {
			w[i][j] = math.Cos(g.X[j])
		}
	}
	fl := g.Velocity(spectral.FFT2(w))
	frame := &dynamo.Frame{UK: fl.UK, VK: fl.VK}

	e := NewShellEnergy(g)
	mean := NewMeanShellEnergy(g)
	e.Observe(frame)
	mean.Observe(frame)
	mean.Observe(&dynamo.Frame{UK: dynamo.NewSpectrum(16, 16), VK: dynamo.NewSpectrum(16, 16)})

	if e.Value() <= 0 {
		t.Fatalf("shell energy should be positive, got %f", e.Value())
	}
	if math.Abs(mean.Value()-e.Value()/2) > 1e-12 {
		t.Errorf("mean = %f, want %f", mean.Value(), e.Value()/2)
	}
	if e.Name() != "E(k=1)" {
		t.Errorf("unexpected name %q", e.Name())
	}
}
