package dynamo

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 3.25},
		{0.5, 5.5},
		{0.75, 7.75},
		{0.975, 9.775},
		{1, 10},
	}
	for _, tt := range tests {
		if got := Percentile(data, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%g) = %g, want %g", tt.p, got, tt.want)
		}
	}

	if got := Percentile([]float64{4}, 0.3); got != 4 {
		t.Errorf("single value: got %g", got)
	}
	if !math.IsNaN(Percentile(nil, 0.5)) {
		t.Error("empty input should be NaN")
	}
}
