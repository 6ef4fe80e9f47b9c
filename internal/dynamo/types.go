package dynamo

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Field is a real 2-D array indexed [row][col], row ↔ y and col ↔ x.
type Field [][]float64

func NewField(rows, cols int) Field {
	backing := make([]float64, rows*cols)
	f := make(Field, rows)
	for i := range f {
		f[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return f
}

func (f Field) Dims() (int, int) {
	if len(f) == 0 {
		return 0, 0
	}
	return len(f), len(f[0])
}

func (f Field) Clone() Field {
	r, c := f.Dims()
	out := NewField(r, c)
	for i := range f {
		copy(out[i], f[i])
	}
	return out
}

func (f Field) IsValid() bool {
	for _, row := range f {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (f Field) Max() float64 {
	m := math.Inf(-1)
	for _, row := range f {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// Flat returns the row-major backing data.
func (f Field) Flat() []float64 {
	r, c := f.Dims()
	out := make([]float64, 0, r*c)
	for _, row := range f {
		out = append(out, row...)
	}
	return out
}

// FieldFromFlat reshapes row-major data into a Field.
func FieldFromFlat(rows, cols int, data []float64) (Field, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("reshape %d values into %dx%d: %w", len(data), rows, cols, ErrDimensionMismatch)
	}
	f := NewField(rows, cols)
	for i := range f {
		copy(f[i], data[i*cols:(i+1)*cols])
	}
	return f, nil
}

// Spectrum is a complex 2-D array in FFT ordering.
type Spectrum [][]complex128

func NewSpectrum(rows, cols int) Spectrum {
	backing := make([]complex128, rows*cols)
	s := make(Spectrum, rows)
	for i := range s {
		s[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return s
}

func (s Spectrum) Dims() (int, int) {
	if len(s) == 0 {
		return 0, 0
	}
	return len(s), len(s[0])
}

func (s Spectrum) Clone() Spectrum {
	r, c := s.Dims()
	out := NewSpectrum(r, c)
	for i := range s {
		copy(out[i], s[i])
	}
	return out
}

func (s Spectrum) IsValid() bool {
	for _, row := range s {
		for _, v := range row {
			if cmplx.IsNaN(v) || cmplx.IsInf(v) {
				return false
			}
		}
	}
	return true
}

// Mask multiplies s in place by a real mask of the same shape.
func (s Spectrum) Mask(m Field) Spectrum {
	for i := range s {
		for j := range s[i] {
			s[i][j] *= complex(m[i][j], 0)
		}
	}
	return s
}

// Combine writes Σ coef[n]·terms[n] into dst. A nil term is skipped.
func Combine(dst Spectrum, coef []float64, terms ...Spectrum) Spectrum {
	for i := range dst {
		for j := range dst[i] {
			var acc complex128
			for n, t := range terms {
				if t == nil || coef[n] == 0 {
					continue
				}
				acc += complex(coef[n], 0) * t[i][j]
			}
			dst[i][j] = acc
		}
	}
	return dst
}

// Frame is what a Metric sees after each solver iteration.
type Frame struct {
	Iteration int
	Time      float64
	Tau       float64
	W         Spectrum
	UK, VK    Spectrum
	MaxSpeed  float64
}

// Metric accumulates a scalar over solver frames.
type Metric interface {
	Name() string
	Observe(f *Frame)
	Value() float64
	Reset()
}

type Observer interface {
	OnMonitor(rec MonitorRecord)
}

// MonitorRecord is one row of the monitoring table.
type MonitorRecord struct {
	Iteration int
	Time      float64
	Tau       float64
	Values    map[string]float64
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
