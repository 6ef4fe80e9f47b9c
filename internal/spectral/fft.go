package spectral

import (
	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

const minRowsPerWorker = 16

// FFT2 is the forward 2-D transform of a real field, unnormalized like numpy.fft.fft2.
func FFT2(f dynamo.Field) dynamo.Spectrum {
	r, c := f.Dims()
	out := dynamo.NewSpectrum(r, c)
	dynamo.ParallelFor(r, minRowsPerWorker, func(start, end int) {
		for i := start; i < end; i++ {
			copy(out[i], fft.FFTReal(f[i]))
		}
	})
	transformColumns(out, fft.FFT)
	return out
}

// FFT2Complex is the forward 2-D transform of a complex array.
func FFT2Complex(s dynamo.Spectrum) dynamo.Spectrum {
	out := s.Clone()
	transformRows(out, fft.FFT)
	transformColumns(out, fft.FFT)
	return out
}

// IFFT2 is the inverse 2-D transform, normalized by 1/(rows·cols).
func IFFT2(s dynamo.Spectrum) dynamo.Spectrum {
	out := s.Clone()
	transformRows(out, fft.IFFT)
	transformColumns(out, fft.IFFT)
	return out
}

// IFFT2Real returns the real part of the inverse transform.
func IFFT2Real(s dynamo.Spectrum) dynamo.Field {
	inv := IFFT2(s)
	r, c := inv.Dims()
	out := dynamo.NewField(r, c)
	for i := range inv {
		for j := range inv[i] {
			out[i][j] = real(inv[i][j])
		}
	}
	return out
}

func transformRows(s dynamo.Spectrum, tr func([]complex128) []complex128) {
	r, _ := s.Dims()
	dynamo.ParallelFor(r, minRowsPerWorker, func(start, end int) {
		for i := start; i < end; i++ {
			copy(s[i], tr(s[i]))
		}
	})
}

func transformColumns(s dynamo.Spectrum, tr func([]complex128) []complex128) {
	r, c := s.Dims()
	dynamo.ParallelFor(c, minRowsPerWorker, func(start, end int) {
		col := make([]complex128, r)
		for j := start; j < end; j++ {
			for i := 0; i < r; i++ {
				col[i] = s[i][j]
			}
			res := tr(col)
			for i := 0; i < r; i++ {
				s[i][j] = res[i]
			}
		}
	})
}
