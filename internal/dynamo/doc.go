// Package dynamo provides the primitives shared by the fieldlab pipelines.
//
// The package defines the array types and hooks that the numerical
// packages pass around:
//
//   - [Field]: real 2-D array (vorticity, velocity, structure factor)
//   - [Spectrum]: complex 2-D array in FFT ordering
//   - [Metric]: scalar accumulated over solver frames
//   - [Observer]: receives monitoring rows while a solver runs
//   - [ParallelFor]: chunked fan-out over an index range
//
// Errors returned by the pipelines wrap the sentinels declared in this
// package, so callers can test them with errors.Is.
//
// # Example
//
//	w := dynamo.NewField(n, n)
//	if !w.IsValid() {
//		return dynamo.ErrInvalidState
//	}
//
// # Thread Safety
//
// Field and Spectrum values are plain slices. Concurrent writers must
// partition rows, which is what ParallelFor callers do.
package dynamo
