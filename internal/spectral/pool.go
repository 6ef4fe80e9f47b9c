package spectral

import (
	"sync"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// SpectrumPool recycles N×N spectra between operator evaluations.
type SpectrumPool struct {
	pool sync.Pool
	n    int
}

func NewSpectrumPool(n int) *SpectrumPool {
	return &SpectrumPool{
		n: n,
		pool: sync.Pool{
			New: func() interface{} {
				return dynamo.NewSpectrum(n, n)
			},
		},
	}
}

func (p *SpectrumPool) Get() dynamo.Spectrum {
	return p.pool.Get().(dynamo.Spectrum)
}

func (p *SpectrumPool) Put(s dynamo.Spectrum) {
	if r, _ := s.Dims(); r == p.n {
		p.pool.Put(s)
	}
}
