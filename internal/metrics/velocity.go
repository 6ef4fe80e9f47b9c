package metrics

import "github.com/san-kum/fieldlab/internal/dynamo"

// MaxVelocity reports the latest peak speed on the grid.
type MaxVelocity struct {
	name    string
	current float64
}

const MaxVelocityName = "max velocity"

func NewMaxVelocity() *MaxVelocity {
	return &MaxVelocity{name: MaxVelocityName}
}

func (m *MaxVelocity) Name() string { return m.name }

func (m *MaxVelocity) Observe(f *dynamo.Frame) { m.current = f.MaxSpeed }

func (m *MaxVelocity) Value() float64 { return m.current }

func (m *MaxVelocity) Reset() { m.current = 0 }
