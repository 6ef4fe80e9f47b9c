package sim

import "github.com/san-kum/fieldlab/internal/dynamo"

const (
	DefaultIterations    = 20000
	DefaultTau           = 1e-3
	DefaultCourant       = 0.5
	DefaultAdaptAfter    = 2500
	DefaultMonitorEvery  = 100
	DefaultSnapshotEvery = 1000
)

type Config struct {
	Iterations    int
	Tau           float64
	Courant       float64
	MaxTau        float64 // zero leaves the CFL step uncapped
	AdaptAfter    int
	MonitorEvery  int
	SnapshotEvery int
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Iterations:    DefaultIterations,
		Tau:           DefaultTau,
		Courant:       DefaultCourant,
		AdaptAfter:    DefaultAdaptAfter,
		MonitorEvery:  DefaultMonitorEvery,
		SnapshotEvery: DefaultSnapshotEvery,
		ValidateState: true,
	}
}

// Snapshot is the vorticity spectrum at a given iteration.
type Snapshot struct {
	Iteration int
	Time      float64
	W         dynamo.Spectrum
}

type Result struct {
	MonitorNames []string
	Monitor      []dynamo.MonitorRecord
	Snapshots    []Snapshot
	Final        dynamo.Spectrum
	Metrics      map[string]float64
	SimTime      float64
	StepsTaken   int
	Errors       []error
}
