package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/econex"
	"github.com/san-kum/fieldlab/internal/extrema"
	"github.com/san-kum/fieldlab/internal/hydraulics"
	"github.com/san-kum/fieldlab/internal/lpmodel"
	"github.com/san-kum/fieldlab/internal/rainfall"
	"github.com/san-kum/fieldlab/internal/runoff"
	"github.com/san-kum/fieldlab/internal/sim"
	"github.com/san-kum/fieldlab/internal/spectral"
)

const (
	DefaultDomainLength = 50.0
	DefaultPoints       = 256
	DefaultScheme       = "Euler Semi-Implicit"
	DefaultV0           = 1e-3
	DefaultVRatio       = 10.0
	DefaultKMin         = 4.0
	DefaultKMax         = 6.0
	DefaultFitKMin      = 0.2
	DefaultFitKMax      = 2.0

	DefaultTable       = "hourly_rainfall"
	DefaultIntegration = runoff.SchemeAdaptive
	DefaultBootstrap   = 100

	DefaultHorizon   = 24
	DefaultTimeLimit = 60.0
)

// Turbulence configures the PVC solver and the snapshot analyses.
type Turbulence struct {
	Discretization Discretization `yaml:"discretization"`
	Physical       Physical       `yaml:"physical"`
	Analysis       SnapshotConfig `yaml:"analysis"`
	Sweep          SweepConfig    `yaml:"sweep"`
}

type Discretization struct {
	DomainLength  float64 `yaml:"domain_length"`
	Points        int     `yaml:"collocation_points_per_axis"`
	Scheme        string  `yaml:"time_stepping_scheme"`
	Iterations    int     `yaml:"iterations"`
	Tau           float64 `yaml:"tau"`
	Courant       float64 `yaml:"courant"`
	MaxTau        float64 `yaml:"max_tau"`
	AdaptAfter    int     `yaml:"adapt_after"`
	MonitorEvery  int     `yaml:"monitor_every"`
	SnapshotEvery int     `yaml:"snapshot_every"`
	Seed          uint64  `yaml:"seed"`
}

type Physical struct {
	V0     float64 `yaml:"v_0"`
	VRatio float64 `yaml:"v_ratio"`
	KMin   float64 `yaml:"k_min"`
	KMax   float64 `yaml:"k_max"`
}

// SnapshotConfig drives the steady-state, extrema and hyperuniformity
// stages that read stored snapshots.
type SnapshotConfig struct {
	Locations  []string     `yaml:"snapshots_locations"`
	Threshold  float64      `yaml:"extrema_threshold"`
	KCut       float64      `yaml:"k_cut"`
	KInterval  [2]float64   `yaml:"k_interval"`
	Intervals  [][2]float64 `yaml:"k_intervals,omitempty"`
	Normalized bool         `yaml:"normalized"`
}

// SweepConfig lists values to try for a grid search over v_ratio and
// the Courant number. Each combination runs one solver per seed.
type SweepConfig struct {
	VRatio     []float64 `yaml:"v_ratio,omitempty"`
	Courant    []float64 `yaml:"courant,omitempty"`
	Seeds      []uint64  `yaml:"seeds,omitempty"`
	Iterations int       `yaml:"iterations,omitempty"`
}

func DefaultTurbulence() *Turbulence {
	return &Turbulence{
		Discretization: Discretization{
			DomainLength:  DefaultDomainLength,
			Points:        DefaultPoints,
			Scheme:        DefaultScheme,
			Iterations:    sim.DefaultIterations,
			Tau:           sim.DefaultTau,
			Courant:       sim.DefaultCourant,
			AdaptAfter:    sim.DefaultAdaptAfter,
			MonitorEvery:  sim.DefaultMonitorEvery,
			SnapshotEvery: sim.DefaultSnapshotEvery,
			Seed:          1,
		},
		Physical: Physical{
			V0:     DefaultV0,
			VRatio: DefaultVRatio,
			KMin:   DefaultKMin,
			KMax:   DefaultKMax,
		},
		Analysis: SnapshotConfig{
			KInterval: [2]float64{DefaultFitKMin, DefaultFitKMax},
		},
	}
}

func (t *Turbulence) Validate() error {
	d := t.Discretization
	if d.DomainLength <= 0 {
		return fmt.Errorf("domain_length must be positive, got %f: %w", d.DomainLength, dynamo.ErrParameterBounds)
	}
	if d.Points < 4 {
		return fmt.Errorf("collocation_points_per_axis must be at least 4, got %d: %w", d.Points, dynamo.ErrParameterBounds)
	}
	if d.SnapshotEvery > 0 && d.SnapshotEvery%steadyStride != 0 {
		return fmt.Errorf("snapshot_every must be a multiple of %d, got %d: %w", steadyStride, d.SnapshotEvery, dynamo.ErrParameterBounds)
	}
	if k := t.Analysis.KInterval; k[1] <= k[0] {
		return fmt.Errorf("k_interval [%f, %f] is empty: %w", k[0], k[1], dynamo.ErrParameterBounds)
	}
	return t.PVC().Validate()
}

// steadyStride mirrors the spacing snapshot locations are parsed with.
const steadyStride = 1000

func (t *Turbulence) SimConfig() sim.Config {
	d := t.Discretization
	return sim.Config{
		Iterations:    d.Iterations,
		Tau:           d.Tau,
		Courant:       d.Courant,
		MaxTau:        d.MaxTau,
		AdaptAfter:    d.AdaptAfter,
		MonitorEvery:  d.MonitorEvery,
		SnapshotEvery: d.SnapshotEvery,
		ValidateState: true,
	}
}

func (t *Turbulence) PVC() spectral.PVC {
	return spectral.PVC{
		V0:     t.Physical.V0,
		VRatio: t.Physical.VRatio,
		KMin:   t.Physical.KMin,
		KMax:   t.Physical.KMax,
	}
}

func (t *Turbulence) ExtremaOptions(workers int) extrema.Options {
	return extrema.Options{Threshold: t.Analysis.Threshold, KCut: t.Analysis.KCut, Workers: workers}
}

// Rainfall configures the copula runoff workflow.
type Rainfall struct {
	Database       Database         `yaml:"database"`
	Preprocessing  Preprocessing    `yaml:"preprocessing"`
	CopulaFamilies []string         `yaml:"copula_families"`
	PhysicsModel   runoff.Physical  `yaml:"physics_model"`
	Analysis       runoff.Analysis  `yaml:"analysis"`
	Integration    Integration      `yaml:"integration"`
	Sensitivity    SensitivityStudy `yaml:"sensitivity_analysis"`
}

type Station struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

type Database struct {
	Path     string    `yaml:"db_path"`
	Table    string    `yaml:"table_name"`
	Stations []Station `yaml:"stations_list"`
}

type Preprocessing struct {
	IETD           int   `yaml:"ietd_threshold"`
	RemoveOutliers bool  `yaml:"remove_outliers"`
	WinterMonths   []int `yaml:"winter_months"`
}

// Integration names a runoff integrator. Kwargs are decoded into the
// scheme's options.
type Integration struct {
	Method string         `yaml:"method"`
	Kwargs map[string]any `yaml:"kwargs"`
}

// SensitivityStudy limits bootstrap and parameter sweeps to the listed
// station ids.
type SensitivityStudy struct {
	Stations       []string             `yaml:"station"`
	NBootstrap     int                  `yaml:"n_bootstrap"`
	Seed           uint64               `yaml:"seed"`
	ParameterRange map[string][]float64 `yaml:"parameter_range"`
}

func DefaultRainfall() *Rainfall {
	months := make([]int, len(rainfall.DefaultExcludedMonths))
	for i, m := range rainfall.DefaultExcludedMonths {
		months[i] = int(m)
	}
	return &Rainfall{
		Database: Database{Table: DefaultTable},
		Preprocessing: Preprocessing{
			IETD:         rainfall.DefaultIETD,
			WinterMonths: months,
		},
		CopulaFamilies: []string{"Gaussian", "Clayton", "Gumbel", "Frank"},
		PhysicsModel:   runoff.DefaultPhysical(),
		Analysis:       runoff.DefaultAnalysis(),
		Integration:    Integration{Method: DefaultIntegration},
		Sensitivity: SensitivityStudy{
			NBootstrap: DefaultBootstrap,
			Seed:       1,
		},
	}
}

func (r *Rainfall) Validate() error {
	if r.Database.Path == "" {
		return fmt.Errorf("database.db_path is required: %w", dynamo.ErrParameterBounds)
	}
	if len(r.Database.Stations) == 0 {
		return fmt.Errorf("database.stations_list is empty: %w", dynamo.ErrEmptyInput)
	}
	if r.Preprocessing.IETD < 1 {
		return fmt.Errorf("ietd_threshold must be at least 1, got %d: %w", r.Preprocessing.IETD, dynamo.ErrParameterBounds)
	}
	for _, m := range r.Preprocessing.WinterMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("winter month %d out of range: %w", m, dynamo.ErrParameterBounds)
		}
	}
	if len(r.CopulaFamilies) == 0 {
		return fmt.Errorf("copula_families is empty: %w", dynamo.ErrEmptyInput)
	}
	return r.PhysicsModel.Validate()
}

func (r *Rainfall) CleanOptions() rainfall.CleanOptions {
	months := make([]time.Month, len(r.Preprocessing.WinterMonths))
	for i, m := range r.Preprocessing.WinterMonths {
		months[i] = time.Month(m)
	}
	return rainfall.CleanOptions{RemoveOutliers: r.Preprocessing.RemoveOutliers, ExcludedMonths: months}
}

// StationIDs returns the configured ids and names in order.
func (r *Rainfall) StationIDs() (names, ids []string) {
	for _, s := range r.Database.Stations {
		names = append(names, s.Name)
		ids = append(ids, s.ID)
	}
	return names, ids
}

// Analyzed reports whether uncertainty runs for the station.
func (r *Rainfall) Analyzed(id string) bool {
	for _, s := range r.Sensitivity.Stations {
		if s == id {
			return true
		}
	}
	return false
}

// EcoNex wraps the multi-layer network description.
type EcoNex struct {
	Network econex.Config `yaml:",inline"`
}

func DefaultEcoNex() *EcoNex {
	return &EcoNex{}
}

// Hydraulic configures the MILP pump scheduling model.
type Hydraulic struct {
	InpFile     string  `yaml:"inp_file"`
	Horizon     int     `yaml:"T"`
	Dt          float64 `yaml:"dt"`
	MaxFlow     float64 `yaml:"max_flow"`
	MaxHead     float64 `yaml:"max_head"`
	BigM        float64 `yaml:"big_m"`
	PipeMaxFlow float64 `yaml:"pipe_max_flow"`
	Segments    int     `yaml:"segments"`
	FlowCost    float64 `yaml:"flow_cost"`
	SlackCost   float64 `yaml:"slack_cost"`
	TimeLimit   float64 `yaml:"time_limit_s"`
	MaxNodes    int     `yaml:"max_nodes"`
}

func DefaultHydraulic() *Hydraulic {
	o := hydraulics.DefaultOptimizeOptions()
	return &Hydraulic{
		Horizon:     DefaultHorizon,
		Dt:          o.Dt,
		MaxFlow:     o.MaxFlow,
		MaxHead:     o.MaxHead,
		BigM:        o.BigM,
		PipeMaxFlow: o.PipeMaxFlow,
		Segments:    o.Segments,
		FlowCost:    o.FlowCost,
		SlackCost:   o.SlackCost,
		TimeLimit:   DefaultTimeLimit,
		MaxNodes:    lpmodel.DefaultMaxNodes,
	}
}

func (h *Hydraulic) OptimizeOptions() hydraulics.OptimizeOptions {
	o := hydraulics.DefaultOptimizeOptions()
	o.T = h.Horizon
	o.Dt = h.Dt
	o.MaxFlow = h.MaxFlow
	o.MaxHead = h.MaxHead
	o.BigM = h.BigM
	o.PipeMaxFlow = h.PipeMaxFlow
	o.Segments = h.Segments
	o.FlowCost = h.FlowCost
	o.SlackCost = h.SlackCost
	if h.TimeLimit > 0 {
		o.Solver.TimeLimit = time.Duration(h.TimeLimit * float64(time.Second))
	}
	if h.MaxNodes > 0 {
		o.Solver.MaxNodes = h.MaxNodes
	}
	return o
}

// Simulation configures the extended-period run and its scenarios.
type Simulation struct {
	InpFile           string                `yaml:"inp_file"`
	Scenarios         []hydraulics.Scenario `yaml:"scenarios"`
	PressureThreshold float64               `yaml:"pressure_threshold"`
	MaxTrials         int                   `yaml:"max_trials"`
	Accuracy          float64               `yaml:"accuracy"`
}

func DefaultSimulation() *Simulation {
	return &Simulation{PressureThreshold: hydraulics.DefaultPressureThreshold}
}

// Load reads a YAML file over the defaults in cfg.
func Load[T any](path string, cfg *T) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
