// Package econex builds the time-expanded multi-layer water-energy
// network flow model and its synthetic input profiles.
package econex

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

type Layer string

const (
	Energy  Layer = "E"
	Potable Layer = "P"
	Waste   Layer = "W"
)

type Arc struct {
	From, To int
}

// Coupling links the layers.
type Coupling struct {
	TreatmentEfficiency float64 `yaml:"treatment_efficiency"`
	PumpingIntensity    float64 `yaml:"pumping_intensity"`
}

// Config is the YAML form of the network. Zero values take defaults.
type Config struct {
	T            int                       `yaml:"T"`
	Nodes        []int                     `yaml:"nodes"`
	Layers       []Layer                   `yaml:"layers"`
	Coupling     Coupling                  `yaml:"coupling"`
	Storage      map[int]map[Layer]float64 `yaml:"storage"`
	ArcCapacity  map[Layer]float64         `yaml:"arc_capacity"`
	TreatmentCap float64                   `yaml:"treatment_capacity"`
	Hub          int                       `yaml:"hub"`
	Costs        *Costs                    `yaml:"costs"`
}

type Costs struct {
	PeakPrice    float64 `yaml:"peak_price"`
	OffPeakPrice float64 `yaml:"off_peak_price"`
	PeakStart    int     `yaml:"peak_start"`
	PeakEnd      int     `yaml:"peak_end"`
	ExportCredit float64 `yaml:"export_credit"`
	Municipal    float64 `yaml:"municipal"`
	Treatment    float64 `yaml:"treatment"`
	Transfer     float64 `yaml:"transfer"`
}

func DefaultCosts() Costs {
	return Costs{
		PeakPrice: 0.25, OffPeakPrice: 0.08, PeakStart: 16, PeakEnd: 21,
		ExportCredit: 0.05, Municipal: 2.0, Treatment: 0.1, Transfer: 0.01,
	}
}

var (
	defaultStorage  = map[Layer]float64{Energy: 10, Potable: 5, Waste: 10}
	defaultArcCap   = map[Layer]float64{Energy: 10, Potable: 2, Waste: 2}
	defaultLayers   = []Layer{Energy, Potable, Waste}
	defaultNodes    = []int{1, 2, 3}
	defaultHours    = 24
	defaultHub      = 3
	defaultTreatCap = 5.0
)

// Profile is a value per node, layer and time step (index t-1).
type Profile map[int]map[Layer][]float64

func (p Profile) At(node int, l Layer, t int) float64 {
	series := p[node][l]
	if t < 1 || t > len(series) {
		return 0
	}
	return series[t-1]
}

func newProfile(nodes []int, layers []Layer, T int) Profile {
	p := make(Profile, len(nodes))
	for _, n := range nodes {
		p[n] = make(map[Layer][]float64, len(layers))
		for _, l := range layers {
			p[n][l] = make([]float64, T)
		}
	}
	return p
}

// Data is the fully resolved model input.
type Data struct {
	T            int
	Nodes        []int
	Layers       []Layer
	Arcs         []Arc
	Hub          int
	Eta          float64
	K            float64
	Storage      map[int]map[Layer]float64
	ArcCapacity  map[Arc]map[Layer]float64
	TreatmentCap float64
	Costs        Costs
	Prices       []float64
	Demand       Profile
	Supply       Profile
	NetDemand    Profile
}

func DefaultData() *Data {
	d, _ := NewData(Config{})
	return d
}

// NewData resolves a config into model data, generating the profiles.
func NewData(cfg Config) (*Data, error) {
	d := &Data{
		T:            cfg.T,
		Nodes:        slices.Clone(cfg.Nodes),
		Layers:       slices.Clone(cfg.Layers),
		Hub:          cfg.Hub,
		Eta:          cfg.Coupling.TreatmentEfficiency,
		K:            cfg.Coupling.PumpingIntensity,
		TreatmentCap: cfg.TreatmentCap,
		Costs:        DefaultCosts(),
	}
	if d.T == 0 {
		d.T = defaultHours
	}
	if len(d.Nodes) == 0 {
		d.Nodes = slices.Clone(defaultNodes)
	}
	if len(d.Layers) == 0 {
		d.Layers = slices.Clone(defaultLayers)
	}
	if d.Hub == 0 {
		d.Hub = defaultHub
	}
	if d.Eta == 0 {
		d.Eta = 0.95
	}
	if d.K == 0 {
		d.K = 0.5
	}
	if d.TreatmentCap == 0 {
		d.TreatmentCap = defaultTreatCap
	}
	if cfg.Costs != nil {
		d.Costs = *cfg.Costs
	}

	if d.T < 1 {
		return nil, fmt.Errorf("T must be positive, got %d: %w", d.T, dynamo.ErrParameterBounds)
	}
	if d.Eta <= 0 || d.Eta > 1 {
		return nil, fmt.Errorf("treatment efficiency must be in (0, 1], got %f: %w", d.Eta, dynamo.ErrParameterBounds)
	}
	if !slices.Contains(d.Nodes, d.Hub) {
		return nil, fmt.Errorf("hub node %d is not in %v: %w", d.Hub, d.Nodes, dynamo.ErrParameterBounds)
	}

	for _, i := range d.Nodes {
		for _, j := range d.Nodes {
			if i != j {
				d.Arcs = append(d.Arcs, Arc{From: i, To: j})
			}
		}
	}

	d.Storage = make(map[int]map[Layer]float64, len(d.Nodes))
	for _, n := range d.Nodes {
		caps := defaultStorage
		if c, ok := cfg.Storage[n]; ok {
			caps = c
		}
		d.Storage[n] = caps
	}
	arcCap := defaultArcCap
	if len(cfg.ArcCapacity) > 0 {
		arcCap = cfg.ArcCapacity
	}
	d.ArcCapacity = make(map[Arc]map[Layer]float64, len(d.Arcs))
	for _, a := range d.Arcs {
		d.ArcCapacity[a] = arcCap
	}

	d.Prices = PriceProfile(d.T, d.Costs)
	d.Demand = DemandProfiles(d.T, d.Nodes, d.Layers)
	d.Supply = SupplyProfiles(d.T, d.Nodes, d.Layers)
	d.NetDemand = newProfile(d.Nodes, d.Layers, d.T)
	for _, n := range d.Nodes {
		for _, l := range d.Layers {
			for t := range d.T {
				d.NetDemand[n][l][t] = d.Demand[n][l][t] + d.Supply[n][l][t]
			}
		}
	}
	return d, nil
}

// StorageCap falls back to 10 for layers missing from a node's entry.
func (d *Data) StorageCap(n int, l Layer) float64 {
	if v, ok := d.Storage[n][l]; ok {
		return v
	}
	return 10
}

func (d *Data) ArcCap(a Arc, l Layer) float64 {
	if v, ok := d.ArcCapacity[a][l]; ok {
		return v
	}
	return 10
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// SolarProfile is a bell curve centred on peakHour between 06:00 and
// 18:00, zero otherwise.
func SolarProfile(T, peakHour int, max float64) []float64 {
	out := make([]float64, T)
	for t := range T {
		if t >= 6 && t <= 18 {
			z := float64(t-peakHour) / 3
			out[t] = round(max*math.Exp(-0.5*z*z), 3)
		}
	}
	return out
}

// DemandProfiles gives negative energy and potable demand with morning
// and evening peaks, scaled per node. Wastewater demand is zero.
func DemandProfiles(T int, nodes []int, layers []Layer) Profile {
	p := newProfile(nodes, layers, T)
	for _, n := range nodes {
		for t := range T {
			energy := 1.0
			if (t >= 7 && t <= 9) || (t >= 18 && t <= 22) {
				energy *= 2
			}
			water := 0.5 * 0.5
			if (t >= 6 && t <= 8) || (t >= 18 && t <= 21) {
				water = 0.5 * 3
			}
			switch n {
			case 1:
				energy *= 0.8
			case 2:
				water *= 2
			case 3:
				energy *= 0.3
				water *= 0.2
			}
			if s, ok := p[n][Energy]; ok {
				s[t] = -round(energy, 3)
			}
			if s, ok := p[n][Potable]; ok {
				s[t] = -round(water, 3)
			}
		}
	}
	return p
}

// SupplyProfiles puts solar generation on node 1 and rainwater capture
// of 2 m³/h between 03:00 and 06:00 on node 2.
func SupplyProfiles(T int, nodes []int, layers []Layer) Profile {
	p := newProfile(nodes, layers, T)
	solar := SolarProfile(T, 12, 5)
	if s, ok := p[1][Energy]; ok {
		copy(s, solar)
	}
	if s, ok := p[2][Waste]; ok {
		for t := range T {
			if t >= 3 && t <= 6 {
				s[t] = 2
			}
		}
	}
	return p
}

// PriceProfile is the time-of-use grid price per hour.
func PriceProfile(T int, c Costs) []float64 {
	out := make([]float64, T)
	for t := range T {
		out[t] = c.OffPeakPrice
		if t >= c.PeakStart && t < c.PeakEnd {
			out[t] = c.PeakPrice
		}
	}
	return out
}
