// Package epanet reads EPANET .inp network descriptions into SI units.
package epanet

import "time"

type NodeKind int

const (
	Junction NodeKind = iota
	Reservoir
	Tank
)

func (k NodeKind) String() string {
	switch k {
	case Reservoir:
		return "reservoir"
	case Tank:
		return "tank"
	default:
		return "junction"
	}
}

type Demand struct {
	Base     float64 // m³/s
	Pattern  string
	Category string
}

// Node is a junction, reservoir or tank. Lengths are metres.
type Node struct {
	ID        string
	Kind      NodeKind
	Elevation float64
	Demands   []Demand

	// Reservoir
	Head        float64
	HeadPattern string

	// Tank, levels above Elevation
	InitLevel float64
	MinLevel  float64
	MaxLevel  float64
	Diameter  float64
	MinVolume float64
	VolCurve  string
}

// BaseDemand sums the demand categories.
func (n *Node) BaseDemand() float64 {
	total := 0.0
	for _, d := range n.Demands {
		total += d.Base
	}
	return total
}

type LinkKind int

const (
	Pipe LinkKind = iota
	Pump
	Valve
)

func (k LinkKind) String() string {
	switch k {
	case Pump:
		return "pump"
	case Valve:
		return "valve"
	default:
		return "pipe"
	}
}

type LinkStatus int

const (
	Open LinkStatus = iota
	Closed
	CheckValve
)

// Link is a pipe, pump or valve. Diameters are metres.
type Link struct {
	ID        string
	Kind      LinkKind
	From, To  string
	Length    float64
	Diameter  float64
	Roughness float64
	MinorLoss float64
	Status    LinkStatus

	// Pump
	HeadCurve string
	Power     float64 // kW
	Speed     float64
	Pattern   string

	// Valve
	ValveType string
	Setting   float64
}

// Pattern is a cyclic series of multipliers, one per pattern step.
type Pattern struct {
	ID          string
	Multipliers []float64
}

// At returns the multiplier of pattern period p, wrapping around.
func (p *Pattern) At(period int) float64 {
	if p == nil || len(p.Multipliers) == 0 {
		return 1
	}
	n := len(p.Multipliers)
	return p.Multipliers[((period%n)+n)%n]
}

// Curve is an x-y table; pump head curves are flow (m³/s) against
// head (m).
type Curve struct {
	ID string
	X  []float64
	Y  []float64
}

type Times struct {
	Duration      time.Duration
	HydraulicStep time.Duration
	QualityStep   time.Duration
	PatternStep   time.Duration
	PatternStart  time.Duration
	ReportStep    time.Duration
	ReportStart   time.Duration
	StartClock    time.Duration
}

func DefaultTimes() Times {
	return Times{
		HydraulicStep: time.Hour,
		QualityStep:   5 * time.Minute,
		PatternStep:   time.Hour,
		ReportStep:    time.Hour,
	}
}

type Options struct {
	Units            FlowUnits
	Headloss         string
	DefaultPattern   string
	DemandMultiplier float64
	Trials           int
	Accuracy         float64
	SpecificGravity  float64
	Viscosity        float64
}

func DefaultOptions() Options {
	return Options{
		Units:            GPM,
		Headloss:         "H-W",
		DefaultPattern:   "1",
		DemandMultiplier: 1,
		Trials:           200,
		Accuracy:         0.001,
		SpecificGravity:  1,
		Viscosity:        1,
	}
}

// Closure keeps a link closed for From <= t < To. A zero To means until
// the end of the run.
type Closure struct {
	Link     string
	From, To time.Duration
}

func (c Closure) Active(t time.Duration) bool {
	return t >= c.From && (c.To <= 0 || t < c.To)
}

// Network is a parsed .inp file.
type Network struct {
	Title    []string
	Nodes    []*Node
	Links    []*Link
	Patterns map[string]*Pattern
	Curves   map[string]*Curve
	Options  Options
	Times    Times
	Closures []Closure

	nodeIdx map[string]int
	linkIdx map[string]int
}

func newNetwork() *Network {
	return &Network{
		Patterns: make(map[string]*Pattern),
		Curves:   make(map[string]*Curve),
		Options:  DefaultOptions(),
		Times:    DefaultTimes(),
		nodeIdx:  make(map[string]int),
		linkIdx:  make(map[string]int),
	}
}

func (n *Network) Node(id string) (*Node, bool) {
	i, ok := n.nodeIdx[id]
	if !ok {
		return nil, false
	}
	return n.Nodes[i], true
}

func (n *Network) Link(id string) (*Link, bool) {
	i, ok := n.linkIdx[id]
	if !ok {
		return nil, false
	}
	return n.Links[i], true
}

// NodeIndex is the position of id in Nodes, or -1.
func (n *Network) NodeIndex(id string) int {
	if i, ok := n.nodeIdx[id]; ok {
		return i
	}
	return -1
}

func (n *Network) LinkIndex(id string) int {
	if i, ok := n.linkIdx[id]; ok {
		return i
	}
	return -1
}

func (n *Network) nodeIDs(kind NodeKind) []string {
	var out []string
	for _, nd := range n.Nodes {
		if nd.Kind == kind {
			out = append(out, nd.ID)
		}
	}
	return out
}

func (n *Network) linkIDs(kind LinkKind) []string {
	var out []string
	for _, l := range n.Links {
		if l.Kind == kind {
			out = append(out, l.ID)
		}
	}
	return out
}

func (n *Network) JunctionIDs() []string  { return n.nodeIDs(Junction) }
func (n *Network) ReservoirIDs() []string { return n.nodeIDs(Reservoir) }
func (n *Network) TankIDs() []string      { return n.nodeIDs(Tank) }
func (n *Network) PipeIDs() []string      { return n.linkIDs(Pipe) }
func (n *Network) PumpIDs() []string      { return n.linkIDs(Pump) }
func (n *Network) ValveIDs() []string     { return n.linkIDs(Valve) }

// Pattern looks up a pattern, falling back to the default pattern for an
// empty id. A nil result means a constant multiplier of 1.
func (n *Network) Pattern(id string) *Pattern {
	if id == "" {
		id = n.Options.DefaultPattern
	}
	return n.Patterns[id]
}

// PatternPeriod maps simulation time to a pattern period index.
func (n *Network) PatternPeriod(t time.Duration) int {
	step := n.Times.PatternStep
	if step <= 0 {
		return 0
	}
	return int((t + n.Times.PatternStart) / step)
}

// DemandAt is the total demand of a junction at time t, in m³/s.
func (n *Network) DemandAt(node *Node, t time.Duration) float64 {
	period := n.PatternPeriod(t)
	total := 0.0
	for _, d := range node.Demands {
		total += d.Base * n.Pattern(d.Pattern).At(period)
	}
	return total * n.Options.DemandMultiplier
}

// Clone deep-copies the network so scenarios can modify it.
func (n *Network) Clone() *Network {
	out := &Network{
		Title:    append([]string(nil), n.Title...),
		Patterns: make(map[string]*Pattern, len(n.Patterns)),
		Curves:   make(map[string]*Curve, len(n.Curves)),
		Options:  n.Options,
		Times:    n.Times,
		Closures: append([]Closure(nil), n.Closures...),
		nodeIdx:  make(map[string]int, len(n.nodeIdx)),
		linkIdx:  make(map[string]int, len(n.linkIdx)),
	}
	for _, nd := range n.Nodes {
		c := *nd
		c.Demands = append([]Demand(nil), nd.Demands...)
		out.nodeIdx[c.ID] = len(out.Nodes)
		out.Nodes = append(out.Nodes, &c)
	}
	for _, l := range n.Links {
		c := *l
		out.linkIdx[c.ID] = len(out.Links)
		out.Links = append(out.Links, &c)
	}
	for id, p := range n.Patterns {
		out.Patterns[id] = &Pattern{ID: p.ID, Multipliers: append([]float64(nil), p.Multipliers...)}
	}
	for id, c := range n.Curves {
		out.Curves[id] = &Curve{ID: c.ID, X: append([]float64(nil), c.X...), Y: append([]float64(nil), c.Y...)}
	}
	return out
}
