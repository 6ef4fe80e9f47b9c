// Package hydraulics runs extended-period simulations and builds the
// mixed-integer operational model of water distribution networks.
package hydraulics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/epanet"
)

const (
	closedResistance = 1e8
	minGradient      = 1e-6
	// gamma is the specific weight of water in N/m³.
	gamma = 9810.0
	// status changes are frozen after this many trials
	statusTrials = 10
)

var ErrSingular = errors.New("hydraulics: singular head matrix")

type Options struct {
	// MaxTrials and Accuracy default to the network's [OPTIONS].
	MaxTrials int
	Accuracy  float64
	Logger    *zap.Logger
}

// Results hold one row per reported time. Node rows follow NodeIDs,
// link rows follow LinkIDs.
type Results struct {
	Times      []time.Duration
	NodeIDs    []string
	LinkIDs    []string
	Head       [][]float64
	Pressure   [][]float64
	Demand     [][]float64
	Flow       [][]float64
	Velocity   [][]float64
	Iterations []int
	Converged  []bool

	nodeIdx map[string]int
	linkIdx map[string]int
}

// NodeSeries extracts the time series of one node from a node matrix.
func (r *Results) NodeSeries(rows [][]float64, id string) ([]float64, bool) {
	i, ok := r.nodeIdx[id]
	if !ok {
		return nil, false
	}
	return column(rows, i), true
}

func (r *Results) LinkSeries(rows [][]float64, id string) ([]float64, bool) {
	i, ok := r.linkIdx[id]
	if !ok {
		return nil, false
	}
	return column(rows, i), true
}

func column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for t, row := range rows {
		out[t] = row[i]
	}
	return out
}

type linkState struct {
	link     *epanet.Link
	from, to int
	r, m     float64
	pump     *PumpCurve
	power    float64 // W
	speed    float64
	fixed    bool // closed for the whole step regardless of heads
	closed   bool
	checkVal bool
}

type solver struct {
	net    *epanet.Network
	opts   Options
	log    *zap.Logger
	row    []int // node index to matrix row, -1 for fixed-head nodes
	nj     int
	links  []linkState
	head   []float64
	flow   []float64
	demand []float64
	level  []float64
}

// Simulate runs the network from zero to Times.Duration, one Newton solve
// per hydraulic step.
func Simulate(ctx context.Context, net *epanet.Network, opts Options) (*Results, error) {
	s, err := newSolver(net, opts)
	if err != nil {
		return nil, err
	}

	step := net.Times.HydraulicStep
	if step <= 0 {
		step = time.Hour
	}
	steps := int(net.Times.Duration/step) + 1

	res := &Results{
		NodeIDs: make([]string, len(net.Nodes)),
		LinkIDs: make([]string, len(net.Links)),
		nodeIdx: make(map[string]int, len(net.Nodes)),
		linkIdx: make(map[string]int, len(net.Links)),
	}
	for i, n := range net.Nodes {
		res.NodeIDs[i] = n.ID
		res.nodeIdx[n.ID] = i
	}
	for i, l := range net.Links {
		res.LinkIDs[i] = l.ID
		res.linkIdx[l.ID] = i
	}

	for k := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
		}
		t := time.Duration(k) * step
		iters, ok, err := s.solveStep(t)
		if err != nil {
			return nil, fmt.Errorf("step %v: %w", t, err)
		}
		if !ok {
			s.log.Warn("hydraulic step did not converge",
				zap.Duration("time", t),
				zap.Int("trials", iters))
		}
		s.record(res, t, iters, ok)
		if k < steps-1 {
			s.advanceTanks(step.Seconds())
		}
	}
	return res, nil
}

func newSolver(net *epanet.Network, opts Options) (*solver, error) {
	if len(net.Nodes) == 0 {
		return nil, fmt.Errorf("network has no nodes: %w", dynamo.ErrEmptyInput)
	}
	if opts.MaxTrials <= 0 {
		opts.MaxTrials = net.Options.Trials
	}
	if opts.MaxTrials <= 0 {
		opts.MaxTrials = 200
	}
	if opts.Accuracy <= 0 {
		opts.Accuracy = net.Options.Accuracy
	}
	if opts.Accuracy <= 0 {
		opts.Accuracy = 1e-3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &solver{
		net:    net,
		opts:   opts,
		log:    opts.Logger,
		row:    make([]int, len(net.Nodes)),
		links:  make([]linkState, len(net.Links)),
		head:   make([]float64, len(net.Nodes)),
		flow:   make([]float64, len(net.Links)),
		demand: make([]float64, len(net.Nodes)),
		level:  make([]float64, len(net.Nodes)),
	}
	degree := make([]int, len(net.Nodes))
	for i, n := range net.Nodes {
		s.row[i] = -1
		switch n.Kind {
		case epanet.Junction:
			s.row[i] = s.nj
			s.nj++
			s.head[i] = n.Elevation
		case epanet.Tank:
			s.level[i] = n.InitLevel
		}
	}

	for k, l := range net.Links {
		ls := linkState{link: l, from: net.NodeIndex(l.From), to: net.NodeIndex(l.To), speed: 1}
		if ls.from < 0 || ls.to < 0 {
			return nil, fmt.Errorf("link %s: unknown end node", l.ID)
		}
		degree[ls.from]++
		degree[ls.to]++

		switch l.Kind {
		case epanet.Pipe:
			if l.Diameter <= 0 || l.Roughness <= 0 {
				return nil, fmt.Errorf("pipe %s: diameter and roughness must be positive: %w", l.ID, dynamo.ErrParameterBounds)
			}
			ls.r = HazenWilliams(l.Length, l.Diameter, l.Roughness)
			ls.m = MinorResistance(l.MinorLoss, l.Diameter)
			ls.checkVal = l.Status == epanet.CheckValve
			s.flow[k] = 0.3048 * area(l.Diameter)
		case epanet.Valve:
			k0 := l.MinorLoss
			if l.ValveType == "TCV" && l.Setting > 0 {
				k0 = l.Setting
			}
			ls.m = MinorResistance(k0, l.Diameter)
			s.flow[k] = 0.3048 * area(l.Diameter)
		case epanet.Pump:
			switch {
			case l.HeadCurve != "":
				pc, err := FitPumpCurve(net.Curves[l.HeadCurve])
				if err != nil {
					return nil, fmt.Errorf("pump %s: %w", l.ID, err)
				}
				ls.pump = &pc
				q, _ := CurvePoints(net.Curves[l.HeadCurve])
				s.flow[k] = q[len(q)/2]
			case l.Power > 0:
				ls.power = l.Power * 1000
				s.flow[k] = 0.01
			default:
				return nil, fmt.Errorf("pump %s has no curve or power: %w", l.ID, dynamo.ErrParameterBounds)
			}
			if l.Speed > 0 {
				ls.speed = l.Speed
			}
		}
		s.links[k] = ls
	}
	for i, n := range net.Nodes {
		if n.Kind == epanet.Junction && degree[i] == 0 {
			return nil, fmt.Errorf("junction %s has no links: %w", n.ID, dynamo.ErrInvalidState)
		}
	}
	return s, nil
}

func area(d float64) float64 { return math.Pi * d * d / 4 }

// boundary sets fixed heads, demands and administrative link status for t.
func (s *solver) boundary(t time.Duration) {
	period := s.net.PatternPeriod(t)
	for i, n := range s.net.Nodes {
		switch n.Kind {
		case epanet.Junction:
			s.demand[i] = s.net.DemandAt(n, t)
		case epanet.Reservoir:
			h := n.Head
			if n.HeadPattern != "" {
				h *= s.net.Patterns[n.HeadPattern].At(period)
			}
			s.head[i] = h
		case epanet.Tank:
			s.head[i] = n.Elevation + s.level[i]
		}
	}
	shut := make(map[string]bool, len(s.net.Closures))
	for _, c := range s.net.Closures {
		if c.Active(t) {
			shut[c.Link] = true
		}
	}
	for k := range s.links {
		ls := &s.links[k]
		l := ls.link
		ls.fixed = l.Status == epanet.Closed || shut[l.ID]
		if l.Kind == epanet.Pump {
			w := 1.0
			if l.Speed > 0 {
				w = l.Speed
			}
			if l.Pattern != "" {
				w *= s.net.Patterns[l.Pattern].At(period)
			}
			ls.speed = w
			if w <= 0 {
				ls.fixed = true
			}
		}
		if ls.fixed {
			ls.closed = true
		} else if ls.closed && !ls.checkVal && l.Kind != epanet.Pump {
			ls.closed = false
			s.flow[k] = s.nominalFlow(k)
		}
	}
}

// gradient returns the headloss h(Q) and dh/dQ of link k at its current flow.
func (s *solver) gradient(k int) (h, g float64) {
	ls := &s.links[k]
	q := s.flow[k]
	aq := math.Abs(q)
	if ls.closed {
		return closedResistance * q, closedResistance
	}
	switch {
	case ls.pump != nil:
		w := ls.speed
		h = -(w*w*ls.pump.A - ls.pump.B*q*aq)
		g = 2 * ls.pump.B * aq
	case ls.power > 0:
		qq := math.Max(aq, 1e-6)
		h = -ls.power * ls.speed / (gamma * qq)
		g = ls.power * ls.speed / (gamma * qq * qq)
	default:
		pow := math.Pow(aq, hwExponent-1)
		h = ls.r*pow*q + ls.m*aq*q
		g = hwExponent*ls.r*pow + 2*ls.m*aq
	}
	if g < minGradient {
		g = minGradient
	}
	return h, g
}

func (s *solver) solveStep(t time.Duration) (int, bool, error) {
	s.boundary(t)
	nl := len(s.links)
	p := make([]float64, nl)
	y := make([]float64, nl)

	for trial := 1; trial <= s.opts.MaxTrials; trial++ {
		for k := range s.links {
			h, g := s.gradient(k)
			p[k] = 1 / g
			y[k] = h / g
		}

		if s.nj > 0 {
			A := mat.NewSymDense(s.nj, nil)
			F := make([]float64, s.nj)
			for i, r := range s.row {
				if r >= 0 {
					F[r] = -s.demand[i]
				}
			}
			for k, ls := range s.links {
				ia, ib := s.row[ls.from], s.row[ls.to]
				q := s.flow[k] - y[k]
				if ia >= 0 {
					A.SetSym(ia, ia, A.At(ia, ia)+p[k])
					F[ia] -= q
					if ib >= 0 {
						A.SetSym(ia, ib, A.At(ia, ib)-p[k])
					} else {
						F[ia] += p[k] * s.head[ls.to]
					}
				}
				if ib >= 0 {
					A.SetSym(ib, ib, A.At(ib, ib)+p[k])
					F[ib] += q
					if ia < 0 {
						F[ib] += p[k] * s.head[ls.from]
					}
				}
			}

			var ch mat.Cholesky
			if ok := ch.Factorize(A); !ok {
				return trial, false, ErrSingular
			}
			var x mat.VecDense
			if err := ch.SolveVecTo(&x, mat.NewVecDense(s.nj, F)); err != nil {
				return trial, false, fmt.Errorf("%w: %w", ErrSingular, err)
			}
			for i, r := range s.row {
				if r >= 0 {
					s.head[i] = x.AtVec(r)
				}
			}
		}

		var dq, sq float64
		for k, ls := range s.links {
			q := s.flow[k] - y[k] + p[k]*(s.head[ls.from]-s.head[ls.to])
			dq += math.Abs(q - s.flow[k])
			sq += math.Abs(q)
			s.flow[k] = q
		}
		ratio := dq
		if sq > 0 {
			ratio = dq / sq
		}
		if ratio < s.opts.Accuracy {
			if trial > statusTrials || !s.updateStatus() {
				return trial, true, nil
			}
		}
	}
	return s.opts.MaxTrials, false, nil
}

// updateStatus opens and closes pumps and check valves from the current
// heads and flows. It reports whether anything changed.
func (s *solver) updateStatus() bool {
	changed := false
	for k := range s.links {
		ls := &s.links[k]
		if ls.fixed {
			continue
		}
		dh := s.head[ls.from] - s.head[ls.to]
		open, shut := false, false
		switch {
		case ls.pump != nil:
			shutoff := ls.speed * ls.speed * ls.pump.A
			shut = !ls.closed && (s.flow[k] < 0 || -dh > shutoff)
			open = ls.closed && -dh < shutoff
		case ls.power > 0, ls.checkVal:
			shut = !ls.closed && s.flow[k] < 0
			open = ls.closed && dh > 0
		}
		switch {
		case shut:
			ls.closed = true
			s.flow[k] = 0
		case open:
			ls.closed = false
			s.flow[k] = s.nominalFlow(k)
		default:
			continue
		}
		changed = true
	}
	return changed
}

// nominalFlow restarts a reopened link away from zero flow.
func (s *solver) nominalFlow(k int) float64 {
	ls := &s.links[k]
	switch {
	case ls.pump != nil:
		return ls.speed * ls.pump.Cutoff() / 2
	case ls.power > 0:
		return 0.01
	default:
		return 0.3048 * area(ls.link.Diameter)
	}
}

// netInflow is the flow entering node i through its links.
func (s *solver) netInflow(i int) float64 {
	total := 0.0
	for k, ls := range s.links {
		if ls.to == i {
			total += s.flow[k]
		}
		if ls.from == i {
			total -= s.flow[k]
		}
	}
	return total
}

func (s *solver) advanceTanks(dt float64) {
	for i, n := range s.net.Nodes {
		if n.Kind != epanet.Tank || n.Diameter <= 0 {
			continue
		}
		lv := s.level[i] + dt*s.netInflow(i)/area(n.Diameter)
		s.level[i] = math.Min(math.Max(lv, n.MinLevel), n.MaxLevel)
	}
}

func (s *solver) record(res *Results, t time.Duration, iters int, ok bool) {
	nn, nl := len(s.net.Nodes), len(s.links)
	head := make([]float64, nn)
	pres := make([]float64, nn)
	dem := make([]float64, nn)
	for i, n := range s.net.Nodes {
		head[i] = s.head[i]
		switch n.Kind {
		case epanet.Junction:
			pres[i] = s.head[i] - n.Elevation
			dem[i] = s.demand[i]
		case epanet.Tank:
			pres[i] = s.level[i]
			dem[i] = s.netInflow(i)
		default:
			dem[i] = s.netInflow(i)
		}
	}
	flow := make([]float64, nl)
	vel := make([]float64, nl)
	for k, ls := range s.links {
		q := s.flow[k]
		if ls.closed {
			q = 0
		}
		flow[k] = q
		if ls.link.Kind != epanet.Pump && ls.link.Diameter > 0 {
			vel[k] = math.Abs(q) / area(ls.link.Diameter)
		}
	}
	res.Times = append(res.Times, t)
	res.Head = append(res.Head, head)
	res.Pressure = append(res.Pressure, pres)
	res.Demand = append(res.Demand, dem)
	res.Flow = append(res.Flow, flow)
	res.Velocity = append(res.Velocity, vel)
	res.Iterations = append(res.Iterations, iters)
	res.Converged = append(res.Converged, ok)
}
