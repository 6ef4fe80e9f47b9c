package hydraulics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/epanet"
	"github.com/san-kum/fieldlab/internal/lpmodel"
	"github.com/san-kum/fieldlab/internal/storage"
)

// OptimizeOptions shapes the operational MILP. Zero fields take the
// defaults from DefaultOptimizeOptions.
type OptimizeOptions struct {
	T           int
	Dt          float64 // seconds
	MaxFlow     float64
	MaxHead     float64
	BigM        float64
	PipeMaxFlow float64
	Segments    int
	FlowCost    float64
	SlackCost   float64
	Solver      lpmodel.MILPOptions
}

func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{
		T:           24,
		Dt:          3600,
		MaxFlow:     5,
		MaxHead:     500,
		BigM:        200,
		PipeMaxFlow: 2,
		Segments:    2,
		FlowCost:    10,
		SlackCost:   1e9,
		Solver:      lpmodel.DefaultMILPOptions(),
	}
}

func (o OptimizeOptions) withDefaults() OptimizeOptions {
	d := DefaultOptimizeOptions()
	if o.T <= 0 {
		o.T = d.T
	}
	if o.Dt <= 0 {
		o.Dt = d.Dt
	}
	if o.MaxFlow <= 0 {
		o.MaxFlow = d.MaxFlow
	}
	if o.MaxHead <= 0 {
		o.MaxHead = d.MaxHead
	}
	if o.BigM <= 0 {
		o.BigM = d.BigM
	}
	if o.PipeMaxFlow <= 0 {
		o.PipeMaxFlow = d.PipeMaxFlow
	}
	if o.Segments <= 0 {
		o.Segments = d.Segments
	}
	if o.FlowCost == 0 {
		o.FlowCost = d.FlowCost
	}
	if o.SlackCost == 0 {
		o.SlackCost = d.SlackCost
	}
	if o.Solver.TimeLimit == 0 && o.Solver.MaxNodes == 0 {
		o.Solver = d.Solver
	}
	return o
}

// Index maps component ids to their per-step variable indices.
type Index struct {
	T        int
	Q        map[string][]int
	H        map[string][]int
	Status   map[string][]int
	DH       map[string][]int
	Gain     map[string][]int
	SlackPos map[string][]int
	SlackNeg map[string][]int
}

// Point is one breakpoint of a piecewise-linear curve.
type Point struct{ X, Y float64 }

func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

// PipePoints samples h = sign(q)·K·|q|^1.852 with K = 10.66·L/(C^1.852·D^4.87).
func PipePoints(l *epanet.Link, maxFlow float64, segments int) []Point {
	k := 10.66 * l.Length / (math.Pow(l.Roughness, hwExponent) * math.Pow(l.Diameter, 4.87))
	qs := linspace(-maxFlow, maxFlow, segments+1)
	pts := make([]Point, len(qs))
	for i, q := range qs {
		h := math.Copysign(k*math.Pow(math.Abs(q), hwExponent), q)
		pts[i] = Point{round6(q), round6(h)}
	}
	return pts
}

// PumpPoints samples the fitted A − B·q² curve from zero to its cutoff
// flow. A failed fit falls back to A at the first point and B = 0.1.
func PumpPoints(c *epanet.Curve, segments int) ([]Point, error) {
	if c == nil || len(c.X) == 0 {
		return nil, fmt.Errorf("pump curve missing: %w", dynamo.ErrEmptyInput)
	}
	qs, hs := CurvePoints(c)
	pc, err := FitPumpCurve(c)
	if err != nil {
		pc = PumpCurve{A: hs[0], B: 0.1}
	}
	cutoff := qs[len(qs)-1] * 1.1
	if pc.B > 0 {
		cutoff = pc.Cutoff()
	}
	flows := linspace(0, cutoff, segments+1)
	pts := make([]Point, len(flows))
	for i, q := range flows {
		pts[i] = Point{round6(q), round6(pc.A - pc.B*q*q)}
	}
	return pts, nil
}

type builder struct {
	m   *lpmodel.Model
	err error
}

func (b *builder) con(name string, terms []lpmodel.Term, sense lpmodel.Sense, rhs float64) {
	if b.err != nil {
		return
	}
	b.err = b.m.AddConstraint(name, terms, sense, rhs)
}

// pwl ties y to x along pts with SOS2 weights enforced by segment
// binaries.
func (b *builder) pwl(name string, x, y int, pts []Point) {
	n := len(pts)
	w := make([]int, n)
	z := make([]int, n-1)
	for k := range w {
		w[k] = b.m.MustVar(fmt.Sprintf("%s_w_%d", name, k), 0, 1, lpmodel.Continuous)
	}
	for k := range z {
		z[k] = b.m.MustVar(fmt.Sprintf("%s_z_%d", name, k), 0, 1, lpmodel.Binary)
	}

	sumW := make([]lpmodel.Term, n)
	for k, v := range w {
		sumW[k] = lpmodel.Term{Var: v, Coef: 1}
	}
	b.con(name+"_convex", sumW, lpmodel.EQ, 1)
	sumZ := make([]lpmodel.Term, n-1)
	for k, v := range z {
		sumZ[k] = lpmodel.Term{Var: v, Coef: 1}
	}
	b.con(name+"_z_sum", sumZ, lpmodel.EQ, 1)

	b.con(name+"_sos_start", []lpmodel.Term{{Var: w[0], Coef: 1}, {Var: z[0], Coef: -1}}, lpmodel.LE, 0)
	for k := 1; k < n-1; k++ {
		b.con(fmt.Sprintf("%s_sos_%d", name, k), []lpmodel.Term{
			{Var: w[k], Coef: 1}, {Var: z[k-1], Coef: -1}, {Var: z[k], Coef: -1},
		}, lpmodel.LE, 0)
	}
	b.con(name+"_sos_end", []lpmodel.Term{{Var: w[n-1], Coef: 1}, {Var: z[n-2], Coef: -1}}, lpmodel.LE, 0)

	xs := []lpmodel.Term{{Var: x, Coef: -1}}
	ys := []lpmodel.Term{{Var: y, Coef: -1}}
	for k, v := range w {
		xs = append(xs, lpmodel.Term{Var: v, Coef: pts[k].X})
		ys = append(ys, lpmodel.Term{Var: v, Coef: pts[k].Y})
	}
	b.con(name+"_x_interp", xs, lpmodel.EQ, 0)
	b.con(name+"_y_interp", ys, lpmodel.EQ, 0)
}

// BuildMILP formulates pump scheduling over T steps: flow continuity with
// penalised slack at junctions, explicit tank integration, and
// piecewise-linear pipe and pump curves.
func BuildMILP(net *epanet.Network, opts OptimizeOptions) (*lpmodel.Model, *Index, error) {
	opts = opts.withDefaults()
	T := opts.T
	m := lpmodel.NewModel("hydraulic_optimization")
	b := &builder{m: m}
	idx := &Index{
		T:        T,
		Q:        make(map[string][]int),
		H:        make(map[string][]int),
		Status:   make(map[string][]int),
		DH:       make(map[string][]int),
		Gain:     make(map[string][]int),
		SlackPos: make(map[string][]int),
		SlackNeg: make(map[string][]int),
	}

	for _, l := range net.Links {
		lo := 0.0
		if l.Kind == epanet.Pipe {
			lo = -opts.MaxFlow
		}
		for t := range T {
			idx.Q[l.ID] = append(idx.Q[l.ID], m.MustVar(fmt.Sprintf("Q_%s_%d", l.ID, t), lo, opts.MaxFlow, lpmodel.Continuous))
		}
		if l.Kind != epanet.Pipe {
			for t := range T {
				idx.Status[l.ID] = append(idx.Status[l.ID], m.MustVar(fmt.Sprintf("Status_%s_%d", l.ID, t), 0, 1, lpmodel.Binary))
			}
		}
	}

	for _, n := range net.Nodes {
		for t := range T {
			lo, hi := 0.0, opts.MaxHead
			switch n.Kind {
			case epanet.Reservoir:
				lo, hi = n.Head, n.Head
			case epanet.Tank:
				lo = math.Max(lo, n.MinLevel+n.Elevation)
				hi = math.Min(hi, n.MaxLevel+n.Elevation)
				if t == 0 {
					lo, hi = n.InitLevel+n.Elevation, n.InitLevel+n.Elevation
				}
			}
			v, err := m.AddVar(fmt.Sprintf("H_%s_%d", n.ID, t), lo, hi, lpmodel.Continuous)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: %w", n.ID, err)
			}
			idx.H[n.ID] = append(idx.H[n.ID], v)
		}
		if n.Kind == epanet.Junction {
			for t := range T {
				idx.SlackPos[n.ID] = append(idx.SlackPos[n.ID], m.MustVar(fmt.Sprintf("SlackPos_%s_%d", n.ID, t), 0, math.Inf(1), lpmodel.Continuous))
				idx.SlackNeg[n.ID] = append(idx.SlackNeg[n.ID], m.MustVar(fmt.Sprintf("SlackNeg_%s_%d", n.ID, t), 0, math.Inf(1), lpmodel.Continuous))
			}
		}
	}

	// netFlow returns inflow − outflow terms at node id for step t.
	netFlow := func(id string, t int, scale float64) []lpmodel.Term {
		var terms []lpmodel.Term
		for _, l := range net.Links {
			if l.To == id {
				terms = append(terms, lpmodel.Term{Var: idx.Q[l.ID][t], Coef: scale})
			}
			if l.From == id {
				terms = append(terms, lpmodel.Term{Var: idx.Q[l.ID][t], Coef: -scale})
			}
		}
		return terms
	}

	for _, n := range net.Nodes {
		switch n.Kind {
		case epanet.Junction:
			demand := 0.0
			if len(n.Demands) > 0 {
				demand = n.Demands[0].Base
			}
			for t := range T {
				terms := append(netFlow(n.ID, t, 1),
					lpmodel.Term{Var: idx.SlackPos[n.ID][t], Coef: 1},
					lpmodel.Term{Var: idx.SlackNeg[n.ID][t], Coef: -1})
				b.con(fmt.Sprintf("MassBalance_%s_%d", n.ID, t), terms, lpmodel.EQ, demand)
			}
		case epanet.Tank:
			if n.Diameter <= 0 {
				return nil, nil, fmt.Errorf("tank %s diameter %g: %w", n.ID, n.Diameter, dynamo.ErrParameterBounds)
			}
			a := math.Pi * (n.Diameter / 2) * (n.Diameter / 2)
			for t := 1; t < T; t++ {
				terms := append(netFlow(n.ID, t-1, -opts.Dt/a),
					lpmodel.Term{Var: idx.H[n.ID][t], Coef: 1},
					lpmodel.Term{Var: idx.H[n.ID][t-1], Coef: -1})
				b.con(fmt.Sprintf("TankDynamics_%s_%d", n.ID, t), terms, lpmodel.EQ, 0)
			}
		}
	}

	for _, l := range net.Links {
		switch l.Kind {
		case epanet.Pipe:
			pts := PipePoints(l, opts.PipeMaxFlow, opts.Segments)
			for t := range T {
				dh := m.MustVar(fmt.Sprintf("dH_%s_%d", l.ID, t), math.Inf(-1), math.Inf(1), lpmodel.Continuous)
				idx.DH[l.ID] = append(idx.DH[l.ID], dh)
				b.con(fmt.Sprintf("dH_def_%s_%d", l.ID, t), []lpmodel.Term{
					{Var: dh, Coef: 1},
					{Var: idx.H[l.From][t], Coef: -1},
					{Var: idx.H[l.To][t], Coef: 1},
				}, lpmodel.EQ, 0)
				b.pwl(fmt.Sprintf("pwl_pipe_%s_%d", l.ID, t), idx.Q[l.ID][t], dh, pts)
			}
		case epanet.Pump:
			pts, err := PumpPoints(net.Curves[l.HeadCurve], opts.Segments)
			if err != nil {
				return nil, nil, fmt.Errorf("pump %s: %w", l.ID, err)
			}
			for t := range T {
				gain := m.MustVar(fmt.Sprintf("PumpHeadGain_%s_%d", l.ID, t), 0, math.Inf(1), lpmodel.Continuous)
				idx.Gain[l.ID] = append(idx.Gain[l.ID], gain)
				b.pwl(fmt.Sprintf("pwl_pump_%s_%d", l.ID, t), idx.Q[l.ID][t], gain, pts)

				s := idx.Status[l.ID][t]
				b.con(fmt.Sprintf("PumpStatusFlow_%s_%d", l.ID, t), []lpmodel.Term{
					{Var: idx.Q[l.ID][t], Coef: 1}, {Var: s, Coef: -opts.MaxFlow},
				}, lpmodel.LE, 0)
				// H_to − H_from − gain within ±M(1 − status)
				diff := []lpmodel.Term{
					{Var: idx.H[l.To][t], Coef: 1},
					{Var: idx.H[l.From][t], Coef: -1},
					{Var: gain, Coef: -1},
				}
				b.con(fmt.Sprintf("PumpHeadCoup1_%s_%d", l.ID, t),
					append(diff, lpmodel.Term{Var: s, Coef: -opts.BigM}), lpmodel.GE, -opts.BigM)
				b.con(fmt.Sprintf("PumpHeadCoup2_%s_%d", l.ID, t),
					append(diff, lpmodel.Term{Var: s, Coef: opts.BigM}), lpmodel.LE, opts.BigM)
			}
		}
	}
	if b.err != nil {
		return nil, nil, b.err
	}

	var obj []lpmodel.Term
	for t := range T {
		for _, id := range net.PumpIDs() {
			obj = append(obj, lpmodel.Term{Var: idx.Q[id][t], Coef: opts.FlowCost})
		}
		for _, id := range net.JunctionIDs() {
			obj = append(obj,
				lpmodel.Term{Var: idx.SlackPos[id][t], Coef: opts.SlackCost},
				lpmodel.Term{Var: idx.SlackNeg[id][t], Coef: opts.SlackCost})
		}
	}
	if err := m.SetObjective(obj, 0); err != nil {
		return nil, nil, err
	}
	return m, idx, nil
}

type LinkFlow struct {
	Link     string  `json:"link"`
	Time     int     `json:"time"`
	FlowRate float64 `json:"flow_rate"`
}

type NodeHead struct {
	Node string  `json:"node"`
	Time int     `json:"time"`
	Head float64 `json:"head"`
}

type PumpState struct {
	Pump   string `json:"pump"`
	Time   int    `json:"time"`
	Status int    `json:"status"`
}

type Slack struct {
	Node  string  `json:"node"`
	Time  int     `json:"time"`
	Value float64 `json:"value"`
}

type OptimizationSummary struct {
	RunID                string   `json:"run_id"`
	SolverStatus         string   `json:"solver_status"`
	TerminationCondition string   `json:"termination_condition"`
	ObjectiveValue       *float64 `json:"objective_value"`
	SolverTime           float64  `json:"solver_time_s"`
	NumVariables         int      `json:"num_variables"`
	NumConstraints       int      `json:"num_constraints"`
	Nodes                int      `json:"branch_nodes"`
}

// Optimization is the extracted MILP solution. Slacks are listed only
// at points where either side exceeds 1e-6.
type Optimization struct {
	Status     lpmodel.Status
	Objective  float64
	Flows      []LinkFlow
	Heads      []NodeHead
	PumpStatus []PumpState
	SlackPos   []Slack
	SlackNeg   []Slack
	Summary    OptimizationSummary
}

// Optimize builds and solves the MILP. A solve that ends without a usable
// point still returns the summary alongside the error.
func Optimize(ctx context.Context, net *epanet.Network, opts OptimizeOptions) (*Optimization, error) {
	opts = opts.withDefaults()
	m, idx, err := BuildMILP(net, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sol, solveErr := m.SolveMILP(ctx, opts.Solver)
	if sol == nil {
		return nil, solveErr
	}
	out := &Optimization{
		Status: sol.Status,
		Summary: OptimizationSummary{
			SolverStatus:         solverStatus(sol.Status),
			TerminationCondition: sol.Status.String(),
			SolverTime:           time.Since(start).Seconds(),
			NumVariables:         m.NumVars(),
			NumConstraints:       m.NumConstraints(),
			Nodes:                sol.Nodes,
		},
	}
	if solveErr != nil {
		return out, fmt.Errorf("solve %s: %w", m.Name, solveErr)
	}

	out.Objective = sol.Objective
	obj := sol.Objective
	out.Summary.ObjectiveValue = &obj
	r4 := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	for _, l := range net.Links {
		for t := range idx.T {
			out.Flows = append(out.Flows, LinkFlow{Link: l.ID, Time: t, FlowRate: r4(sol.Value(idx.Q[l.ID][t]))})
		}
	}
	for _, n := range net.Nodes {
		for t := range idx.T {
			out.Heads = append(out.Heads, NodeHead{Node: n.ID, Time: t, Head: r4(sol.Value(idx.H[n.ID][t]))})
		}
	}
	for _, id := range net.PumpIDs() {
		for t := range idx.T {
			out.PumpStatus = append(out.PumpStatus, PumpState{Pump: id, Time: t, Status: int(math.Round(sol.Value(idx.Status[id][t])))})
		}
	}
	for _, id := range net.JunctionIDs() {
		for t := range idx.T {
			pos, neg := sol.Value(idx.SlackPos[id][t]), sol.Value(idx.SlackNeg[id][t])
			if pos > 1e-6 || neg > 1e-6 {
				out.SlackPos = append(out.SlackPos, Slack{Node: id, Time: t, Value: pos})
				out.SlackNeg = append(out.SlackNeg, Slack{Node: id, Time: t, Value: neg})
			}
		}
	}
	return out, nil
}

func solverStatus(s lpmodel.Status) string {
	switch s {
	case lpmodel.Optimal, lpmodel.Feasible:
		return "ok"
	case lpmodel.Infeasible, lpmodel.Unbounded, lpmodel.LimitReached:
		return "warning"
	default:
		return "error"
	}
}

// SaveOptimization writes flows, heads, pump status and any non-zero
// slacks as CSV plus summary.json. The summary takes the run id.
func SaveOptimization(run *storage.Run, o *Optimization) error {
	f := storage.FormatFloat
	if len(o.Flows) > 0 {
		rows := make([][]string, len(o.Flows))
		for i, r := range o.Flows {
			rows[i] = []string{r.Link, strconv.Itoa(r.Time), f(r.FlowRate)}
		}
		if err := run.WriteRecords("flows.csv", []string{"link", "time", "flow_rate"}, rows); err != nil {
			return err
		}
	}
	if len(o.Heads) > 0 {
		rows := make([][]string, len(o.Heads))
		for i, r := range o.Heads {
			rows[i] = []string{r.Node, strconv.Itoa(r.Time), f(r.Head)}
		}
		if err := run.WriteRecords("heads.csv", []string{"node", "time", "head"}, rows); err != nil {
			return err
		}
	}
	if len(o.PumpStatus) > 0 {
		rows := make([][]string, len(o.PumpStatus))
		for i, r := range o.PumpStatus {
			rows[i] = []string{r.Pump, strconv.Itoa(r.Time), strconv.Itoa(r.Status)}
		}
		if err := run.WriteRecords("pump_status.csv", []string{"pump", "time", "status"}, rows); err != nil {
			return err
		}
	}
	for name, slacks := range map[string][]Slack{"slack_pos.csv": o.SlackPos, "slack_neg.csv": o.SlackNeg} {
		if len(slacks) == 0 {
			continue
		}
		rows := make([][]string, len(slacks))
		for i, r := range slacks {
			rows[i] = []string{r.Node, strconv.Itoa(r.Time), f(r.Value)}
		}
		if err := run.WriteRecords(name, []string{"node", "time", "value"}, rows); err != nil {
			return err
		}
	}
	o.Summary.RunID = run.ID
	return run.WriteJSON("summary.json", o.Summary)
}
