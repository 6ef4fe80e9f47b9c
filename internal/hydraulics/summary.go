package hydraulics

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/fieldlab/internal/epanet"
	"github.com/san-kum/fieldlab/internal/storage"
)

// DefaultPressureThreshold is the minimum service pressure in metres.
const DefaultPressureThreshold = 20.0

type PressureStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

type FlowStats struct {
	MaxFlowrate  float64 `json:"max_flowrate_m3s"`
	MaxVelocity  float64 `json:"max_velocity_ms"`
	MeanVelocity float64 `json:"mean_velocity_ms"`
}

type Metrics struct {
	Pressure            *PressureStats `json:"pressure,omitempty"`
	ServiceSatisfaction float64        `json:"service_satisfaction"`
	CriticalNodes       []string       `json:"critical_nodes"`
	NumCriticalNodes    int            `json:"num_critical_nodes"`
	Flow                *FlowStats     `json:"flow,omitempty"`
	TotalDemand         float64        `json:"total_demand_m3"`
}

type NetworkInfo struct {
	NumNodes           int     `json:"num_nodes"`
	NumLinks           int     `json:"num_links"`
	NumJunctions       int     `json:"num_junctions"`
	NumTanks           int     `json:"num_tanks"`
	NumReservoirs      int     `json:"num_reservoirs"`
	NumPipes           int     `json:"num_pipes"`
	NumPumps           int     `json:"num_pumps"`
	NumValves          int     `json:"num_valves"`
	DurationHours      float64 `json:"duration_hours"`
	HydraulicStepHours float64 `json:"hydraulic_timestep_hours"`
	QualityStepHours   float64 `json:"quality_timestep_hours"`
	PatternStepHours   float64 `json:"pattern_timestep_hours"`
	ReportStepHours    float64 `json:"report_timestep_hours"`
}

type Summary struct {
	RunID     string      `json:"run_id"`
	Timestamp time.Time   `json:"timestamp"`
	Network   NetworkInfo `json:"network"`
	Metrics   Metrics     `json:"metrics"`
}

func Info(net *epanet.Network) NetworkInfo {
	return NetworkInfo{
		NumNodes:           len(net.Nodes),
		NumLinks:           len(net.Links),
		NumJunctions:       len(net.JunctionIDs()),
		NumTanks:           len(net.TankIDs()),
		NumReservoirs:      len(net.ReservoirIDs()),
		NumPipes:           len(net.PipeIDs()),
		NumPumps:           len(net.PumpIDs()),
		NumValves:          len(net.ValveIDs()),
		DurationHours:      net.Times.Duration.Hours(),
		HydraulicStepHours: net.Times.HydraulicStep.Hours(),
		QualityStepHours:   net.Times.QualityStep.Hours(),
		PatternStepHours:   net.Times.PatternStep.Hours(),
		ReportStepHours:    net.Times.ReportStep.Hours(),
	}
}

// Summarize computes service and flow metrics over junctions and pipes.
// A threshold of zero uses DefaultPressureThreshold.
func Summarize(net *epanet.Network, res *Results, threshold float64) Metrics {
	if threshold == 0 {
		threshold = DefaultPressureThreshold
	}
	m := Metrics{CriticalNodes: []string{}}

	junctions := net.JunctionIDs()
	if len(junctions) > 0 && len(res.Times) > 0 {
		ps := PressureStats{Min: math.Inf(1), Max: math.Inf(-1)}
		var sum, stds float64
		above, total := 0, 0
		for _, id := range junctions {
			p, _ := res.NodeSeries(res.Pressure, id)
			lo, hi := floats.Min(p), floats.Max(p)
			ps.Min = math.Min(ps.Min, lo)
			ps.Max = math.Max(ps.Max, hi)
			sum += floats.Sum(p)
			if len(p) > 1 {
				stds += stat.StdDev(p, nil)
			}
			for _, v := range p {
				if v >= threshold {
					above++
				}
			}
			total += len(p)
			if lo < threshold {
				m.CriticalNodes = append(m.CriticalNodes, id)
			}

			d, _ := res.NodeSeries(res.Demand, id)
			for _, v := range d {
				if v > 0 {
					m.TotalDemand += v
				}
			}
		}
		ps.Mean = sum / float64(total)
		ps.Std = stds / float64(len(junctions))
		m.Pressure = &ps
		m.ServiceSatisfaction = float64(above) / float64(total)
		m.NumCriticalNodes = len(m.CriticalNodes)
	}

	pipes := net.PipeIDs()
	if len(pipes) > 0 && len(res.Times) > 0 {
		var fs FlowStats
		var vsum float64
		n := 0
		for _, id := range pipes {
			q, _ := res.LinkSeries(res.Flow, id)
			v, _ := res.LinkSeries(res.Velocity, id)
			for t := range q {
				fs.MaxFlowrate = math.Max(fs.MaxFlowrate, math.Abs(q[t]))
				fs.MaxVelocity = math.Max(fs.MaxVelocity, math.Abs(v[t]))
				vsum += math.Abs(v[t])
				n++
			}
		}
		fs.MeanVelocity = vsum / float64(n)
		m.Flow = &fs
	}
	return m
}

// Comparison holds agreement metrics between an optimised and a simulated
// series.
type Comparison struct {
	N             int     `json:"n"`
	MAE           float64 `json:"mae"`
	MaxDiff       float64 `json:"max_diff"`
	MaxRelErrPct  float64 `json:"max_rel_err_pct"`
	MeanRelErrPct float64 `json:"mean_rel_err_pct"`
	Correlation   float64 `json:"correlation"`

	absDiff []float64
	relErr  []float64
}

// CompareSeries truncates both series to the shorter length. Relative
// error is undefined where |sim| < 1e-6 and is left out of the
// percentages.
func CompareSeries(opt, sim []float64) Comparison {
	n := min(len(opt), len(sim))
	opt, sim = opt[:n], sim[:n]
	c := Comparison{N: n, absDiff: make([]float64, n), relErr: make([]float64, n)}
	if n == 0 {
		return c
	}

	var relSum float64
	rels := 0
	for i := range n {
		d := math.Abs(opt[i] - sim[i])
		c.absDiff[i] = d
		c.MAE += d
		c.MaxDiff = math.Max(c.MaxDiff, d)
		if math.Abs(sim[i]) < 1e-6 {
			c.relErr[i] = math.NaN()
			continue
		}
		r := d / math.Abs(sim[i])
		c.relErr[i] = r
		c.MaxRelErrPct = math.Max(c.MaxRelErrPct, 100*r)
		relSum += r
		rels++
	}
	c.MAE /= float64(n)
	if rels > 0 {
		c.MeanRelErrPct = 100 * relSum / float64(rels)
	}

	_, sdOpt := stat.PopMeanStdDev(opt, nil)
	_, sdSim := stat.PopMeanStdDev(sim, nil)
	switch {
	case sdOpt > 1e-9 && sdSim > 1e-9:
		c.Correlation = stat.Correlation(opt, sim, nil)
	case allClose(opt, sim):
		c.Correlation = 1
	}
	return c
}

// Failures lists the points whose relative error exceeds relTol while
// the absolute difference exceeds absTol.
func (c Comparison) Failures(relTol, absTol float64) []int {
	var idx []int
	for i, r := range c.relErr {
		if !math.IsNaN(r) && r > relTol && c.absDiff[i] > absTol {
			idx = append(idx, i)
		}
	}
	return idx
}

func allClose(a, b []float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-8+1e-5*math.Abs(b[i]) {
			return false
		}
	}
	return true
}

func (r *Results) timeLabels() []string {
	out := make([]string, len(r.Times))
	for i, t := range r.Times {
		out[i] = storage.FormatFloat(t.Seconds())
	}
	return out
}

func (r *Results) matrix(rel string, ids []string, rows [][]float64, run *storage.Run) error {
	header := append([]string{"time_s"}, ids...)
	times := r.timeLabels()
	recs := make([][]string, len(rows))
	for t, row := range rows {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, times[t])
		for _, v := range row {
			rec = append(rec, storage.FormatFloat(v))
		}
		recs[t] = rec
	}
	return run.WriteRecords(rel, header, recs)
}

// Save writes nodes/{pressure,head,demand}.csv, links/{flowrate,velocity}.csv
// and summary.json into run.
func Save(run *storage.Run, res *Results, s Summary) error {
	outputs := []struct {
		rel  string
		ids  []string
		rows [][]float64
	}{
		{"nodes/pressure.csv", res.NodeIDs, res.Pressure},
		{"nodes/head.csv", res.NodeIDs, res.Head},
		{"nodes/demand.csv", res.NodeIDs, res.Demand},
		{"links/flowrate.csv", res.LinkIDs, res.Flow},
		{"links/velocity.csv", res.LinkIDs, res.Velocity},
	}
	for _, o := range outputs {
		if err := res.matrix(o.rel, slices.Clone(o.ids), o.rows, run); err != nil {
			return err
		}
	}
	return run.WriteJSON("summary.json", s)
}
