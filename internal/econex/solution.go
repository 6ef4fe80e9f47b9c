package econex

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/lpmodel"
	"github.com/san-kum/fieldlab/internal/storage"
)

// Values below this are treated as zero in flow and pumping output.
const reportTol = 1e-6

type Flow struct {
	From, To int
	Layer    Layer
	Time     int
	Value    float64
}

type StorageLevel struct {
	Node  int
	Layer Layer
	Time  int
	Value float64
}

type GridExchange struct {
	Time           int
	Import, Export float64
}

type Treatment struct {
	Time       int
	WasteIn    float64
	PotableOut float64
}

type Pumping struct {
	Node   int
	Time   int
	Energy float64
}

// Solution is the extracted optimum, rounded to 4 decimals.
type Solution struct {
	Status         lpmodel.Status
	Objective      float64
	Flows          []Flow
	Storage        []StorageLevel
	Grid           []GridExchange
	Treatment      []Treatment
	Pumping        []Pumping
	NumVariables   int
	NumConstraints int
	SolveTime      time.Duration
}

// Solve builds and solves the model for d.
func Solve(ctx context.Context, d *Data) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
	}
	m, idx, err := Build(d)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := m.Solve()
	elapsed := time.Since(start)
	if err != nil {
		return &Solution{Status: res.Status, NumVariables: m.NumVars(), NumConstraints: m.NumConstraints(), SolveTime: elapsed},
			fmt.Errorf("solve %s: %w", m.Name, err)
	}

	sol := Extract(d, idx, res)
	sol.NumVariables = m.NumVars()
	sol.NumConstraints = m.NumConstraints()
	sol.SolveTime = elapsed
	return sol, nil
}

// Extract reads the solution values through idx.
func Extract(d *Data, idx *Index, res *lpmodel.Solution) *Solution {
	sol := &Solution{Status: res.Status, Objective: res.Objective}
	val := func(v int) float64 { return round(res.Value(v), 4) }

	for _, a := range d.Arcs {
		for _, l := range d.Layers {
			for t := 1; t <= d.T; t++ {
				x := res.Value(idx.Flow[a][l][t-1])
				if x > reportTol {
					sol.Flows = append(sol.Flows, Flow{From: a.From, To: a.To, Layer: l, Time: t, Value: round(x, 4)})
				}
			}
		}
	}
	for _, n := range d.Nodes {
		for _, l := range d.Layers {
			for t := 1; t <= d.T; t++ {
				sol.Storage = append(sol.Storage, StorageLevel{Node: n, Layer: l, Time: t, Value: val(idx.Storage[n][l][t-1])})
			}
		}
	}
	for t := 1; t <= d.T; t++ {
		sol.Grid = append(sol.Grid, GridExchange{Time: t, Import: val(idx.Import[t-1]), Export: val(idx.Export[t-1])})
		sol.Treatment = append(sol.Treatment, Treatment{Time: t, WasteIn: val(idx.TreatIn[t-1]), PotableOut: val(idx.TreatOut[t-1])})
	}
	for _, n := range d.Nodes {
		for t := 1; t <= d.T; t++ {
			e := res.Value(idx.Pump[n][t-1])
			if e > reportTol {
				sol.Pumping = append(sol.Pumping, Pumping{Node: n, Time: t, Energy: round(e, 4)})
			}
		}
	}
	return sol
}

// Totals are the daily sums reported in the run summary.
type Totals struct {
	Import  float64 `json:"total_grid_import"`
	Export  float64 `json:"total_grid_export"`
	Treated float64 `json:"total_treated"`
}

func (s *Solution) Totals() Totals {
	var tot Totals
	for _, g := range s.Grid {
		tot.Import += g.Import
		tot.Export += g.Export
	}
	for _, t := range s.Treatment {
		tot.Treated += t.WasteIn
	}
	return tot
}

// Summary is written as summary.json.
type Summary struct {
	RunID             string    `json:"run_id"`
	ObjectiveValue    float64   `json:"objective_value"`
	Timestamp         time.Time `json:"timestamp"`
	NumFlows          int       `json:"num_flows"`
	NumStorageEntries int       `json:"num_storage_entries"`
	Totals
}

// SolverMetadata is written as solver.json.
type SolverMetadata struct {
	SolverStatus         string  `json:"solver_status"`
	TerminationCondition string  `json:"termination_condition"`
	ObjectiveValue       float64 `json:"objective_value"`
	NumVariables         int     `json:"num_variables"`
	NumConstraints       int     `json:"num_constraints"`
	SolveTimeSeconds     float64 `json:"solve_time_seconds"`
}

func itoa(i int) string { return strconv.Itoa(i) }

// Save writes the result tables and summaries into run. Empty tables
// are skipped.
func Save(run *storage.Run, s *Solution, at time.Time) error {
	f := storage.FormatFloat

	if len(s.Flows) > 0 {
		rows := make([][]string, len(s.Flows))
		for i, fl := range s.Flows {
			rows[i] = []string{itoa(fl.From), itoa(fl.To), string(fl.Layer), itoa(fl.Time), f(fl.Value)}
		}
		if err := run.WriteRecords("flows.csv", []string{"from", "to", "layer", "time", "value"}, rows); err != nil {
			return err
		}
	}
	if len(s.Storage) > 0 {
		rows := make([][]string, len(s.Storage))
		for i, st := range s.Storage {
			rows[i] = []string{itoa(st.Node), string(st.Layer), itoa(st.Time), f(st.Value)}
		}
		if err := run.WriteRecords("storage.csv", []string{"node", "layer", "time", "value"}, rows); err != nil {
			return err
		}
	}
	if len(s.Grid) > 0 {
		rows := make([][]string, len(s.Grid))
		for i, g := range s.Grid {
			rows[i] = []string{itoa(g.Time), f(g.Import), f(g.Export)}
		}
		if err := run.WriteRecords("grid.csv", []string{"time", "import", "export"}, rows); err != nil {
			return err
		}
	}
	if len(s.Treatment) > 0 {
		rows := make([][]string, len(s.Treatment))
		for i, t := range s.Treatment {
			rows[i] = []string{itoa(t.Time), f(t.WasteIn), f(t.PotableOut)}
		}
		if err := run.WriteRecords("treatment.csv", []string{"time", "waste_in", "potable_out"}, rows); err != nil {
			return err
		}
	}
	if len(s.Pumping) > 0 {
		rows := make([][]string, len(s.Pumping))
		for i, p := range s.Pumping {
			rows[i] = []string{itoa(p.Node), itoa(p.Time), f(p.Energy)}
		}
		if err := run.WriteRecords("pumping.csv", []string{"node", "time", "energy"}, rows); err != nil {
			return err
		}
	}

	summary := Summary{
		RunID:             run.ID,
		ObjectiveValue:    s.Objective,
		Timestamp:         at,
		NumFlows:          len(s.Flows),
		NumStorageEntries: len(s.Storage),
		Totals:            s.Totals(),
	}
	if err := run.WriteJSON("summary.json", summary); err != nil {
		return err
	}
	return run.WriteJSON("solver.json", s.Metadata())
}

func (s *Solution) Metadata() SolverMetadata {
	cond := s.Status.String()
	status := "ok"
	if s.Status != lpmodel.Optimal && s.Status != lpmodel.Feasible {
		status = "warning"
	}
	obj := s.Objective
	if math.IsNaN(obj) {
		obj = 0
	}
	return SolverMetadata{
		SolverStatus:         status,
		TerminationCondition: cond,
		ObjectiveValue:       obj,
		NumVariables:         s.NumVariables,
		NumConstraints:       s.NumConstraints,
		SolveTimeSeconds:     s.SolveTime.Seconds(),
	}
}
