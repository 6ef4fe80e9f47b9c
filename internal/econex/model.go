package econex

import (
	"fmt"
	"math"

	"github.com/san-kum/fieldlab/internal/lpmodel"
)

// Index locates the decision variables of a built model. Time runs
// from 1 to T and slices are indexed t-1.
type Index struct {
	Flow      map[Arc]map[Layer][]int
	Storage   map[int]map[Layer][]int
	Import    []int
	Export    []int
	Municipal []int
	TreatIn   []int
	TreatOut  []int
	Pump      map[int][]int
}

// Build assembles the cost-minimizing network flow LP.
func Build(d *Data) (*lpmodel.Model, *Index, error) {
	m := lpmodel.NewModel("EcoNex_Network_Flow")
	inf := math.Inf(1)
	idx := &Index{
		Flow:    make(map[Arc]map[Layer][]int, len(d.Arcs)),
		Storage: make(map[int]map[Layer][]int, len(d.Nodes)),
		Pump:    make(map[int][]int, len(d.Nodes)),
	}

	for _, a := range d.Arcs {
		idx.Flow[a] = make(map[Layer][]int, len(d.Layers))
		for _, l := range d.Layers {
			for t := 1; t <= d.T; t++ {
				v := m.MustVar(fmt.Sprintf("x_%d_%d_%s_%d", a.From, a.To, l, t), 0, d.ArcCap(a, l), lpmodel.Continuous)
				idx.Flow[a][l] = append(idx.Flow[a][l], v)
			}
		}
	}
	for _, n := range d.Nodes {
		idx.Storage[n] = make(map[Layer][]int, len(d.Layers))
		for _, l := range d.Layers {
			for t := 1; t <= d.T; t++ {
				v := m.MustVar(fmt.Sprintf("h_%d_%s_%d", n, l, t), 0, d.StorageCap(n, l), lpmodel.Continuous)
				idx.Storage[n][l] = append(idx.Storage[n][l], v)
			}
		}
		for t := 1; t <= d.T; t++ {
			idx.Pump[n] = append(idx.Pump[n], m.MustVar(fmt.Sprintf("pump_%d_%d", n, t), 0, inf, lpmodel.Continuous))
		}
	}
	for t := 1; t <= d.T; t++ {
		idx.Import = append(idx.Import, m.MustVar(fmt.Sprintf("grid_import_%d", t), 0, inf, lpmodel.Continuous))
		idx.Export = append(idx.Export, m.MustVar(fmt.Sprintf("grid_export_%d", t), 0, inf, lpmodel.Continuous))
		idx.Municipal = append(idx.Municipal, m.MustVar(fmt.Sprintf("municipal_%d", t), 0, inf, lpmodel.Continuous))
		idx.TreatIn = append(idx.TreatIn, m.MustVar(fmt.Sprintf("treatment_in_%d", t), 0, d.TreatmentCap, lpmodel.Continuous))
		idx.TreatOut = append(idx.TreatOut, m.MustVar(fmt.Sprintf("treatment_out_%d", t), 0, inf, lpmodel.Continuous))
	}

	// inflow + h[t-1] + external in + D = outflow + h[t] + external out + pump
	for _, n := range d.Nodes {
		for _, l := range d.Layers {
			for t := 1; t <= d.T; t++ {
				var terms []lpmodel.Term
				for _, a := range d.Arcs {
					switch n {
					case a.To:
						terms = append(terms, lpmodel.Term{Var: idx.Flow[a][l][t-1], Coef: 1})
					case a.From:
						terms = append(terms, lpmodel.Term{Var: idx.Flow[a][l][t-1], Coef: -1})
					}
				}
				if t > 1 {
					terms = append(terms, lpmodel.Term{Var: idx.Storage[n][l][t-2], Coef: 1})
				}
				terms = append(terms, lpmodel.Term{Var: idx.Storage[n][l][t-1], Coef: -1})
				if n == d.Hub {
					switch l {
					case Energy:
						terms = append(terms,
							lpmodel.Term{Var: idx.Import[t-1], Coef: 1},
							lpmodel.Term{Var: idx.Export[t-1], Coef: -1})
					case Potable:
						terms = append(terms,
							lpmodel.Term{Var: idx.Municipal[t-1], Coef: 1},
							lpmodel.Term{Var: idx.TreatOut[t-1], Coef: 1})
					case Waste:
						terms = append(terms, lpmodel.Term{Var: idx.TreatIn[t-1], Coef: -1})
					}
				}
				if l == Energy {
					terms = append(terms, lpmodel.Term{Var: idx.Pump[n][t-1], Coef: -1})
				}
				name := fmt.Sprintf("mass_balance_%d_%s_%d", n, l, t)
				if err := m.AddConstraint(name, terms, lpmodel.EQ, -d.NetDemand.At(n, l, t)); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	for t := 1; t <= d.T; t++ {
		err := m.AddConstraint(fmt.Sprintf("treatment_coupling_%d", t), []lpmodel.Term{
			{Var: idx.TreatOut[t-1], Coef: 1},
			{Var: idx.TreatIn[t-1], Coef: -d.Eta},
		}, lpmodel.EQ, 0)
		if err != nil {
			return nil, nil, err
		}
	}

	for _, n := range d.Nodes {
		for t := 1; t <= d.T; t++ {
			terms := []lpmodel.Term{{Var: idx.Pump[n][t-1], Coef: 1}}
			for _, a := range d.Arcs {
				if a.From != n {
					continue
				}
				for _, l := range []Layer{Potable, Waste} {
					if vars, ok := idx.Flow[a][l]; ok {
						terms = append(terms, lpmodel.Term{Var: vars[t-1], Coef: -d.K})
					}
				}
			}
			if err := m.AddConstraint(fmt.Sprintf("pumping_coupling_%d_%d", n, t), terms, lpmodel.GE, 0); err != nil {
				return nil, nil, err
			}
		}
	}

	var obj []lpmodel.Term
	for t := 1; t <= d.T; t++ {
		obj = append(obj,
			lpmodel.Term{Var: idx.Import[t-1], Coef: d.Prices[t-1]},
			lpmodel.Term{Var: idx.Export[t-1], Coef: -d.Costs.ExportCredit},
			lpmodel.Term{Var: idx.Municipal[t-1], Coef: d.Costs.Municipal},
			lpmodel.Term{Var: idx.TreatIn[t-1], Coef: d.Costs.Treatment},
		)
	}
	for _, a := range d.Arcs {
		for _, l := range d.Layers {
			for _, v := range idx.Flow[a][l] {
				obj = append(obj, lpmodel.Term{Var: v, Coef: d.Costs.Transfer})
			}
		}
	}
	if err := m.SetObjective(obj, 0); err != nil {
		return nil, nil, err
	}
	return m, idx, nil
}
