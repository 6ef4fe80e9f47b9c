package hydraulics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fieldlab/internal/epanet"
)

const (
	PipeBreak   = "pipe_break"
	DemandSurge = "demand_surge"
	PumpFailure = "pump_failure"

	Baseline = "baseline"
)

// Scenario is a disturbance applied to a copy of the network before
// simulation.
type Scenario struct {
	Name       string        `yaml:"name"`
	Type       string        `yaml:"type"`
	Pipe       string        `yaml:"pipe_name,omitempty"`
	Node       string        `yaml:"node_name,omitempty"`
	Pump       string        `yaml:"pump_name,omitempty"`
	Start      time.Duration `yaml:"start_time,omitempty"`
	End        time.Duration `yaml:"end_time,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
}

// Apply returns a modified copy of net. Unknown types leave the copy
// untouched.
func (sc Scenario) Apply(net *epanet.Network) (*epanet.Network, error) {
	out := net.Clone()
	switch sc.Type {
	case PipeBreak:
		l, ok := out.Link(sc.Pipe)
		if !ok || l.Kind != epanet.Pipe {
			return nil, fmt.Errorf("scenario %s: no pipe %q", sc.Name, sc.Pipe)
		}
		if sc.End > 0 && sc.End <= sc.Start {
			return nil, fmt.Errorf("scenario %s: break ends at %v before it starts at %v", sc.Name, sc.End, sc.Start)
		}
		breakPipe(out, l, sc.Start, sc.End)
	case DemandSurge:
		n, ok := out.Node(sc.Node)
		if !ok || n.Kind != epanet.Junction {
			return nil, fmt.Errorf("scenario %s: no junction %q", sc.Name, sc.Node)
		}
		m := sc.Multiplier
		if m == 0 {
			m = 2
		}
		for i := range n.Demands {
			n.Demands[i].Base *= m
		}
	case PumpFailure:
		id := sc.Pump
		if id == "" {
			pumps := out.PumpIDs()
			if len(pumps) == 0 {
				return nil, fmt.Errorf("scenario %s: network has no pumps", sc.Name)
			}
			id = pumps[0]
		}
		l, ok := out.Link(id)
		if !ok || l.Kind != epanet.Pump {
			return nil, fmt.Errorf("scenario %s: no pump %q", sc.Name, id)
		}
		l.Status = epanet.Closed
	}
	return out, nil
}

// breakPipe closes l for the whole run, or within [start, end) when a
// window is given.
func breakPipe(net *epanet.Network, l *epanet.Link, start, end time.Duration) {
	if start <= 0 && end <= 0 {
		l.Status = epanet.Closed
		return
	}
	net.Closures = append(net.Closures, epanet.Closure{Link: l.ID, From: start, To: end})
}

// ScenarioResult pairs a scenario with its simulation. Results is nil
// when the scenario failed.
type ScenarioResult struct {
	Scenario Scenario
	Results  *Results
	Err      error
}

// RunScenarios simulates the baseline and every scenario in parallel. A
// failed scenario is logged and reported with nil Results; only a failed
// baseline is returned as an error.
func RunScenarios(ctx context.Context, net *epanet.Network, scenarios []Scenario, opts Options, workers int) ([]ScenarioResult, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	base, err := Simulate(ctx, net, opts)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	out := make([]ScenarioResult, len(scenarios)+1)
	out[0] = ScenarioResult{Scenario: Scenario{Name: Baseline}, Results: base}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, sc := range scenarios {
		g.Go(func() error {
			res, err := runScenario(gctx, net, sc, opts)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.Warn("scenario failed", zap.String("scenario", sc.Name), zap.String("type", sc.Type), zap.Error(err))
			}
			out[i+1] = ScenarioResult{Scenario: sc, Results: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func runScenario(ctx context.Context, net *epanet.Network, sc Scenario, opts Options) (*Results, error) {
	mod, err := sc.Apply(net)
	if err != nil {
		return nil, err
	}
	opts.Logger = opts.Logger.With(zap.String("scenario", sc.Name))
	return Simulate(ctx, mod, opts)
}
