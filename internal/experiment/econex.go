package experiment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/fieldlab/internal/config"
	"github.com/san-kum/fieldlab/internal/econex"
	"github.com/san-kum/fieldlab/internal/epanet"
	"github.com/san-kum/fieldlab/internal/hydraulics"
	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/telemetry"
)

const (
	RunLogFile      = "run.log"
	ConfigFile      = "config.yaml"
	NetworkInfoFile = "network_info.json"
)

// EcoNex solves the water-energy nexus LP for the configured network and
// stores the solution tables.
func (e *Experiment) EcoNex(ctx context.Context, cfg *config.EcoNex) (*econex.Solution, *storage.Run, error) {
	data, err := econex.NewData(cfg.Network)
	if err != nil {
		return nil, nil, e.fail(PipelineEconex, err)
	}
	now := e.clock.Now()
	run, err := e.store.CreateRun(storage.EconexRunName(now))
	if err != nil {
		return nil, nil, e.fail(PipelineEconex, err)
	}
	log, closeLog, err := telemetry.WithFile(e.logger, run.Path(RunLogFile))
	if err != nil {
		return nil, run, e.fail(PipelineEconex, err)
	}
	defer closeLog()
	log = log.With(zap.String("run", run.ID))
	meta := storage.NewMetadata(run, PipelineEconex)

	end := e.stage(PipelineEconex, "lp_solve")
	sol, err := econex.Solve(ctx, data)
	end()
	if err != nil {
		log.Error("econex solve failed", zap.Error(err))
		return nil, run, e.fail(PipelineEconex, err)
	}
	e.metrics.LPSolve(sol.Status.String(), 0)
	log.Info("econex solved",
		zap.Stringer("status", sol.Status),
		zap.Float64("objective", sol.Objective),
		zap.Int("variables", sol.NumVariables),
		zap.Int("constraints", sol.NumConstraints))

	if err := run.WriteYAML(ConfigFile, cfg); err != nil {
		return sol, run, e.fail(PipelineEconex, err)
	}
	if err := econex.Save(run, sol, now); err != nil {
		return sol, run, e.fail(PipelineEconex, err)
	}
	meta.Metrics["objective"] = sol.Objective
	if err := e.finish(run, meta, ""); err != nil {
		return sol, run, e.fail(PipelineEconex, err)
	}
	return sol, run, nil
}

// Hydraulic solves the pump scheduling MILP on an EPANET network. A solve
// that stops without a solution still writes its summary.
func (e *Experiment) Hydraulic(ctx context.Context, cfg *config.Hydraulic) (*hydraulics.Optimization, *storage.Run, error) {
	net, err := epanet.ParseFile(cfg.InpFile)
	if err != nil {
		return nil, nil, e.fail(PipelineHydraulic, err)
	}
	run, err := e.store.CreateRun(storage.EconexRunName(e.clock.Now()))
	if err != nil {
		return nil, nil, e.fail(PipelineHydraulic, err)
	}
	log, closeLog, err := telemetry.WithFile(e.logger, run.Path(RunLogFile))
	if err != nil {
		return nil, run, e.fail(PipelineHydraulic, err)
	}
	defer closeLog()
	log = log.With(zap.String("run", run.ID), zap.String("network", filepath.Base(cfg.InpFile)))
	meta := storage.NewMetadata(run, PipelineHydraulic)

	if err := copyInput(run, cfg.InpFile); err != nil {
		return nil, run, e.fail(PipelineHydraulic, err)
	}
	if err := run.WriteJSON(NetworkInfoFile, hydraulics.Info(net)); err != nil {
		return nil, run, e.fail(PipelineHydraulic, err)
	}
	if err := run.WriteYAML(ConfigFile, cfg); err != nil {
		return nil, run, e.fail(PipelineHydraulic, err)
	}

	end := e.stage(PipelineHydraulic, "milp_solve")
	opt, solveErr := hydraulics.Optimize(ctx, net, cfg.OptimizeOptions())
	end()
	if opt == nil {
		return nil, run, e.fail(PipelineHydraulic, solveErr)
	}
	e.metrics.LPSolve(opt.Status.String(), opt.Summary.Nodes)
	if err := hydraulics.SaveOptimization(run, opt); err != nil {
		return opt, run, e.fail(PipelineHydraulic, err)
	}
	if solveErr != nil {
		log.Warn("milp ended without a solution", zap.Stringer("status", opt.Status), zap.Error(solveErr))
		return opt, run, e.fail(PipelineHydraulic, solveErr)
	}
	log.Info("milp solved",
		zap.Stringer("status", opt.Status),
		zap.Float64("objective", opt.Objective),
		zap.Int("nodes", opt.Summary.Nodes),
		zap.Int("slack_points", len(opt.SlackPos)))

	meta.Metrics["objective"] = opt.Objective
	meta.Metrics["branch_nodes"] = float64(opt.Summary.Nodes)
	if err := e.finish(run, meta, ""); err != nil {
		return opt, run, e.fail(PipelineHydraulic, err)
	}
	return opt, run, nil
}

type ScenarioSummary struct {
	Scenario hydraulics.Scenario
	Summary  *hydraulics.Summary
	Err      error
}

type SimulationRun struct {
	Run       *storage.Run
	Scenarios []ScenarioSummary
}

// Simulate runs the baseline and every scenario through the hydraulic
// solver. Each result lands in a subdirectory named after its scenario.
// Failed scenarios are reported but do not fail the run.
func (e *Experiment) Simulate(ctx context.Context, cfg *config.Simulation) (*SimulationRun, error) {
	net, err := epanet.ParseFile(cfg.InpFile)
	if err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}
	run, err := e.store.CreateRun(storage.EconexRunName(e.clock.Now()))
	if err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}
	log, closeLog, err := telemetry.WithFile(e.logger, run.Path(RunLogFile))
	if err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}
	defer closeLog()
	log = log.With(zap.String("run", run.ID))
	meta := storage.NewMetadata(run, PipelineSimulation)

	for _, sc := range cfg.Scenarios {
		if !e.registry.KnownScenario(sc.Type) {
			log.Warn("unknown scenario type, network left unchanged", zap.String("scenario", sc.Name), zap.String("type", sc.Type))
		}
	}
	if err := copyInput(run, cfg.InpFile); err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}
	if err := run.WriteYAML(ConfigFile, cfg); err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}

	end := e.stage(PipelineSimulation, "scenarios")
	opts := hydraulics.Options{MaxTrials: cfg.MaxTrials, Accuracy: cfg.Accuracy, Logger: log}
	results, err := hydraulics.RunScenarios(ctx, net, cfg.Scenarios, opts, e.workers)
	end()
	if err != nil {
		return nil, e.fail(PipelineSimulation, err)
	}

	info := hydraulics.Info(net)
	out := &SimulationRun{Run: run}
	failed := 0
	for _, r := range results {
		e.metrics.Scenario(r.Err == nil)
		ss := ScenarioSummary{Scenario: r.Scenario, Err: r.Err}
		if r.Err != nil || r.Results == nil {
			failed++
			out.Scenarios = append(out.Scenarios, ss)
			continue
		}
		ss.Summary = &hydraulics.Summary{
			RunID:     run.ID,
			Timestamp: e.clock.Now(),
			Network:   info,
			Metrics:   hydraulics.Summarize(net, r.Results, cfg.PressureThreshold),
		}
		if err := hydraulics.Save(run.Sub(scenarioDir(r.Scenario.Name)), r.Results, *ss.Summary); err != nil {
			return out, e.fail(PipelineSimulation, err)
		}
		log.Info("scenario simulated",
			zap.String("scenario", r.Scenario.Name),
			zap.Float64("service_satisfaction", ss.Summary.Metrics.ServiceSatisfaction),
			zap.Int("critical_nodes", ss.Summary.Metrics.NumCriticalNodes))
		out.Scenarios = append(out.Scenarios, ss)
	}

	meta.Metrics["scenarios"] = float64(len(results))
	meta.Metrics["scenarios_failed"] = float64(failed)
	if err := e.finish(run, meta, ""); err != nil {
		return out, e.fail(PipelineSimulation, err)
	}
	return out, nil
}

func scenarioDir(name string) string {
	if name == "" {
		return "unnamed"
	}
	return filepath.Base(filepath.Clean("/" + name))
}

// copyInput stores the source network file next to the results.
func copyInput(run *storage.Run, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("copy input: %w", err)
	}
	defer src.Close()
	return run.WriteWith(filepath.Base(path), func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}
