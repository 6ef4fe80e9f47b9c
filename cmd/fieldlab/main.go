package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fieldlab/internal/config"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/experiment"
	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/telemetry"
)

var (
	dataDir    string
	logLevel   string
	workers    int
	configFile string
	preset     string
	model      string
	// turbulence overrides
	domainLength float64
	points       int
	iterations   int
	scheme       string
	vratio       float64
	seed         uint64
	snapshots    []string
	// sweep axes
	sweepVRatio  []float64
	sweepCourant []float64
	sweepSeeds   []uint
	// hydraulics
	inpFile string
	horizon int

	logger  = zap.NewNop()
	metrics *telemetry.Metrics
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "fieldlab",
		Short:             "active turbulence, rainfall-runoff and water-energy nexus pipelines",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "output directory (default $FIELDLAB_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default $FIELDLAB_LOG_LEVEL)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "parallel workers (default $FIELDLAB_WORKERS or CPU count)")

	turbCmd := &cobra.Command{Use: "turbulence", Short: "PVC active turbulence solver and snapshot analyses"}

	turbRunCmd := &cobra.Command{
		Use:   "run",
		Short: "integrate the vorticity equation",
		Args:  cobra.NoArgs,
		RunE:  runTurbulence,
	}
	turbulenceFlags(turbRunCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search over v_ratio and courant",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	turbulenceFlags(sweepCmd)
	sweepCmd.Flags().Float64SliceVar(&sweepVRatio, "vratios", nil, "v_ratio values")
	sweepCmd.Flags().Float64SliceVar(&sweepCourant, "courants", nil, "courant values")
	sweepCmd.Flags().UintSliceVar(&sweepSeeds, "seeds", nil, "ensemble seeds")

	steadyCmd := &cobra.Command{
		Use:   "steady [run_id]",
		Short: "stream function, velocity and energy spectrum of stored snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  runSteady,
	}
	extremaCmd := &cobra.Command{
		Use:   "extrema [run_id]",
		Short: "vorticity extrema of stored snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtrema,
	}
	hyperCmd := &cobra.Command{
		Use:   "hyperuniform [run_id]",
		Short: "structure factor of the extrema point clouds",
		Args:  cobra.ExactArgs(1),
		RunE:  runHyperuniform,
	}
	for _, c := range []*cobra.Command{steadyCmd, extremaCmd, hyperCmd} {
		c.Flags().StringSliceVar(&snapshots, "snapshots", nil, "iterations or start:end ranges")
	}
	turbCmd.AddCommand(turbRunCmd, sweepCmd, steadyCmd, extremaCmd, hyperCmd)

	rainCmd := &cobra.Command{Use: "rainfall", Short: "copula based rainfall-runoff analysis"}
	rainRunCmd := &cobra.Command{
		Use:   "run",
		Short: "fit copulas and runoff CDFs for every configured station",
		Args:  cobra.NoArgs,
		RunE:  runRainfall,
	}
	rainRunCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	_ = rainRunCmd.MarkFlagRequired("config")
	rainCmd.AddCommand(rainRunCmd)

	econexCmd := &cobra.Command{Use: "econex", Short: "water-energy nexus optimisation and hydraulic simulation"}
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "solve the multi-layer network LP",
		Args:  cobra.NoArgs,
		RunE:  runEconex,
	}
	optimizeCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	hydraulicCmd := &cobra.Command{
		Use:   "hydraulic",
		Short: "solve the pump scheduling MILP on an EPANET network",
		Args:  cobra.NoArgs,
		RunE:  runHydraulic,
	}
	hydraulicCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	hydraulicCmd.Flags().StringVar(&inpFile, "inp", "", "EPANET input file")
	hydraulicCmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "time periods")
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "extended period simulation of the baseline and scenarios",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	simulateCmd.Flags().StringVar(&inpFile, "inp", "", "EPANET input file")
	econexCmd.AddCommand(optimizeCmd, hydraulicCmd, simulateCmd)

	runsCmd := &cobra.Command{Use: "runs", Short: "inspect stored runs"}
	runsCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "list runs", Args: cobra.NoArgs, RunE: listRuns},
		&cobra.Command{Use: "show [run_id]", Short: "show run metadata", Args: cobra.ExactArgs(1), RunE: showRun},
	)

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list turbulence presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "list schemes, copula families, integrators and scenario types",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printRegistry(experiment.NewRegistry())
		},
	}

	rootCmd.AddCommand(turbCmd, rainCmd, econexCmd, runsCmd, presetsCmd, registryCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func turbulenceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&model, "model", "pvc", "preset model")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&domainLength, "length", config.DefaultDomainLength, "domain length")
	cmd.Flags().IntVar(&points, "points", config.DefaultPoints, "collocation points per axis")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "iterations")
	cmd.Flags().StringVar(&scheme, "scheme", config.DefaultScheme, "time stepping scheme")
	cmd.Flags().Float64Var(&vratio, "vratio", config.DefaultVRatio, "negative to positive viscosity ratio")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "initial condition seed")
}

// setup resolves the environment, logger and metrics shared by every
// command. Flags win over the environment.
func setup(cmd *cobra.Command, args []string) error {
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = env.DataDir
	}
	if logLevel == "" {
		logLevel = env.LogLevel
	}
	if workers <= 0 {
		workers = env.Workers
	}
	dynamo.Workers = workers
	if logger, err = telemetry.NewLogger(logLevel); err != nil {
		return err
	}
	if env.Metrics {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}
	return nil
}

func newExperiment() (*experiment.Experiment, error) {
	st := storage.New(dataDir, nil)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return experiment.New(st,
		experiment.WithLogger(logger),
		experiment.WithMetrics(metrics),
		experiment.WithWorkers(workers),
	), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadTurbulence layers defaults, preset, config file and changed flags.
func loadTurbulence(cmd *cobra.Command) (*config.Turbulence, error) {
	cfg := config.DefaultTurbulence()
	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("length") {
		cfg.Discretization.DomainLength = domainLength
	}
	if flags.Changed("points") {
		cfg.Discretization.Points = points
	}
	if flags.Changed("iterations") {
		cfg.Discretization.Iterations = iterations
	}
	if flags.Changed("scheme") {
		cfg.Discretization.Scheme = scheme
	}
	if flags.Changed("vratio") {
		cfg.Physical.VRatio = vratio
	}
	if flags.Changed("seed") {
		cfg.Discretization.Seed = seed
	}
	return cfg, nil
}

func runTurbulence(cmd *cobra.Command, args []string) error {
	cfg, err := loadTurbulence(cmd)
	if err != nil {
		return err
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out, err := e.Turbulence(ctx, cfg)
	if out != nil {
		printTurbulence(out)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadTurbulence(cmd)
	if err != nil {
		return err
	}
	if len(sweepVRatio) > 0 {
		cfg.Sweep.VRatio = sweepVRatio
	}
	if len(sweepCourant) > 0 {
		cfg.Sweep.Courant = sweepCourant
	}
	if len(sweepSeeds) > 0 {
		cfg.Sweep.Seeds = make([]uint64, len(sweepSeeds))
		for i, s := range sweepSeeds {
			cfg.Sweep.Seeds[i] = uint64(s)
		}
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out, err := e.TurbulenceSweep(ctx, cfg)
	if err != nil {
		return err
	}
	printSweep(out)
	return nil
}

func runSteady(cmd *cobra.Command, args []string) error {
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	an, err := e.Steady(ctx, args[0], snapshots)
	if err != nil {
		return err
	}
	fmt.Println(heading.Render("steady state"))
	fmt.Printf("run:       %s\n", args[0])
	fmt.Printf("snapshots: %d\n", len(an.Order))
	return nil
}

func runExtrema(cmd *cobra.Command, args []string) error {
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	found, err := e.Extrema(ctx, args[0], snapshots)
	if err != nil {
		return err
	}
	printExtrema(found)
	return nil
}

func runHyperuniform(cmd *cobra.Command, args []string) error {
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := e.Hyperuniform(ctx, args[0], snapshots)
	if err != nil {
		return err
	}
	printHyperuniform(res)
	return nil
}

func runRainfall(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, config.DefaultRainfall())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out, err := e.Rainfall(ctx, cfg)
	if out != nil {
		printRainfall(out)
	}
	return err
}

func runEconex(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultEcoNex()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile, cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sol, run, err := e.EcoNex(ctx, cfg)
	if err != nil {
		return err
	}
	printEconex(run, sol)
	return nil
}

func runHydraulic(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultHydraulic()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile, cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cmd.Flags().Changed("inp") {
		cfg.InpFile = inpFile
	}
	if cmd.Flags().Changed("horizon") {
		cfg.Horizon = horizon
	}
	if cfg.InpFile == "" {
		return fmt.Errorf("an EPANET input file is required (--inp or inp_file)")
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	opt, run, err := e.Hydraulic(ctx, cfg)
	if opt != nil {
		printOptimization(run, opt)
	}
	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultSimulation()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile, cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cmd.Flags().Changed("inp") {
		cfg.InpFile = inpFile
	}
	if cfg.InpFile == "" {
		return fmt.Errorf("an EPANET input file is required (--inp or inp_file)")
	}
	e, err := newExperiment()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out, err := e.Simulate(ctx, cfg)
	if out != nil {
		printSimulation(out)
	}
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir, nil)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	printRuns(runs)
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir, nil)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	printMetadata(meta)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println(heading.Render("models"))
		for _, m := range config.ListModels() {
			fmt.Printf("  %s\n", m)
		}
		return nil
	}
	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for model: %s\n", args[0])
		return nil
	}
	fmt.Println(heading.Render("presets for " + args[0]))
	for _, p := range presets {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
