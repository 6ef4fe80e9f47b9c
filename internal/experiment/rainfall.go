package experiment

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/fieldlab/internal/config"
	"github.com/san-kum/fieldlab/internal/copula"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/rainfall"
	"github.com/san-kum/fieldlab/internal/runoff"
	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/telemetry"
)

// Rainfall run layout.
const (
	InputDir       = "01_input_data"
	CopulaDir      = "02_copula_fitting"
	UncertaintyDir = "03_sensitivity__uncertainty_analysis"

	RainfallLogFile        = "00_run_logs.log"
	RainfallMetadataFile   = "00_run_metadata.yaml"
	RainfallParametersFile = "00_experiment_parameters.yaml"
)

type StationResult struct {
	Station  config.Station
	Cleaning rainfall.CleanReport
	Events   int
	Fits     []copula.Fitted
	LambdaV  float64
	LambdaT  float64
	CDF      *dynamo.Table
	Levels   *dynamo.Table
	Spread   []runoff.LevelSummary
	Skipped  bool
}

type RainfallRun struct {
	Run      *storage.Run
	Stations []StationResult
}

// Rainfall runs the copula runoff workflow for every configured station.
// Stations without events are skipped.
func (e *Experiment) Rainfall(ctx context.Context, cfg *config.Rainfall) (*RainfallRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, e.fail(PipelineRainfall, err)
	}
	integ, err := e.registry.GetIntegrator(cfg.Integration.Method, cfg.Integration.Kwargs)
	if err != nil {
		return nil, e.fail(PipelineRainfall, err)
	}
	for _, name := range cfg.CopulaFamilies {
		if _, err := e.registry.GetFamily(name, 0.5); err != nil && isUnknown(err) {
			return nil, e.fail(PipelineRainfall, err)
		}
	}

	names, ids := cfg.StationIDs()
	run, err := e.store.CreateRun(storage.RainfallRunName(names, ids, e.clock.Now()))
	if err != nil {
		return nil, e.fail(PipelineRainfall, err)
	}
	log, closeLog, err := telemetry.WithFile(e.logger, run.Path(RainfallLogFile))
	if err != nil {
		return nil, e.fail(PipelineRainfall, err)
	}
	defer closeLog()
	log = log.With(zap.String("run", run.ID))
	meta := storage.NewMetadata(run, PipelineRainfall)

	engine, err := runoff.NewEngine(cfg.PhysicsModel, cfg.Analysis, integ, e.workers, log)
	if err != nil {
		return nil, e.fail(PipelineRainfall, err)
	}

	out := &RainfallRun{Run: run}
	for _, st := range cfg.Database.Stations {
		stlog := log.With(zap.String("station", st.Name), zap.String("climate_id", st.ID))
		stlog.Info("starting station analysis")

		dir := ""
		if len(cfg.Database.Stations) > 1 {
			dir = fmt.Sprintf("%s - %s", st.Name, st.ID)
		}
		res, err := e.station(ctx, cfg, engine, run, dir, st, stlog)
		if err != nil {
			stlog.Error("station analysis failed", zap.Error(err))
			return out, e.fail(PipelineRainfall, err)
		}
		out.Stations = append(out.Stations, *res)
		meta.Metrics["events_"+st.ID] = float64(res.Events)
		stlog.Info("station analysis completed", zap.Int("events", res.Events), zap.Bool("skipped", res.Skipped))
	}

	if err := run.WriteYAML(RainfallParametersFile, cfg); err != nil {
		return out, e.fail(PipelineRainfall, err)
	}
	if err := e.finish(run, meta, RainfallMetadataFile); err != nil {
		return out, e.fail(PipelineRainfall, err)
	}
	return out, nil
}

func (e *Experiment) station(ctx context.Context, cfg *config.Rainfall, engine *runoff.Engine, run *storage.Run, dir string, st config.Station, log *zap.Logger) (*StationResult, error) {
	res := &StationResult{Station: st}
	path := func(parts ...string) string { return filepath.Join(append([]string{dir}, parts...)...) }

	end := e.stage(PipelineRainfall, "preprocessing")
	records, err := rainfall.LoadSQLite(ctx, cfg.Database.Path, cfg.Database.Table, st.ID)
	if err != nil {
		return nil, err
	}
	cleaned, report := rainfall.Clean(records, cfg.CleanOptions())
	res.Cleaning = report
	log.Info("records cleaned",
		zap.Int("input", report.Input),
		zap.Int("outliers", report.Outliers),
		zap.Int("remaining", report.Remaining))
	events := rainfall.ExtractEvents(cleaned, cfg.Preprocessing.IETD)
	res.Events = len(events)

	if err := run.WriteWith(path(InputDir, "01_hourly_rainfall_data.csv"), func(w io.Writer) error {
		return rainfall.WriteRecordsCSV(w, records)
	}); err != nil {
		return nil, err
	}
	if err := run.WriteWith(path(InputDir, "02_cleaned_hourly_rainfall_data.csv"), func(w io.Writer) error {
		return rainfall.WriteRecordsCSV(w, cleaned)
	}); err != nil {
		return nil, err
	}
	if err := run.WriteWith(path(InputDir, "03_rainfall_events_data.csv"), func(w io.Writer) error {
		return rainfall.WriteEventsCSV(w, events)
	}); err != nil {
		return nil, err
	}
	end()

	if len(events) == 0 {
		log.Warn("no rainfall events, station skipped")
		res.Skipped = true
		return res, nil
	}

	if len(events) < 2 {
		log.Warn("too few rainfall events for copula fitting, station skipped", zap.Int("events", len(events)))
		res.Skipped = true
		return res, nil
	}

	end = e.stage(PipelineRainfall, "copula_fitting")
	volumes, durations := rainfall.Volumes(events), rainfall.Durations(events)
	u, v, err := copula.PseudoObservations(durations, volumes)
	if err != nil {
		return nil, err
	}
	if tau, err := copula.KendallTau(u, v); err != nil || math.IsNaN(tau) {
		end()
		log.Warn("rank correlation undefined, station skipped", zap.Int("events", len(events)))
		res.Skipped = true
		return res, nil
	}
	fits, err := copula.FitAll(cfg.CopulaFamilies, u, v)
	if err != nil {
		return nil, err
	}
	res.Fits = fits
	res.LambdaV, res.LambdaT = runoff.FitRates(volumes, durations)
	log.Info("margins fitted", zap.Float64("lambda_v", res.LambdaV), zap.Float64("lambda_t", res.LambdaT))

	ranks := dynamo.NewTable("u_duration", "v_volume")
	for i := range u {
		ranks.Rows = append(ranks.Rows, []float64{u[i], v[i]})
	}
	if err := run.WriteTable(path(CopulaDir, "01_input_ranks.csv"), ranks); err != nil {
		return nil, err
	}
	rows := make([][]string, len(fits))
	densities := make([]runoff.NamedDensity, len(fits))
	for i, f := range fits {
		rows[i] = f.Metrics.Record(storage.FormatFloat)
		densities[i] = runoff.NamedDensity{Name: f.Family.Name(), F: runoff.JointDensity(f.Family, res.LambdaV, res.LambdaT)}
		log.Debug("copula fitted", zap.String("family", f.Family.Name()), zap.Float64("aic", f.Metrics.AIC))
	}
	if err := run.WriteRecords(path(CopulaDir, "02_copula_fit_metrics.csv"), copula.MetricsHeader, rows); err != nil {
		return nil, err
	}
	end()

	end = e.stage(PipelineRainfall, "runoff_cdf")
	cdf, err := engine.CDF(ctx, densities)
	if err != nil {
		return nil, err
	}
	e.metrics.Integration(engine.Integrator.Name(), cdf.Len()*len(densities))
	if err := addAnalytical(cdf, cfg.PhysicsModel, res.LambdaV, res.LambdaT); err != nil {
		return nil, err
	}
	levels, err := runoff.ReturnPeriods(cdf, cfg.Analysis.ReturnPeriods, cfg.Analysis.EventsPerYear)
	if err != nil {
		return nil, err
	}
	res.CDF, res.Levels = cdf, levels
	if err := run.WriteTable(path(CopulaDir, "03_cdf_results.csv"), cdf); err != nil {
		return nil, err
	}
	if err := run.WriteTable(path(CopulaDir, "04_return_periods.csv"), levels); err != nil {
		return nil, err
	}
	end()

	if !cfg.Analyzed(st.ID) {
		return res, nil
	}

	end = e.stage(PipelineRainfall, "uncertainty")
	defer end()
	boot, err := engine.Bootstrap(ctx, volumes, durations, cfg.CopulaFamilies, cfg.Sensitivity.NBootstrap, cfg.Sensitivity.Seed)
	if err != nil {
		return nil, err
	}
	bootRows := make([][]string, len(boot))
	for i, r := range boot {
		bootRows[i] = r.Record(storage.FormatFloat)
	}
	if err := run.WriteRecords(path(UncertaintyDir, "01_bootstrap_uncertainty.csv"), runoff.BootstrapHeader(cfg.Analysis.ReturnPeriods), bootRows); err != nil {
		return nil, err
	}
	res.Spread = runoff.SummarizeBootstrap(boot, cfg.Analysis.ReturnPeriods)
	if err := run.WriteRecords(path(UncertaintyDir, "03_bootstrap_summary.csv"),
		[]string{"copula_type", "return_period", "mean", "std", "lower_95", "upper_95"}, spreadRows(res.Spread)); err != nil {
		return nil, err
	}

	if len(cfg.Sensitivity.ParameterRange) == 0 {
		log.Warn("no parameter ranges, sensitivity analysis skipped")
		return res, nil
	}
	sensCDF, sensLevels, err := engine.Sensitivity(ctx, cfg.CopulaFamilies, cfg.Sensitivity.ParameterRange, res.LambdaV, res.LambdaT)
	if err != nil {
		return nil, err
	}
	if err := run.WriteTable(path(UncertaintyDir, "02_sensitivity_analysis.csv"), sensLevels); err != nil {
		return nil, err
	}
	if err := run.WriteTable(path(UncertaintyDir, "04_sensitivity_cdf.csv"), sensCDF); err != nil {
		return nil, err
	}
	return res, nil
}

// addAnalytical appends the closed-form CDF as the "Analytical" column.
func addAnalytical(cdf *dynamo.Table, p runoff.Physical, lambdaV, lambdaT float64) error {
	v0s, err := cdf.Column("v0")
	if err != nil {
		return err
	}
	closed := runoff.AnalyticalCDF(p, lambdaV, lambdaT, v0s)
	cdf.Columns = append(cdf.Columns, "Analytical")
	for i := range cdf.Rows {
		cdf.Rows[i] = append(cdf.Rows[i], closed[i])
	}
	return nil
}

func spreadRows(spread []runoff.LevelSummary) [][]string {
	f := storage.FormatFloat
	rows := make([][]string, len(spread))
	for i, s := range spread {
		rows[i] = []string{s.Family, f(s.ReturnPeriod), f(s.Mean), f(s.Std), f(s.Lower), f(s.Upper)}
	}
	return rows
}
