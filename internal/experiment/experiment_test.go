package experiment

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fieldlab/internal/config"
	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/econex"
	"github.com/san-kum/fieldlab/internal/hydraulics"
	"github.com/san-kum/fieldlab/internal/lpmodel"
	"github.com/san-kum/fieldlab/internal/runoff"
	"github.com/san-kum/fieldlab/internal/storage"
	"github.com/san-kum/fieldlab/internal/telemetry"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newExperiment(t *testing.T) (*Experiment, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	st := storage.New(t.TempDir(), clock)
	require.NoError(t, st.Init())
	return New(st,
		WithClock(clock),
		WithMetrics(telemetry.NewMetricsForTesting()),
		WithWorkers(2),
	), clock
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"euler", "RK3", "imex", "Euler Semi-Implicit", " imex runge-kutta "} {
		s, err := r.GetScheme(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, s.Name())
	}
	_, err := r.GetScheme("leapfrog")
	assert.ErrorIs(t, err, dynamo.ErrUnknownScheme)

	assert.Equal(t, []string{"Euler Semi-Implicit", "IMEX Runge-Kutta", "RK3"}, r.ListSchemes())
	assert.Equal(t, []string{runoff.SchemeAdaptive, runoff.SchemeMonteCarlo}, r.ListIntegrators())
	assert.Equal(t, []string{hydraulics.DemandSurge, hydraulics.PipeBreak, hydraulics.PumpFailure}, r.ListScenarios())

	assert.True(t, r.KnownScenario(hydraulics.PipeBreak))
	assert.False(t, r.KnownScenario("earthquake"))

	_, err = r.GetFamily("Clayton", 2)
	assert.NoError(t, err)
	_, err = r.GetFamily("Joe", 2)
	assert.True(t, isUnknown(err))

	_, err = r.GetIntegrator("SIMPSON", nil)
	assert.Error(t, err)
}

func tinyTurbulence() *config.Turbulence {
	cfg := config.DefaultTurbulence()
	cfg.Discretization.DomainLength = 16
	cfg.Discretization.Points = 16
	cfg.Discretization.Scheme = "euler"
	cfg.Discretization.Iterations = 1000
	cfg.Discretization.MaxTau = 1e-3
	cfg.Discretization.AdaptAfter = 5000
	cfg.Discretization.MonitorEvery = 250
	cfg.Physical.KMin = 1
	cfg.Physical.KMax = 2
	return cfg
}

func TestTurbulenceAndAnalysis(t *testing.T) {
	e, _ := newExperiment(t)
	ctx := context.Background()

	out, err := e.Turbulence(ctx, tinyTurbulence())
	require.NoError(t, err)
	run := out.Run
	assert.Equal(t, "16_16_1000_10", run.ID)
	require.Len(t, out.Result.Snapshots, 2)

	for _, rel := range []string{
		"arrays/x_vectors.npy",
		"arrays/k_vectors.npy",
		"snapshots/w/w_00000000.npy",
		"snapshots/w/w_00001000.npy",
		"tables/monitoring.csv",
		ParametersFile,
		"run_metadata.yaml",
		MetricsFile,
	} {
		assert.FileExists(t, run.Path(rel))
	}
	mon, err := storage.ReadTable(run.Path(TablesDir, MonitoringFile))
	require.NoError(t, err)
	assert.Equal(t, 5, mon.Len())
	assert.Equal(t, []string{"Iterations", "Time", "tau", "max velocity", "E(k=1)"}, mon.Columns)

	an, err := e.Steady(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Len(t, an.Order, 2)
	assert.FileExists(t, run.Path(SteadyDir, "energy_spectrum.csv"))
	assert.FileExists(t, run.Path(SteadyDir, "speed_00001000.npy"))

	found, err := e.Extrema(ctx, run.ID, []string{"1000"})
	require.NoError(t, err)
	require.Contains(t, found, 1000)
	assert.NotEmpty(t, found[1000].All)
	counts, err := storage.ReadTable(run.Path(ExtremaDir, "extrema_count.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Len())

	hu, err := e.Hyperuniform(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Len(t, hu.Profiles, 2)
	assert.NotEmpty(t, hu.Mean.K)
	assert.FileExists(t, run.Path(HyperuniformDir, "fits.csv"))
}

func TestTurbulenceRejectsUnknownScheme(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := tinyTurbulence()
	cfg.Discretization.Scheme = "leapfrog"
	_, err := e.Turbulence(context.Background(), cfg)
	assert.ErrorIs(t, err, dynamo.ErrUnknownScheme)
}

func TestAnalysisMissingRun(t *testing.T) {
	e, _ := newExperiment(t)
	_, err := e.Steady(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestTurbulenceSweep(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := tinyTurbulence()
	cfg.Sweep = config.SweepConfig{
		VRatio:     []float64{5, 10},
		Seeds:      []uint64{1, 2},
		Iterations: 500,
	}
	cfg.Discretization.MonitorEvery = 50

	out, err := e.TurbulenceSweep(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, out.Points, 2)
	assert.Contains(t, []float64{5, 10}, out.Best["v_ratio"])
	tbl, err := storage.ReadTable(out.Run.Path(TablesDir, "sweep.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

// seedRainfall writes a station with one event every two days through
// the summer. Event length cycles through one to four hours.
func seedRainfall(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climate.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE hourly_rainfall (climate_id TEXT, datetime TEXT, value REAL, flag TEXT)`)
	require.NoError(t, err)
	start := time.Date(2020, time.May, 1, 6, 0, 0, 0, time.UTC)
	for i := range 40 {
		at := start.Add(time.Duration(i) * 48 * time.Hour)
		hours := 1 + i%4
		for h := range hours {
			v := 0.5 + 0.3*float64((i*7+h)%5)
			ts := at.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04:05")
			_, err := db.Exec(`INSERT INTO hourly_rainfall VALUES (?, ?, ?, NULL)`, "6105976", ts, v)
			require.NoError(t, err)
		}
	}
	return path
}

func TestRainfall(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultRainfall()
	cfg.Database.Path = seedRainfall(t)
	cfg.Database.Stations = []config.Station{{Name: "OTTAWA", ID: "6105976"}}
	cfg.CopulaFamilies = []string{"Gaussian", "Frank"}
	cfg.Analysis.V0RangeMax = 10
	cfg.Analysis.V0Limit = 10
	cfg.Analysis.ReturnPeriods = []float64{2, 5}
	cfg.Sensitivity.Stations = []string{"6105976"}
	cfg.Sensitivity.NBootstrap = 3

	out, err := e.Rainfall(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Stations, 1)
	st := out.Stations[0]
	assert.Equal(t, 40, st.Events)
	assert.False(t, st.Skipped)
	assert.Len(t, st.Fits, 2)
	assert.Greater(t, st.LambdaV, 0.0)
	assert.Contains(t, st.CDF.Columns, "Analytical")
	assert.Equal(t, 2, st.Levels.Len())

	run := out.Run
	assert.Equal(t, "OTTAWA - 6105976 -- 20240101_000000 -- ", run.ID[:len(run.ID)-4])
	for _, rel := range []string{
		filepath.Join(InputDir, "03_rainfall_events_data.csv"),
		filepath.Join(CopulaDir, "01_input_ranks.csv"),
		filepath.Join(CopulaDir, "02_copula_fit_metrics.csv"),
		filepath.Join(CopulaDir, "03_cdf_results.csv"),
		filepath.Join(CopulaDir, "04_return_periods.csv"),
		filepath.Join(UncertaintyDir, "01_bootstrap_uncertainty.csv"),
		filepath.Join(UncertaintyDir, "03_bootstrap_summary.csv"),
		RainfallLogFile,
		RainfallMetadataFile,
		RainfallParametersFile,
	} {
		assert.FileExists(t, run.Path(rel))
	}
	assert.NoFileExists(t, run.Path(UncertaintyDir, "02_sensitivity_analysis.csv"))
}

func TestRainfallSkipsEmptyStation(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultRainfall()
	cfg.Database.Path = seedRainfall(t)
	cfg.Database.Stations = []config.Station{
		{Name: "OTTAWA", ID: "6105976"},
		{Name: "NOWHERE", ID: "0000000"},
	}
	cfg.CopulaFamilies = []string{"Gaussian"}
	cfg.Analysis.V0RangeMax = 5

	out, err := e.Rainfall(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Stations, 2)
	assert.True(t, out.Stations[1].Skipped)
	assert.True(t, strings.HasPrefix(out.Run.ID, "MULTI-STATIONS -- "))
	assert.DirExists(t, out.Run.Path("OTTAWA - 6105976", CopulaDir))
	assert.NoDirExists(t, out.Run.Path("NOWHERE - 0000000", CopulaDir))
}

func TestRainfallSkipsSingleEventStation(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultRainfall()
	cfg.Database.Path = seedRainfall(t)

	db, err := sql.Open("sqlite", cfg.Database.Path)
	require.NoError(t, err)
	for _, ts := range []string{"2021-06-10 03:00:00", "2021-06-10 04:00:00"} {
		_, err := db.Exec(`INSERT INTO hourly_rainfall VALUES (?, ?, ?, NULL)`, "6100001", ts, 1.2)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	cfg.Database.Stations = []config.Station{
		{Name: "LONELY", ID: "6100001"},
		{Name: "OTTAWA", ID: "6105976"},
	}
	cfg.CopulaFamilies = []string{"Gaussian", "Gumbel"}
	cfg.Analysis.V0RangeMax = 5

	out, err := e.Rainfall(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Stations, 2)
	assert.Equal(t, 1, out.Stations[0].Events)
	assert.True(t, out.Stations[0].Skipped)
	assert.Empty(t, out.Stations[0].Fits)
	assert.False(t, out.Stations[1].Skipped)
	assert.FileExists(t, out.Run.Path("LONELY - 6100001", InputDir, "03_rainfall_events_data.csv"))
	assert.NoDirExists(t, out.Run.Path("LONELY - 6100001", CopulaDir))
	assert.DirExists(t, out.Run.Path("OTTAWA - 6105976", CopulaDir))
}

func TestRainfallUnknownIntegrator(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultRainfall()
	cfg.Database.Path = "unused.db"
	cfg.Database.Stations = []config.Station{{Name: "A", ID: "1"}}
	cfg.Integration.Method = "SIMPSON"
	_, err := e.Rainfall(context.Background(), cfg)
	assert.Error(t, err)
}

func TestEcoNex(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultEcoNex()
	cfg.Network = econex.Config{T: 6}

	sol, run, err := e.EcoNex(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, lpmodel.Optimal, sol.Status)
	assert.Equal(t, "run_20240101_000000", run.ID)
	assert.FileExists(t, run.Path("summary.json"))
	assert.FileExists(t, run.Path(RunLogFile))
	assert.FileExists(t, run.Path(ConfigFile))
}

const loopNet = `
[JUNCTIONS]
 J1 0 10
 J2 0 20
[RESERVOIRS]
 R1 50
[PIPES]
 P1 R1 J1 1000 300 100
 P2 R1 J2 1000 300 100
 P3 J1 J2 500  200 100
[OPTIONS]
 Units LPS
[TIMES]
 Duration 2:00
`

const pumpNet = `
[JUNCTIONS]
 J1 0 10
 J2 0 20
[RESERVOIRS]
 R1 10
[PUMPS]
 PU1 R1 J1 HEAD C1
[PIPES]
 P2 J1 J2 500 200 100
[CURVES]
 C1 50 30
[OPTIONS]
 Units LPS
[TIMES]
 Duration 1:00
`

func writeInp(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "net.inp")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestHydraulic(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultHydraulic()
	cfg.InpFile = writeInp(t, pumpNet)
	cfg.Horizon = 2

	opt, run, err := e.Hydraulic(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, lpmodel.Optimal, opt.Status)
	assert.Len(t, opt.PumpStatus, 2)
	for _, rel := range []string{"net.inp", NetworkInfoFile, "flows.csv", "heads.csv", "pump_status.csv", "summary.json"} {
		assert.FileExists(t, run.Path(rel))
	}
}

func TestSimulate(t *testing.T) {
	e, _ := newExperiment(t)
	cfg := config.DefaultSimulation()
	cfg.InpFile = writeInp(t, loopNet)
	cfg.Scenarios = []hydraulics.Scenario{
		{Name: "surge", Type: hydraulics.DemandSurge, Node: "J2"},
		{Name: "no_pump", Type: hydraulics.PumpFailure},
		{Name: "other", Type: "earthquake"},
	}

	out, err := e.Simulate(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 4)
	assert.Equal(t, hydraulics.Baseline, out.Scenarios[0].Scenario.Name)

	for _, s := range out.Scenarios {
		if s.Scenario.Name == "no_pump" {
			assert.Error(t, s.Err)
			assert.Nil(t, s.Summary)
			assert.NoDirExists(t, out.Run.Path("no_pump"))
			continue
		}
		require.NotNil(t, s.Summary, s.Scenario.Name)
		assert.Equal(t, out.Run.ID, s.Summary.RunID)
		for _, rel := range []string{"nodes/pressure.csv", "links/flowrate.csv", "summary.json"} {
			assert.FileExists(t, out.Run.Path(s.Scenario.Name, rel), fmt.Sprintf("%s/%s", s.Scenario.Name, rel))
		}
	}
	assert.FileExists(t, out.Run.Path(MetricsFile))
}

func TestScenarioDir(t *testing.T) {
	assert.Equal(t, "unnamed", scenarioDir(""))
	assert.Equal(t, "x", scenarioDir("../../x"))
	assert.Equal(t, "break", scenarioDir("break"))
}
