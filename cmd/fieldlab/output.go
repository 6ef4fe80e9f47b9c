package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/fieldlab/internal/econex"
	"github.com/san-kum/fieldlab/internal/experiment"
	"github.com/san-kum/fieldlab/internal/extrema"
	"github.com/san-kum/fieldlab/internal/hydraulics"
	"github.com/san-kum/fieldlab/internal/storage"
)

var (
	heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func status(ok bool, s string) string {
	if ok {
		return green.Render(s)
	}
	return yellow.Render(s)
}

func printTurbulence(out *experiment.TurbulenceRun) {
	res := out.Result
	fmt.Println(heading.Render("turbulence run"))
	fmt.Printf("run:       %s\n", out.Run.ID)
	fmt.Printf("grid:      %d x %d, dk %.4f\n", out.Grid.N, out.Grid.N, out.Grid.Dk)
	fmt.Printf("steps:     %d\n", res.StepsTaken)
	fmt.Printf("sim time:  %.4f\n", res.SimTime)
	fmt.Printf("snapshots: %d\n", len(res.Snapshots))
	names := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("  %s: %.6g\n", k, res.Metrics[k])
	}
	fmt.Println(dim.Render(out.Run.Dir))
}

func printSweep(out *experiment.SweepRun) {
	fmt.Println(heading.Render("sweep"))
	w := newTable()
	fmt.Fprintln(w, "V_RATIO\tCOURANT\tENERGY_CV\tSIM_TIME")
	for _, p := range out.Points {
		fmt.Fprintf(w, "%g\t%g\t%.4g\t%.4f\n", p.VRatio, p.Courant, p.Variation, p.SimTime)
	}
	_ = w.Flush()
	fmt.Printf("best: v_ratio=%g courant=%g\n", out.Best["v_ratio"], out.Best["courant"])
	fmt.Println(dim.Render(out.Run.Dir))
}

func printExtrema(found map[int]*extrema.Extrema) {
	its := make([]int, 0, len(found))
	for it := range found {
		its = append(its, it)
	}
	sort.Ints(its)
	fmt.Println(heading.Render("extrema"))
	w := newTable()
	fmt.Fprintln(w, "ITERATION\tALL\tMINIMA\tMAXIMA")
	for _, it := range its {
		all, mn, mx := found[it].Counts()
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", it, all, mn, mx)
	}
	_ = w.Flush()
}

func printHyperuniform(res *experiment.HyperuniformResult) {
	fmt.Println(heading.Render("structure factor"))
	fmt.Printf("snapshots: %d\n", len(res.Profiles))
	w := newTable()
	fmt.Fprintln(w, "K_MIN\tK_MAX\tSLOPE\tINTERCEPT\tR2")
	fmt.Fprintf(w, "-\t-\t%.4f\t%.4f\t%.4f\n", res.Fit.Slope, res.Fit.Intercept, res.Fit.R2)
	for _, f := range res.Intervals {
		fmt.Fprintf(w, "%g\t%g\t%.4f\t%.4f\t%.4f\n", f.KMin, f.KMax, f.Slope, f.Intercept, f.R2)
	}
	_ = w.Flush()
}

func printRainfall(out *experiment.RainfallRun) {
	fmt.Println(heading.Render("rainfall-runoff"))
	fmt.Printf("run: %s\n", out.Run.ID)
	for _, st := range out.Stations {
		fmt.Printf("\n%s - %s\n", st.Station.Name, st.Station.ID)
		if st.Skipped {
			fmt.Println(yellow.Render("  no rainfall events"))
			continue
		}
		fmt.Printf("  events: %d  lambda_v: %.4f  lambda_t: %.4f\n", st.Events, st.LambdaV, st.LambdaT)
		w := newTable()
		fmt.Fprintln(w, "  FAMILY\tPARAM\tTAU\tAIC\tBIC")
		for _, f := range st.Fits {
			m := f.Metrics
			fmt.Fprintf(w, "  %s\t%.4f\t%.4f\t%.2f\t%.2f\n", m.Family, m.Param, m.Tau, m.AIC, m.BIC)
		}
		_ = w.Flush()
	}
	fmt.Println(dim.Render(out.Run.Dir))
}

func printEconex(run *storage.Run, sol *econex.Solution) {
	meta := sol.Metadata()
	tot := sol.Totals()
	fmt.Println(heading.Render("econex"))
	fmt.Printf("run:         %s\n", run.ID)
	fmt.Printf("status:      %s\n", status(meta.SolverStatus == "ok", meta.TerminationCondition))
	fmt.Printf("objective:   %.4f\n", meta.ObjectiveValue)
	fmt.Printf("variables:   %d\n", meta.NumVariables)
	fmt.Printf("constraints: %d\n", meta.NumConstraints)
	fmt.Printf("grid import: %.4f  export: %.4f  treated: %.4f\n", tot.Import, tot.Export, tot.Treated)
	fmt.Println(dim.Render(run.Dir))
}

func printOptimization(run *storage.Run, o *hydraulics.Optimization) {
	s := o.Summary
	fmt.Println(heading.Render("pump scheduling"))
	fmt.Printf("run:         %s\n", run.ID)
	fmt.Printf("status:      %s\n", status(s.SolverStatus == "ok", s.TerminationCondition))
	if s.ObjectiveValue != nil {
		fmt.Printf("objective:   %.4f\n", *s.ObjectiveValue)
	}
	fmt.Printf("variables:   %d\n", s.NumVariables)
	fmt.Printf("constraints: %d\n", s.NumConstraints)
	fmt.Printf("nodes:       %d\n", s.Nodes)
	fmt.Printf("solve time:  %.2fs\n", s.SolverTime)
	fmt.Println(dim.Render(run.Dir))
}

func printSimulation(out *experiment.SimulationRun) {
	fmt.Println(heading.Render("hydraulic simulation"))
	fmt.Printf("run: %s\n", out.Run.ID)
	w := newTable()
	fmt.Fprintln(w, "SCENARIO\tTYPE\tSTATUS\tSATISFACTION\tCRITICAL\tMIN_P\tDEMAND_M3")
	for _, s := range out.Scenarios {
		if s.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t-\t-\n", s.Scenario.Name, s.Scenario.Type, status(false, "failed"))
			continue
		}
		m := s.Summary.Metrics
		minP := "-"
		if m.Pressure != nil {
			minP = fmt.Sprintf("%.2f", m.Pressure.Min)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d\t%s\t%.2f\n",
			s.Scenario.Name, s.Scenario.Type, status(true, "ok"),
			100*m.ServiceSatisfaction, m.NumCriticalNodes, minP, m.TotalDemand)
	}
	_ = w.Flush()
	fmt.Println(dim.Render(out.Run.Dir))
}

func printRuns(runs []storage.RunMetadata) {
	w := newTable()
	fmt.Fprintln(w, "ID\tEXPERIMENT\tSTART\tDURATION\tCOMMIT")
	for _, run := range runs {
		commit := run.GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fm\t%s\n",
			run.ID,
			run.Experiment,
			run.Start.Format("2006-01-02 15:04:05"),
			run.DurationMinutes,
			commit,
		)
	}
	_ = w.Flush()
}

func printMetadata(meta *storage.RunMetadata) {
	fmt.Println(heading.Render(meta.ID))
	fmt.Printf("experiment: %s\n", meta.Experiment)
	fmt.Printf("start:      %s\n", meta.Start.Format("2006-01-02 15:04:05"))
	fmt.Printf("end:        %s\n", meta.End.Format("2006-01-02 15:04:05"))
	fmt.Printf("duration:   %.2f min\n", meta.DurationMinutes)
	fmt.Printf("commit:     %s\n", meta.GitCommit)
	fmt.Printf("host:       %s (%s)\n", meta.Hostname, meta.Platform)
	fmt.Printf("command:    %s\n", dim.Render(meta.Command))
	if len(meta.Metrics) == 0 {
		return
	}
	keys := make([]string, 0, len(meta.Metrics))
	for k := range meta.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w := newTable()
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%.6g\n", k, meta.Metrics[k])
	}
	_ = w.Flush()
}

func printRegistry(r *experiment.Registry) {
	sections := []struct {
		title string
		names []string
	}{
		{"time stepping schemes", r.ListSchemes()},
		{"copula families", r.ListFamilies()},
		{"integrators", r.ListIntegrators()},
		{"scenario types", r.ListScenarios()},
	}
	for _, s := range sections {
		fmt.Println(heading.Render(s.title))
		for _, n := range s.names {
			fmt.Printf("  %s\n", n)
		}
	}
}
