package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	gplot "gonum.org/v1/plot"

	"github.com/san-kum/vivsim/internal/analysis"
	"github.com/san-kum/vivsim/internal/automation"
	"github.com/san-kum/vivsim/internal/backend"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/coupling"
	"github.com/san-kum/vivsim/internal/plot"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/storage"
	"github.com/san-kum/vivsim/internal/tui"
	"github.com/san-kum/vivsim/internal/viv"
)

var (
	title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	label = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	good  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	bad   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "lab")
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	r := &automation.Runner{Store: st, Logger: slog.Default(), ProgressEvery: progress}
	out, err := r.Run(cmd.Context(), cfg)
	if out.Result != nil {
		printSummary(os.Stdout, out)
	}
	return err
}

func printSummary(w io.Writer, out *automation.Outcome) {
	res := out.Result
	status := good.Render("finished")
	if res.Aborted {
		status = bad.Render("aborted: " + res.Reason)
	}
	fmt.Fprintf(w, "%s %s\n", title.Render(out.Config.Name), status)
	if out.RunID != "" {
		fmt.Fprintf(w, "%s %s\n", label.Render("run id:"), out.RunID)
	}
	fmt.Fprintf(w, "%s %d/%d in %v\n", label.Render("steps:"), res.Steps, res.Planned, res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "%s %.4g Hz\n\n", label.Render("shedding:"), out.Constants.Frequency)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	for _, name := range sortedKeys(res.Metrics) {
		fmt.Fprintf(tw, "%s\t%.6g\n", name, res.Metrics[name])
	}
	tw.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "lab")
	if err != nil {
		return err
	}
	c, err := riser.Derive(cfg)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	// The terminal belongs to the view while it runs.
	r := &automation.Runner{Store: st, Logger: slog.New(slog.DiscardHandler)}
	info := tui.Info{
		Name:      cfg.Name,
		Backend:   cfg.Backend,
		Planned:   c.Steps(),
		Dt:        c.Dt,
		Diameter:  c.OuterDiameter,
		Frequency: c.Frequency,
	}

	var out *automation.Outcome
	runErr := tui.Run(cmd.Context(), info, func(ctx context.Context, obs viv.Observer) error {
		var err error
		out, err = r.Run(ctx, cfg, coupling.WithObserver(obs))
		return err
	})
	if out != nil && out.Result != nil {
		printSummary(os.Stdout, out)
	}
	return runErr
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBACKEND\tTIME\tSTEPS\tDT\tSTATUS")
	for _, run := range runs {
		status := run.Status
		if run.Reason != "" {
			status += " (" + run.Reason + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.4gs\t%s\n",
			run.ID,
			run.Name,
			run.Backend,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Planned,
			run.Dt,
			status,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *viv.TimeHistory, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	h, err := st.LoadHistory(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, h, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if h.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	if pngFile != "" {
		var p *gplot.Plot
		if showOrbit {
			p, err = plot.OrbitPlot(h)
		} else {
			p, err = plot.HistoryPlot(h, meta.ID, series...)
		}
		if err != nil {
			return err
		}
		if err := plot.Save(p, pngFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngFile)
		return nil
	}

	fmt.Printf("%s %s\n", title.Render(meta.ID), label.Render(fmt.Sprintf("%d steps, %s", h.Len(), meta.Status)))
	fmt.Println()

	if showOrbit {
		x, _ := h.Series("disp_x")
		y, _ := h.Series("disp_y")
		fmt.Print(analysis.OrbitToASCII(analysis.Orbit(x, y), 60, 20))
		return nil
	}

	names := series
	if len(names) == 0 {
		names = viv.Columns()[1:]
	}
	for _, name := range names {
		g, err := plot.Series(h, name, plot.TermOptions{})
		if err != nil {
			return err
		}
		fmt.Println(g)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	shedding := 0.0
	if meta.Constants != nil {
		shedding = meta.Constants.Frequency
	}

	rep, err := analysis.Analyze(h, meta.Dt, shedding)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("%s %s\n\n", title.Render("analysis: "+meta.ID), label.Render(meta.Status))
	if err := rep.Write(os.Stdout); err != nil {
		return err
	}
	fmt.Println()

	y, _ := h.Series("disp_y")
	if g, err := plot.Spectrum(y, meta.Dt, 5*shedding, "power spectrum (disp_y)", plot.TermOptions{Height: 12}); err == nil {
		fmt.Println(g)
		fmt.Println()
	}

	if ys := rep.Series["disp_y"]; ys.Dominant > 0 {
		fmt.Printf("dominant frequency: %.4g Hz (period %.4g s)\n", ys.Dominant, 1/ys.Dominant)
		if shedding > 0 {
			fmt.Printf("response / shedding: %.3f\n", ys.Ratio)
		}
	}
	return nil
}

func output() (io.Writer, func() error, error) {
	if outFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, done, err := output()
	if err != nil {
		return err
	}
	if err := storage.WriteHistoryCSV(w, h); err != nil {
		done()
		return err
	}
	return done()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, h, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, done, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, meta, h); err != nil {
		done()
		return err
	}
	return done()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tLENGTH\tDE\tU\tDT\tELEMENTS\tPREDICTOR")
	for _, name := range config.ListPresets() {
		c := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%gm\t%gm\t%gm/s\t%gs\t%d\t%s\n",
			name, c.Riser.Length, c.Riser.OuterDiameter, c.Fluid.Velocity, c.Run.Dt, c.Run.Elements, c.Wake.Predictor)
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "lab")
	if err != nil {
		return err
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func runConvergence(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "field")
	if err != nil {
		return err
	}
	if len(sweepElements) > 0 {
		cfg.Sweep.Elements = sweepElements
	}
	switch strings.ToLower(sweepNLGeom) {
	case "off":
		cfg.Sweep.NLGeom = []bool{false}
	case "on":
		cfg.Sweep.NLGeom = []bool{true}
	case "both":
		cfg.Sweep.NLGeom = []bool{false, true}
	default:
		return fmt.Errorf("--nlgeom must be off, on or both, got %q", sweepNLGeom)
	}

	dir := sweepDir
	if dir == "" {
		st, err := openStore()
		if err != nil {
			return err
		}
		if dir, err = st.NewSweep(); err != nil {
			return err
		}
	}

	reg := backend.NewRegistry()
	cv := &automation.Convergence{
		Config: cfg,
		Dir:    dir,
		Logger: slog.Default(),
		Open: func(ctx context.Context) (viv.StaticSolver, error) {
			return reg.Open(ctx, cfg.Backend, backend.Env{Config: cfg, Logger: slog.Default()})
		},
	}
	cases, err := cv.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n\n", title.Render("convergence: "+cfg.Name), label.Render(dir))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELEMENTS\tNLGEOM\tNODE\tUY\tLINEAR\tRATIO")
	for _, cs := range cases {
		nl := "OFF"
		if cs.NLGeom {
			nl = "ON"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.6g\t%.6g\t%.4f\n", cs.Elements, nl, cs.Node, cs.Center.UY, cs.Analytical, cs.Ratio)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()

	if g, err := plot.Convergence(cases, plot.TermOptions{Height: 12, Width: 60}); err == nil {
		fmt.Println(g)
	}
	if pngFile != "" {
		p, err := plot.ConvergencePlot(cases)
		if err != nil {
			return err
		}
		if err := plot.Save(p, pngFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngFile)
	}
	return nil
}

func runVary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "lab")
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	r := &automation.Runner{Store: st, Logger: slog.Default()}
	pts, err := r.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      cfg,
		ParamName: args[0],
		ParamMin:  varyFrom,
		ParamMax:  varyTo,
		NumSteps:  varySteps,
		Workers:   workers,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tSTEPS\tMAX Y/DE\tRMS Y/DE\tDOMINANT\tRATIO\tRUN\n", strings.ToUpper(args[0]))
	for _, p := range pts {
		run := p.RunID
		if p.Reason != "" {
			run += " (" + p.Reason + ")"
		}
		fmt.Fprintf(w, "%g\t%d\t%.4g\t%.4g\t%.4g Hz\t%.3f\t%s\n",
			p.ParamValue, p.Steps, p.MaxCrossFlow, p.RMSCrossFlow, p.Dominant, p.Ratio, run)
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	r := &automation.Runner{Store: st, Logger: slog.Default()}
	outs, err := r.RunScenario(cmd.Context(), sc)
	for _, out := range outs {
		if out.Result != nil {
			printSummary(os.Stdout, out)
			fmt.Println()
		}
	}
	return err
}

func writeScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "lab")
	if err != nil {
		return err
	}
	cfg.Backend = backend.Journal

	w, done, err := output()
	if err != nil {
		return err
	}
	r := &automation.Runner{Journal: w, Logger: slog.Default()}
	if _, err := r.Run(cmd.Context(), cfg); err != nil {
		done()
		return err
	}
	return done()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
