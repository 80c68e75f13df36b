package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/vivsim/internal/backend"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/storage"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	backendArg string

	// run and live
	runName   string
	dt        float64
	duration  float64
	periods   float64
	elements  int
	node      int
	predictor string
	failAt    int
	progress  int

	// plot and analyze
	pngFile   string
	series    []string
	showOrbit bool
	asJSON    bool

	// exports and script
	outFile string

	// sweep
	sweepElements []int
	sweepNLGeom   string
	sweepDir      string

	// vary
	varyFrom  float64
	varyTo    float64
	varySteps int
	workers   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "vivsim",
		Short:         "vortex-induced vibration of a marine riser",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".vivsim", "data directory")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.StringVar(&backendArg, "backend", "", "structural solver backend")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the coupled simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().IntVar(&progress, "progress", 0, "log progress every n steps")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the coupled simulation with live view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&pngFile, "png", "", "write the plot to an image file (png, svg, pdf)")
	plotCmd.Flags().StringSliceVar(&series, "series", nil, "series to plot (p, q, disp_x, disp_y)")
	plotCmd.Flags().BoolVar(&showOrbit, "orbit", false, "plot the orbit of the monitored node")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "statistics and frequency analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the resolved configuration as yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "static mesh convergence study",
		Args:  cobra.NoArgs,
		RunE:  runConvergence,
	}
	sweepCmd.Flags().IntSliceVar(&sweepElements, "elements", nil, "element counts (even)")
	sweepCmd.Flags().StringVar(&sweepNLGeom, "nlgeom", "both", "NLGEOM cases: off, on or both")
	sweepCmd.Flags().StringVar(&sweepDir, "out", "", "output directory (default a new sweep under --data)")
	sweepCmd.Flags().StringVar(&pngFile, "png", "", "write the convergence plot to an image file")

	varyCmd := &cobra.Command{
		Use:   "vary [param]",
		Short: "run the coupled simulation over a range of one parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runVary,
	}
	varyCmd.Flags().Float64Var(&varyFrom, "from", 0.02, "first value")
	varyCmd.Flags().Float64Var(&varyTo, "to", 0.1, "last value")
	varyCmd.Flags().IntVar(&varySteps, "n", 5, "number of values")
	varyCmd.Flags().IntVar(&workers, "workers", 1, "runs in parallel")
	varyCmd.Flags().Float64Var(&duration, "duration", 0, "simulated time per run in seconds")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run a scripted scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "write the solver command deck of a run without a solver",
		Args:  cobra.NoArgs,
		RunE:  writeScript,
	}
	addRunFlags(scriptCmd)
	scriptCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "list solver backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range backend.NewRegistry().List() {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, analyzeCmd, exportCSVCmd, exportJSONCmd,
		presetsCmd, initCmd, sweepCmd, varyCmd, batchCmd, scriptCmd, backendsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runName, "name", "", "run name")
	f.Float64Var(&dt, "dt", config.DefaultDt, "time step")
	f.Float64Var(&duration, "duration", 0, "simulated time in seconds (overrides --periods)")
	f.Float64Var(&periods, "periods", config.DefaultPeriods, "simulated shedding periods")
	f.IntVar(&elements, "elements", config.DefaultElements, "number of riser elements")
	f.IntVar(&node, "node", config.DefaultMonitoredNode, "monitored node")
	f.StringVar(&predictor, "predictor", "newmark", "wake predictor (newmark, legacy)")
	f.IntVar(&failAt, "fail-at", 0, "surrogate: fail the n-th solve")
}

func setupLogger() error {
	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	h := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	slog.SetDefault(slog.New(h))
	return nil
}

// loadConfig resolves the config file or preset, then applies the flags
// the user set. fallback is the preset used when neither is given.
func loadConfig(cmd *cobra.Command, fallback string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	default:
		name := preset
		if name == "" {
			name = fallback
		}
		cfg = config.GetPreset(name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
		}
	}

	flags := cmd.Flags()
	if f := cmd.Flag("backend"); f != nil && f.Changed {
		cfg.Backend = backendArg
	}
	if flags.Lookup("dt") == nil {
		if flags.Changed("duration") {
			cfg.Run.Duration = duration
		}
		return cfg, nil
	}

	if flags.Changed("name") {
		cfg.Name = runName
	}
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("duration") {
		cfg.Run.Duration = duration
	}
	if flags.Changed("periods") {
		cfg.Run.Periods = periods
		if !flags.Changed("duration") {
			cfg.Run.Duration = 0
		}
	}
	if flags.Changed("elements") {
		cfg.Run.Elements = elements
	}
	if flags.Changed("node") {
		cfg.Run.MonitoredNode = node
	}
	if flags.Changed("predictor") {
		cfg.Wake.Predictor = predictor
	}
	if flags.Changed("fail-at") {
		cfg.Solver.FailAtStep = failAt
	}
	return cfg, nil
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}
