package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/driveline/internal/config"
	"github.com/san-kum/driveline/internal/export"
	"github.com/san-kum/driveline/internal/logging"
	"github.com/san-kum/driveline/internal/metrics"
	"github.com/san-kum/driveline/internal/scenario"
	"github.com/san-kum/driveline/internal/sim"
	"github.com/san-kum/driveline/internal/storage"
	"github.com/san-kum/driveline/internal/telemetry"
	"github.com/san-kum/driveline/internal/tune"
	"github.com/san-kum/driveline/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	// Overrides applied on top of the preset and config file when set.
	seed       int64
	integrator string
	layout     string
	duration   float64
	timeoutMs  int
	noiseDeg   float64
	logLevel   string
	realtime   bool
	// Output path for export commands; stdout when empty.
	output string
	// Tuning grid.
	tuneAxis    string
	tuneP       []float64
	tuneI       []float64
	tuneD       []float64
	tuneWorkers int
	tuneTop     int
	// Seed sweep.
	sweepRuns    int
	sweepWorkers int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "driveline",
		Short:         "odometry and motion control for a wheeled robot, with a simulated chassis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".driveline", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "run a scenario on the simulated chassis and record it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "pace the simulation with the wall clock")

	liveCmd := &cobra.Command{
		Use:   "live [scenario.yaml]",
		Short: "run a scenario in real time with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run poses to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and poses to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportPlotCmd := &cobra.Command{
		Use:   "export-plot [run_id]",
		Short: "render the trajectory to an image (png, svg or pdf by extension)",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPlot,
	}
	exportPlotCmd.Flags().StringVarP(&output, "output", "o", "trajectory.png", "output image")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLAYOUT\tMAX SPEED\tNOISE\tDROPOUT")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\t%.1f ft/s\t%.2f°\t%.0f%%\n",
					name, p.Chassis.Layout, p.Chassis.MaxSpeed, p.Sim.HeadingNoiseDeg, p.Sim.DropoutRate*100)
			}
			return w.Flush()
		},
	}

	initConfigCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a configuration file to start from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	initConfigCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search PID gains on the simulated chassis",
		RunE:  runTune,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&tuneAxis, "axis", "turn", "axis to tune (drive or turn)")
	tuneCmd.Flags().Float64SliceVar(&tuneP, "p", []float64{0.6, 1.2, 1.8}, "proportional gains to try")
	tuneCmd.Flags().Float64SliceVar(&tuneI, "i", []float64{0, 0.01}, "integral gains to try")
	tuneCmd.Flags().Float64SliceVar(&tuneD, "d", []float64{2, 4, 6}, "derivative gains to try")
	tuneCmd.Flags().IntVar(&tuneWorkers, "workers", 0, "parallel simulations (default GOMAXPROCS)")
	tuneCmd.Flags().IntVar(&tuneTop, "top", 5, "candidates to print")

	sweepCmd := &cobra.Command{
		Use:   "sweep [scenario.yaml]",
		Short: "run a scenario over consecutive noise seeds and summarise odometry error",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepRuns, "runs", 10, "number of seeds")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "parallel simulations (default GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, exportPlotCmd, presetsCmd, initConfigCmd, tuneCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Int64Var(&seed, "seed", 1, "sensor noise seed")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "plant integrator (rk4 or euler)")
	cmd.Flags().StringVar(&layout, "layout", "skid", "chassis layout (skid or xdrive)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "simulated time limit in seconds (0 for none)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "per-command settle timeout (0 for none)")
	cmd.Flags().Float64Var(&noiseDeg, "noise", 0, "heading sensor noise, degrees")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

// resolveConfig layers defaults, preset, config file and explicitly set flags, in
// that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Sim.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}
	if flags.Changed("layout") {
		cfg.Chassis.Layout = layout
	}
	if flags.Changed("time") {
		cfg.Sim.Duration = duration
	}
	if flags.Changed("timeout-ms") {
		cfg.Control.TimeoutMs = timeoutMs
	}
	if flags.Changed("noise") {
		cfg.Sim.HeadingNoiseDeg = noiseDeg
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func loadScenario(args []string) (*scenario.Scenario, error) {
	if len(args) == 0 {
		return scenario.Default(), nil
	}
	return scenario.Load(args[0])
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario(args)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	rig, err := scenario.NewRig(cfg, scenario.Options{Realtime: realtime, Logger: log})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s...\n", sc.Name)
	start := time.Now()
	res, runErr := rig.Run(ctx, sc)
	if res == nil {
		return runErr
	}
	elapsed := time.Since(start)

	scores := metrics.Evaluate(res.Records)
	meta := storage.RunMetadata{
		Scenario:   sc.Name,
		Preset:     preset,
		Seed:       cfg.Sim.Seed,
		Layout:     cfg.Chassis.Layout,
		Integrator: cfg.Sim.Integrator,
		Dt:         cfg.Sim.Dt,
		Duration:   res.SimTime,
		Completed:  runErr == nil && res.Completed(sc),
		Faults:     res.Stats.EncoderFaults + res.Stats.Jumps + res.Stats.HeadingFaults,
		Metrics:    scores,
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	runID, err := st.Save(meta, res.Records)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v (%.2fs simulated)\n", elapsed.Truncate(time.Millisecond), res.SimTime)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("samples: %d\n\n", len(res.Records))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tKIND\tELAPSED\tRESULT")
	for _, s := range res.Steps {
		result := "settled"
		if s.Err != nil {
			result = s.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Index+1, s.Kind, s.Elapsed, result)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nmetrics:")
	printMetrics(os.Stdout, scores)
	return runErr
}

func printMetrics(w io.Writer, scores map[string]float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %.6f\n", name, scores[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario(args)
	if err != nil {
		return err
	}

	// The view owns the terminal, so nothing else may write to it.
	sink := telemetry.NewChannelSink(cfg.Telemetry.Buffer)
	rig, err := scenario.NewRig(cfg, scenario.Options{Realtime: true, Sink: sink, Logger: zap.NewNop()})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	done := make(chan error, 1)
	g.Go(func() error {
		_, err := rig.Run(gctx, sc)
		done <- err
		return nil
	})
	g.Go(func() error {
		defer cancel()
		_, err := tea.NewProgram(viz.NewModel(sc.Name, sink, done)).Run()
		return err
	})
	return g.Wait()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tSIM\tLAYOUT\tDONE\tODOM ERR")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%s\t%t\t%.4f ft\n",
			run.ID[:8],
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Layout,
			run.Completed,
			run.Metrics["odometry_error_ft"],
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []sim.Record, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	records, err := st.LoadRecords(meta.ID)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("samples: %d\n\n", len(records))

	series := []struct {
		caption string
		truth   func(sim.Record) float64
		est     func(sim.Record) float64
	}{
		{"x (ft): truth, odometry",
			func(r sim.Record) float64 { return r.Truth.Pos.X },
			func(r sim.Record) float64 { return r.Estimated.Pos.X }},
		{"y (ft): truth, odometry",
			func(r sim.Record) float64 { return r.Truth.Pos.Y },
			func(r sim.Record) float64 { return r.Estimated.Pos.Y }},
		{"heading (deg): truth, sensor",
			func(r sim.Record) float64 { return r.Truth.HeadingDegrees() },
			func(r sim.Record) float64 { return r.Estimated.HeadingDegrees() }},
	}

	for _, s := range series {
		truth := make([]float64, len(records))
		est := make([]float64, len(records))
		for i, r := range records {
			truth[i], est[i] = s.truth(r), s.est(r)
		}
		graph := asciigraph.PlotMany([][]float64{truth, est},
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
			asciigraph.Caption(s.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	errs := make([]float64, len(records))
	for i, r := range records {
		errs[i] = r.PositionError()
	}
	fmt.Println(asciigraph.Plot(errs,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("position error (ft)"),
	))
	return nil
}

// openOutput returns the file named by --output, or stdout.
func openOutput() (io.Writer, func() error, error) {
	if output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, closeFn, err := openOutput()
	if err != nil {
		return err
	}
	if err := export.WriteCSV(w, records); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, closeFn, err := openOutput()
	if err != nil {
		return err
	}
	if err := export.WriteJSON(w, meta, records); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func exportPlot(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s (%s)", meta.Scenario, meta.ID[:8])
	if err := export.SaveTrajectory(output, title, records); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", output)
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	opts := []tune.Option{tune.WithLogger(log)}
	if tuneWorkers > 0 {
		opts = append(opts, tune.WithWorkers(tuneWorkers))
	}
	g, err := tune.NewGridSearch(cfg, tune.Axis(tuneAxis), tuneP, tuneI, tuneD, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s axis over %d candidates...\n", tuneAxis, len(g.Grid()))
	start := time.Now()
	candidates, err := g.Search(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start).Truncate(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "P\tI\tD\tSCORE\tSIM\tSETTLED")
	for i, c := range candidates {
		if i >= tuneTop {
			break
		}
		fmt.Fprintf(w, "%g\t%g\t%g\t%.2f\t%.2fs\t%d\n", c.Gains.P, c.Gains.I, c.Gains.D, c.Score, c.SimTime, c.Settled)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best, err := tune.Best(candidates, len(tune.DefaultScenario(tune.Axis(tuneAxis)).Steps))
	if err != nil {
		fmt.Println("\nno candidate settled every step")
		return nil
	}
	fmt.Printf("\nbest: p=%g i=%g d=%g\n", best.Gains.P, best.Gains.I, best.Gains.D)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario(args)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	e, err := scenario.NewEnsemble(cfg, sweepRuns, cfg.Sim.Seed, sweepWorkers, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s over %d seeds...\n", sc.Name, sweepRuns)
	start := time.Now()
	runs, err := e.Run(ctx, sc)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start).Truncate(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tDONE\tSIM\tFINAL ERR\tMEAN ERR\tERROR")
	for _, r := range runs {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%t\t%.2fs\t%.4f ft\t%.4f ft\t%s\n",
			r.Seed, r.Completed, r.SimTime, r.FinalError, r.Metrics["odometry_error_ft"], msg)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := scenario.Summarize(runs)
	fmt.Printf("\n%d/%d completed\n", s.Completed, s.Runs)
	fmt.Printf("final error: mean %.4f ft, p95 %.4f ft, max %.4f ft\n", s.FinalError.Mean, s.FinalError.P95, s.FinalError.Max)
	fmt.Printf("sim time:    mean %.2fs, max %.2fs\n", s.SimTime.Mean, s.SimTime.Max)
	return nil
}
