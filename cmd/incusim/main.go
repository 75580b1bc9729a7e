package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/san-kum/incusim/internal/automation"
	"github.com/san-kum/incusim/internal/config"
	"github.com/san-kum/incusim/internal/experiment"
	"github.com/san-kum/incusim/internal/telemetry"
	"github.com/san-kum/incusim/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	preset     string
	envFile    string
	verbose    bool

	ticks    int
	timeStep float64
	sleep    time.Duration
	roomTemp float64
	csvPath  string
	scenario string
	plot     bool
	outPath  string

	sweepParam   string
	sweepMin     float64
	sweepMax     float64
	sweepSteps   int
	sweepWorkers int
	sweepTicks   int

	logger = zap.NewNop()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "incusim",
		Short:        "infant incubator thermal simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with INCUSIM_* overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	runCmd.Flags().IntVar(&ticks, "ticks", 0, "stop after n ticks (0 runs until interrupted)")
	runCmd.Flags().Float64Var(&timeStep, "time-step", config.DefaultTimeStep, "simulated seconds per tick")
	runCmd.Flags().DurationVar(&sleep, "sleep", config.DefaultSleep, "wall-clock pause between ticks")
	runCmd.Flags().Float64Var(&roomTemp, "room-temp", 0, "room temperature in kelvin")
	runCmd.Flags().StringVar(&csvPath, "csv", "", "write per-tick telemetry to a csv file, - for stdout")
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot the temperature history after the run")
	runCmd.Flags().StringVar(&scenario, "scenario", "", "scenario file with timed chamber commands (yaml)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run one simulation per value of a parameter",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "room_temperature", fmt.Sprintf("parameter to sweep %v", automation.SweepParams()))
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 288, "first parameter value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 298, "last parameter value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of sweep points")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "concurrent runs (0 uses one per cpu)")
	sweepCmd.Flags().IntVar(&sweepTicks, "ticks", 60, "ticks per run, used when the config sets no limit")
	sweepCmd.Flags().Float64Var(&timeStep, "time-step", config.DefaultTimeStep, "simulated seconds per tick")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPresets(cmd.OutOrStdout())
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := config.Save(outPath, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "config written to %s\n", outPath)
				return nil
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	configCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the config to a file instead of stdout")

	rootCmd.AddCommand(runCmd, sweepCmd, presetsCmd, configCmd)
	return rootCmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc = zap.NewDevelopmentConfig()
	}
	zc.OutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Named("incusim"), nil
}

// loadEnvFile loads path into the environment without overriding variables
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// resolveConfig layers the sources in order: defaults, preset, config file,
// environment, then flags that were set explicitly.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.LoadOnto(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ticks") {
		cfg.Ticks = ticks
	}
	if flags.Changed("time-step") {
		cfg.TimeStep = timeStep
	}
	if flags.Changed("sleep") {
		cfg.Sleep = sleep
	}
	if flags.Changed("room-temp") {
		cfg.Room.Temperature = roomTemp
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}

	var csvWriter *telemetry.CSVWriter
	if csvPath != "" {
		out, closeFn, err := openOutput(cmd.OutOrStdout(), csvPath)
		if err != nil {
			return err
		}
		defer closeFn()
		csvWriter = telemetry.NewCSVWriter(out, exp.ID())
		exp.AddObserver(csvWriter)
	}

	if scenario != "" {
		sc, err := automation.LoadScenario(scenario)
		if err != nil {
			return err
		}
		player := automation.NewPlayer(sc, exp.Simulator(), logger)
		player.Advance(0)
		exp.AddObserver(player)
	}

	var trace *viz.Trace
	if plot {
		trace = viz.NewTrace(viz.DefaultHistory)
		exp.AddObserver(trace)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := cmd.ErrOrStderr()
	fmt.Fprintf(summary, "running simulation %s...\n", exp.ID())
	start := time.Now()

	if err := exp.Run(ctx); err != nil {
		return err
	}
	if csvWriter != nil {
		if err := csvWriter.Err(); err != nil {
			return err
		}
	}

	printSummary(summary, exp.Result(), time.Since(start))
	if trace != nil {
		if chart := viz.Chart(trace, 60, 12); chart != "" {
			fmt.Fprintf(summary, "\n%s\n", chart)
		}
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("ticks") || cfg.Ticks == 0 {
		cfg.Ticks = sweepTicks
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      cfg,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
		Workers:   sweepWorkers,
	}, logger)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tINFANT_K\tCHAMBER_K\tENERGY_BALANCE\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		fmt.Fprintf(tw, "%g\t%.3f\t%.3f\t%.3g\n", r.ParamValue,
			r.Result.Status.Infant.Temperature, r.Result.Status.Chamber.Temperature, r.Result.Metrics["energy_balance"])
	}
	return tw.Flush()
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func printSummary(w io.Writer, res experiment.Result, elapsed time.Duration) {
	st := viz.NewStyles(w)
	line := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", st.Label.Render(label), st.Value.Render(value))
	}

	fmt.Fprintln(w, st.Title.Render(fmt.Sprintf("completed in %v", elapsed.Round(time.Millisecond))))
	line("run id:", res.RunID)
	line("ticks:", fmt.Sprintf("%d (%v simulated)", res.Ticks, res.SimTime))
	for _, body := range []string{"infant", "chamber"} {
		final := res.Status.Infant.Temperature
		if body == "chamber" {
			final = res.Status.Chamber.Temperature
		}
		t := res.Temperatures[body]
		line(body+":", fmt.Sprintf("%.3f K (mean %.3f, std %.3f, min %.3f, max %.3f) heater %.1f W mean power",
			final, t.Mean, t.StdDev, t.Min, t.Max, res.HeaterPower[body]))
	}
	line("room:", fmt.Sprintf("%.3f K", res.Status.RoomTemperature))

	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%.6f\n", name, res.Metrics[name])
	}
	tw.Flush()

	fmt.Fprintln(w, st.Title.Render("metrics"))
	fmt.Fprintln(w, st.Panel.Render(strings.TrimRight(b.String(), "\n")))
}

func printPresets(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRESET\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		fmt.Fprintf(tw, "%s\t%s\n", name, config.Presets[name].Description)
	}
	return tw.Flush()
}
