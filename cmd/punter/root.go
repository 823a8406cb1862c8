package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/saturday-punter/bot"
	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/notify"
	"github.com/aluiziolira/saturday-punter/pipeline"
	"github.com/aluiziolira/saturday-punter/probe"
	"github.com/aluiziolira/saturday-punter/workflow"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs after the config is loaded.
type app struct {
	configPath  string
	verbose     bool
	metricsAddr string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "punter",
		Short:         "punter downloads, cleans and announces the weekly Saturday selections.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "config.json", "Path to the JSON config file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090), overrides the config")

	root.AddCommand(
		newDownloadCmd(a),
		newProcessCmd(a),
		newRunCmd(a),
		newScheduleCmd(a),
		newScanDumpCmd(a),
		newProbeCmd(a),
		newNotifyTestCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, level := newLogger(a.verbose || cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	a.logger = logger
	return nil
}

// listenAddr is the metrics address, with the flag taking precedence.
func (a *app) listenAddr() string {
	if a.metricsAddr != "" {
		return a.metricsAddr
	}
	return a.cfg.MetricsAddr
}

func (a *app) newBot() (*bot.Bot, error) {
	return bot.New(a.cfg, bot.WithLogger(a.logger))
}

func (a *app) newPipeline() *pipeline.Pipeline {
	return pipeline.NewPipeline(a.cfg.DedupeMaxSize, a.logger)
}

func (a *app) newNotifier() *notify.Notifier {
	return notify.New(a.cfg, notify.WithLogger(a.logger))
}

// newWorkflow assembles the full run. The prober is optional: a URL it cannot
// handle only disables the preflight.
func (a *app) newWorkflow(b *bot.Bot, p *probe.Prober) *workflow.Workflow {
	opts := []workflow.Option{workflow.WithLogger(a.logger)}
	if p != nil {
		opts = append(opts, workflow.WithProber(p))
	}
	return workflow.New(a.cfg, b, a.newPipeline(), a.newNotifier(), opts...)
}

func (a *app) newProber() *probe.Prober {
	p, err := probe.New(a.cfg, a.logger)
	if err != nil {
		a.logger.Warn("preflight disabled", slog.Any("error", err))
		return nil
	}
	return p
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
