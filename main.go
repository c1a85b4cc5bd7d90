package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/batch"
	"github.com/insightdelivered/statement-extractor/internal/config"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/logging"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

// app carries what every subcommand needs once flags and config are read.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *profile.Registry
	metrics  *metrics.Metrics
}

type rootFlags struct {
	config     string
	logLevel   string
	workers    int
	profileDir string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "statement-extractor",
		Short: "Extract account records from bank statement PDFs",
		Long: `Statement Extractor reads positional bank statement PDFs, splits them
into per-account record tables using a layout profile, and writes the result
as an Excel workbook, CSV or JSON.

Built-in profiles: btg, ubs, juliusbaer, itau-cash, itau-cash2,
itau-movimentacao. Add your own with --profile-dir.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.IntVar(&flags.workers, "workers", 0, "documents processed in parallel")
	pf.StringVar(&flags.profileDir, "profile-dir", "", "directory of additional layout profiles")

	root.AddCommand(
		newExtractCmd(a),
		newInspectCmd(a),
		newProfilesCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads configuration, applies flag overrides and builds the logger
// and profile registry.
func (a *app) init(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = flags.workers
	}
	if cmd.Flags().Changed("profile-dir") {
		cfg.ProfileDir = flags.profileDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	slog.SetDefault(a.log)

	reg, err := profile.Builtin()
	if err != nil {
		return fmt.Errorf("failed to load built-in profiles: %w", err)
	}
	if cfg.ProfileDir != "" {
		if err := reg.LoadDir(cfg.ProfileDir); err != nil {
			return fmt.Errorf("failed to load profiles from %s: %w", cfg.ProfileDir, err)
		}
		a.log.Debug("loaded profiles", "dir", cfg.ProfileDir, "profiles", reg.Names())
	}
	a.registry = reg
	a.metrics = metrics.New()
	return nil
}

func (a *app) source() extractor.Source {
	return extractor.NewDefaultSource(a.cfg.PdftotextPath, a.log)
}

func (a *app) runner(trace bool) *batch.Runner {
	return &batch.Runner{
		Source:    a.source(),
		Registry:  a.registry,
		Workers:   a.cfg.Workers,
		Timeout:   a.cfg.ExtractTimeout,
		Trace:     trace || a.cfg.Trace,
		Tolerance: a.cfg.RowTolerance,
		Logger:    a.log,
		Metrics:   a.metrics,
	}
}
