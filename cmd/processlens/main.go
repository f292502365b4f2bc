// ProcessLens - process discovery with subprocess decomposition.
// Reads an event table, builds its directly-follows graph and splits it into
// subprocesses by modularity.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/logflow/processlens/pkg/config"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	cfgFile    string
	logLevel   string
	resolution float64
	dayFirst   bool
	noNaming   bool

	caseColumn      string
	activityColumn  string
	timestampColumn string

	delimiter string
	sheet     string
	maxRows   int
)

// Set by the root pre-run.
var (
	cfg      *config.Config
	logger   zerolog.Logger
	shutdown = func(context.Context) error { return nil }
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logStack(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// logStack writes where a coded error was raised at debug level.
func logStack(err error) {
	var pe *perrors.Error
	if errors.As(err, &pe) && len(pe.StackTrace) > 0 {
		logger.Debug().Str("code", string(pe.Code)).Msg("raised at\n" + pe.FormatStack())
	}
}

var rootCmd = &cobra.Command{
	Use:   "processlens",
	Short: "ProcessLens - discover processes and their subprocesses",
	Long: `ProcessLens reads an event log (CSV, TSV, XLSX, Parquet, JSON, XES; local or s3://),
builds its directly-follows graph and decomposes it into subprocesses.

Configuration is read from /etc/processlens/config.yaml, ~/.processlens/config.yaml
and ./.processlens.yaml, then PROCESSLENS_* environment variables, then flags.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return shutdown(ctx)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (replaces the default search paths)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.Float64VarP(&resolution, "resolution", "r", 1.0, "Modularity resolution in [0.1, 3.0]; higher gives smaller subprocesses")
	pf.BoolVar(&dayFirst, "day-first", true, "Read ambiguous dates as day/month")
	pf.BoolVar(&noNaming, "no-naming", false, "Skip subprocess naming")

	pf.StringVar(&caseColumn, "case", "", "Case id column (detected if empty)")
	pf.StringVar(&activityColumn, "activity", "", "Activity column (detected if empty)")
	pf.StringVar(&timestampColumn, "timestamp", "", "Timestamp column (detected if empty)")

	pf.StringVar(&delimiter, "delimiter", "", "CSV delimiter (sniffed if empty)")
	pf.StringVar(&sheet, "sheet", "", "XLSX sheet (first if empty)")
	pf.IntVar(&maxRows, "max-rows", 0, "Read at most this many rows (0 = all)")

	rootCmd.AddCommand(columnsCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads configuration, applies flags and starts logging and tracing.
func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if cfgFile != "" {
		m.WithPaths(cfgFile)
	}
	if err := m.Load(); err != nil {
		return err
	}
	cfg = m.Get()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = newLogger(cfg)
	if paths := m.GetPaths(); len(paths) > 0 {
		logger.Debug().Strs("paths", paths).Msg("loaded config")
	}

	var err error
	shutdown, err = telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdown = func(context.Context) error { return nil }
	}
	return nil
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if f.Changed("resolution") {
		c.Mining.Resolution = resolution
	}
	if f.Changed("day-first") {
		c.Mining.DayFirst = dayFirst
	}
	if f.Changed("no-naming") {
		c.Naming.Enabled = !noNaming
	}
	if f.Changed("case") {
		c.Mining.CaseColumn = caseColumn
	}
	if f.Changed("activity") {
		c.Mining.ActivityColumn = activityColumn
	}
	if f.Changed("timestamp") {
		c.Mining.TimestampColumn = timestampColumn
	}
	if f.Changed("delimiter") {
		c.Input.Delimiter = delimiter
	}
	if f.Changed("sheet") {
		c.Input.Sheet = sheet
	}
	if f.Changed("max-rows") {
		c.Input.MaxRows = maxRows
	}
}

func newLogger(c *config.Config) zerolog.Logger {
	var l zerolog.Logger
	if c.Log.Format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return l.Level(c.Level()).With().Timestamp().Logger()
}
