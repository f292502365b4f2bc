package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/processlens/pkg/detect"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/render"
	"github.com/logflow/processlens/pkg/tui"
	"github.com/logflow/processlens/pkg/view"
	"github.com/logflow/processlens/pkg/watch"
)

// Command flags
var (
	interactive  bool
	selectFlag   string
	outputFile   string
	renderFormat string
)

var columnsCmd = &cobra.Command{
	Use:   "columns <input>",
	Short: "Suggest case id, activity and timestamp columns",
	Long: `Inspect the header of an input and suggest which columns hold the case id,
activity and timestamp.

Examples:
  processlens columns events.csv
  processlens columns s3://bucket/logs/events.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: runColumns,
}

var mineCmd = &cobra.Command{
	Use:   "mine <input>",
	Short: "Mine a process and list its subprocesses",
	Long: `Normalize the event log, build its directly-follows graph and decompose it
into subprocesses.

Examples:
  processlens mine events.csv
  processlens mine events.xlsx --resolution 1.5 --no-naming`,
	Args: cobra.ExactArgs(1),
	RunE: runMine,
}

var viewCmd = &cobra.Command{
	Use:   "view <input>",
	Short: "Show the whole process or one subprocess",
	Long: `Project the mined graph onto ALL or a single subprocess id and print its edges.

Examples:
  processlens view events.csv
  processlens view events.csv --select 2`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

var exportCmd = &cobra.Command{
	Use:   "export <input>",
	Short: "Export a view as JSON or Graphviz DOT",
	Long: `Write the drawable document of a view.

Examples:
  processlens export events.csv -o process.json
  processlens export events.csv --format dot --select 0 | dot -Tsvg > sub0.svg`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var watchCmd = &cobra.Command{
	Use:   "watch <input>",
	Short: "Re-mine a local file whenever it changes",
	Long: `Mine the input, then watch it and mine again on every change. With --output the
exported document is rewritten each time.

Examples:
  processlens watch events.csv
  processlens watch events.csv -o process.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	columnsCmd.Flags().BoolVar(&interactive, "interactive", false, "Confirm or override each suggested column")

	viewCmd.Flags().StringVarP(&selectFlag, "select", "s", "ALL", "View to show: ALL or a subprocess id")

	exportCmd.Flags().StringVarP(&selectFlag, "select", "s", "ALL", "View to export: ALL or a subprocess id")
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (stdout if empty)")
	exportCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "Output format (json, dot); taken from the output extension if empty")

	watchCmd.Flags().StringVarP(&selectFlag, "select", "s", "ALL", "View to export: ALL or a subprocess id")
	watchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Rewrite this export on every change")
	watchCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "Output format (json, dot)")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runColumns(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	tbl, err := a.load(ctx, args[0])
	if err != nil {
		return err
	}

	cols, err := detect.SuggestColumns(tbl.Columns())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if interactive {
		cols, err = tui.ConfirmColumns(cmd.InOrStdin(), out, cols, tbl.Columns())
		if err != nil {
			return err
		}
		for _, col := range []string{cols.CaseID, cols.Activity, cols.Timestamp} {
			if _, ok := tbl.ColumnIndex(col); !ok {
				return perrors.MissingColumn(col, tbl.Columns())
			}
		}
		fmt.Fprintln(out)
	}
	tui.PrintColumns(out, cols)
	fmt.Fprintf(out, "\n  --case %q --activity %q --timestamp %q\n", cols.CaseID, cols.Activity, cols.Timestamp)
	return nil
}

func runMine(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	r, err := a.mine(ctx, args[0])
	if err != nil {
		return err
	}
	printRun(cmd.OutOrStdout(), r)
	return nil
}

func printRun(w io.Writer, r *run) {
	res := r.result
	all, _ := res.View(view.All)
	tui.PrintSummary(w, tui.Summary{
		Source:     r.uri,
		Stats:      all.Stats(),
		Cases:      len(res.Log.Cases),
		Events:     res.Log.NumEvents(),
		Dropped:    res.Report.Dropped(),
		Modularity: res.Partition.Modularity(),
		Resolution: res.Resolution,
		Elapsed:    res.Elapsed,
		Cached:     r.cached,
	})
	tui.PrintCommunities(w, res.Partition, r.names)
	tui.PrintWarnings(w, r.warnings)
}

// project resolves the --select flag. An unknown subprocess falls back to
// the whole process with a warning.
func project(w io.Writer, r *run) (*view.View, error) {
	sel, err := view.ParseSelection(selectFlag)
	if err != nil {
		return nil, err
	}
	v, err := view.ProjectOrAll(r.result.Graph, r.result.Partition, sel)
	if err != nil {
		logger.Warn().Err(err).Str("select", selectFlag).Msg("showing the whole process")
		tui.PrintWarnings(w, []perrors.Warning{perrors.Warnf(perrors.CodeCommunityNotFound,
			"subprocess %s not found, showing ALL", selectFlag)})
	}
	return v, nil
}

func runView(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	r, err := a.mine(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	v, err := project(out, r)
	if err != nil {
		return err
	}

	tui.PrintStats(out, v.Selection, v.Stats())
	for _, id := range v.Partition.IDs() {
		fmt.Fprintf(out, "  [%d] %s\n", id, r.names.Get(id))
	}
	for _, e := range v.Graph.Edges() {
		fmt.Fprintf(out, "  %s -> %s  %d\n", e.From, e.To, e.Weight)
	}
	tui.PrintWarnings(out, r.warnings)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	r, err := a.mine(ctx, args[0])
	if err != nil {
		return err
	}
	if err := export(cmd.ErrOrStderr(), cmd.OutOrStdout(), r); err != nil {
		return err
	}
	tui.PrintWarnings(cmd.ErrOrStderr(), r.warnings)
	return nil
}

// export renders the selected view to --output, or stdout.
func export(notices, stdout io.Writer, r *run) error {
	format, err := exportFormat()
	if err != nil {
		return err
	}
	v, err := project(notices, r)
	if err != nil {
		return err
	}
	doc := render.Build(v, r.names)

	if outputFile == "" {
		return render.Write(stdout, doc, format)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return perrors.Wrap(err, perrors.CodeRenderFailed, "create output").WithContext("path", outputFile)
	}
	if err := render.Write(f, doc, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return perrors.Wrap(err, perrors.CodeRenderFailed, "close output").WithContext("path", outputFile)
	}
	logger.Info().Str("path", outputFile).Str("format", string(format)).Msg("exported view")
	return nil
}

func exportFormat() (render.Format, error) {
	if renderFormat != "" {
		return render.ParseFormat(renderFormat)
	}
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".dot", ".gv":
		return render.FormatDOT, nil
	default:
		return render.FormatJSON, nil
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	refresh := func(ctx context.Context, path string) error {
		r, err := a.mine(ctx, path)
		if err != nil {
			logStack(err)
			tui.PrintError(out, err)
			return err
		}
		printRun(out, r)
		if outputFile != "" {
			return export(out, out, r)
		}
		return nil
	}
	if err := refresh(ctx, args[0]); err != nil {
		return err
	}

	w, err := watch.NewWatcher(logger)
	if err != nil {
		return err
	}
	w.OnChange = refresh
	if err := w.Watch(args[0]); err != nil {
		w.Close()
		return err
	}

	fmt.Fprintf(out, "  watching %s (Ctrl+C to stop)\n", args[0])
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
