// Package tui prints ProcessLens results to a terminal.
// Simple, streaming output with lipgloss styling; no full-screen UI.
package tui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/processlens/pkg/community"
	"github.com/logflow/processlens/pkg/detect"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/naming"
	"github.com/logflow/processlens/pkg/render"
	"github.com/logflow/processlens/pkg/view"
)

// Colors
var (
	accent  = lipgloss.Color("#CE6C47")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  PROCESSLENS")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Process discovery with subprocess decomposition"))
	fmt.Fprintln(w)
}

// PrintColumns prints a column role assignment.
func PrintColumns(w io.Writer, cols detect.Columns) {
	fmt.Fprintln(w, accentStyle.Render("▸ COLUMN ROLES"))
	for _, role := range []struct{ name, column string }{
		{"case id", cols.CaseID},
		{"activity", cols.Activity},
		{"timestamp", cols.Timestamp},
	} {
		col := role.column
		if col == "" {
			col = "(not found)"
		}
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-10s", role.name)), codeStyle.Render(col))
	}
	if dups := detect.Duplicates(cols); len(dups) > 0 {
		fmt.Fprintln(w, accentStyle.Render("  ✗ column used for more than one role: "+strings.Join(dups, ", ")))
	}
}

// ConfirmColumns asks the user to accept or override each suggested role.
// An empty answer keeps the suggestion.
func ConfirmColumns(in io.Reader, w io.Writer, suggested detect.Columns, available []string) (detect.Columns, error) {
	reader := bufio.NewReader(in)

	fmt.Fprintln(w, accentStyle.Render("▸ COLUMN MAPPING"))
	fmt.Fprintln(w, mutedStyle.Render("  Available: "+strings.Join(available, ", ")))
	fmt.Fprintln(w, mutedStyle.Render("  Press Enter to accept defaults, or type column name:"))
	fmt.Fprintln(w)

	var (
		out detect.Columns
		err error
	)
	if out.CaseID, err = promptWithDefault(reader, w, "case id", suggested.CaseID); err != nil {
		return suggested, err
	}
	if out.Activity, err = promptWithDefault(reader, w, "activity", suggested.Activity); err != nil {
		return suggested, err
	}
	if out.Timestamp, err = promptWithDefault(reader, w, "timestamp", suggested.Timestamp); err != nil {
		return suggested, err
	}
	return out, nil
}

func promptWithDefault(reader *bufio.Reader, w io.Writer, field, defaultVal string) (string, error) {
	fmt.Fprintf(w, "  %s %s: ", mutedStyle.Render(field), mutedStyle.Render("["+defaultVal+"]"))
	input, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return defaultVal, err
	}

	input = strings.Trim(strings.TrimSpace(input), "\"'")
	if input == "" {
		return defaultVal, nil
	}
	return input, nil
}

// Summary is what the mine command reports.
type Summary struct {
	Source     string
	Stats      view.Stats
	Cases      int
	Events     int
	Dropped    int
	Modularity float64
	Resolution float64
	Elapsed    time.Duration
	Cached     bool
}

// PrintSummary prints a mining summary.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ MINING COMPLETE"))
	fmt.Fprintln(w)
	field(w, "Source:", s.Source)
	field(w, "Cases:", formatNumber(int64(s.Cases)))
	field(w, "Events:", formatNumber(int64(s.Events)))
	if s.Dropped > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Dropped:"), accentStyle.Render(formatNumber(int64(s.Dropped))+" rows"))
	}
	field(w, "Activities:", fmt.Sprintf("%d", s.Stats.Activities))
	field(w, "Edges:", fmt.Sprintf("%d (%s transitions)", s.Stats.Edges, formatNumber(s.Stats.Transitions)))
	field(w, "Subprocesses:", fmt.Sprintf("%d (resolution %.2f, modularity %.3f)", s.Stats.Communities, s.Resolution, s.Modularity))

	took := formatDuration(s.Elapsed)
	if s.Cached {
		took += " (cached)"
	}
	field(w, "Time:", took)
	fmt.Fprintln(w)
}

// PrintCommunities lists subprocesses with their members.
func PrintCommunities(w io.Writer, p *community.Partition, names naming.Names) {
	fmt.Fprintln(w, accentStyle.Render("▸ SUBPROCESSES"))
	fmt.Fprintln(w, mutedStyle.Render(rule))
	for _, id := range p.IDs() {
		members, _ := p.Members(id)
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(render.Color(id))).Render("■")
		fmt.Fprintf(w, "  %s %s %s\n", swatch, titleStyle.Render(fmt.Sprintf("%d", id)), titleStyle.Render(names.Get(id)))
		fmt.Fprintf(w, "      %s\n", mutedStyle.Render(strings.Join(members, ", ")))
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))
}

// PrintStats prints the statistics of one view.
func PrintStats(w io.Writer, sel view.Selection, stats view.Stats) {
	fmt.Fprintln(w, accentStyle.Render("▸ VIEW "+sel.String()))
	field(w, "Activities:", fmt.Sprintf("%d", stats.Activities))
	field(w, "Edges:", fmt.Sprintf("%d", stats.Edges))
	field(w, "Transitions:", formatNumber(stats.Transitions))
}

// PrintWarnings prints non-fatal conditions.
func PrintWarnings(w io.Writer, warnings []perrors.Warning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("!"), mutedStyle.Render(warn.String()))
	}
}

// PrintError prints a failure.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ✗ "+err.Error()))
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-13s", label)), titleStyle.Render(value))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// NamingProgress creates a progress bar for subprocess naming.
func NamingProgress(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("  naming subprocesses"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
