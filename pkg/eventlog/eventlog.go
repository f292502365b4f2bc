// Package eventlog converts a raw table into canonical cases.
//
// Prepare validates the three selected columns, parses timestamps
// permissively, drops rows it cannot use and orders every case by time.
// All other columns are carried along untouched and never interpreted.
package eventlog

import (
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"

	"github.com/logflow/processlens/internal/timeparse"
	"github.com/logflow/processlens/pkg/detect"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// Canonical column names the selected columns are relabelled to.
const (
	ColumnCaseID    = "case_id"
	ColumnActivity  = "activity"
	ColumnStartDate = "start_date"
)

// Event is one row of the log in canonical form.
type Event struct {
	CaseID    string
	Activity  string
	Timestamp time.Time
	// Row is the index of the source row in the raw table.
	Row int
}

// Case is the time-ordered event sequence of one case id.
type Case struct {
	ID     string
	Events []Event
}

// Activities returns the activity labels of the case in order.
func (c Case) Activities() []string {
	out := make([]string, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Activity
	}
	return out
}

// Log is the canonical event log. Cases appear in the order their id was
// first seen in the raw table.
type Log struct {
	Cases   []Case
	Columns detect.Columns

	source *table.Table
	kept   []int
	stamps map[int]time.Time
}

// NumEvents returns the total number of events over all cases.
func (l *Log) NumEvents() int {
	n := 0
	for _, c := range l.Cases {
		n += len(c.Events)
	}
	return n
}

// Empty reports whether the log has no events.
func (l *Log) Empty() bool { return l.NumEvents() == 0 }

// Canonical returns a private copy of the surviving rows with the selected
// columns renamed to case_id, activity and start_date. The start_date cells
// hold the parsed time.Time values; every other column is copied verbatim.
func (l *Log) Canonical() *table.Table {
	if l.source == nil {
		return table.New([]string{ColumnCaseID, ColumnActivity, ColumnStartDate}, nil)
	}
	renamed := l.source.Rename(map[string]string{
		l.Columns.CaseID:    ColumnCaseID,
		l.Columns.Activity:  ColumnActivity,
		l.Columns.Timestamp: ColumnStartDate,
	})
	tsIdx, _ := l.source.ColumnIndex(l.Columns.Timestamp)

	rows := make([][]any, 0, len(l.kept))
	for _, r := range l.kept {
		row := renamed.Row(r)
		row[tsIdx] = l.stamps[r]
		rows = append(rows, row)
	}
	return table.New(renamed.Columns(), rows)
}

// Report describes rows discarded while preparing a log.
type Report struct {
	TotalRows int
	// InvalidTimestamps holds the source row indices whose timestamp did not
	// parse.
	InvalidTimestamps *roaring.Bitmap
	// MissingKeys holds source rows with an empty case id or activity.
	MissingKeys *roaring.Bitmap
	Warnings    []perrors.Warning
}

// Dropped returns the total number of discarded rows.
func (r *Report) Dropped() int {
	return int(r.InvalidTimestamps.GetCardinality() + r.MissingKeys.GetCardinality())
}

// Options configures Prepare.
type Options struct {
	DayFirst bool
	Location *time.Location
	Logger   zerolog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithDayFirst sets the reading of ambiguous numeric dates.
func WithDayFirst(dayFirst bool) Option {
	return func(o *Options) { o.DayFirst = dayFirst }
}

// WithLocation sets the zone for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) { o.Location = loc }
}

// WithLogger routes warnings to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// DefaultOptions returns day-first, UTC, silent options.
func DefaultOptions() Options {
	return Options{
		DayFirst: true,
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	}
}

// Prepare builds the canonical log from tbl using the given column roles.
// The table is cloned first and never modified. A table without columns or
// a selected column that does not exist is a fatal error; rows that cannot
// be used are dropped and reported. If nothing survives, the log is empty.
func Prepare(tbl *table.Table, cols detect.Columns, opts ...Option) (*Log, *Report, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if tbl == nil || tbl.NumColumns() == 0 {
		return nil, nil, perrors.NoColumns()
	}

	src := tbl.Clone()
	caseIdx, err := columnIndex(src, cols.CaseID)
	if err != nil {
		return nil, nil, err
	}
	actIdx, err := columnIndex(src, cols.Activity)
	if err != nil {
		return nil, nil, err
	}
	tsIdx, err := columnIndex(src, cols.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	parser := timeparse.New(
		timeparse.WithDayFirst(o.DayFirst),
		timeparse.WithLocation(o.Location),
	)

	report := &Report{
		TotalRows:         src.NumRows(),
		InvalidTimestamps: roaring.New(),
		MissingKeys:       roaring.New(),
	}

	log := &Log{
		Columns: cols,
		source:  src,
		stamps:  make(map[int]time.Time),
	}
	caseIndex := make(map[string]int)

	for r := 0; r < src.NumRows(); r++ {
		ts, err := parser.ParseCell(src.Cell(r, tsIdx))
		if err != nil {
			report.InvalidTimestamps.Add(uint32(r))
			continue
		}

		caseCell, actCell := src.Cell(r, caseIdx), src.Cell(r, actIdx)
		if table.IsBlank(caseCell) || table.IsBlank(actCell) {
			report.MissingKeys.Add(uint32(r))
			continue
		}

		ev := Event{
			CaseID:    table.String(caseCell),
			Activity:  table.String(actCell),
			Timestamp: ts,
			Row:       r,
		}
		ci, ok := caseIndex[ev.CaseID]
		if !ok {
			ci = len(log.Cases)
			caseIndex[ev.CaseID] = ci
			log.Cases = append(log.Cases, Case{ID: ev.CaseID})
		}
		log.Cases[ci].Events = append(log.Cases[ci].Events, ev)
		log.kept = append(log.kept, r)
		log.stamps[r] = ts
	}

	for i := range log.Cases {
		events := log.Cases[i].Events
		// Events were appended in row order, so a stable sort keeps the
		// original order among equal timestamps.
		sort.SliceStable(events, func(a, b int) bool {
			return events[a].Timestamp.Before(events[b].Timestamp)
		})
	}

	if n := report.InvalidTimestamps.GetCardinality(); n > 0 {
		report.Warnings = append(report.Warnings,
			perrors.Warnf(perrors.CodeInvalidTimestamp, "dropped %d rows with invalid dates", n))
		o.Logger.Warn().
			Uint64("rows", n).
			Str("column", cols.Timestamp).
			Msg("dropped rows with invalid dates")
	}
	if n := report.MissingKeys.GetCardinality(); n > 0 {
		report.Warnings = append(report.Warnings,
			perrors.Warnf(perrors.CodeMissingKey, "dropped %d rows with empty case id or activity", n))
		o.Logger.Warn().
			Uint64("rows", n).
			Msg("dropped rows with empty case id or activity")
	}
	if log.Empty() && report.TotalRows > 0 {
		o.Logger.Warn().Int("rows", report.TotalRows).Msg("no usable rows remain")
	}

	return log, report, nil
}

func columnIndex(tbl *table.Table, name string) (int, error) {
	idx, ok := tbl.ColumnIndex(name)
	if !ok {
		return 0, perrors.MissingColumn(name, tbl.Columns())
	}
	return idx, nil
}
