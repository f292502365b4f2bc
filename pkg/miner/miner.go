// Package miner runs the mining pipeline: normalize the table, build the
// directly-follows graph and decompose it into subprocesses.
//
// A Result is immutable once returned and may be shared by any number of
// readers. Mine calls are serialized per Miner.
package miner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/logflow/processlens/pkg/community"
	"github.com/logflow/processlens/pkg/detect"
	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/eventlog"
	"github.com/logflow/processlens/pkg/table"
	"github.com/logflow/processlens/pkg/telemetry"
	"github.com/logflow/processlens/pkg/view"
)

// Result is the outcome of one mining run.
type Result struct {
	ID         string
	Columns    detect.Columns
	Resolution float64
	Log        *eventlog.Log
	Report     *eventlog.Report
	Graph      *dfg.Graph
	Partition  *community.Partition
	CreatedAt  time.Time
	Elapsed    time.Duration
}

// View projects the result onto sel.
func (r *Result) View(sel view.Selection) (*view.View, error) {
	return view.Project(r.Graph, r.Partition, sel)
}

// Warnings returns the non-fatal conditions met while mining.
func (r *Result) Warnings() []perrors.Warning {
	if r.Report == nil {
		return nil
	}
	return append([]perrors.Warning(nil), r.Report.Warnings...)
}

// Miner runs mining requests one at a time and caches their results.
type Miner struct {
	mu       sync.Mutex
	cache    *Cache
	logger   zerolog.Logger
	tracer   trace.Tracer
	dayFirst bool
	location *time.Location
}

// Option configures a Miner.
type Option func(*Miner)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Miner) { m.logger = logger }
}

// WithCache replaces the default single-entry cache. A nil cache disables
// caching.
func WithCache(c *Cache) Option {
	return func(m *Miner) { m.cache = c }
}

// WithTracer sets the tracer for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Miner) { m.tracer = t }
}

// WithDayFirst sets how ambiguous numeric dates are read.
func WithDayFirst(dayFirst bool) Option {
	return func(m *Miner) { m.dayFirst = dayFirst }
}

// WithLocation sets the zone for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(m *Miner) { m.location = loc }
}

// New creates a Miner.
func New(opts ...Option) *Miner {
	m := &Miner{
		cache:    NewCache(1, 0),
		logger:   zerolog.Nop(),
		tracer:   telemetry.Tracer("github.com/logflow/processlens/pkg/miner"),
		dayFirst: true,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveColumns fills empty roles of cols with suggestions for tbl.
func ResolveColumns(tbl *table.Table, cols detect.Columns) (detect.Columns, error) {
	if cols.Complete() {
		return cols, nil
	}
	if tbl == nil {
		return cols, perrors.NoColumns()
	}
	guess, err := detect.SuggestColumns(tbl.Columns())
	if err != nil {
		return cols, err
	}
	if cols.CaseID == "" {
		cols.CaseID = guess.CaseID
	}
	if cols.Activity == "" {
		cols.Activity = guess.Activity
	}
	if cols.Timestamp == "" {
		cols.Timestamp = guess.Timestamp
	}
	return cols, nil
}

// Mine normalizes tbl with cols, builds its graph and decomposes it at
// resolution. Empty roles in cols are filled by column detection. An
// identical earlier request is answered from the cache.
func (m *Miner) Mine(ctx context.Context, tbl *table.Table, cols detect.Columns, resolution float64) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "miner.Mine")
	defer span.End()

	res, err := m.mine(ctx, tbl, cols, resolution, span)
	if err != nil {
		telemetry.Fail(span, err)
		m.logger.Error().Err(err).Msg("mining failed")
		return nil, err
	}
	return res, nil
}

func (m *Miner) mine(ctx context.Context, tbl *table.Table, cols detect.Columns, resolution float64, span trace.Span) (*Result, error) {
	if tbl == nil || tbl.NumColumns() == 0 {
		return nil, perrors.NoColumns()
	}
	cols, err := ResolveColumns(tbl, cols)
	if err != nil {
		return nil, err
	}

	key := Key{
		Fingerprint: tbl.Fingerprint(),
		Columns:     cols,
		Resolution:  resolution,
		DayFirst:    m.dayFirst,
	}
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			span.SetAttributes(telemetry.Attr("cache.hit", true))
			m.logger.Debug().Str("result", cached.ID).Msg("served mining result from cache")
			return cached, nil
		}
	}

	start := time.Now()
	res := &Result{
		ID:         uuid.NewString(),
		Columns:    cols,
		Resolution: resolution,
		CreatedAt:  start,
	}

	if err := m.stage(ctx, "normalize", func() error {
		res.Log, res.Report, err = eventlog.Prepare(tbl, cols,
			eventlog.WithDayFirst(m.dayFirst),
			eventlog.WithLocation(m.location),
			eventlog.WithLogger(m.logger),
		)
		return err
	}); err != nil {
		return nil, err
	}

	if err := m.stage(ctx, "build_dfg", func() error {
		res.Graph = dfg.Build(res.Log)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := m.stage(ctx, "decompose", func() error {
		res.Partition, err = community.Decompose(res.Graph, resolution, community.WithLogger(m.logger))
		return err
	}); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	span.SetAttributes(
		telemetry.Attr("result.id", res.ID),
		telemetry.Attr("events", res.Log.NumEvents()),
		telemetry.Attr("activities", res.Graph.NumNodes()),
		telemetry.Attr("communities", res.Partition.Len()),
		telemetry.Attr("dropped_rows", res.Report.Dropped()),
	)
	m.logger.Info().
		Str("result", res.ID).
		Int("events", res.Log.NumEvents()).
		Int("dropped", res.Report.Dropped()).
		Int("activities", res.Graph.NumNodes()).
		Int("edges", res.Graph.NumEdges()).
		Int("communities", res.Partition.Len()).
		Float64("modularity", res.Partition.Modularity()).
		Dur("elapsed", res.Elapsed).
		Msg("mined process")

	if m.cache != nil {
		m.cache.Put(key, res)
	}
	return res, nil
}

// stage runs fn inside a child span, refusing to start once ctx is done.
func (m *Miner) stage(ctx context.Context, name string, fn func() error) error {
	if ctx.Err() != nil {
		return perrors.ContextCanceled(name)
	}
	_, span := m.tracer.Start(ctx, "miner."+name)
	defer span.End()
	if err := fn(); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	return nil
}

// Invalidate drops every cached result.
func (m *Miner) Invalidate() {
	if m.cache != nil {
		m.cache.InvalidateAll()
	}
}

// CacheStats returns statistics of the result cache.
func (m *Miner) CacheStats() CacheStats {
	if m.cache == nil {
		return CacheStats{}
	}
	return m.cache.Stats()
}
