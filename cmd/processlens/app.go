package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/logflow/processlens/pkg/config"
	"github.com/logflow/processlens/pkg/detect"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/miner"
	"github.com/logflow/processlens/pkg/naming"
	"github.com/logflow/processlens/pkg/source"
	"github.com/logflow/processlens/pkg/table"
	"github.com/logflow/processlens/pkg/tui"
)

// app wires the packages behind the commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	resolver *source.Resolver
	miner    *miner.Miner
	namer    naming.Namer
	progress io.Writer
}

// run is one mining pass over an input.
type run struct {
	uri      string
	table    *table.Table
	result   *miner.Result
	names    naming.Names
	warnings []perrors.Warning
	cached   bool
}

func newApp(c *config.Config, logger zerolog.Logger, progress io.Writer) (*app, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	var cache *miner.Cache
	if c.Cache.Size > 0 {
		cache = miner.NewCache(c.Cache.Size, c.Cache.MaxAge)
	}

	a := &app{
		cfg:      c,
		logger:   logger,
		resolver: source.NewResolver(c.S3),
		miner: miner.New(
			miner.WithLogger(logger),
			miner.WithCache(cache),
			miner.WithDayFirst(c.Mining.DayFirst),
			miner.WithLocation(loc),
		),
		progress: progress,
	}

	if c.Naming.Enabled {
		if c.Naming.Gemini.APIKey == "" {
			logger.Debug().Msg("no Gemini API key, subprocesses keep default names")
		} else {
			n, err := naming.NewGeminiNamer(c.Naming.Gemini)
			if err != nil {
				return nil, err
			}
			a.namer = n
		}
	}
	return a, nil
}

// columns returns the configured role overrides.
func (a *app) columns() detect.Columns {
	return detect.Columns{
		CaseID:    a.cfg.Mining.CaseColumn,
		Activity:  a.cfg.Mining.ActivityColumn,
		Timestamp: a.cfg.Mining.TimestampColumn,
	}
}

func (a *app) load(ctx context.Context, uri string) (*table.Table, error) {
	start := time.Now()
	tbl, err := a.resolver.Load(ctx, uri, a.cfg.ParserConfig())
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Str("input", uri).
		Int("rows", tbl.NumRows()).
		Int("columns", tbl.NumColumns()).
		Dur("elapsed", time.Since(start)).
		Msg("loaded table")
	return tbl, nil
}

// mine loads uri, mines it and names the subprocesses. Naming problems are
// returned as warnings.
func (a *app) mine(ctx context.Context, uri string) (*run, error) {
	tbl, err := a.load(ctx, uri)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	res, err := a.miner.Mine(ctx, tbl, a.columns(), a.cfg.Mining.Resolution)
	if err != nil {
		return nil, err
	}

	r := &run{
		uri:      uri,
		table:    tbl,
		result:   res,
		warnings: res.Warnings(),
		cached:   res.CreatedAt.Before(started),
	}
	r.names, r.warnings = a.name(ctx, res, r.warnings)
	return r, nil
}

func (a *app) name(ctx context.Context, res *miner.Result, warnings []perrors.Warning) (naming.Names, []perrors.Warning) {
	if a.namer == nil {
		names, _ := naming.NameAll(ctx, nil, res.Partition)
		return names, warnings
	}

	opts := []naming.Option{
		naming.WithLogger(a.logger),
		naming.WithConcurrency(a.cfg.Naming.Concurrency),
		naming.WithTimeout(a.cfg.Naming.Timeout),
	}
	if a.progress != nil && res.Partition.Len() > 0 {
		bar := tui.NamingProgress(a.progress, res.Partition.Len())
		opts = append(opts, naming.WithProgress(func(done, total int) {
			bar.Set(done)
		}))
		defer bar.Finish()
	}

	names, nameWarnings := naming.NameAll(ctx, a.namer, res.Partition, opts...)
	return names, append(warnings, nameWarnings...)
}
