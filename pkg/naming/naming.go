// Package naming gives subprocesses human readable names through an
// external, unreliable collaborator.
//
// Naming never affects the mining result: a failed, slow or panicking namer
// only costs the display name of that community, which falls back to
// DefaultName, and is reported as a warning.
package naming

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/processlens/pkg/community"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/resilience"
)

// maxNameRunes caps names returned by a namer.
const maxNameRunes = 60

// Namer suggests a name for community id from its member activities.
type Namer interface {
	Name(ctx context.Context, id int, activities []string) (string, error)
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(ctx context.Context, id int, activities []string) (string, error)

// Name implements Namer.
func (f NamerFunc) Name(ctx context.Context, id int, activities []string) (string, error) {
	return f(ctx, id, activities)
}

// DefaultName is the fallback display name of community id.
func DefaultName(id int) string {
	return fmt.Sprintf("Subprocess %d", id)
}

// Names maps community ids to display names.
type Names map[int]string

// Get returns the name of id, or DefaultName when none is known.
func (n Names) Get(id int) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return DefaultName(id)
}

// Options configures NameAll.
type Options struct {
	// Concurrency bounds parallel namer calls.
	Concurrency int
	// Timeout bounds each namer call.
	Timeout time.Duration
	Logger  zerolog.Logger
	// OnProgress is called after each community, from any goroutine.
	OnProgress func(done, total int)
}

// Option mutates Options.
type Option func(*Options)

// WithConcurrency sets the number of parallel namer calls.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithLogger sets the logger for failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithProgress sets the progress callback.
func WithProgress(fn func(done, total int)) Option {
	return func(o *Options) { o.OnProgress = fn }
}

// NameAll names every community of p. The returned Names has an entry for
// each community; warnings describe the ones that fell back to the default.
// A nil namer yields default names without warnings.
func NameAll(ctx context.Context, namer Namer, p *community.Partition, opts ...Option) (Names, []perrors.Warning) {
	o := Options{Concurrency: 4, Timeout: 30 * time.Second, Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}

	ids := p.IDs()
	names := make(Names, len(ids))
	for _, id := range ids {
		names[id] = DefaultName(id)
	}
	if namer == nil || len(ids) == 0 {
		return names, nil
	}

	var (
		mu       sync.Mutex
		done     int
		failures = make(map[int]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for _, id := range ids {
		id := id
		members, _ := p.Members(id)
		g.Go(func() error {
			name, err := resilience.SafeCall(gctx, o.Timeout, func(ctx context.Context) (string, error) {
				return namer.Name(ctx, id, members)
			})
			if err == nil {
				name, err = clean(name)
			}

			mu.Lock()
			if err != nil {
				failures[id] = err
			} else {
				names[id] = name
			}
			done++
			n := done
			mu.Unlock()

			if o.OnProgress != nil {
				o.OnProgress(n, len(ids))
			}
			// failures stay local to their community
			return nil
		})
	}
	_ = g.Wait()

	var warnings []perrors.Warning
	for _, id := range ids {
		err, failed := failures[id]
		if !failed {
			continue
		}
		o.Logger.Warn().Err(err).Int("community", id).Msg("naming failed, using default name")
		warnings = append(warnings, perrors.Warnf(perrors.CodeNamingFailed,
			"could not name community %d: %v", id, err))
	}
	return names, warnings
}

// clean keeps the first line of a reply, strips quoting and markdown
// emphasis, and caps the length.
func clean(name string) (string, error) {
	if i := strings.IndexAny(name, "\r\n"); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(strings.TrimSpace(name), "\"'`*_ ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty name")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	return name, nil
}
