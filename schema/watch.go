package schema

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// Live holds the current schema of a builder and swaps it when the schema
// files change. Readers always see a complete schema.
type Live struct {
	builder  *Builder
	current  atomic.Pointer[Schema]
	group    singleflight.Group
	logger   *slog.Logger
	onSwap   []func(*Schema)
	debounce time.Duration
}

// NewLive builds the initial schema.
func NewLive(ctx context.Context, b *Builder) (*Live, error) {
	l := &Live{builder: b, logger: b.logger, debounce: 100 * time.Millisecond}
	s, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	l.current.Store(s)
	return l, nil
}

// Load returns the current schema.
func (l *Live) Load() *Schema { return l.current.Load() }

// OnSwap registers fn to run after a rebuilt schema replaced the current
// one. It must be called before Watch.
func (l *Live) OnSwap(fn func(*Schema)) {
	l.onSwap = append(l.onSwap, fn)
}

// Reload rebuilds the schema. Concurrent calls share one build. A failed
// build keeps the current schema.
func (l *Live) Reload(ctx context.Context) (*Schema, error) {
	v, err, _ := l.group.Do("build", func() (any, error) {
		s, err := l.builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		l.current.Store(s)
		for _, fn := range l.onSwap {
			fn(s)
		}
		return s, nil
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "schema rebuild failed, keeping the previous schema", slog.Any("error", err))
		return l.Load(), err
	}
	s := v.(*Schema)
	l.logger.InfoContext(ctx, "schema rebuilt", slog.String("hash", s.Hash), slog.Bool("cached", s.Cached))
	return s, nil
}

// Watch rebuilds the schema whenever one of the builder's files changes,
// until ctx is done. Directories are watched so editors that replace files
// are noticed.
func (l *Live) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema: creating watcher: %w", err)
	}
	defer w.Close()

	files := make([]string, 0, len(l.builder.files))
	var dirs []string
	for _, f := range l.builder.files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("schema: watching %s: %w", f, err)
		}
		files = append(files, abs)
		if dir := filepath.Dir(abs); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("schema: watching %s: %w", dir, err)
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || !slices.Contains(files, name) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			l.Reload(ctx) //nolint:errcheck // logged by Reload
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.WarnContext(ctx, "schema watcher error", slog.Any("error", err))
		}
	}
}
