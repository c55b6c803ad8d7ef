package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/beacon/dialect"
)

// Statement is one statement run through an observed driver.
type Statement struct {
	Query    string
	Args     []any
	Duration time.Duration
	Err      error
	// Exec reports whether the statement ran through Exec rather than Query.
	Exec bool
	// InTx reports whether the statement ran inside a transaction.
	InTx bool
}

// Verb returns the leading keyword of the statement in upper case, e.g.
// SELECT.
func (s Statement) Verb() string {
	q := strings.TrimSpace(s.Query)
	if i := strings.IndexAny(q, " \t\n("); i >= 0 {
		q = q[:i]
	}
	return strings.ToUpper(q)
}

// Observer is notified of statements and transaction outcomes.
type Observer interface {
	Statement(ctx context.Context, s Statement)
	// Finish is called once per transaction. committed is false after a
	// rollback.
	Finish(committed bool, err error)
}

// ObservedDriver reports every statement it runs, and those of its
// transactions, to an Observer.
type ObservedDriver struct {
	dialect.Driver
	obs Observer
}

// Observe wraps drv.
func Observe(drv dialect.Driver, obs Observer) *ObservedDriver {
	return &ObservedDriver{Driver: drv, obs: obs}
}

// Query implements dialect.ExecQuerier.
func (d *ObservedDriver) Query(ctx context.Context, query string, args, v any) error {
	return observe(ctx, d.obs, d.Driver.Query, query, args, v, false, false)
}

// Exec implements dialect.ExecQuerier.
func (d *ObservedDriver) Exec(ctx context.Context, query string, args, v any) error {
	return observe(ctx, d.obs, d.Driver.Exec, query, args, v, true, false)
}

// Tx implements dialect.Driver.
func (d *ObservedDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &observedTx{Tx: tx, obs: d.obs}, nil
}

type observedTx struct {
	dialect.Tx
	obs Observer
}

func (tx *observedTx) Query(ctx context.Context, query string, args, v any) error {
	return observe(ctx, tx.obs, tx.Tx.Query, query, args, v, false, true)
}

func (tx *observedTx) Exec(ctx context.Context, query string, args, v any) error {
	return observe(ctx, tx.obs, tx.Tx.Exec, query, args, v, true, true)
}

func (tx *observedTx) Commit() error {
	err := tx.Tx.Commit()
	tx.obs.Finish(err == nil, err)
	return err
}

func (tx *observedTx) Rollback() error {
	err := tx.Tx.Rollback()
	tx.obs.Finish(false, err)
	return err
}

type runFunc func(ctx context.Context, query string, args, v any) error

func observe(ctx context.Context, obs Observer, run runFunc, query string, args, v any, exec, inTx bool) error {
	start := time.Now()
	err := run(ctx, query, args, v)
	argv, _ := args.([]any)
	obs.Statement(ctx, Statement{
		Query:    query,
		Args:     argv,
		Duration: time.Since(start),
		Err:      err,
		Exec:     exec,
		InTx:     inTx,
	})
	return err
}

// QueryStats counts the statements of a driver by kind.
type QueryStats struct {
	TotalQueries  atomic.Int64
	TotalExecs    atomic.Int64
	TotalDuration atomic.Int64 // nanoseconds
	SlowQueries   atomic.Int64
	Errors        atomic.Int64
	Commits       atomic.Int64
	Rollbacks     atomic.Int64

	mu    sync.Mutex
	verbs map[string]int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	s.mu.Lock()
	verbs := make(map[string]int64, len(s.verbs))
	for k, v := range s.verbs {
		verbs[k] = v
	}
	s.mu.Unlock()
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
		Commits:       s.Commits.Load(),
		Rollbacks:     s.Rollbacks.Load(),
		Verbs:         verbs,
	}
}

// Reset sets every counter to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
	s.Commits.Store(0)
	s.Rollbacks.Store(0)
	s.mu.Lock()
	clear(s.verbs)
	s.mu.Unlock()
}

func (s *QueryStats) add(st Statement, slow bool) {
	if st.Exec {
		s.TotalExecs.Add(1)
	} else {
		s.TotalQueries.Add(1)
	}
	s.TotalDuration.Add(int64(st.Duration))
	if st.Err != nil {
		s.Errors.Add(1)
	}
	if slow {
		s.SlowQueries.Add(1)
	}
	s.mu.Lock()
	if s.verbs == nil {
		s.verbs = make(map[string]int64)
	}
	s.verbs[st.Verb()]++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	Commits       int64
	Rollbacks     int64
	// Verbs counts statements by leading keyword.
	Verbs map[string]int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// LogValue implements slog.LogValuer.
func (s StatsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("queries", s.TotalQueries),
		slog.Int64("execs", s.TotalExecs),
		slog.Duration("avg", s.AvgQueryDuration()),
		slog.Int64("slow", s.SlowQueries),
		slog.Int64("errors", s.Errors),
		slog.Int64("commits", s.Commits),
		slog.Int64("rollbacks", s.Rollbacks),
	)
}

// String returns a one-line summary.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d avg=%s slow=%d errors=%d commits=%d rollbacks=%d",
		s.TotalQueries, s.TotalExecs, s.AvgQueryDuration(), s.SlowQueries, s.Errors, s.Commits, s.Rollbacks)
}

// SlowQueryHook is called for statements slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsOption configures a StatsDriver.
type StatsOption func(*statsObserver)

// WithSlowThreshold sets the slow statement threshold. The default is
// 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(o *statsObserver) { o.threshold = d }
}

// WithSlowQueryHook calls hook for every slow statement.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(o *statsObserver) { o.hook = hook }
}

// WithSlowQueryLog logs slow statements at warn level.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, d time.Duration) {
		logger.WarnContext(ctx, "slow query detected",
			slog.Duration("duration", d),
			slog.String("query", query),
			slog.Any("args", args),
		)
	})
}

type statsObserver struct {
	stats     QueryStats
	mu        sync.RWMutex
	threshold time.Duration
	hook      SlowQueryHook
}

func (o *statsObserver) Statement(ctx context.Context, s Statement) {
	o.mu.RLock()
	threshold, hook := o.threshold, o.hook
	o.mu.RUnlock()
	slow := s.Duration > threshold
	o.stats.add(s, slow)
	if slow && hook != nil {
		hook(ctx, s.Query, s.Args, s.Duration)
	}
}

func (o *statsObserver) Finish(committed bool, _ error) {
	if committed {
		o.stats.Commits.Add(1)
	} else {
		o.stats.Rollbacks.Add(1)
	}
}

// StatsDriver collects statement statistics of the store.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	store := sqlstore.New(stats, registry)
type StatsDriver struct {
	*ObservedDriver
	obs *statsObserver
}

// NewStatsDriver wraps drv with statistics collection.
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	obs := &statsObserver{threshold: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(obs)
	}
	return &StatsDriver{ObservedDriver: Observe(drv, obs), obs: obs}
}

// QueryStats returns the live statistics.
func (d *StatsDriver) QueryStats() *QueryStats { return &d.obs.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.obs.mu.RLock()
	defer d.obs.mu.RUnlock()
	return d.obs.threshold
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	d.obs.threshold = threshold
}

type debugObserver struct{ logger *slog.Logger }

func (o debugObserver) Statement(ctx context.Context, s Statement) {
	attrs := []slog.Attr{
		slog.String("sql", s.Query),
		slog.Any("args", s.Args),
		slog.Duration("duration", s.Duration),
		slog.Bool("tx", s.InTx),
	}
	if s.Err != nil {
		attrs = append(attrs, slog.Any("error", s.Err))
	}
	o.logger.LogAttrs(ctx, slog.LevelDebug, strings.ToLower(s.Verb()), attrs...)
}

func (o debugObserver) Finish(committed bool, err error) {
	msg := "rollback"
	if committed {
		msg = "commit"
	}
	if err != nil {
		o.logger.Debug(msg, slog.Any("error", err))
		return
	}
	o.logger.Debug(msg)
}

// NewDebugDriver wraps drv, logging every statement at debug level.
func NewDebugDriver(drv dialect.Driver, logger *slog.Logger) *ObservedDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return Observe(drv, debugObserver{logger: logger})
}

var (
	_ dialect.Driver = (*ObservedDriver)(nil)
	_ dialect.Tx     = (*observedTx)(nil)
	_ dialect.Driver = (*StatsDriver)(nil)
)
