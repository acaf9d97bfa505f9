package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/linkage/dialect"
)

// QueryStats is a snapshot of the counters of a StatsDriver.
type QueryStats struct {
	Queries   int64
	Txs       int64
	Rollbacks int64
	Duration  time.Duration
	Slow      int64
	Errors    int64
}

// AvgDuration returns the mean query duration.
func (s QueryStats) AvgDuration() time.Duration {
	if s.Queries == 0 {
		return 0
	}
	return s.Duration / time.Duration(s.Queries)
}

func (s QueryStats) String() string {
	return fmt.Sprintf("queries=%d txs=%d duration=%s avg=%s slow=%d errors=%d",
		s.Queries, s.Txs, s.Duration, s.AvgDuration(), s.Slow, s.Errors)
}

type counters struct {
	queries   atomic.Int64
	txs       atomic.Int64
	rollbacks atomic.Int64
	duration  atomic.Int64
	slow      atomic.Int64
	errors    atomic.Int64
}

// SlowQueryHook is called for queries slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a driver and counts the queries and transactions run
// through it. Loaders built on a StatsDriver report one query per loaded
// batch, which makes batching visible.
type StatsDriver struct {
	dialect.Driver
	c         counters
	threshold atomic.Int64
	onSlow    SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowQueryThreshold sets the duration above which queries count as
// slow. Default is 100ms.
func WithSlowQueryThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets the callback for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.onSlow = hook
	}
}

// WithSlowQueryLog logs slow queries to l at warn level.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		l.WarnContext(ctx, "slow relationship query", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver wraps drv with query statistics.
//
//	drv, _ := sql.Open("sqlite", dsn)
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	loader := sql.NewLoader(stats, reg, ids)
//	...
//	fmt.Println(stats.Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the counters.
func (d *StatsDriver) Stats() QueryStats {
	return QueryStats{
		Queries:   d.c.queries.Load(),
		Txs:       d.c.txs.Load(),
		Rollbacks: d.c.rollbacks.Load(),
		Duration:  time.Duration(d.c.duration.Load()),
		Slow:      d.c.slow.Load(),
		Errors:    d.c.errors.Load(),
	}
}

// ResetStats zeroes the counters.
func (d *StatsDriver) ResetStats() {
	for _, v := range []*atomic.Int64{
		&d.c.queries, &d.c.txs, &d.c.rollbacks, &d.c.duration, &d.c.slow, &d.c.errors,
	} {
		v.Store(0)
	}
}

// SlowThreshold returns the slow query threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold updates the slow query threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query runs a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, d.Driver, query, args, v)
}

// Tx starts a transaction whose queries are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.c.errors.Add(1)
		return nil, err
	}
	d.c.txs.Add(1)
	return &statsTx{Tx: tx, d: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, q dialect.Querier, query string, args, v any) error {
	start := time.Now()
	err := q.Query(ctx, query, args, v)
	took := time.Since(start)
	d.c.queries.Add(1)
	d.c.duration.Add(int64(took))
	if err != nil {
		d.c.errors.Add(1)
	}
	if took > d.SlowThreshold() {
		d.c.slow.Add(1)
		if d.onSlow != nil {
			argv, _ := args.([]any)
			d.onSlow(ctx, query, argv, took)
		}
	}
	return err
}

type statsTx struct {
	dialect.Tx
	d *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.d.observe(ctx, tx.Tx, query, args, v)
}

func (tx *statsTx) Rollback() error {
	tx.d.c.rollbacks.Add(1)
	return tx.Tx.Rollback()
}

var _ dialect.Driver = (*StatsDriver)(nil)
