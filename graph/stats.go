package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/linkage"
)

// LoadStats holds relationship load statistics.
type LoadStats struct {
	// TotalLoads is the total number of loader calls.
	TotalLoads atomic.Int64
	// TotalRecords is the total number of records returned by loads.
	TotalRecords atomic.Int64
	// TotalDuration is the total time spent in the loader.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowLoads is the count of loads exceeding the slow threshold.
	SlowLoads atomic.Int64
	// Errors is the count of failed loads.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *LoadStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalLoads:    s.TotalLoads.Load(),
		TotalRecords:  s.TotalRecords.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowLoads:     s.SlowLoads.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *LoadStats) Reset() {
	s.TotalLoads.Store(0)
	s.TotalRecords.Store(0)
	s.TotalDuration.Store(0)
	s.SlowLoads.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of load statistics.
type StatsSnapshot struct {
	TotalLoads    int64
	TotalRecords  int64
	TotalDuration time.Duration
	SlowLoads     int64
	Errors        int64
}

// AvgLoadDuration returns the average load duration.
func (s StatsSnapshot) AvgLoadDuration() time.Duration {
	if s.TotalLoads == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.TotalLoads)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"loads=%d records=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalLoads, s.TotalRecords, s.TotalDuration, s.AvgLoadDuration(),
		s.SlowLoads, s.Errors,
	)
}

// SlowLoadHook is a function called when a slow load is detected.
type SlowLoadHook func(ctx context.Context, owner linkage.Record, relationship string, duration time.Duration)

// StatsLoader wraps a Loader with load statistics collection.
type StatsLoader struct {
	linkage.Loader
	stats         *LoadStats
	slowThreshold time.Duration
	slowHook      SlowLoadHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsLoader.
type StatsOption func(*StatsLoader)

// WithSlowThreshold sets the threshold for slow load detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsLoader) {
		s.slowThreshold = d
	}
}

// WithSlowLoadHook sets a callback function for slow loads.
func WithSlowLoadHook(hook SlowLoadHook) StatsOption {
	return func(s *StatsLoader) {
		s.slowHook = hook
	}
}

// WithSlowLoadLog logs slow loads to the given logger, or to the default
// logger when l is nil.
func WithSlowLoadLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowLoadHook(func(ctx context.Context, owner linkage.Record, relationship string, duration time.Duration) {
		l.WarnContext(ctx, "slow relationship load detected", "duration", duration,
			"type", owner.TypeName(), "id", owner.ID(), "relationship", relationship)
	})
}

// NewStatsLoader wraps a Loader with statistics collection.
//
// Example:
//
//	loader := graph.NewStatsLoader(sqlLoader,
//	    graph.WithSlowThreshold(200*time.Millisecond),
//	    graph.WithSlowLoadLog(nil),
//	)
//	sess := graph.NewSession(reg, graph.WithLoader(loader))
//
//	// Later, check statistics:
//	fmt.Println(loader.LoadStats().Stats())
func NewStatsLoader(l linkage.Loader, opts ...StatsOption) *StatsLoader {
	s := &StatsLoader{
		Loader:        l,
		stats:         &LoadStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadStats returns the underlying LoadStats for reading statistics.
func (l *StatsLoader) LoadStats() *LoadStats {
	return l.stats
}

// SlowThreshold returns the current slow load threshold.
func (l *StatsLoader) SlowThreshold() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slowThreshold
}

// SetSlowThreshold updates the slow load threshold.
func (l *StatsLoader) SetSlowThreshold(threshold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slowThreshold = threshold
}

// Load calls the wrapped loader and records statistics.
func (l *StatsLoader) Load(ctx context.Context, owner linkage.Record, relationship string) ([]linkage.Record, error) {
	start := time.Now()
	records, err := l.Loader.Load(ctx, owner, relationship)
	duration := time.Since(start)
	l.stats.TotalLoads.Add(1)
	l.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		l.stats.Errors.Add(1)
	} else {
		l.stats.TotalRecords.Add(int64(len(records)))
	}

	l.mu.RLock()
	threshold := l.slowThreshold
	hook := l.slowHook
	l.mu.RUnlock()

	if duration > threshold {
		l.stats.SlowLoads.Add(1)
		if hook != nil {
			hook(ctx, owner, relationship, duration)
		}
	}
	return records, err
}

var _ linkage.Loader = (*StatsLoader)(nil)
