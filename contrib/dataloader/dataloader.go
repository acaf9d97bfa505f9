// Package dataloader coalesces relationship loads into batches.
//
// A BatchLoader collects the loads of one relationship that arrive within a
// short window and hands them to a single batch function:
//
//	batch := dataloader.NewBatchLoader(sqlLoader.LoadBatch,
//	    dataloader.WithWait(2*time.Millisecond),
//	    dataloader.WithMaxBatch(100),
//	)
//	sess := graph.NewSession(reg, graph.WithLoader(batch))
//
// Reading post.comments for fifty posts at once now issues one query.
//
// # Grouping Helpers
//
// Batch functions usually fetch (owner, member) rows in one query and split
// them per owner:
//
//	grouped := dataloader.GroupByKey(rows, func(r row) string { return r.owner })
//	ordered := dataloader.OrderGroupsByKeys(ownerIDs, grouped)
//	// ordered[i] contains all rows for ownerIDs[i]
package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syssam/linkage"
)

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// GroupByKey groups entities by a key function.
// Useful for one-to-many relationships where multiple entities share the same foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped entities to match the order of requested keys.
// Returns a slice of slices where each inner slice contains entities for that key.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// BatchResult represents the result of a batch load operation.
type BatchResult[V any] struct {
	Value V
	Error error
}

// Results converts separate value and error slices into BatchResult slice.
func Results[V any](values []V, errs []error) []BatchResult[V] {
	results := make([]BatchResult[V], len(values))
	for i := range values {
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		results[i] = BatchResult[V]{Value: values[i], Error: err}
	}
	return results
}

// BatchLoadFunc loads one relationship for several owners of the same type.
// It returns one member slice per owner, in the order of owners.
type BatchLoadFunc func(ctx context.Context, owners []linkage.Record, relationship string) ([][]linkage.Record, error)

// BatchLoader implements linkage.Loader by coalescing concurrent loads.
type BatchLoader struct {
	fn       BatchLoadFunc
	wait     time.Duration
	maxBatch int

	mu      sync.Mutex
	pending map[batchKey]*batch
}

// Option configures the BatchLoader.
type Option func(*BatchLoader)

// WithWait sets how long a batch collects loads before it runs.
// Default is 1ms.
func WithWait(d time.Duration) Option {
	return func(l *BatchLoader) {
		l.wait = d
	}
}

// WithMaxBatch caps the number of owners per batch. A full batch runs
// immediately. Zero means no limit.
func WithMaxBatch(n int) Option {
	return func(l *BatchLoader) {
		l.maxBatch = n
	}
}

// NewBatchLoader returns a loader that batches calls to fn.
func NewBatchLoader(fn BatchLoadFunc, opts ...Option) *BatchLoader {
	l := &BatchLoader{
		fn:      fn,
		wait:    time.Millisecond,
		pending: make(map[batchKey]*batch),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type batchKey struct {
	typ, relationship string
	reload            bool
}

type batch struct {
	owners  []linkage.Record
	index   map[linkage.Record]int
	full    chan struct{}
	done    chan struct{}
	results []BatchResult[[]linkage.Record]
}

// Load implements linkage.Loader. It blocks until the batch holding owner
// completed or ctx is done.
func (l *BatchLoader) Load(ctx context.Context, owner linkage.Record, relationship string) ([]linkage.Record, error) {
	key := batchKey{typ: owner.TypeName(), relationship: relationship, reload: linkage.IsReload(ctx)}
	l.mu.Lock()
	b, ok := l.pending[key]
	if !ok {
		b = &batch{
			index: make(map[linkage.Record]int),
			full:  make(chan struct{}),
			done:  make(chan struct{}),
		}
		l.pending[key] = b
		go l.run(context.WithoutCancel(ctx), key, b)
	}
	i, ok := b.index[owner]
	if !ok {
		i = len(b.owners)
		b.index[owner] = i
		b.owners = append(b.owners, owner)
		if l.maxBatch > 0 && len(b.owners) >= l.maxBatch {
			delete(l.pending, key)
			close(b.full)
		}
	}
	l.mu.Unlock()

	select {
	case <-b.done:
		r := b.results[i]
		return r.Value, r.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *BatchLoader) run(ctx context.Context, key batchKey, b *batch) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.full:
	}
	l.mu.Lock()
	if l.pending[key] == b {
		delete(l.pending, key)
	}
	owners := b.owners
	l.mu.Unlock()

	values, err := l.fn(ctx, owners, key.relationship)
	if err == nil && len(values) != len(owners) {
		err = fmt.Errorf("dataloader: batch for %s.%s returned %d results for %d owners",
			key.typ, key.relationship, len(values), len(owners))
	}
	if err != nil {
		values = make([][]linkage.Record, len(owners))
		errs := make([]error, len(owners))
		for i := range errs {
			errs[i] = err
		}
		b.results = Results(values, errs)
	} else {
		b.results = Results(values, nil)
	}
	close(b.done)
}

var _ linkage.Loader = (*BatchLoader)(nil)
