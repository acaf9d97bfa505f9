package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/identity"
)

var quiet = slog.New(slog.DiscardHandler)

// source returns comments "1" and "2" for every owner and counts calls.
type source struct {
	ids   *identity.Map
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (s *source) Load(ctx context.Context, _ linkage.Record, _ string) ([]linkage.Record, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	c1, _ := s.ids.Resolve(ctx, "comment", "1")
	c2, _ := s.ids.Resolve(ctx, "comment", "2")
	return []linkage.Record{c1, c2}, nil
}

func newCached(t *testing.T) (*Loader, *source, *Memory, *identity.Map) {
	t.Helper()
	ids := identity.New()
	src := &source{ids: ids}
	mem := NewMemory()
	return NewLoader(src, mem, ids, WithLogger(quiet)), src, mem, ids
}

func TestLoaderCaches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, src, mem, ids := newCached(t)
	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)

	first, err := l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	second, err := l.Load(ctx, owner, "comments")
	require.NoError(t, err)

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, first, second)
	c1, ok := ids.Lookup("comment", "1")
	require.True(t, ok)
	assert.Same(t, c1, second[0])
	assert.Equal(t, 1, mem.Len())
}

func TestLoaderReloadBypassesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, src, _, ids := newCached(t)
	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)

	_, err = l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	_, err = l.Load(linkage.WithReload(ctx), owner, "comments")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())

	_, err = l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestLoaderSharesConcurrentMisses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, src, _, ids := newCached(t)
	src.gate = make(chan struct{})
	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.Load(ctx, owner, "comments")
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	close(src.gate)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
}

func TestLoaderInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, src, mem, ids := newCached(t)
	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)

	_, err = l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	_, err = l.Load(ctx, owner, "tags")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len())

	require.NoError(t, l.Invalidate(ctx, owner, "comments"))
	assert.Equal(t, 1, mem.Len())
	_, err = l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	assert.EqualValues(t, 3, src.calls.Load())

	require.NoError(t, l.InvalidateRecord(ctx, owner))
	assert.Zero(t, mem.Len())
}

func TestLoaderSkipsCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unsaved_owner", func(t *testing.T) {
		t.Parallel()
		l, src, mem, _ := newCached(t)
		owner := identity.NewEntity("post", "")
		_, err := l.Load(ctx, owner, "comments")
		require.NoError(t, err)
		_, err = l.Load(ctx, owner, "comments")
		require.NoError(t, err)
		assert.EqualValues(t, 2, src.calls.Load())
		assert.Zero(t, mem.Len())
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		l, src, mem, ids := newCached(t)
		src.err = errors.New("down")
		owner, err := ids.Resolve(ctx, "post", "1")
		require.NoError(t, err)
		_, err = l.Load(ctx, owner, "comments")
		assert.ErrorIs(t, err, src.err)
		assert.Zero(t, mem.Len())
	})

	t.Run("undecodable_entry", func(t *testing.T) {
		t.Parallel()
		l, src, mem, ids := newCached(t)
		owner, err := ids.Resolve(ctx, "post", "1")
		require.NoError(t, err)
		key := linkage.CacheKeyFor(owner, "comments").String()
		require.NoError(t, mem.Set(ctx, key, []byte{0xc1}, 0))

		got, err := l.Load(ctx, owner, "comments")
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.EqualValues(t, 1, src.calls.Load())

		_, err = l.Load(ctx, owner, "comments")
		require.NoError(t, err)
		assert.EqualValues(t, 1, src.calls.Load())
	})
}
