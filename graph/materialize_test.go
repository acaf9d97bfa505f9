package graph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/graph"
)

// gatedLoader blocks every load until release is closed and counts calls.
type gatedLoader struct {
	release chan struct{}
	calls   atomic.Int32
	result  []linkage.Record
	err     error
	reload  atomic.Bool
}

func newGatedLoader(result ...linkage.Record) *gatedLoader {
	return &gatedLoader{release: make(chan struct{}), result: result}
}

func (l *gatedLoader) Load(ctx context.Context, _ linkage.Record, _ string) ([]linkage.Record, error) {
	l.calls.Add(1)
	l.reload.Store(linkage.IsReload(ctx))
	<-l.release
	return l.result, l.err
}

func TestGetSharesPendingLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, c1, c2 := post("1"), comment("1"), comment("2")
	loader := newGatedLoader(c1, c2)
	s, _ := newSession(t, graph.WithLoader(loader))
	comments := rel(t, s, p, "comments")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		pendings []*graph.Pending
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pending, err := comments.Get(ctx)
			assert.NoError(t, err)
			mu.Lock()
			pendings = append(pendings, pending)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, pendings, 8)
	for _, pending := range pendings[1:] {
		assert.Same(t, pendings[0], pending)
	}
	assert.False(t, pendings[0].Settled())
	assert.Equal(t, graph.StatusLoading, stateOf(t, comments).Status())
	assert.False(t, stateOf(t, comments).IsLoaded())

	close(loader.release)
	got, err := pendings[0].Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, records(c1, c2), got)
	assert.EqualValues(t, 1, loader.calls.Load())
	assert.False(t, loader.reload.Load())

	assert.Equal(t, graph.StatusLoaded, stateOf(t, comments).Status())
	assert.True(t, stateOf(t, comments).IsLoaded())
	assert.False(t, stateOf(t, comments).IsDirty())
	assert.Equal(t, records(p), members(t, s, c1, "post"))

	again, err := comments.Get(ctx)
	require.NoError(t, err)
	assert.True(t, again.Settled())
	got, err = again.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, records(c1, c2), got)
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestGetSyncNotLoaded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loader := newGatedLoader()
	s, _ := newSession(t, graph.WithLoader(loader))
	author := rel(t, s, comment("1"), "post")

	_, err := author.Get(ctx)
	require.ErrorIs(t, err, linkage.ErrSynchronousRelationshipNotLoaded)
	assert.True(t, linkage.IsNotLoaded(err))

	_, err = author.Records()
	require.ErrorIs(t, err, linkage.ErrSynchronousRelationshipNotLoaded)
	assert.Zero(t, loader.calls.Load())
}

func TestRecordsAsyncNotLoaded(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t)

	_, err := rel(t, s, post("1"), "comments").Records()
	assert.True(t, linkage.IsNotLoaded(err))
	assert.ErrorIs(t, err, linkage.ErrNotLoaded)
	assert.NotErrorIs(t, err, linkage.ErrSynchronousRelationshipNotLoaded)
	assert.ErrorContains(t, err, "async relationship post.comments")
}

func TestNewRecordsStartLoaded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loader := newGatedLoader()
	s, _ := newSession(t, graph.WithLoader(loader))
	p := post("")
	comments := rel(t, s, p, "comments")

	got, err := comments.Records()
	require.NoError(t, err)
	assert.Empty(t, got)

	pending, err := comments.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pending.Settled())
	assert.Zero(t, loader.calls.Load())

	c := comment("")
	require.NoError(t, rel(t, s, c, "post").Set(ctx, p))
	owner, err := rel(t, s, c, "post").Record()
	require.NoError(t, err)
	assert.Equal(t, p, owner)
}

func TestLoadFailureIsRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	errBoom := errors.New("boom")
	p, c := post("1"), comment("1")
	var calls atomic.Int32
	loader := linkage.LoaderFunc(func(context.Context, linkage.Record, string) ([]linkage.Record, error) {
		if calls.Add(1) == 1 {
			return nil, errBoom
		}
		return records(c), nil
	})
	s, n := newSession(t, graph.WithLoader(loader))
	comments := rel(t, s, p, "comments")

	pending, err := comments.Get(ctx)
	require.NoError(t, err)
	_, err = pending.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, linkage.ErrLoadFailure)
	assert.ErrorIs(t, err, errBoom)
	var le *linkage.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "post", le.Type)
	assert.Equal(t, "1", le.ID)
	assert.Equal(t, "comments", le.Relationship)

	st := stateOf(t, comments)
	assert.Equal(t, graph.StatusLoadFailed, st.Status())
	assert.False(t, st.IsLoaded())
	assert.ErrorIs(t, st.Err(), errBoom)
	assert.Empty(t, n.take())

	pending, err = comments.Get(ctx)
	require.NoError(t, err)
	got, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, records(c), got)
	assert.Equal(t, graph.StatusLoaded, st.Status())
	assert.NoError(t, st.Err())
	assert.EqualValues(t, 2, calls.Load())
}

func TestLoadWithoutLoader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newSession(t)

	pending, err := rel(t, s, post("1"), "comments").Get(ctx)
	require.NoError(t, err)
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, linkage.ErrNoLoader)
	assert.True(t, linkage.IsLoadFailure(err))
}

func TestLoadMergesLocalMembers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, c1, c2, c3 := post("1"), comment("1"), comment("2"), comment("3")
	loader := newGatedLoader(c1, c2)
	close(loader.release)
	s, n := newSession(t, graph.WithLoader(loader))
	comments := rel(t, s, p, "comments")
	require.NoError(t, comments.Add(ctx, c3, c1))
	n.take()

	pending, err := comments.Get(ctx)
	require.NoError(t, err)
	got, err := pending.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, records(c1, c2, c3), got)
	assert.Equal(t, records(p), members(t, s, c2, "post"))
	assert.Equal(t, []string{"post:1.comments", "comment:2.post"}, n.take())
}

func TestLoadRejectsWrongRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loader := linkage.LoaderFunc(func(context.Context, linkage.Record, string) ([]linkage.Record, error) {
		return records(user("1")), nil
	})
	s, _ := newSession(t, graph.WithLoader(loader))

	pending, err := rel(t, s, post("1"), "comments").Get(ctx)
	require.NoError(t, err)
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, linkage.ErrLoadFailure)
	assert.ErrorIs(t, err, linkage.ErrRecordType)
}

func TestReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, c1, c2, c3 := post("1"), comment("1"), comment("2"), comment("3")
	loader := newGatedLoader(c2, c3)
	s, n := newSession(t, graph.WithLoader(loader))
	comments := rel(t, s, p, "comments")
	require.NoError(t, s.Push(ctx, p, "comments", c1, c2))
	require.NoError(t, comments.Add(ctx, comment("4")))
	n.take()

	pending, err := comments.Reload(ctx)
	require.NoError(t, err)
	shared, err := comments.Reload(ctx)
	require.NoError(t, err)
	assert.Same(t, pending, shared)

	// Resident members stay readable while reloading.
	during, err := comments.Records()
	require.NoError(t, err)
	assert.Len(t, during, 3)

	close(loader.release)
	got, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, records(c2, c3), got)
	assert.True(t, loader.reload.Load())
	assert.Empty(t, members(t, s, c1, "post"))
	assert.Equal(t, records(p), members(t, s, c3, "post"))
	assert.False(t, stateOf(t, comments).IsDirty())
	assert.ElementsMatch(t, []string{"post:1.comments", "comment:1.post", "comment:4.post", "comment:3.post"}, n.take())
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	p, c := post("1"), comment("1")
	loader := newGatedLoader(c)
	s, _ := newSession(t, graph.WithLoader(loader))

	ctx, cancel := context.WithCancel(context.Background())
	pending, err := rel(t, s, p, "comments").Get(ctx)
	require.NoError(t, err)
	cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The load is detached from the caller and still completes.
	close(loader.release)
	got, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records(c), got)
}

func TestPendingDone(t *testing.T) {
	t.Parallel()
	p, c := post("1"), comment("1")
	loader := newGatedLoader(c)
	s, _ := newSession(t, graph.WithLoader(loader))

	pending, err := rel(t, s, p, "comments").Get(context.Background())
	require.NoError(t, err)
	close(loader.release)
	<-pending.Done()
	assert.True(t, pending.Settled())
}
