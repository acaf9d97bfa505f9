package graph_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/graph"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

type record struct {
	typ, id string
}

func (r *record) TypeName() string { return r.typ }
func (r *record) ID() string       { return r.id }
func (r *record) String() string   { return r.typ + ":" + r.id }

func post(id string) *record    { return &record{typ: "post", id: id} }
func comment(id string) *record { return &record{typ: "comment", id: id} }
func user(id string) *record    { return &record{typ: "user", id: id} }

// recorder collects notifications as "type:id.relationship".
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Notify(rec linkage.Record, relationship string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s:%s.%s", rec.TypeName(), rec.ID(), relationship))
}

// take returns the collected notifications and resets the recorder.
func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

type policyFunc func(context.Context, linkage.Mutation) error

func (f policyFunc) EvalMutation(ctx context.Context, m linkage.Mutation) error {
	return f(ctx, m)
}

var quiet = slog.New(slog.DiscardHandler)

// blogSchema declares:
//
//	post.comments (has-many, async)   <-> comment.post (belongs-to)
//	user.posts    (has-many, async)   <-> post.author  (belongs-to)
//	user.spouse   (belongs-to, self inverse)
//	user.friends  (has-many, self inverse)
//	post.tags     (has-many, one-sided)
func blogSchema(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.New(schema.WithLogger(quiet))
	reg.MustRegister("post",
		edge.HasMany("comments").Async(true),
		edge.BelongsTo("author").Type("user").Async(false),
		edge.HasMany("tags").Async(false),
	)
	reg.MustRegister("comment",
		edge.BelongsTo("post").Async(false),
	)
	reg.MustRegister("user",
		edge.HasMany("posts").Async(true),
		edge.BelongsTo("spouse").Type("user").Inverse("spouse").Async(false),
		edge.HasMany("friends").Type("user").Inverse("friends").Async(false),
	)
	reg.MustRegister("tag")
	require.NoError(t, reg.Validate())
	return reg
}

func newSession(t *testing.T, opts ...graph.Option) (*graph.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]graph.Option{graph.WithNotifier(rec), graph.WithLogger(quiet)}, opts...)
	return graph.NewSession(blogSchema(t), opts...), rec
}

func rel(t *testing.T, s *graph.Session, owner linkage.Record, name string) *graph.Relationship {
	t.Helper()
	r, err := s.Relationship(owner, name)
	require.NoError(t, err)
	return r
}

func stateOf(t *testing.T, r *graph.Relationship) *graph.State {
	t.Helper()
	st, err := r.State()
	require.NoError(t, err)
	return st
}

// members returns the resident members regardless of the loaded status.
func members(t *testing.T, s *graph.Session, owner linkage.Record, name string) []linkage.Record {
	t.Helper()
	st, err := s.State(owner, name)
	require.NoError(t, err)
	return st.Members()
}

func records(rs ...*record) []linkage.Record {
	out := make([]linkage.Record, len(rs))
	for i, r := range rs {
		out[i] = r
	}
	return out
}
