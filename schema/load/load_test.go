package load

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/dialect"
	"github.com/syssam/linkage/dialect/sql"
	"github.com/syssam/linkage/identity"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

var quiet = slog.New(slog.DiscardHandler)

const blog = `
types:
  - name: post
    relationships:
      - name: comments
        kind: has-many
        async: true
        storage:
          table: comments
          owner_column: post_id
          target_column: id
          order_by: created_at
      - name: author
        kind: belongs-to
        type: user
        async: false
        comment: Writer of the post.
  - name: comment
    relationships:
      - {name: post, kind: belongs_to, async: false}
  - name: user
    relationships:
      - {name: posts, kind: hasMany}
      - {name: friends, kind: has-many, type: user, inverse: friends, async: false}
`

func TestParse(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(blog))
	require.NoError(t, err)
	require.Len(t, f.Types, 3)

	post := f.Types[0]
	assert.Equal(t, "post", post.Name)
	require.Len(t, post.Relationships, 2)
	comments := post.Relationships[0]
	assert.Equal(t, "comments", comments.Name)
	require.NotNil(t, comments.Async)
	assert.True(t, *comments.Async)
	assert.Equal(t, &Storage{Table: "comments", OwnerColumn: "post_id", TargetColumn: "id", OrderBy: "created_at"}, comments.Storage)
	assert.Nil(t, f.Types[2].Relationships[0].Async)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown key", data: "types:\n  - name: post\n    fields: []\n"},
		{name: "invalid yaml", data: "types: [\n"},
		{name: "wrong shape", data: "types: post\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, err.Error(), "load: invalid schema")
		})
	}

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		f, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, f.Types)
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(blog))
	require.NoError(t, err)
	reg, err := f.Registry(schema.WithLogger(quiet))
	require.NoError(t, err)

	author, err := reg.Relationship("post", "author")
	require.NoError(t, err)
	assert.Equal(t, edge.KindBelongsTo, author.Kind)
	assert.Equal(t, "user", author.Type)
	assert.False(t, author.Async)
	assert.Equal(t, "Writer of the post.", author.Comment)

	inv, err := reg.Inverse("post", "author")
	require.NoError(t, err)
	assert.Equal(t, "posts", inv.Name)

	posts, err := reg.Relationship("user", "posts")
	require.NoError(t, err)
	assert.True(t, posts.Async)
	assert.False(t, posts.AsyncSet)

	friends, err := reg.Inverse("user", "friends")
	require.NoError(t, err)
	assert.Equal(t, "friends", friends.Name)
}

func TestRegistryErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want error
	}{
		{
			name: "bad kind",
			data: "types:\n  - name: post\n    relationships:\n      - {name: comments, kind: many}\n",
		},
		{
			name: "unknown related type",
			data: "types:\n  - name: post\n    relationships:\n      - {name: comments, kind: has-many}\n",
			want: linkage.ErrUnknownType,
		},
		{
			name: "duplicate type",
			data: "types:\n  - name: post\n  - name: post\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			_, err = f.Registry(schema.WithLogger(quiet))
			assert.True(t, linkage.IsSchemaError(err))
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "linkage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blog), 0o644))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Types, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nope: 1\n"), 0o644))
	_, err = ReadFile(bad)
	assert.ErrorContains(t, err, bad)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(blog))
	require.NoError(t, err)
	reg, err := f.Registry(schema.WithLogger(quiet))
	require.NoError(t, err)

	data, err := FromRegistry(reg).Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	reg2, err := again.Registry(schema.WithLogger(quiet))
	require.NoError(t, err)

	for _, typ := range reg.Types() {
		for _, d := range typ.Relationships {
			d2, err := reg2.Relationship(typ.Name, d.Name)
			require.NoError(t, err)
			assert.Equal(t, d, d2)
		}
	}
	// Inferred types stay implicit.
	assert.NotContains(t, string(data), "type: comment\n")
}

func TestMap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, err := Parse([]byte(blog))
	require.NoError(t, err)
	reg, err := f.Registry(schema.WithLogger(quiet))
	require.NoError(t, err)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ids := identity.New()
	l := sql.NewLoader(sql.OpenDB(dialect.SQLite, db), reg, ids, sql.WithLogger(quiet))
	require.NoError(t, f.Map(l))

	m, _, err := l.Mapping("post", "comments")
	require.NoError(t, err)
	assert.Equal(t, "created_at", m.OrderBy)

	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT "post_id", "id" FROM "comments" WHERE "post_id" = ? ORDER BY "created_at"`).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "id"}).AddRow("1", "3"))
	got, err := l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())

	t.Run("invalid storage", func(t *testing.T) {
		bad := &File{Types: []*Type{{Name: "post", Relationships: []*Relationship{{
			Name:    "comments",
			Kind:    "has-many",
			Storage: &Storage{Table: "comments;", OwnerColumn: "post_id", TargetColumn: "id"},
		}}}}}
		assert.ErrorContains(t, bad.Map(l), "post.comments storage")
	})
}
