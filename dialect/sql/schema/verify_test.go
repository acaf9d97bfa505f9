package schema

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage/dialect"
	"github.com/syssam/linkage/dialect/sql"
	"github.com/syssam/linkage/identity"
	lschema "github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

const (
	emptyCommentPost  = `SELECT "id", "post_id" FROM "comments" WHERE 1 = 0`
	emptyPostComments = `SELECT "post_id", "id" FROM "comments" WHERE 1 = 0 ORDER BY "id"`
	emptyPostTags     = `SELECT "post_id", "tag_id" FROM "post_tags" WHERE 1 = 0`
)

func newLoader(t *testing.T) (*sql.Loader, sqlmock.Sqlmock) {
	t.Helper()
	quiet := slog.New(slog.DiscardHandler)
	reg := lschema.New(lschema.WithLogger(quiet))
	reg.MustRegister("post",
		edge.HasMany("comments").Async(true),
		edge.HasMany("tags").Async(true),
	)
	reg.MustRegister("comment", edge.BelongsTo("post").Async(false))
	reg.MustRegister("tag")

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l := sql.NewLoader(sql.OpenDB(dialect.SQLite, db), reg, identity.New(), sql.WithLogger(quiet))
	require.NoError(t, l.Map("post", "tags", sql.Mapping{Table: "post_tags", OwnerColumn: "post_id", TargetColumn: "tag_id"}))
	return l, mock
}

// expectEmptyQuery expects one match-nothing query in a transaction that is rolled back.
func expectCheckStorage(mock sqlmock.Sqlmock, query string, cols ...string) {
	mock.ExpectBegin()
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectRollback()
}

func TestVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unordered_warning", func(t *testing.T) {
		t.Parallel()
		l, mock := newLoader(t)
		expectCheckStorage(mock, emptyCommentPost, "id", "post_id")
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		expectCheckStorage(mock, emptyPostTags, "post_id", "tag_id")

		result := Verify(ctx, l)
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "post", result.Warnings[0].Type)
		assert.Equal(t, "tags", result.Warnings[0].Relationship)
		assert.Contains(t, result.String(), "post.tags (post_tags): no order column")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("allow_unordered", func(t *testing.T) {
		t.Parallel()
		l, mock := newLoader(t)
		expectCheckStorage(mock, emptyCommentPost, "id", "post_id")
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		expectCheckStorage(mock, emptyPostTags, "post_id", "tag_id")

		result := Verify(ctx, l, AllowUnordered())
		assert.False(t, result.HasErrors())
		assert.False(t, result.HasWarnings())
		assert.Equal(t, "No issues found", result.String())
	})

	t.Run("missing_table", func(t *testing.T) {
		t.Parallel()
		l, mock := newLoader(t)
		expectCheckStorage(mock, emptyCommentPost, "id", "post_id")
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		mock.ExpectBegin()
		mock.ExpectQuery(emptyPostTags).WillReturnError(errors.New("no such table: post_tags"))
		mock.ExpectRollback()

		result := Verify(ctx, l)
		require.True(t, result.HasErrors())
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "post_tags", result.Errors[0].Table)
		assert.Contains(t, result.Errors[0].Error(), "no such table")
		assert.False(t, result.HasWarnings())
		assert.Contains(t, result.String(), "Errors:\n")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin_error", func(t *testing.T) {
		t.Parallel()
		l, mock := newLoader(t)
		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		expectCheckStorage(mock, emptyPostTags, "post_id", "tag_id")

		result := Verify(ctx, l, AllowUnordered())
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "comment", result.Errors[0].Type)
		assert.Contains(t, result.Errors[0].Message, "database is locked")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("asymmetric_inverse", func(t *testing.T) {
		t.Parallel()
		l, mock := newLoader(t)
		require.NoError(t, l.Map("comment", "post", sql.Mapping{Table: "comments", OwnerColumn: "id", TargetColumn: "article_id"}))
		expectCheckStorage(mock, `SELECT "id", "article_id" FROM "comments" WHERE 1 = 0`, "id", "article_id")
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		expectCheckStorage(mock, emptyPostTags, "post_id", "tag_id")

		result := Verify(ctx, l, AllowUnordered())
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 2)
		assert.Equal(t, "comment.post (comments): inverse post.comments is stored as comments(post_id, id)",
			result.Warnings[0].Error())
		assert.Equal(t, "post", result.Warnings[1].Type)

		expectCheckStorage(mock, `SELECT "id", "article_id" FROM "comments" WHERE 1 = 0`, "id", "article_id")
		expectCheckStorage(mock, emptyPostComments, "post_id", "id")
		expectCheckStorage(mock, emptyPostTags, "post_id", "tag_id")
		assert.False(t, Verify(ctx, l, AllowUnordered(), AllowAsymmetric()).HasWarnings())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
