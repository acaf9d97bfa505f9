package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkage/dialect"
	"github.com/syssam/linkage/identity"
)

func TestStatsDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowQueryThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	assert.Equal(t, time.Duration(-1), drv.SlowThreshold())
	assert.Equal(t, dialect.Postgres, drv.Dialect())

	ids := identity.New()
	l := NewLoader(drv, blogSchema(), ids, WithLogger(quiet))
	owner, err := ids.Resolve(ctx, "post", "1")
	require.NoError(t, err)

	query := `SELECT "post_id", "id" FROM "comments" WHERE "post_id" = $1 ORDER BY "id"`
	mock.ExpectQuery(query).WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "id"}).AddRow("1", "10"))
	mock.ExpectQuery(query).WithArgs("1").WillReturnError(errors.New("boom"))

	_, err = l.Load(ctx, owner, "comments")
	require.NoError(t, err)
	_, err = l.Load(ctx, owner, "comments")
	require.Error(t, err)

	s := drv.Stats()
	assert.EqualValues(t, 2, s.Queries)
	assert.Zero(t, s.Txs)
	assert.EqualValues(t, 1, s.Errors)
	assert.EqualValues(t, 2, s.Slow)
	assert.Equal(t, []string{query, query}, slow)
	assert.Contains(t, s.String(), "queries=2 txs=0")
	require.NoError(t, mock.ExpectationsWereMet())

	drv.ResetStats()
	assert.Equal(t, QueryStats{}, drv.Stats())
	assert.Zero(t, QueryStats{}.AvgDuration())
}

func TestStatsDriverCheckStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv := NewStatsDriver(OpenDB(dialect.SQLite, db))
	drv.SetSlowThreshold(time.Hour)
	l := NewLoader(drv, blogSchema(), identity.New(), WithLogger(quiet))

	t.Run("rolled_back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "post_id", "id" FROM "comments" WHERE 1 = 0 ORDER BY "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"post_id", "id"}))
		mock.ExpectRollback()

		require.NoError(t, l.CheckStorage(ctx, "post", "comments"))
		s := drv.Stats()
		assert.EqualValues(t, 1, s.Queries)
		assert.EqualValues(t, 1, s.Txs)
		assert.EqualValues(t, 1, s.Rollbacks)
		assert.Zero(t, s.Slow)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error_still_rolls_back", func(t *testing.T) {
		errMissing := errors.New("no such table: comments")
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "id", "post_id" FROM "comments" WHERE 1 = 0`).WillReturnError(errMissing)
		mock.ExpectRollback()

		require.ErrorIs(t, l.CheckStorage(ctx, "comment", "post"), errMissing)
		assert.EqualValues(t, 2, drv.Stats().Rollbacks)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin_error", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

		require.ErrorContains(t, l.CheckStorage(ctx, "post", "tags"), "database is locked")
		s := drv.Stats()
		assert.EqualValues(t, 2, s.Txs)
		assert.EqualValues(t, 2, s.Queries)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unmapped", func(t *testing.T) {
		assert.Error(t, l.CheckStorage(ctx, "post", "likes"))
	})
}
