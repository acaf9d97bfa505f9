package dialect

import (
	"context"
	"fmt"
)

// Database dialects supported by the SQL loader.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

// Querier runs read queries.
type Querier interface {
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the loaders.
type Driver interface {
	Querier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx runs queries in a transaction. Loaders only read, so a Tx is usually
// rolled back.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Normalize maps driver names to their dialect. Driver registrations such as
// "sqlite" from modernc.org/sqlite and "pgx" resolve to the dialect they speak.
func Normalize(name string) (string, error) {
	switch name {
	case MySQL:
		return MySQL, nil
	case SQLite, "sqlite":
		return SQLite, nil
	case Postgres, "pgx", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("dialect: unsupported dialect %q", name)
	}
}
