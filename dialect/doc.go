// Package dialect defines the database abstraction used by the linkage
// loaders.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// # Driver Interface
//
// Loaders talk to the database through Driver:
//
//	type Driver interface {
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// dialect/sql implements it on top of database/sql and provides the SQL
// relationship loader:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	loader := sql.NewLoader(drv, reg, ids)
package dialect
