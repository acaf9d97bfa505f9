// Package sql implements the dialect.Driver interface on top of database/sql
// and loads relationship members from SQL tables.
//
// # Driver
//
// Open accepts any registered database/sql driver whose name maps to a
// supported dialect:
//
//	import _ "modernc.org/sqlite"
//
//	drv, err := sql.Open("sqlite", "file:blog.db")
//
// # Loader
//
// Loader implements linkage.Loader. Every relationship is read from a table
// that links owner ids to related ids:
//
//	SELECT "post_id", "id" FROM "comments" WHERE "post_id" = $1 ORDER BY "id"
//
// Unmapped relationships follow DefaultMapping. Identifiers are validated and
// quoted for the driver dialect, and the related ids are resolved through the
// identity map so each row yields the single in-memory record for its id.
//
// LoadBatch reads the same relationship for many owners in one query and is
// the batch function behind contrib/dataloader.BatchLoader:
//
//	batch := dataloader.NewBatchLoader(loader.LoadBatch)
//	sess := graph.NewSession(reg, graph.WithLoader(batch))
package sql
