// Package schema holds the registry of record types and their declared
// relationships, and resolves relationship inverses.
//
// Types are registered once, before any session uses them:
//
//	reg := schema.New()
//	reg.MustRegister("post",
//	    edge.HasMany("comments").Async(true),
//	)
//	reg.MustRegister("comment",
//	    edge.BelongsTo("post").Async(false),
//	)
//	if err := reg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Validate resolves every inverse eagerly so that unknown or ambiguous
// inverses surface at startup instead of on first mutation.
package schema
