// Package graph keeps the relationship graph of an ORM client consistent.
//
// A Session owns one State per (record, relationship) pair. Every mutation
// made through a Relationship accessor is applied to both sides of the pair
// under the session lock, and observers are told once per affected
// (record, relationship) after the lock is released.
//
// # Mutations
//
// Add, Remove, Clear and Set are available on every relationship:
//
//	comments, _ := sess.Relationship(post, "comments")
//	err := comments.Add(ctx, c1, c2) // c1.post and c2.post now hold post
//	err = comments.Set(ctx, c2)      // c1.post is emptied, c2 is untouched
//
// Assigning to a belongs-to relationship detaches the previous occupant from
// both sides, also when the assignment is made from the has-many end.
// Records, cardinality, inverse and policy are validated before anything
// changes, so a failed mutation leaves the graph as it was.
//
// # Materialization
//
// Members of an async relationship that was never loaded are fetched through
// the session Loader on first read:
//
//	p, err := comments.Get(ctx)
//	if err != nil {
//	    return err
//	}
//	records, err := p.Wait(ctx)
//
// Concurrent readers share one Pending and the loader runs once. A failed
// load is reported as a LoadError and retried on the next read. Reading a
// sync relationship that was never loaded fails with NotLoadedError.
//
// # Server updates
//
// Push and PushIDs replace a relationship's members with server data and
// mark it loaded. Forget drops a record and detaches it from its partners.
//
// # Statistics
//
// StatsLoader wraps any Loader to count loads and report slow ones:
//
//	loader := graph.NewStatsLoader(l, graph.WithSlowLoadLog(logger))
package graph
