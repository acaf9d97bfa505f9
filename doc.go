// Package linkage is the relationship layer of an ORM client. It keeps
// has-many and belongs-to associations between in-memory records consistent
// from both ends, materializes related records lazily and tells observers
// when membership changes.
//
// This package holds the boundary contracts shared by the subpackages:
//
//   - Record, the identity-mapped entity taking part in relationships.
//   - IdentityMap, Loader and Notifier, the external collaborators.
//   - Mutation and Policy, used to vet mutations before they are applied.
//   - The error taxonomy (ErrInvalidCardinality, ErrAmbiguousInverse, ...).
//
// Relationships are declared with schema/edge and registered in a
// schema.Registry. A graph.Session owns the runtime state:
//
//	reg := schema.New()
//	_ = reg.Register("post", edge.HasMany("comments").Async(true))
//	_ = reg.Register("comment", edge.BelongsTo("post").Async(false))
//	sess := graph.NewSession(reg, graph.WithLoader(loader))
//	rel, _ := sess.Relationship(post, "comments")
//	_ = rel.Add(ctx, comment) // comment.post now points to post as well.
package linkage
