// Package edge provides fluent builders for declaring relationships between
// record types.
//
// # Kinds
//
// There are two relationship kinds:
//
//   - edge.HasMany: a to-many relationship (post.comments)
//   - edge.BelongsTo: a to-one relationship (comment.post)
//
// A has-many paired with a belongs-to forms a one-to-many association; two
// has-many relationships pointing at each other form a many-to-many one.
//
//	// post
//	edge.HasMany("comments")          // related type "comment"
//	edge.HasMany("tags").Async(false) // many-to-many with tag.posts
//
//	// comment
//	edge.BelongsTo("post")
//
// # Related Type
//
// The related type defaults to the singularized relationship name. Use Type
// when the name does not match:
//
//	edge.BelongsTo("author").Type("user")
//
// # Explicit Inverses
//
// The inverse is discovered automatically when exactly one relationship on
// the related type points back. When there are several, name it:
//
//	// comment
//	edge.BelongsTo("onePost").Type("post")
//	edge.BelongsTo("redPost").Type("post")
//
//	// post
//	edge.HasMany("comments").Inverse("redPost")
//
// # Async
//
// Async relationships are loaded on first read. Sync relationships must be
// pushed with the record. Leaving Async unset behaves like Async(true) and is
// reported once when the type is registered.
package edge
