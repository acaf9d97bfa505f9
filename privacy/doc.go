// Package privacy provides rules deciding whether a relationship mutation
// may proceed.
//
// A policy is a list of rules evaluated in order until one returns a final
// decision:
//
//   - Allow: grants the mutation and stops evaluation
//   - Deny: rejects the mutation and stops evaluation
//   - Skip: continues to the next rule
//
// A mutation that no rule decides on is allowed. Use AlwaysDenyRule as the
// last rule for deny-by-default policies.
//
// # Session Integration
//
// Policies are attached to a session and consulted before every add,
// remove, clear and set. A rejected mutation changes nothing:
//
//	sess := graph.NewSession(reg, graph.WithPolicy(privacy.New(
//	    privacy.DenyIfNoViewer(),
//	    privacy.TenantRule(),
//	    privacy.DenyRelationshipRule("post", "author"),
//	    privacy.OnRelationship(privacy.HasRole("moderator"), "post", "comments"),
//	)))
//
// Rules run while the session is locked. They may inspect the mutation and
// the context but must not call back into the session.
//
// # Viewer
//
// The viewer is stored in context and retrieved during evaluation:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "user-123",
//	    Roles:  []string{"moderator"},
//	})
//	err := comments.Add(ctx, c)
//
// A decision can also be forced for a whole context, for example in
// trusted background jobs:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
