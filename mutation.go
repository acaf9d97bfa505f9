package linkage

import "context"

// Op represents a relationship mutation operation.
type Op uint

// Relationship mutation operations.
const (
	OpAdd Op = 1 << iota
	OpRemove
	OpClear
	OpSet
)

// Is reports whether o matches any of the given operations.
func (o Op) Is(op Op) bool { return o&op != 0 }

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpClear:
		return "clear"
	case OpSet:
		return "set"
	default:
		return "unknown"
	}
}

// Mutation describes a pending relationship mutation. It is handed to the
// session policy before anything is applied.
type Mutation interface {
	Op() Op
	Owner() Record
	Relationship() string
	// Records returns the records passed to the operation. For clear it
	// holds the members that are about to be removed.
	Records() []Record
}

// Policy decides whether a relationship mutation may proceed.
// A nil error allows it; any other error rejects it atomically.
type Policy interface {
	EvalMutation(context.Context, Mutation) error
}
