package linkage

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for relationship operations.
var (
	// ErrInvalidCardinality is returned when more than one record is assigned
	// to a belongs-to relationship.
	ErrInvalidCardinality = errors.New("linkage: invalid cardinality")

	// ErrUnknownInverse is returned when an explicit inverse does not exist on
	// the related type or does not point back to the declaring type.
	ErrUnknownInverse = errors.New("linkage: unknown inverse")

	// ErrAmbiguousInverse is returned when more than one relationship could
	// serve as the inverse and none was named explicitly.
	ErrAmbiguousInverse = errors.New("linkage: ambiguous inverse")

	// ErrNotLoaded is matched by every NotLoadedError, sync or async.
	ErrNotLoaded = errors.New("linkage: relationship not loaded")

	// ErrSynchronousRelationshipNotLoaded is returned when reading a sync
	// relationship whose members were never materialized.
	ErrSynchronousRelationshipNotLoaded = errors.New("linkage: synchronous relationship not loaded")

	// ErrLoadFailure is matched by every error reported by a failed load.
	ErrLoadFailure = errors.New("linkage: load failure")

	// ErrUnknownType is returned when a type was never registered.
	ErrUnknownType = errors.New("linkage: unknown type")

	// ErrUnknownRelationship is returned when a type does not declare the
	// requested relationship.
	ErrUnknownRelationship = errors.New("linkage: unknown relationship")

	// ErrRecordType is returned when a record of the wrong type is assigned to
	// a relationship.
	ErrRecordType = errors.New("linkage: record type mismatch")

	// ErrNoLoader is reported by loads attempted on a session without a loader.
	ErrNoLoader = errors.New("linkage: no loader configured")

	// ErrNoIdentityMap is returned when identifiers must be resolved on a
	// session without an identity map.
	ErrNoIdentityMap = errors.New("linkage: no identity map configured")
)

// CardinalityError reports an attempt to put several records into a to-one
// relationship.
type CardinalityError struct {
	Type         string // Owner type
	Relationship string
	Count        int // Number of distinct records requested
}

// Error returns the error string.
func (e *CardinalityError) Error() string {
	return fmt.Sprintf("linkage: %s.%s is belongs-to and cannot hold %d records", e.Type, e.Relationship, e.Count)
}

// Is reports whether the target error matches CardinalityError.
// This allows errors.Is(err, ErrInvalidCardinality) to return true.
func (e *CardinalityError) Is(err error) bool {
	return err == ErrInvalidCardinality
}

// NewCardinalityError returns a new CardinalityError.
func NewCardinalityError(typ, rel string, count int) *CardinalityError {
	return &CardinalityError{Type: typ, Relationship: rel, Count: count}
}

// IsInvalidCardinality returns true if the error is a cardinality violation.
func IsInvalidCardinality(err error) bool {
	return errors.Is(err, ErrInvalidCardinality)
}

// InverseError reports an inverse resolution failure.
type InverseError struct {
	Type         string   // Declaring type
	Relationship string   // Declaring relationship
	Related      string   // Related type that was scanned
	Inverse      string   // Explicit inverse name, if any
	Candidates   []string // Competing candidates for ambiguous inverses
	Message      string
	sentinel     error
}

// Error returns the error string.
func (e *InverseError) Error() string {
	var b strings.Builder
	b.WriteString(e.sentinel.Error())
	fmt.Fprintf(&b, " for %s.%s", e.Type, e.Relationship)
	if e.Related != "" {
		fmt.Fprintf(&b, " (related type %s)", e.Related)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " [candidates: %s]", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// Is reports whether the target is the sentinel this error was built for.
func (e *InverseError) Is(err error) bool {
	return err == e.sentinel
}

// NewUnknownInverseError returns an InverseError matching ErrUnknownInverse.
func NewUnknownInverseError(typ, rel, related, inverse, msg string) *InverseError {
	return &InverseError{
		Type:         typ,
		Relationship: rel,
		Related:      related,
		Inverse:      inverse,
		Message:      msg,
		sentinel:     ErrUnknownInverse,
	}
}

// NewAmbiguousInverseError returns an InverseError matching ErrAmbiguousInverse.
func NewAmbiguousInverseError(typ, rel, related string, candidates []string) *InverseError {
	return &InverseError{
		Type:         typ,
		Relationship: rel,
		Related:      related,
		Candidates:   candidates,
		Message:      "set an explicit inverse",
		sentinel:     ErrAmbiguousInverse,
	}
}

// IsInverseError returns true if the error is an inverse resolution failure.
func IsInverseError(err error) bool {
	if err == nil {
		return false
	}
	var e *InverseError
	return errors.As(err, &e)
}

// NotLoadedError represents an error when reading a relationship whose
// members are not resident. It matches ErrNotLoaded, and
// ErrSynchronousRelationshipNotLoaded only when the relationship is sync.
type NotLoadedError struct {
	Type         string
	Relationship string
	Async        bool
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	if e.Async {
		return fmt.Sprintf("linkage: async relationship %s.%s was not loaded, call Get first", e.Type, e.Relationship)
	}
	return fmt.Sprintf("linkage: sync relationship %s.%s was not loaded, call Reload first", e.Type, e.Relationship)
}

// Is reports whether the target error matches NotLoadedError.
func (e *NotLoadedError) Is(err error) bool {
	return err == ErrNotLoaded || (!e.Async && err == ErrSynchronousRelationshipNotLoaded)
}

// NewNotLoadedError returns a new NotLoadedError for the given relationship.
func NewNotLoadedError(typ, rel string, async bool) *NotLoadedError {
	return &NotLoadedError{Type: typ, Relationship: rel, Async: async}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// LoadError wraps an error reported by the external loader.
type LoadError struct {
	Type         string
	ID           string
	Relationship string
	Err          error
}

// Error returns the error string.
func (e *LoadError) Error() string {
	return fmt.Sprintf("linkage: loading %s(%s).%s: %v", e.Type, e.ID, e.Relationship, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrLoadFailure.
func (e *LoadError) Is(err error) bool {
	return err == ErrLoadFailure
}

// NewLoadError returns a new LoadError for the owner's relationship.
func NewLoadError(owner Record, rel string, err error) *LoadError {
	e := &LoadError{Relationship: rel, Err: err}
	if owner != nil {
		e.Type, e.ID = owner.TypeName(), owner.ID()
	}
	return e
}

// IsLoadFailure returns true if the error came from a failed load.
func IsLoadFailure(err error) bool {
	return errors.Is(err, ErrLoadFailure)
}

// SchemaError represents an invalid relationship declaration or a lookup of
// an undeclared type or relationship.
type SchemaError struct {
	Type         string
	Relationship string
	Message      string
	Cause        error
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("linkage: schema error")
	if e.Type != "" {
		b.WriteString(" on type ")
		b.WriteString(e.Type)
	}
	if e.Relationship != "" {
		b.WriteString(" relationship ")
		b.WriteString(e.Relationship)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(typ, rel, msg string, cause error) *SchemaError {
	return &SchemaError{Type: typ, Relationship: rel, Message: msg, Cause: cause}
}

// IsSchemaError reports whether the error is a SchemaError.
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}

// RecordTypeError is returned when a record's type does not match the
// relationship's related type.
type RecordTypeError struct {
	Relationship string
	Want, Got    string
}

// Error returns the error string.
func (e *RecordTypeError) Error() string {
	return fmt.Sprintf("linkage: relationship %s expects %s records, got %s", e.Relationship, e.Want, e.Got)
}

// Is reports whether the target error matches ErrRecordType.
func (e *RecordTypeError) Is(err error) bool {
	return err == ErrRecordType
}

// MutationError wraps a rejected relationship mutation with context.
type MutationError struct {
	Type         string // Owner type
	Relationship string
	Op           Op
	Err          error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("linkage: %s %s.%s: %v", e.Op, e.Type, e.Relationship, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(typ, rel string, op Op, err error) *MutationError {
	return &MutationError{Type: typ, Relationship: rel, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "linkage: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("linkage: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As inspect
// each of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
