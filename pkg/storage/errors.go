package storage

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Every error returned by this package wraps
// exactly one of them, so classification is done with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidOperand         = errors.New("invalid operand")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrTransactionNotActive   = errors.New("transaction is not active")
)

// Specific not-found causes. Each wraps ErrNotFound.
var (
	ErrNodeNotFound         = fmt.Errorf("node %w", ErrNotFound)
	ErrRelationshipNotFound = fmt.Errorf("relationship %w", ErrNotFound)
	ErrPropertyNotFound     = fmt.Errorf("property %w", ErrNotFound)
	ErrDatabaseClosed       = fmt.Errorf("database is closed: %w", ErrStorageUnavailable)
)

// StorageError provides structured error information for storage operations.
type StorageError struct {
	Op      string // Operation that failed (e.g., "CreateRelationship", "Commit")
	Entity  string // Entity type (e.g., "node", "relationship", "store")
	ID      uint64 // Entity ID (if applicable)
	Field   string // Property key (for property operations)
	Cause   error  // Underlying error
	Context string // Additional context
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ID != 0 {
		if e.Field != "" {
			return fmt.Sprintf("%s %s %d (property %q): %v", e.Op, e.Entity, e.ID, e.Field, e.Cause)
		}
		if e.Context != "" {
			return fmt.Sprintf("%s %s %d (%s): %v", e.Op, e.Entity, e.ID, e.Context, e.Cause)
		}
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s (property %q): %v", e.Op, e.Entity, e.Field, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	if e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building StorageErrors.
type ErrorBuilder struct {
	err StorageError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: StorageError{Op: op}}
}

// Node sets the entity to "node" with the given ID.
func (b *ErrorBuilder) Node(id NodeID) *ErrorBuilder {
	b.err.Entity = "node"
	b.err.ID = uint64(id)
	return b
}

// Relationship sets the entity to "relationship" with the given ID.
func (b *ErrorBuilder) Relationship(id RelationshipID) *ErrorBuilder {
	b.err.Entity = "relationship"
	b.err.ID = uint64(id)
	return b
}

// Entity sets the entity from a reference.
func (b *ErrorBuilder) Entity(ref EntityRef) *ErrorBuilder {
	b.err.Entity = ref.Kind.String()
	b.err.ID = ref.ID
	return b
}

// Store sets the entity to "store".
func (b *ErrorBuilder) Store() *ErrorBuilder {
	b.err.Entity = "store"
	return b
}

// Field sets the property key for property operations.
func (b *ErrorBuilder) Field(name string) *ErrorBuilder {
	b.err.Field = name
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed StorageError.
func (b *ErrorBuilder) Build() *StorageError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// Convenience functions for common error patterns

// NodeNotFoundError creates a node not found error.
func NodeNotFoundError(op string, id NodeID) error {
	return NewError(op).Node(id).Cause(ErrNodeNotFound).Err()
}

// RelationshipNotFoundError creates a relationship not found error.
func RelationshipNotFoundError(op string, id RelationshipID) error {
	return NewError(op).Relationship(id).Cause(ErrRelationshipNotFound).Err()
}

// PropertyNotFoundError creates a property not found error.
func PropertyNotFoundError(op string, ref EntityRef, key string) error {
	return NewError(op).Entity(ref).Field(key).Cause(ErrPropertyNotFound).Err()
}

// InvalidArgumentError creates an invalid argument error with a reason.
func InvalidArgumentError(op, reason string) error {
	return NewError(op).Context(reason).Cause(ErrInvalidArgument).Err()
}

// StoreError wraps a backing store failure. The result matches both
// ErrStorageUnavailable and the original cause.
func StoreError(op string, cause error) error {
	if errors.Is(cause, ErrNotFound) || errors.Is(cause, ErrStorageUnavailable) {
		return NewError(op).Store().Cause(cause).Err()
	}
	return NewError(op).Store().Cause(fmt.Errorf("%w: %w", ErrStorageUnavailable, cause)).Err()
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument returns true for a rejected key, value or filter.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsInvalidOperand returns true when an operation referenced a deleted entity.
func IsInvalidOperand(err error) bool {
	return errors.Is(err, ErrInvalidOperand)
}

// IsConstraintViolation returns true for a rejected node delete.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

// IsConcurrentModification returns true when commit validation failed and the
// caller should retry.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsStorageUnavailable returns true for backing store I/O failures.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClosed returns true if the error indicates the database is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrDatabaseClosed)
}
