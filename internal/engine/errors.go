package engine

import (
	"fmt"
	"strings"
)

// NotFoundError indicates the referenced entity is absent after both the
// primary and fallback lookup. Nothing was written.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError indicates the entity's status forbids the requested
// transition. Nothing was written.
type InvalidStateError struct {
	Kind   string
	ID     string
	Status string
	Want   string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s, want %s", e.Kind, e.ID, e.Status, e.Want)
}

// InvalidArgumentError indicates a caller-supplied value outside the
// accepted set. Nothing was written.
type InvalidArgumentError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e InvalidArgumentError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %q, must be one of: %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// InvalidAssigneeError indicates the assignment target fails the staff id
// shape or role check.
type InvalidAssigneeError struct {
	AssigneeID string
	Reason     string
}

func (e InvalidAssigneeError) Error() string {
	return fmt.Sprintf("cannot assign to %s: %s", e.AssigneeID, e.Reason)
}

// ConflictError indicates a concurrent writer moved the entity's version
// between this operation's read and write. The caller should re-read and
// retry.
type ConflictError struct {
	Kind string
	ID   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Kind, e.ID)
}

// PersistenceError indicates the store write failed, or the write succeeded
// but the post-write re-read did not find the document. Unlike the other
// failures, a partial write may have been applied.
type PersistenceError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }
