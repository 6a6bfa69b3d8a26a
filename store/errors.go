package store

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraintViolation is matched by every *ConstraintViolation.
	ErrConstraintViolation = errors.New("relmodel: constraint violation")

	// ErrStaleReference is matched by every *StaleReferenceError.
	ErrStaleReference = errors.New("relmodel: stale reference")

	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("relmodel: entity not found")

	// ErrSessionClosed is returned by every operation on a closed Session.
	ErrSessionClosed = errors.New("relmodel: session closed")

	// ErrUnknownCollection is returned when a collection name is not part of the model.
	ErrUnknownCollection = errors.New("relmodel: unknown collection")

	// ErrUnknownNavigation is returned when a navigation name is not part of a collection.
	ErrUnknownNavigation = errors.New("relmodel: unknown navigation")

	// ErrUnknownField is returned when a field name is not part of a collection.
	ErrUnknownField = errors.New("relmodel: unknown field")

	// ErrInvalidModel wraps every model declaration problem.
	ErrInvalidModel = errors.New("relmodel: invalid model")
)

// ErrorKind classifies store failures so callers can branch without
// inspecting messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConstraintViolation
	KindStaleReference
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindStaleReference:
		return "StaleReferenceError"
	case KindNotFound:
		return "NotFoundError"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of err, or KindUnknown for errors the store
// did not classify (including nil).
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConstraintViolation):
		return KindConstraintViolation
	case errors.Is(err, ErrStaleReference):
		return KindStaleReference
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// ConstraintViolation reports a relationship or identity rule broken by
// the staged changes. Nothing of the commit was applied.
type ConstraintViolation struct {
	Collection string
	Key        string
	Relation   string
	Reason     string
}

func (e *ConstraintViolation) Error() string {
	msg := "relmodel: constraint violation on " + e.Collection
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Relation != "" {
		msg += " (" + e.Relation + ")"
	}
	return msg + ": " + e.Reason
}

func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraintViolation }

// StaleReferenceError reports a removal that must disassociate optional
// dependents which were never loaded into the session.
type StaleReferenceError struct {
	Collection string
	Key        string
	Relation   string
	Unloaded   int
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf(
		"relmodel: removing %s %s needs %d unloaded dependent(s) of %s; include them first",
		e.Collection, e.Key, e.Unloaded, e.Relation,
	)
}

func (e *StaleReferenceError) Is(target error) bool { return target == ErrStaleReference }

// NotFoundError reports an operation on an identity the store does not hold.
type NotFoundError struct {
	Collection string
	Key        string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return "relmodel: no " + e.Collection + " matched"
	}
	return "relmodel: " + e.Collection + " " + e.Key + " not found"
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
