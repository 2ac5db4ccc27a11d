package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller input rejected by a business rule.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the data store rejected or failed a read or write.
	ErrPersistence = errors.New("persistence failure")
	// ErrPosting indicates a single inventory line could not be posted.
	ErrPosting = errors.New("posting failure")
	// ErrAlreadyPosted indicates a document has already produced inventory movements.
	ErrAlreadyPosted = errors.New("document already posted")
	// ErrBusy indicates a shared resource stayed locked; the caller may retry.
	ErrBusy = errors.New("resource busy")
)

// ValidationError describes rejected input. LineID is set when the failure
// concerns a specific order line.
type ValidationError struct {
	Field  string
	LineID int64
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.LineID != 0:
		return fmt.Sprintf("line %d: %s", e.LineID, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	default:
		return e.Reason
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a request field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewLineValidationError builds a ValidationError naming an order line.
func NewLineValidationError(lineID int64, format string, args ...any) *ValidationError {
	return &ValidationError{LineID: lineID, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError.
func NewNotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// PersistenceError wraps a data store failure with the operation that caused it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it is nil or already classified.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPersistence) || errors.Is(err, ErrBusy) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// PostingError reports why one material line was not posted.
type PostingError struct {
	ProductCode string
	Line        int
	Stage       string
	Err         error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("post line %d (%s) at %s: %v", e.Line, e.ProductCode, e.Stage, e.Err)
}

func (e *PostingError) Unwrap() error { return e.Err }

func (e *PostingError) Is(target error) bool { return target == ErrPosting }
