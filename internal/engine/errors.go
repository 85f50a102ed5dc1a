package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoPendingChoices  = errors.New("no choices are pending")
	ErrInvalidChoice     = errors.New("choice index out of range")
	ErrBusy              = errors.New("a generation request is already running")
	ErrCannotAdvance     = errors.New("the chapter is not ready to advance")
	ErrNotFound          = errors.New("story not found")
	ErrInvalidPremise    = errors.New("invalid story premise")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrHealExhausted     = errors.New("automatic repair gave up; use refresh to retry")
	// ErrDuplicate is returned by Store.CreateStory when a story with the
	// same duplicate key already exists.
	ErrDuplicate = errors.New("story already exists")
)

// GenerationError is a transport or service failure of the generator.
// The record is left as it was before the call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string { return e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// MalformedResponseError is returned by generators whose reply arrived but
// did not have the expected shape. Partial holds whatever could be salvaged.
type MalformedResponseError struct {
	Reason  string
	Partial Segment
}

func (e *MalformedResponseError) Error() string {
	return "malformed generation response: " + e.Reason
}

// PersistenceError wraps a store failure during a transition.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func asGenerationError(op string, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Op: op, Err: err}
}
