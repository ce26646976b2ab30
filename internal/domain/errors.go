package domain

import "fmt"

// CaptureError means a recording device could not be acquired or read.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Reason, e.Err)
	}
	return "capture: " + e.Reason
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CollaboratorError means a translation or analysis call failed. The
// collaborator's own message is surfaced verbatim; Op records which
// collaborator failed for logging.
type CollaboratorError struct {
	Op  string // "translate" | "analyze"
	Err error
}

func (e *CollaboratorError) Error() string { return e.Err.Error() }

func (e *CollaboratorError) Unwrap() error { return e.Err }

// SerializationError means a channel payload could not be encoded or
// decoded. It is fatal to that one publish or read only.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ValidationError means a required field was missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
