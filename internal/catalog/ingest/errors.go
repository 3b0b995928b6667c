package ingest

import (
	"errors"
	"fmt"
)

// ErrAlreadyRun is returned when Run is called on a coordinator that has
// already started. Build a new coordinator with a fresh source instead.
var ErrAlreadyRun = errors.New("coordinator already ran")

// ErrorKind partitions per-identifier failures in the run tally.
type ErrorKind string

const (
	ErrorRetryExhausted   ErrorKind = "retry_exhausted"
	ErrorFatalStatus      ErrorKind = "fatal_status"
	ErrorMalformedPayload ErrorKind = "malformed_payload"
	ErrorMissingName      ErrorKind = "missing_name"
	ErrorStore            ErrorKind = "store"
)

// SetupError is a run-level failure. The run is Aborted before any
// identifier is dispatched.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("ingest setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
