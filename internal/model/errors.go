package model

import "fmt"

// ValidationError reports malformed caller input. It is returned
// synchronously, before any work is dispatched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// PersistenceError reports a failed store write. On the primary analysis
// write it is fatal for that email; on derived-row cleanup it is collected
// as a warning.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
