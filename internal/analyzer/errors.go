package analyzer

import (
	"errors"
	"fmt"
)

// ErrTimeout marks an analyzer call that exceeded its per-call timeout.
var ErrTimeout = errors.New("analyzer timed out")

// MalformedOutputError marks a model response that was not the JSON object
// the analyzer asked for.
type MalformedOutputError struct {
	Slot string
	Raw  string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("analyzer %s returned malformed output", e.Slot)
}

// SlotError ties a failure to the analyzer slot that produced it. A slot
// failure never fails sibling slots or sibling emails.
type SlotError struct {
	Slot  string
	Cause error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %s: %v", e.Slot, e.Cause)
}

func (e *SlotError) Unwrap() error {
	return e.Cause
}
