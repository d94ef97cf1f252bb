package browser

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a delivery attempt stopped.
type FailureKind string

const (
	SessionLaunchFailure    FailureKind = "session_launch_failure"
	AuthenticationTimeout   FailureKind = "authentication_timeout"
	ConversationLoadTimeout FailureKind = "conversation_load_timeout"
	TypingFailure           FailureKind = "typing_failure"
)

// ErrTimedOut is returned by the waiter when no marker appeared in time.
var ErrTimedOut = errors.New("timed out waiting for page")

// StepError tags a failure with the step that raised it and its kind.
type StepError struct {
	Kind FailureKind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(kind FailureKind, step string, err error) error {
	return &StepError{Kind: kind, Step: step, Err: err}
}

// KindOf extracts the FailureKind carried by err, or "".
func KindOf(err error) FailureKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
