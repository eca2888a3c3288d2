package react

import (
	"errors"
	"fmt"
)

// ErrReasoningTimeout is returned when a model call exceeds its per-call
// timeout on every attempt.
var ErrReasoningTimeout = errors.New("reasoning capability timed out")

// ReasoningError is returned when the model call fails for any reason other
// than a timeout, after retries.
type ReasoningError struct {
	Err error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("reasoning capability failed: %v", e.Err)
}

func (e *ReasoningError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the model's tool call arguments are not valid
// JSON objects, after the corrective round has also failed.
type ParseError struct {
	Tool  string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v (input: %.200s)", e.Tool, e.Err, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
