package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable means the language model could not be reached or
	// produced nothing usable.
	ErrGatewayUnavailable = errors.New("ai gateway unavailable")
	ErrEmptyTranscript    = errors.New("transcript is empty")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
