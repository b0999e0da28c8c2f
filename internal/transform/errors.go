package transform

import (
	"errors"
	"fmt"
)

// Reason classifies a transform failure.
type Reason string

const (
	ReasonUnreadableFormat Reason = "unreadable_format"
	ReasonSchemaMismatch   Reason = "schema_mismatch"
	ReasonEmptyResult      Reason = "empty_result"
)

// Error is a transform failure. An empty result after filtering is an
// error, never a success: a silent empty export is worse than a loud one.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transform: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func AsError(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}
