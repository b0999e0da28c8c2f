package export

import (
	"errors"
	"fmt"
)

// Reason classifies an export failure.
type Reason string

const (
	ReasonWriteFailed  Reason = "write_failed"
	ReasonVerifyFailed Reason = "verify_failed"
	ReasonEmpty        Reason = "empty"
)

// Error is an export failure. A failed export never leaves anything under
// the final artifact name.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("export: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func AsError(err error) (*Error, bool) {
	var ee *Error
	ok := errors.As(err, &ee)
	return ee, ok
}
