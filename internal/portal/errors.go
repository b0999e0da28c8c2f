package portal

import (
	"errors"
	"fmt"
)

var ErrInvalidLoginTransition = errors.New("invalid login transition")

// AuthReason classifies a login failure.
type AuthReason string

const (
	AuthSessionStart        AuthReason = "session_start"
	AuthNavigationTimeout   AuthReason = "navigation_timeout"
	AuthCredentialsRejected AuthReason = "credentials_rejected"
)

// AuthError is a login failure. Credential rejection is never retried; a
// transient navigation timeout is retried once before this error surfaces.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	ok := errors.As(err, &ae)
	return ae, ok
}

// AcquireReason classifies a report-fetch failure.
type AcquireReason string

const (
	AcquireNavigationTimeout   AcquireReason = "navigation_timeout"
	AcquireDownloadTimeout     AcquireReason = "download_timeout"
	AcquireUnexpectedPageState AcquireReason = "unexpected_page_state"
)

// AcquireError is a report-fetch failure. Every wait in the fetch sequence
// is bounded, so a hung page or download surfaces here instead of stalling
// the run.
type AcquireError struct {
	Reason AcquireReason
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquire: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("acquire: %s", e.Reason)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

func AsAcquireError(err error) (*AcquireError, bool) {
	var ae *AcquireError
	ok := errors.As(err, &ae)
	return ae, ok
}
