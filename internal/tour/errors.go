package tour

import (
	"errors"
)

// Kind is a stable, machine-readable domain error name.
type Kind string

const (
	KindLicenseNotFound     Kind = "license_not_found"
	KindLicenseUsed         Kind = "license_used"
	KindLicenseNotActive    Kind = "license_not_active"
	KindLicenseExpired      Kind = "license_expired"
	KindInvalidMaxListeners Kind = "invalid_max_listeners"
	KindPINGenerationFailed Kind = "pin_generation_failed"
	KindSessionNotFound     Kind = "session_not_found"
	KindSessionExpired      Kind = "session_expired"
	KindSessionFull         Kind = "session_full"
	KindListenerNotFound    Kind = "listener_not_found"
	KindDBError             Kind = "db_error"
)

// Error is a domain failure with a stable Kind. Err carries the underlying
// cause when there is one.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrSessionFull)
// works regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrLicenseNotFound     = &Error{Kind: KindLicenseNotFound}
	ErrLicenseUsed         = &Error{Kind: KindLicenseUsed}
	ErrLicenseNotActive    = &Error{Kind: KindLicenseNotActive}
	ErrLicenseExpired      = &Error{Kind: KindLicenseExpired}
	ErrInvalidMaxListeners = &Error{Kind: KindInvalidMaxListeners}
	ErrPINGenerationFailed = &Error{Kind: KindPINGenerationFailed}
	ErrSessionNotFound     = &Error{Kind: KindSessionNotFound}
	ErrSessionExpired      = &Error{Kind: KindSessionExpired}
	ErrSessionFull         = &Error{Kind: KindSessionFull}
	ErrListenerNotFound    = &Error{Kind: KindListenerNotFound}
	ErrDBError             = &Error{Kind: KindDBError}
)

// KindOf returns the Kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func dbError(err error) error {
	return &Error{Kind: KindDBError, Err: err}
}

// domainError passes domain errors through and maps everything else to
// db_error.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return dbError(err)
}
