package forq

import "errors"

var (
	// Store errors.
	ErrStoreClosed      = errors.New("forq: store closed")
	ErrStoreUnavailable = errors.New("forq: store unavailable")

	// Not found errors.
	ErrJobNotFound     = errors.New("forq: job not found")
	ErrSettingNotFound = errors.New("forq: setting not found")

	// Conflict errors.
	ErrDuplicateJob = errors.New("forq: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("forq: invalid state transition")
)

// Unavailable wraps a backend I/O failure so callers can match it with
// errors.Is(err, ErrStoreUnavailable) while keeping the driver cause in the
// chain. Backends use it for every failure that is not one of the contract
// sentinels above: the operation did not durably apply and the caller may
// retry it whole.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{cause: err}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *unavailableError) Unwrap() error { return e.cause }
