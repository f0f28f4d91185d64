package models

import (
	"errors"
	"fmt"
)

var (
	ErrAddressNotFound      = errors.New("address not found")
	ErrVisitNotFound        = errors.New("visit not found")
	ErrVisitExpired         = errors.New("visit expired")
	ErrOutOfRange           = errors.New("visitor out of range")
	ErrRateLimited          = errors.New("ring rate limited")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrMissingVisit         = errors.New("visit identifier is required")
	ErrStorage              = errors.New("storage error")
	ErrTransport            = errors.New("push transport error")
)

// StorageError wraps a persistence failure. errors.Is(err, ErrStorage) holds.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %s", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// OutOfRangeError carries the measured distance so clients can render it.
type OutOfRangeError struct {
	Distance    int
	MaxDistance int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("visitor is %dm away, maximum allowed is %dm", e.Distance, e.MaxDistance)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// TransportError is a failed delivery to a single push endpoint.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push service responded %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push delivery failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Gone reports whether the push service says the subscription no longer exists.
func (e *TransportError) Gone() bool {
	return IsGoneStatus(e.StatusCode)
}

// IsGoneStatus reports whether a push service status means the endpoint is dead.
func IsGoneStatus(code int) bool {
	return code == 404 || code == 410
}
