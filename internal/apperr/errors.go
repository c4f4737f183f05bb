package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature header")
	ErrNotFound         = errors.New("record not found")
)

// AuthenticationError means the inbound notification could not be proven to
// come from the provider. Terminal for the request.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// DataIntegrityError means an event is valid but cannot be attributed to an
// application user. Requires manual reconciliation.
type DataIntegrityError struct {
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return "data integrity: " + e.Reason
}

// UpstreamServiceError wraps failures of the provider API or the database.
type UpstreamServiceError struct {
	Service string
	Err     error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

func Authentication(err error) error {
	return &AuthenticationError{Err: err}
}

func DataIntegrity(format string, args ...any) error {
	return &DataIntegrityError{Reason: fmt.Sprintf(format, args...)}
}

func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var up *UpstreamServiceError
	if errors.As(err, &up) {
		return err
	}
	return &UpstreamServiceError{Service: service, Err: err}
}

func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

func IsDataIntegrity(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target *UpstreamServiceError
	return errors.As(err, &target)
}
