// Package faults defines the error kinds the verification core reports to
// its callers. The transport layer maps kinds to status codes; the core
// never retries or swallows.
package faults

import (
	"errors"
	"fmt"

	"credverify/internal/domain"
)

// NotFoundError reports a referenced record that does not exist. It is
// raised before any mutating side effect.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidArgumentError reports a malformed or unrecognized identifier or
// enum value supplied by the caller. Always detectable before any
// external call.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

func InvalidArgumentf(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// ExternalServiceError reports a failure attributable to a downstream
// collaborator. Service names the collaborator; Status carries its
// reported status or detail when available.
type ExternalServiceError struct {
	Service string
	Status  string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

func Externalf(service, status string, format string, args ...any) error {
	return &ExternalServiceError{Service: service, Status: status, Err: fmt.Errorf(format, args...)}
}

func IsExternal(err error) bool {
	var es *ExternalServiceError
	return errors.As(err, &es)
}

// PartialCommitError reports that a status write committed but the paired
// audit append failed. Event is the entry that failed to append, with the
// event id generated before the attempt, so a caller-driven retry can
// re-append idempotently without double-logging.
type PartialCommitError struct {
	Status domain.ApplicationStatus
	Event  domain.AuditEvent
	Err    error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("status %q committed for application %d but audit append failed: %v", e.Status, e.Event.ApplicationID, e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

func IsPartialCommit(err error) bool {
	var pc *PartialCommitError
	return errors.As(err, &pc)
}
