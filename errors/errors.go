// Package errors provides standardized error handling for the store.
// It defines the error kinds surfaced by the secure store and its
// collaborators, an error classification scheme, and helper functions
// for consistent wrapping across the module.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for the store's error kinds.
//
// Conflict on an optimistic write is deliberately absent: it is surfaced
// as a value (ok=false) by the write path, never as an error.
var (
	// ErrNotConfigured indicates an option was requested but the
	// corresponding collaborator (encryptor, compressor, queue,
	// ID generator) was not supplied.
	ErrNotConfigured = errors.New("collaborator not configured")

	// ErrInvariantViolation indicates stored metadata declares something
	// the caller cannot satisfy, such as an unknown encryption algorithm
	// or a typed-object type mismatch.
	ErrInvariantViolation = errors.New("metadata invariant violated")

	// ErrLocked indicates a write targeted a location leased by another
	// holder.
	ErrLocked = errors.New("location is leased")

	// ErrRangeAllocationFailed indicates the ID generator exceeded its
	// retry budget claiming a range.
	ErrRangeAllocationFailed = errors.New("id range allocation failed")

	// ErrBackendFailure indicates a transport, authorization, or storage
	// error from the blob backend.
	ErrBackendFailure = errors.New("backend failure")

	// Container and object lookup errors used by backend implementations.
	ErrContainerNotFound = errors.New("container not found")
	ErrContainerExists   = errors.New("container already exists")
	ErrSnapshotNotFound  = errors.New("snapshot not found")

	// ErrInvalidData indicates data that cannot be parsed or validated.
	ErrInvalidData = errors.New("invalid data format")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsNotConfigured checks whether an error reports a missing collaborator.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsInvariantViolation checks whether an error reports a metadata
// invariant violation.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsLocked checks whether an error reports a leased location.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsRangeAllocationFailed checks whether an error reports an exhausted
// ID allocation retry budget.
func IsRangeAllocationFailed(err error) bool {
	return errors.Is(err, ErrRangeAllocationFailed)
}

// IsBackendFailure checks whether an error originated in the blob backend.
func IsBackendFailure(err error) bool {
	return errors.Is(err, ErrBackendFailure)
}

// IsCancelled checks whether an error reports an observed cancellation
// signal at a suspension point.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	// Backend failures are the retryable kind; cancellation and the
	// configuration/invariant kinds are not.
	return errors.Is(err, ErrBackendFailure)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrNotConfigured)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvariantViolation) || errors.Is(err, ErrInvalidData)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Backend wraps a backend error so that IsBackendFailure reports true
// while the underlying cause stays reachable via errors.Is and errors.As.
func Backend(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%w: %w", ErrBackendFailure, err), component, method, action)
}

// Is reports whether any error in err's tree matches target.
// Re-exported so store packages need only one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }

// Join wraps the standard library Join.
func Join(errs ...error) error { return errors.Join(errs...) }
