package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		expected  bool
	}{
		{"nil not configured", nil, IsNotConfigured, false},
		{"not configured sentinel", ErrNotConfigured, IsNotConfigured, true},
		{"wrapped not configured", WrapFatal(ErrNotConfigured, "Store", "SaveData", "encryptor"), IsNotConfigured, true},
		{"invariant sentinel", ErrInvariantViolation, IsInvariantViolation, true},
		{"wrapped invariant", fmt.Errorf("algorithm gzip: %w", ErrInvariantViolation), IsInvariantViolation, true},
		{"locked sentinel", ErrLocked, IsLocked, true},
		{"locked not invariant", ErrLocked, IsInvariantViolation, false},
		{"range allocation", ErrRangeAllocationFailed, IsRangeAllocationFailed, true},
		{"backend failure", Backend(fmt.Errorf("boom"), "memstore", "Save", "write"), IsBackendFailure, true},
		{"context canceled", context.Canceled, IsCancelled, true},
		{"context deadline", context.DeadlineExceeded, IsCancelled, true},
		{"plain error not cancelled", fmt.Errorf("boom"), IsCancelled, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.predicate(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil defaults transient", nil, ErrorTransient},
		{"not configured is fatal", ErrNotConfigured, ErrorFatal},
		{"invariant is invalid", ErrInvariantViolation, ErrorInvalid},
		{"invalid data is invalid", ErrInvalidData, ErrorInvalid},
		{"backend failure is transient", ErrBackendFailure, ErrorTransient},
		{"unknown defaults transient", fmt.Errorf("mystery"), ErrorTransient},
		{"classified fatal wins", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("underlying")
	wrapped := Wrap(base, "SecureStore", "LoadData", "backend load")

	expected := "SecureStore.LoadData: backend load failed: underlying"
	if wrapped.Error() != expected {
		t.Errorf("expected %q, got %q", expected, wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestBackendWrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Backend(cause, "natsstore", "Load", "kv get")

	if !IsBackendFailure(err) {
		t.Error("Backend wrap should report IsBackendFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("Backend wrap should preserve the cause")
	}
	if Backend(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := ErrInvariantViolation
	wrapped := WrapInvalid(base, "SecureStore", "LoadObject", "type check")

	var ce *ClassifiedError
	if !errors.As(wrapped, &ce) {
		t.Fatal("expected a ClassifiedError in the chain")
	}
	if ce.Class != ErrorInvalid {
		t.Errorf("expected invalid class, got %v", ce.Class)
	}
	if !errors.Is(wrapped, base) {
		t.Error("classified error should unwrap to sentinel")
	}
}
