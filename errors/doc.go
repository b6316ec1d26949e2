// Package errors provides standardized error handling for the secure store.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). On top of the classification it
// defines the error kinds the store surfaces to callers:
//
//   - ErrNotConfigured: an option was enabled but its collaborator is absent
//   - ErrInvariantViolation: stored metadata the caller cannot satisfy
//   - ErrLocked: write against a location leased by another holder
//   - ErrRangeAllocationFailed: ID generator exhausted its retry budget
//   - ErrBackendFailure: transport/authorization/storage error, cause attached
//
// Cancellation is detected with IsCancelled, which recognizes
// context.Canceled and context.DeadlineExceeded anywhere in the chain.
//
// A lost optimistic-write race (Conflict) is intentionally not an error
// kind. The write path reports it as a value so callers branch on ok
// rather than on error identity.
//
// # Quick Start
//
// Return kind sentinels for known conditions:
//
//	if store.encryptor == nil {
//	    return errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "SaveData", "encryptor")
//	}
//
// Wrap backend causes so the kind and the cause both survive:
//
//	if _, err := backend.Save(ctx, loc, obj); err != nil {
//	    return errors.Backend(err, "SecureStore", "SaveData", "backend save")
//	}
//
// Check kinds with the predicates:
//
//	if errors.IsLocked(err) {
//	    // wait for the lease holder to release
//	}
package errors
