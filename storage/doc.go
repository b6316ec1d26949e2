// Package storage defines the blob backend contract and its data model.
//
// # Overview
//
// The storage package is the seam between the secure store and whatever
// actually holds bytes. It specifies:
//
//   - Backend: save/load/metadata/snapshots/listing/delete/conditional
//     write/lock, the full primitive set the secure store builds on
//   - Location: (container, base path, optional id) object addressing
//   - Metadata: insertion-ordered string map with reserved keys and
//     first-class ETag and snapshot fields
//   - Stream: cancellable pull-based iteration for snapshot and file
//     listings
//   - Lease: a scoped handle on an advisory lock
//
// # Conditional writes
//
// Every save returns a fresh ETag. TryOptimisticWrite turns that token
// into compare-and-swap semantics: a caller that supplies the ETag it
// last observed succeeds only if nobody wrote in between, and a caller
// that supplies no ETag succeeds only on first write. Losing the race is
// not an error; it is reported as ok=false so callers can re-read and
// retry deliberately.
//
// # Snapshots and tombstones
//
// Each successful write records an immutable snapshot of the written
// state. Soft deletion stamps the reserved tombstone key instead of
// removing bytes, which keeps snapshots loadable; permanent deletion
// removes the object together with its snapshot history. Backends
// surface tombstoned objects unfiltered — interpreting the tombstone is
// the secure store's responsibility.
//
// # Implementations
//
// memstore provides a complete in-memory backend used in tests and as
// the reference for backend semantics. natsstore binds the contract to
// NATS JetStream KV, mapping ETags to revisions and snapshots to KV
// history.
package storage
