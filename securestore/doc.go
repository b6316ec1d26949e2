// Package securestore implements the secure object store facade: a
// write/read/delete protocol layered over a pluggable blob backend with
// transparent compression and encryption, optimistic-concurrency
// writes, leased locks, crash-safe id allocation, and post-write
// notification fan-out.
//
// # Write path
//
// SaveData clones the caller's metadata, layers the configured codecs
// according to the options (stamping or stripping the reserved
// compression and encryption keys so they are never stale), allocates
// an id when requested, streams the transformed payload to the backend,
// and finally fans the notification out to the backup and index queues
// in parallel. The payload never sits in memory whole: the codec chain
// runs through an 8 KiB-chunked pipe between the caller's reader and
// the backend.
//
// SaveDataWithETag is the optimistic variant: supplying an ETag means
// update-if-unchanged, supplying none means create-if-absent. Losing
// the race is reported as ok=false — a value, not an error — and no
// notification is sent.
//
// # Read path
//
// LoadData inverts the write: the backend stream is unwrapped exactly
// as the stored metadata dictates. An algorithm declared in metadata
// with no registered codec is an invariant violation, never a silent
// passthrough. Tombstoned objects read as absent; snapshot reads ignore
// the tombstone.
//
// # Typed objects
//
// SaveObject and LoadObject wrap the byte protocol with UTF-8 JSON
// serialization and a logical type name stored under the reserved type
// key, compared by equality on load.
//
// # ID generation
//
// RangeAllocator claims contiguous id ranges by conditionally advancing
// a shared counter blob, making ids unique across every process sharing
// the backend. The counter blob is plain UTF-8 decimal, stored without
// compression or encryption regardless of store configuration.
//
// # Collaborators
//
// Every collaborator is optional until an option demands it: enabling
// compression without a compressor, encryption without an encryptor,
// id generation without an allocator, or notifications without the
// matching queue is a configuration error surfaced before any byte is
// written.
package securestore
