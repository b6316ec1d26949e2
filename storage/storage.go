// Package storage provides the pluggable blob backend contract for the
// secure store, together with the data model shared by all backends:
// locations, ordered metadata, snapshots, leases, and result streams.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the pluggable contract the secure store requires from any
// blob storage implementation.
//
// Keys are opaque strings to the backend; no path convention is assumed.
// Every write returns metadata carrying a fresh ETag and the snapshot id
// created by that write. All implementations must be safe for concurrent
// use from multiple goroutines.
//
// Example implementations:
//   - memstore.Store: in-memory backend with full snapshot/lease support
//   - natsstore.Store: NATS JetStream KV backend (revisions as ETags)
//
// Tombstones: SoftDelete marks an object with the reserved deletion key
// instead of removing bytes. Load and GetMetadata surface tombstoned
// objects as-is; filtering them is the secure store's job, which lets
// snapshot reads ignore the tombstone.
type Backend interface {
	// Save stores the object at loc, overwriting any current version and
	// recording a snapshot of the written state. The reader in obj is
	// consumed to EOF and closed. Returns metadata with the new ETag and
	// snapshot id. Saving to a location leased by another holder fails
	// with an error satisfying errors.IsLocked.
	Save(ctx context.Context, loc Location, obj Object) (*Metadata, error)

	// TryOptimisticWrite is Save gated on the ETag in obj.Metadata:
	// with an ETag it succeeds only if the stored ETag matches; with no
	// ETag it succeeds only if no object exists. A lost race returns
	// ok=false and no error.
	TryOptimisticWrite(ctx context.Context, loc Location, obj Object) (*Metadata, bool, error)

	// Load returns the current object, or the version recorded under
	// snapshotID when non-empty. Returns (nil, nil) when the object or
	// snapshot does not exist. The caller owns the returned object and
	// must Close it.
	Load(ctx context.Context, loc Location, snapshotID string) (*Object, error)

	// GetMetadata returns metadata without the payload, or (nil, nil)
	// when absent.
	GetMetadata(ctx context.Context, loc Location, snapshotID string) (*Metadata, error)

	// FindSnapshots streams the snapshots recorded for loc. Order is
	// unspecified.
	FindSnapshots(ctx context.Context, loc Location) *Stream[Snapshot]

	// FindFiles streams the objects in a container whose key starts with
	// prefix (all objects when prefix is empty). Whether tombstoned
	// entries appear is implementation-defined; callers must tolerate
	// them.
	FindFiles(ctx context.Context, container, prefix string) *Stream[LocationWithMetadata]

	// SoftDelete marks the object deleted without touching snapshots.
	// No-op when the object is absent.
	SoftDelete(ctx context.Context, loc Location) error

	// PermanentDelete removes the object and all of its snapshots.
	// No-op when the object is absent.
	PermanentDelete(ctx context.Context, loc Location) error

	// Lock acquires an advisory, exclusive, time-bounded lease on loc.
	// Returns (nil, nil) when the lease is currently held elsewhere —
	// callers must fail fast, never block.
	Lock(ctx context.Context, loc Location) (Lease, error)

	// CreateContainer provisions a container. Idempotent.
	CreateContainer(ctx context.Context, name string) error

	// DeleteContainer removes a container and everything in it.
	DeleteContainer(ctx context.Context, name string) error
}

// Lease is a scoped handle on an acquired lock. Releasing relinquishes
// the lease; releasing twice is safe.
type Lease interface {
	// Token identifies this acquisition of the lease.
	Token() string

	// Release relinquishes the lease.
	Release(ctx context.Context) error
}

// Snapshot identifies a backend-managed immutable version of a location.
type Snapshot struct {
	ID         string
	ModifiedAt time.Time
}

// Object pairs a chunked byte stream with its metadata. Closing the
// object invokes the backend's release hook for the underlying handle.
type Object struct {
	Reader   io.ReadCloser
	Metadata *Metadata
}

// Close releases the underlying stream. Safe on a nil reader.
func (o *Object) Close() error {
	if o == nil || o.Reader == nil {
		return nil
	}
	return o.Reader.Close()
}

// LocationWithMetadata is a listing entry produced by FindFiles.
type LocationWithMetadata struct {
	Location Location
	Metadata *Metadata
}
