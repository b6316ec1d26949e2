// Package memstore provides an in-memory implementation of the blob
// backend contract, with full support for ETags, snapshots, tombstones,
// and leases. It backs unit tests and doubles as the reference for
// backend semantics.
package memstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/storage"
)

// DefaultLeaseTTL bounds how long a lease is honored without renewal.
const DefaultLeaseTTL = 60 * time.Second

// Store is an in-memory blob backend. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	containers map[string]*container
	leases     map[string]*lease
	leaseTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type container struct {
	objects map[string]*object
}

type object struct {
	data      []byte
	meta      *storage.Metadata
	etag      string
	snapshots []snapshotVersion
}

type snapshotVersion struct {
	id         string
	modifiedAt time.Time
	data       []byte
	meta       *storage.Metadata
}

// Option configures a Store.
type Option func(*Store)

// WithLeaseTTL overrides the lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *Store) { s.leaseTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// withClock substitutes the time source; used by lease expiry tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory backend.
func New(opts ...Option) *Store {
	s := &Store{
		containers: make(map[string]*container),
		leases:     make(map[string]*lease),
		leaseTTL:   DefaultLeaseTTL,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Backend = (*Store)(nil)

// Save implements storage.Backend. Containers are created on first
// write.
func (s *Store) Save(ctx context.Context, loc storage.Location, obj storage.Object) (*storage.Metadata, error) {
	data, err := readAll(ctx, obj.Reader)
	if err != nil {
		return nil, errors.Backend(err, "memstore", "Save", "read payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLeaseLocked(loc); err != nil {
		return nil, err
	}

	return s.commitLocked(loc, data, obj.Metadata), nil
}

// TryOptimisticWrite implements storage.Backend.
func (s *Store) TryOptimisticWrite(ctx context.Context, loc storage.Location, obj storage.Object) (*storage.Metadata, bool, error) {
	data, err := readAll(ctx, obj.Reader)
	if err != nil {
		return nil, false, errors.Backend(err, "memstore", "TryOptimisticWrite", "read payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLeaseLocked(loc); err != nil {
		return nil, false, err
	}

	current := s.lookupLocked(loc)
	supplied := ""
	if obj.Metadata != nil {
		supplied = obj.Metadata.ETag
	}

	if supplied == "" {
		// Create-if-absent: any existing object loses the race.
		if current != nil {
			return nil, false, nil
		}
	} else {
		if current == nil || current.etag != supplied {
			return nil, false, nil
		}
	}

	return s.commitLocked(loc, data, obj.Metadata), true, nil
}

// commitLocked writes the object and records a snapshot of the written
// state. Caller holds the mutex.
func (s *Store) commitLocked(loc storage.Location, data []byte, meta *storage.Metadata) *storage.Metadata {
	c := s.containers[loc.Container]
	if c == nil {
		c = &container{objects: make(map[string]*object)}
		s.containers[loc.Container] = c
	}

	now := s.now().UTC()
	stored := meta.Clone()
	stored.ETag = ""
	stored.SnapshotID = ""
	stored.Set(storage.KeyContentLength, strconv.Itoa(len(data)))
	stored.Set(storage.KeySize, strconv.Itoa(len(data)))
	stored.Set(storage.KeyModified, now.Format(time.RFC3339Nano))

	obj := c.objects[loc.Key()]
	if obj == nil {
		obj = &object{}
		c.objects[loc.Key()] = obj
	}

	obj.data = data
	obj.meta = stored
	obj.etag = uuid.NewString()
	snap := snapshotVersion{
		id:         uuid.NewString(),
		modifiedAt: now,
		data:       data,
		meta:       stored.Clone(),
	}
	obj.snapshots = append(obj.snapshots, snap)

	out := stored.Clone()
	out.ETag = obj.etag
	out.SnapshotID = snap.id
	return out
}

// Load implements storage.Backend. Tombstoned objects are returned
// unfiltered; the secure store interprets the marker.
func (s *Store) Load(_ context.Context, loc storage.Location, snapshotID string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := s.lookupLocked(loc)
	if obj == nil {
		return nil, nil
	}

	if snapshotID != "" {
		for _, snap := range obj.snapshots {
			if snap.id == snapshotID {
				meta := snap.meta.Clone()
				meta.SnapshotID = snap.id
				return &storage.Object{
					Reader:   io.NopCloser(bytes.NewReader(snap.data)),
					Metadata: meta,
				}, nil
			}
		}
		return nil, nil
	}

	meta := obj.meta.Clone()
	meta.ETag = obj.etag
	if n := len(obj.snapshots); n > 0 {
		meta.SnapshotID = obj.snapshots[n-1].id
	}
	return &storage.Object{
		Reader:   io.NopCloser(bytes.NewReader(obj.data)),
		Metadata: meta,
	}, nil
}

// GetMetadata implements storage.Backend.
func (s *Store) GetMetadata(ctx context.Context, loc storage.Location, snapshotID string) (*storage.Metadata, error) {
	obj, err := s.Load(ctx, loc, snapshotID)
	if err != nil || obj == nil {
		return nil, err
	}
	defer obj.Close()
	return obj.Metadata, nil
}

// FindSnapshots implements storage.Backend.
func (s *Store) FindSnapshots(ctx context.Context, loc storage.Location) *storage.Stream[storage.Snapshot] {
	s.mu.Lock()
	var snaps []storage.Snapshot
	if obj := s.lookupLocked(loc); obj != nil {
		for _, snap := range obj.snapshots {
			snaps = append(snaps, storage.Snapshot{ID: snap.id, ModifiedAt: snap.modifiedAt})
		}
	}
	s.mu.Unlock()

	return storage.NewStream(ctx, func(_ context.Context, emit func(storage.Snapshot) error) error {
		for _, snap := range snaps {
			if err := emit(snap); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindFiles implements storage.Backend. Tombstoned entries are included.
func (s *Store) FindFiles(ctx context.Context, containerName, prefix string) *storage.Stream[storage.LocationWithMetadata] {
	s.mu.Lock()
	var entries []storage.LocationWithMetadata
	if c := s.containers[containerName]; c != nil {
		for key, obj := range c.objects {
			if prefix != "" && !strings.HasPrefix(key, prefix) {
				continue
			}
			meta := obj.meta.Clone()
			meta.ETag = obj.etag
			entries = append(entries, storage.LocationWithMetadata{
				Location: storage.ParseKey(containerName, key),
				Metadata: meta,
			})
		}
	}
	s.mu.Unlock()

	return storage.NewStream(ctx, func(_ context.Context, emit func(storage.LocationWithMetadata) error) error {
		for _, entry := range entries {
			if err := emit(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDelete implements storage.Backend. Snapshots stay loadable.
func (s *Store) SoftDelete(_ context.Context, loc storage.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := s.lookupLocked(loc)
	if obj == nil {
		return nil
	}
	obj.meta.SetDeleted(s.now())
	return nil
}

// PermanentDelete implements storage.Backend. Removes the object and all
// snapshots.
func (s *Store) PermanentDelete(_ context.Context, loc storage.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.containers[loc.Container]; c != nil {
		delete(c.objects, loc.Key())
	}
	return nil
}

// Lock implements storage.Backend. Returns (nil, nil) while another
// holder's lease is active.
func (s *Store) Lock(_ context.Context, loc storage.Location) (storage.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loc.String()
	if existing, held := s.leases[key]; held && !existing.expired(s.now()) {
		return nil, nil
	}

	l := &lease{
		store:     s,
		key:       key,
		token:     uuid.NewString(),
		expiresAt: s.now().Add(s.leaseTTL),
	}
	s.leases[key] = l
	s.logger.Debug("lease acquired", "location", key, "token", l.token)
	return l, nil
}

// CreateContainer implements storage.Backend. Idempotent.
func (s *Store) CreateContainer(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.containers[name]; !exists {
		s.containers[name] = &container{objects: make(map[string]*object)}
	}
	return nil
}

// DeleteContainer implements storage.Backend.
func (s *Store) DeleteContainer(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.containers, name)
	for key := range s.leases {
		if strings.HasPrefix(key, name+"/") {
			delete(s.leases, key)
		}
	}
	return nil
}

func (s *Store) lookupLocked(loc storage.Location) *object {
	c := s.containers[loc.Container]
	if c == nil {
		return nil
	}
	return c.objects[loc.Key()]
}

func (s *Store) checkLeaseLocked(loc storage.Location) error {
	if l, held := s.leases[loc.String()]; held && !l.expired(s.now()) {
		return errors.Wrap(errors.ErrLocked, "memstore", "Save", loc.String())
	}
	return nil
}

// lease is the in-memory lease handle. Mutable state is guarded by the
// store mutex.
type lease struct {
	store *Store
	key   string
	token string

	expiresAt time.Time
	released  bool
}

// expired reports lease validity; caller holds the store mutex.
func (l *lease) expired(now time.Time) bool {
	return l.released || now.After(l.expiresAt)
}

// Token implements storage.Lease.
func (l *lease) Token() string { return l.token }

// Release implements storage.Lease. Idempotent.
func (l *lease) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	if current, held := l.store.leases[l.key]; held && current == l {
		delete(l.store.leases, l.key)
	}
	return nil
}

// readAll drains r in chunk-sized reads, honoring cancellation, and
// closes it.
func readAll(ctx context.Context, r io.ReadCloser) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	defer r.Close()

	var buf bytes.Buffer
	chunk := make([]byte, 8*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
