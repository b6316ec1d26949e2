// Package natsstore binds the blob backend contract to NATS JetStream
// KV: revisions serve as ETags and snapshots, per-key history provides
// point-in-time reads, and lease keys provide advisory locks.
package natsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/natsclient"
	"github.com/c360/leo/storage"
)

// leaseKeyPrefix namespaces lease keys inside a container's bucket so
// they never collide with object keys and never show up in listings.
const leaseKeyPrefix = "leo-lease/"

// envelope is the KV value layout: metadata and payload together, since
// KV carries a single opaque value per key. Data is base64 on the wire
// via encoding/json.
type envelope struct {
	Metadata *storage.Metadata `json:"metadata"`
	Data     []byte            `json:"data"`
}

// leaseRecord is the lease key's value.
type leaseRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store implements storage.Backend over NATS JetStream KV.
type Store struct {
	client *natsclient.Client
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a NATS KV backend using the given connected client.
func New(client *natsclient.Client, cfg Config, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "natsstore", "New", "nats client")
	}
	if cfg.BucketPrefix == "" {
		cfg = DefaultConfig()
	}

	s := &Store{
		client:  client,
		cfg:     cfg,
		logger:  slog.Default(),
		buckets: make(map[string]jetstream.KeyValue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ storage.Backend = (*Store)(nil)

func (s *Store) bucketName(container string) string {
	return s.cfg.BucketPrefix + sanitizeToken(container)
}

// bucket resolves (and caches) the KV bucket for a container, creating
// it on first use.
func (s *Store) bucket(ctx context.Context, container string) (jetstream.KeyValue, error) {
	s.mu.Lock()
	if kv, ok := s.buckets[container]; ok {
		s.mu.Unlock()
		return kv, nil
	}
	s.mu.Unlock()

	js := s.client.JetStream()
	if js == nil {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "natsstore", "bucket", "nats connection")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   s.bucketName(container),
		History:  s.cfg.History,
		Replicas: s.cfg.Replicas,
	})
	if err != nil {
		return nil, errors.Backend(err, "natsstore", "bucket", "create bucket "+container)
	}

	s.mu.Lock()
	s.buckets[container] = kv
	s.mu.Unlock()
	return kv, nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.OpTimeout)
	}
	return ctx, func() {}
}

// Save implements storage.Backend.
func (s *Store) Save(ctx context.Context, loc storage.Location, obj storage.Object) (*storage.Metadata, error) {
	value, stored, err := s.encodeObject(ctx, obj)
	if err != nil {
		return nil, err
	}

	if err := s.checkLease(ctx, loc); err != nil {
		return nil, err
	}

	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	rev, err := kv.Put(opCtx, encodeKey(loc.Key()), value)
	if err != nil {
		return nil, errors.Backend(err, "natsstore", "Save", loc.String())
	}

	out := stored.Clone()
	out.ETag = strconv.FormatUint(rev, 10)
	out.SnapshotID = out.ETag
	return out, nil
}

// TryOptimisticWrite implements storage.Backend. The supplied ETag is a
// revision: present means update-if-unchanged via a revision-checked
// update, absent means create-if-absent.
func (s *Store) TryOptimisticWrite(ctx context.Context, loc storage.Location, obj storage.Object) (*storage.Metadata, bool, error) {
	value, stored, err := s.encodeObject(ctx, obj)
	if err != nil {
		return nil, false, err
	}

	if err := s.checkLease(ctx, loc); err != nil {
		return nil, false, err
	}

	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return nil, false, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	key := encodeKey(loc.Key())
	supplied := ""
	if obj.Metadata != nil {
		supplied = obj.Metadata.ETag
	}

	var rev uint64
	if supplied == "" {
		rev, err = kv.Create(opCtx, key, value)
	} else {
		var expected uint64
		expected, err = strconv.ParseUint(supplied, 10, 64)
		if err != nil {
			return nil, false, errors.WrapInvalid(err, "natsstore", "TryOptimisticWrite", "parse etag")
		}
		rev, err = kv.Update(opCtx, key, value, expected)
	}
	if err != nil {
		if isConflictErr(err) {
			return nil, false, nil
		}
		return nil, false, errors.Backend(err, "natsstore", "TryOptimisticWrite", loc.String())
	}

	out := stored.Clone()
	out.ETag = strconv.FormatUint(rev, 10)
	out.SnapshotID = out.ETag
	return out, true, nil
}

// Load implements storage.Backend.
func (s *Store) Load(ctx context.Context, loc storage.Location, snapshotID string) (*storage.Object, error) {
	entry, err := s.getEntry(ctx, loc, snapshotID)
	if err != nil || entry == nil {
		return nil, err
	}

	env, err := decodeEnvelope(entry.Value())
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "Load", loc.String())
	}

	meta := env.Metadata
	meta.ETag = strconv.FormatUint(entry.Revision(), 10)
	meta.SnapshotID = meta.ETag
	return &storage.Object{
		Reader:   io.NopCloser(bytes.NewReader(env.Data)),
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

// getEntry fetches the latest entry, or the one at snapshotID. Absent
// keys and purged revisions return (nil, nil).
func (s *Store) getEntry(ctx context.Context, loc storage.Location, snapshotID string) (jetstream.KeyValueEntry, error) {
	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	key := encodeKey(loc.Key())
	var entry jetstream.KeyValueEntry
	if snapshotID == "" {
		entry, err = kv.Get(opCtx, key)
	} else {
		var rev uint64
		rev, err = strconv.ParseUint(snapshotID, 10, 64)
		if err != nil {
			return nil, errors.WrapInvalid(err, "natsstore", "Load", "parse snapshot id")
		}
		entry, err = kv.GetRevision(opCtx, key, rev)
	}
	if err != nil {
		if isNotFoundErr(err) {
			return nil, nil
		}
		return nil, errors.Backend(err, "natsstore", "Load", loc.String())
	}

	// A delete marker at this revision reads as absent.
	if entry.Operation() != jetstream.KeyValuePut {
		return nil, nil
	}
	return entry, nil
}

// FindSnapshots implements storage.Backend: the key's KV history,
// delete markers excluded.
func (s *Store) FindSnapshots(ctx context.Context, loc storage.Location) *storage.Stream[storage.Snapshot] {
	return storage.NewStream(ctx, func(ctx context.Context, emit func(storage.Snapshot) error) error {
		kv, err := s.bucket(ctx, loc.Container)
		if err != nil {
			return err
		}

		history, err := kv.History(ctx, encodeKey(loc.Key()))
		if err != nil {
			if isNotFoundErr(err) {
				return nil
			}
			return errors.Backend(err, "natsstore", "FindSnapshots", loc.String())
		}

		for _, entry := range history {
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			snap := storage.Snapshot{
				ID:         strconv.FormatUint(entry.Revision(), 10),
				ModifiedAt: entry.Created(),
			}
			if err := emit(snap); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindFiles implements storage.Backend. Lease keys are filtered out;
// tombstoned objects are not.
func (s *Store) FindFiles(ctx context.Context, container, prefix string) *storage.Stream[storage.LocationWithMetadata] {
	return storage.NewStream(ctx, func(ctx context.Context, emit func(storage.LocationWithMetadata) error) error {
		kv, err := s.bucket(ctx, container)
		if err != nil {
			return err
		}

		lister, err := kv.ListKeys(ctx)
		if err != nil {
			return errors.Backend(err, "natsstore", "FindFiles", container)
		}
		defer lister.Stop()

		for key := range lister.Keys() {
			decoded := decodeKey(key)
			if strings.HasPrefix(decoded, leaseKeyPrefix) {
				continue
			}
			if prefix != "" && !strings.HasPrefix(decoded, prefix) {
				continue
			}

			loc := storage.ParseKey(container, decoded)
			meta, err := s.GetMetadata(ctx, loc, "")
			if err != nil {
				return err
			}
			if meta == nil {
				continue
			}
			if err := emit(storage.LocationWithMetadata{Location: loc, Metadata: meta}); err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDelete implements storage.Backend: rewrites the value with the
// tombstone stamped, leaving history revisions loadable.
func (s *Store) SoftDelete(ctx context.Context, loc storage.Location) error {
	entry, err := s.getEntry(ctx, loc, "")
	if err != nil || entry == nil {
		return err
	}

	env, err := decodeEnvelope(entry.Value())
	if err != nil {
		return errors.Wrap(err, "natsstore", "SoftDelete", loc.String())
	}
	env.Metadata.SetDeleted(time.Now())

	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "natsstore", "SoftDelete", "marshal envelope")
	}

	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := kv.Put(opCtx, encodeKey(loc.Key()), value); err != nil {
		return errors.Backend(err, "natsstore", "SoftDelete", loc.String())
	}
	return nil
}

// PermanentDelete implements storage.Backend: purges the key and its
// entire history.
func (s *Store) PermanentDelete(ctx context.Context, loc storage.Location) error {
	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := kv.Purge(opCtx, encodeKey(loc.Key())); err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return errors.Backend(err, "natsstore", "PermanentDelete", loc.String())
	}
	return nil
}

// Lock implements storage.Backend using a lease key guarded by
// create/update revisions. Returns (nil, nil) while a live lease exists.
func (s *Store) Lock(ctx context.Context, loc storage.Location) (storage.Lease, error) {
	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	key := encodeKey(leaseKeyPrefix + loc.Key())
	record := leaseRecord{
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.cfg.LeaseTTL),
	}
	value, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "Lock", "marshal lease")
	}

	rev, err := kv.Create(opCtx, key, value)
	if err == nil {
		return &lease{store: s, kv: kv, key: key, token: record.Token, rev: rev}, nil
	}
	if !isConflictErr(err) {
		return nil, errors.Backend(err, "natsstore", "Lock", loc.String())
	}

	// A lease key exists; claim it only if it has expired.
	entry, err := kv.Get(opCtx, key)
	if err != nil {
		if isNotFoundErr(err) {
			// Released between our create and get; caller retries.
			return nil, nil
		}
		return nil, errors.Backend(err, "natsstore", "Lock", loc.String())
	}

	var current leaseRecord
	if err := json.Unmarshal(entry.Value(), &current); err != nil {
		return nil, errors.Wrap(err, "natsstore", "Lock", "decode lease")
	}
	if time.Now().Before(current.ExpiresAt) {
		return nil, nil
	}

	rev, err = kv.Update(opCtx, key, value, entry.Revision())
	if err != nil {
		if isConflictErr(err) {
			return nil, nil
		}
		return nil, errors.Backend(err, "natsstore", "Lock", loc.String())
	}
	return &lease{store: s, kv: kv, key: key, token: record.Token, rev: rev}, nil
}

// checkLease rejects writes to locations with a live lease.
func (s *Store) checkLease(ctx context.Context, loc storage.Location) error {
	kv, err := s.bucket(ctx, loc.Container)
	if err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := kv.Get(opCtx, encodeKey(leaseKeyPrefix+loc.Key()))
	if err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return errors.Backend(err, "natsstore", "checkLease", loc.String())
	}

	var current leaseRecord
	if err := json.Unmarshal(entry.Value(), &current); err != nil {
		return errors.Wrap(err, "natsstore", "checkLease", "decode lease")
	}
	if time.Now().Before(current.ExpiresAt) {
		return errors.Wrap(errors.ErrLocked, "natsstore", "Save", loc.String())
	}
	return nil
}

// CreateContainer implements storage.Backend.
func (s *Store) CreateContainer(ctx context.Context, name string) error {
	_, err := s.bucket(ctx, name)
	return err
}

// DeleteContainer implements storage.Backend.
func (s *Store) DeleteContainer(ctx context.Context, name string) error {
	js := s.client.JetStream()
	if js == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "natsstore", "DeleteContainer", "nats connection")
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := js.DeleteKeyValue(opCtx, s.bucketName(name)); err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return errors.Backend(err, "natsstore", "DeleteContainer", name)
	}

	s.mu.Lock()
	delete(s.buckets, name)
	s.mu.Unlock()
	return nil
}

// lease is the KV-backed lease handle.
type lease struct {
	store *Store
	kv    jetstream.KeyValue
	key   string
	token string

	mu       sync.Mutex
	rev      uint64
	released bool
}

// Token implements storage.Lease.
func (l *lease) Token() string { return l.token }

// Release implements storage.Lease. Idempotent; only the revision this
// holder wrote is removed, so a later claimant is never evicted.
func (l *lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	opCtx, cancel := l.store.opContext(ctx)
	defer cancel()

	err := l.kv.Purge(opCtx, l.key, jetstream.LastRevision(l.rev))
	if err != nil && !isNotFoundErr(err) && !isConflictErr(err) {
		return errors.Backend(err, "natsstore", "Release", l.key)
	}
	return nil
}

// encodeObject drains the payload and wraps it with its metadata.
func (s *Store) encodeObject(ctx context.Context, obj storage.Object) ([]byte, *storage.Metadata, error) {
	data, err := readAll(ctx, obj.Reader)
	if err != nil {
		return nil, nil, errors.Backend(err, "natsstore", "Save", "read payload")
	}

	stored := obj.Metadata.Clone()
	stored.ETag = ""
	stored.SnapshotID = ""
	stored.Set(storage.KeyContentLength, strconv.Itoa(len(data)))
	stored.Set(storage.KeySize, strconv.Itoa(len(data)))
	stored.Set(storage.KeyModified, time.Now().UTC().Format(time.RFC3339Nano))

	value, err := json.Marshal(envelope{Metadata: stored, Data: data})
	if err != nil {
		return nil, nil, errors.Wrap(err, "natsstore", "Save", "marshal envelope")
	}
	return value, stored, nil
}

func decodeEnvelope(value []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, err
	}
	if env.Metadata == nil {
		env.Metadata = storage.NewMetadata()
	}
	return &env, nil
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

// sanitizeToken maps a container name onto the KV bucket charset.
func sanitizeToken(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// encodeKey maps object keys onto the KV key charset. Slashes are
// legal KV key characters; anything else unusual is underscored.
func encodeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '/', r == '=', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// decodeKey is the identity today; kept so listings go through one
// place if the encoding ever grows.
func decodeKey(key string) string { return key }

// Conflict and not-found detection over the jetstream error surface.

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) ||
		errors.Is(err, jetstream.ErrKeyDeleted) ||
		errors.Is(err, jetstream.ErrBucketNotFound) ||
		errors.Is(err, jetstream.ErrNoKeysFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

func isConflictErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
