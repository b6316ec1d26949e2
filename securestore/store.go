package securestore

import (
	"context"
	"log/slog"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/metric"
	"github.com/c360/leo/pipeline"
	"github.com/c360/leo/queue"
	"github.com/c360/leo/storage"
)

// Store is the secure object store facade: it composes the transform
// pipeline and the blob backend, enforces the metadata invariants, and
// routes post-write notifications to the backup and index queues.
//
// A Store is safe for concurrent use. Metadata is cloned at every entry
// point and never shared across requests.
type Store struct {
	backend storage.Backend

	compressor pipeline.Codec
	encryptor  pipeline.Codec

	// decoders resolves read-side codecs by their on-disk algorithm
	// tag. The configured compressor and encryptor register themselves
	// here; extra decoders cover objects written under older keys or
	// algorithms.
	decoders map[string]pipeline.Codec

	idgen       IDGenerator
	backupQueue queue.Queue
	indexQueue  queue.Queue

	logger  *slog.Logger
	metrics *storeMetrics
}

// Option configures a Store.
type Option func(*Store) error

// WithCompressor sets the codec layered on saves that request
// compression. It is also registered as a decoder for reads.
func WithCompressor(codec pipeline.Codec) Option {
	return func(s *Store) error {
		s.compressor = codec
		s.decoders[codec.Algorithm()] = codec
		return nil
	}
}

// WithEncryptor sets the codec layered on saves that request
// encryption. It is also registered as a decoder for reads.
func WithEncryptor(codec pipeline.Codec) Option {
	return func(s *Store) error {
		s.encryptor = codec
		s.decoders[codec.Algorithm()] = codec
		return nil
	}
}

// WithDecoder registers a read-only codec, letting the store load
// objects written with algorithms it no longer writes.
func WithDecoder(codec pipeline.Codec) Option {
	return func(s *Store) error {
		s.decoders[codec.Algorithm()] = codec
		return nil
	}
}

// WithIDGenerator sets the allocator consulted by OptGenerateID.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) error {
		s.idgen = gen
		return nil
	}
}

// WithBackupQueue sets the backup notification target.
func WithBackupQueue(q queue.Queue) Option {
	return func(s *Store) error {
		s.backupQueue = q
		return nil
	}
}

// WithIndexQueue sets the index notification target.
func WithIndexQueue(q queue.Queue) Option {
	return func(s *Store) error {
		s.indexQueue = q
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics registers the store's Prometheus metrics with the given
// registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Store) error {
		metrics, err := newStoreMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = metrics
		return nil
	}
}

// New creates a secure store over the given backend.
func New(backend storage.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "New", "backend")
	}

	s := &Store{
		backend:  backend,
		decoders: make(map[string]pipeline.Codec),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Backend exposes the underlying blob backend for collaborators that
// need raw primitives, such as the ID allocator.
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// Lock acquires the backend lease for loc. Returns (nil, nil) while the
// lease is held elsewhere; callers must treat a nil handle as "not
// acquired" and fail fast.
func (s *Store) Lock(ctx context.Context, loc storage.Location) (storage.Lease, error) {
	lease, err := s.backend.Lock(ctx, loc)
	if err != nil {
		return nil, errors.Backend(err, "SecureStore", "Lock", loc.String())
	}
	if lease == nil {
		s.logger.Debug("lock not acquired, lease held elsewhere", "location", loc.String())
		return nil, nil
	}
	return lease, nil
}

// FindSnapshots streams the snapshots recorded for loc.
func (s *Store) FindSnapshots(ctx context.Context, loc storage.Location) *storage.Stream[storage.Snapshot] {
	return s.backend.FindSnapshots(ctx, loc)
}

// checkQueues verifies the queues demanded by opts are configured.
// Missing collaborators surface before any byte is written.
func (s *Store) checkQueues(opts Options, operation string) error {
	if opts.Has(OptBackup) && s.backupQueue == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", operation, "backup queue")
	}
	if opts.Has(OptIndex) && s.indexQueue == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", operation, "index queue")
	}
	return nil
}
