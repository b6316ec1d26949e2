// Package engine maps partition ids to configured secure store
// instances. It is the process-wide registry the surrounding service
// passes by reference: partitions are built on demand, cached with a
// time bound, and disposed when they fall out of the cache.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pkg/cache"
	"github.com/c360/leo/securestore"
)

// Factory builds the secure store for a partition. Implementations
// typically derive the container name and codec keys from the
// partition id.
type Factory func(ctx context.Context, partition string) (*securestore.Store, error)

// Disposer releases partition resources when the engine evicts it.
type Disposer func(partition string, store *securestore.Store)

// Default cache bounds.
const (
	DefaultPartitionTTL  = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Engine is the per-partition store registry. Safe for concurrent use.
type Engine struct {
	factory  Factory
	disposer Disposer
	logger   *slog.Logger

	// mu serializes partition construction so concurrent lookups of the
	// same id build one instance.
	mu    sync.Mutex
	cache *cache.TTL[*securestore.Store]
}

// Option configures an Engine.
type Option func(*Engine)

// WithDisposer sets the eviction hook.
func WithDisposer(d Disposer) Option {
	return func(e *Engine) { e.disposer = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine with the given partition factory and TTL.
func New(factory Factory, ttl time.Duration, opts ...Option) (*Engine, error) {
	if factory == nil {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "Engine", "New", "partition factory")
	}
	if ttl <= 0 {
		ttl = DefaultPartitionTTL
	}

	e := &Engine{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cache = cache.NewTTL(ttl, DefaultSweepInterval, func(partition string, store *securestore.Store) {
		e.logger.Debug("partition evicted", "partition", partition)
		if e.disposer != nil {
			e.disposer(partition, store)
		}
	})

	return e, nil
}

// Partition returns the store for a partition id, building and caching
// it on first use.
func (e *Engine) Partition(ctx context.Context, id string) (*securestore.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if store, ok := e.cache.Get(id); ok {
		return store, nil
	}

	store, err := e.factory(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "Partition", "build partition "+id)
	}

	e.cache.Set(id, store)
	e.logger.Debug("partition built", "partition", id)
	return store, nil
}

// Evict drops a partition immediately, invoking the disposer.
func (e *Engine) Evict(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Delete(id)
}

// Close disposes every cached partition and stops the cache sweeper.
func (e *Engine) Close() {
	e.cache.Close()
}
