package securestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pkg/retry"
	"github.com/c360/leo/storage"
)

// IDGenerator hands out unique, strictly positive 64-bit ids.
type IDGenerator interface {
	NextID(ctx context.Context) (int64, error)
}

// Defaults for the range allocator.
const (
	DefaultRangeSize   = 10
	DefaultMaxAttempts = 25
)

// RangeAllocator implements IDGenerator by claiming contiguous id
// ranges through conditional writes on a shared counter blob.
//
// The counter blob holds a plain UTF-8 decimal: the highest id
// allocated so far (absent reads as zero). Claims advance it by the
// range size under ETag protection, so concurrent allocators across
// processes never overlap. Within one allocator ids are contiguous and
// monotonically increasing.
//
// The counter blob is always written through the backend directly —
// never compressed, never encrypted, never soft-deleted — because every
// allocator must be able to read it with no credentials beyond backend
// access.
type RangeAllocator struct {
	backend     storage.Backend
	counterLoc  storage.Location
	rangeSize   int64
	maxAttempts int
	logger      *slog.Logger

	// mu serializes local requests; next > last means the current
	// range is exhausted.
	mu   sync.Mutex
	next int64
	last int64
}

// AllocatorOption configures a RangeAllocator.
type AllocatorOption func(*RangeAllocator)

// WithRangeSize sets how many ids each claim reserves.
func WithRangeSize(n int64) AllocatorOption {
	return func(a *RangeAllocator) {
		if n > 0 {
			a.rangeSize = n
		}
	}
}

// WithMaxAttempts bounds the conditional-write retries per claim.
func WithMaxAttempts(n int) AllocatorOption {
	return func(a *RangeAllocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithAllocatorLogger sets the logger.
func WithAllocatorLogger(logger *slog.Logger) AllocatorOption {
	return func(a *RangeAllocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewRangeAllocator creates an allocator over the counter blob at
// counterLoc.
func NewRangeAllocator(backend storage.Backend, counterLoc storage.Location, opts ...AllocatorOption) *RangeAllocator {
	a := &RangeAllocator{
		backend:     backend,
		counterLoc:  counterLoc,
		rangeSize:   DefaultRangeSize,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		next:        1,
		last:        0,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ IDGenerator = (*RangeAllocator)(nil)

// errClaimConflict signals a lost conditional write; the claim loop
// retries it with jittered backoff.
var errClaimConflict = errors.New("counter claim lost etag race")

// NextID implements IDGenerator.
func (a *RangeAllocator) NextID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next <= a.last {
		id := a.next
		a.next++
		return id, nil
	}

	if err := a.claimRange(ctx); err != nil {
		return 0, err
	}

	id := a.next
	a.next++
	return id, nil
}

// claimRange advances the shared counter by rangeSize under ETag
// protection and adopts the claimed interval. Caller holds the mutex.
func (a *RangeAllocator) claimRange(ctx context.Context) error {
	cfg := retry.Contention(a.maxAttempts)

	err := retry.Do(ctx, cfg, func() error {
		current, etag, err := a.readCounter(ctx)
		if err != nil {
			return retry.NonRetryable(err)
		}

		newMax := current + a.rangeSize
		meta := storage.NewMetadata()
		meta.ETag = etag

		body := strconv.FormatInt(newMax, 10)
		_, ok, err := a.backend.TryOptimisticWrite(ctx, a.counterLoc, storage.Object{
			Reader:   io.NopCloser(strings.NewReader(body)),
			Metadata: meta,
		})
		if err != nil {
			return retry.NonRetryable(errors.Backend(err, "RangeAllocator", "claimRange", "counter write"))
		}
		if !ok {
			return errClaimConflict
		}

		a.next = current + 1
		a.last = newMax
		a.logger.Debug("id range claimed",
			"counter", a.counterLoc.String(),
			"from", a.next,
			"to", a.last)
		return nil
	})

	if err == nil {
		return nil
	}
	if errors.Is(err, errClaimConflict) {
		return errors.WrapTransient(
			fmt.Errorf("%w after %d attempts", errors.ErrRangeAllocationFailed, a.maxAttempts),
			"RangeAllocator", "NextID", "range claim")
	}
	return err
}

// readCounter loads the counter blob. Absent reads as zero with an
// empty ETag, which makes the subsequent write create-if-absent.
func (a *RangeAllocator) readCounter(ctx context.Context) (int64, string, error) {
	obj, err := a.backend.Load(ctx, a.counterLoc, "")
	if err != nil {
		return 0, "", errors.Backend(err, "RangeAllocator", "readCounter", "counter load")
	}
	if obj == nil {
		return 0, "", nil
	}
	defer obj.Close()

	body, err := io.ReadAll(obj.Reader)
	if err != nil {
		return 0, "", errors.Backend(err, "RangeAllocator", "readCounter", "counter read")
	}

	text := string(bytes.TrimSpace(body))
	if text == "" {
		return 0, obj.Metadata.ETag, nil
	}

	current, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, "", errors.WrapInvalid(
			fmt.Errorf("counter blob %q holds %q: %w", a.counterLoc.String(), text, errors.ErrInvalidData),
			"RangeAllocator", "readCounter", "parse counter")
	}
	return current, obj.Metadata.ETag, nil
}
