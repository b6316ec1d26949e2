package storage

import "context"

// Stream is a finite, cancellable iterator over backend results. It is
// backpressured by the consumer's pull rate: the producing goroutine
// blocks until Next is called or the stream is closed.
//
// Usage:
//
//	snaps := backend.FindSnapshots(ctx, loc)
//	defer snaps.Close()
//	for snaps.Next() {
//	    s := snaps.Value()
//	    // process s...
//	}
//	if err := snaps.Err(); err != nil {
//	    // handle error
//	}
type Stream[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	valueChan chan T
	errChan   chan error

	current T
	err     error
	closed  bool
}

// NewStream starts produce in a goroutine and returns the consuming
// stream. produce emits values via emit, which returns the context error
// once the stream is cancelled; produce should stop at that point. An
// error returned by produce is surfaced through Err.
func NewStream[T any](ctx context.Context, produce func(ctx context.Context, emit func(T) error) error) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)

	s := &Stream[T]{
		ctx:       ctx,
		cancel:    cancel,
		valueChan: make(chan T),
		errChan:   make(chan error, 1),
	}

	go func() {
		defer close(s.valueChan)
		defer close(s.errChan)

		emit := func(v T) error {
			select {
			case s.valueChan <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := produce(ctx, emit); err != nil && ctx.Err() == nil {
			s.errChan <- err
		}
	}()

	return s
}

// FailedStream returns a stream that yields no values and reports err.
func FailedStream[T any](ctx context.Context, err error) *Stream[T] {
	return NewStream[T](ctx, func(context.Context, func(T) error) error {
		return err
	})
}

// Next advances to the next value. Returns false when the stream is
// exhausted, cancelled, or failed.
func (s *Stream[T]) Next() bool {
	if s.closed || s.err != nil {
		return false
	}

	select {
	case v, ok := <-s.valueChan:
		if !ok {
			// Producer finished; pick up a trailing error if any.
			if err, pending := <-s.errChan; pending {
				s.err = err
			}
			return false
		}
		s.current = v
		return true

	case err := <-s.errChan:
		if err != nil {
			s.err = err
		}
		return false

	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
}

// Value returns the current element. Only valid after Next returns true.
func (s *Stream[T]) Value() T {
	return s.current
}

// Err returns the error that terminated iteration, if any. Check after
// Next returns false.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close stops iteration and releases the producer. Safe to call more
// than once.
func (s *Stream[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}

// Collect drains the stream into a slice, closing it afterwards.
func Collect[T any](s *Stream[T]) ([]T, error) {
	defer s.Close()

	var out []T
	for s.Next() {
		out = append(out, s.Value())
	}
	return out, s.Err()
}
