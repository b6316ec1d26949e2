package queue

import (
	"context"
	"sync"
)

// MemoryQueue captures sent payloads for tests. Optionally fails every
// send with a fixed error to exercise dispatch failure paths.
type MemoryQueue struct {
	mu       sync.Mutex
	messages [][]byte
	failWith error
}

// NewMemoryQueue returns an empty capturing queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// FailWith makes every subsequent Send return err. Pass nil to restore
// normal behavior.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failWith = err
}

// Send implements Queue.
func (q *MemoryQueue) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.failWith != nil {
		return q.failWith
	}

	msg := make([]byte, len(payload))
	copy(msg, payload)
	q.messages = append(q.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (q *MemoryQueue) Messages() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, len(q.messages))
	for i, msg := range q.messages {
		out[i] = append([]byte(nil), msg...)
	}
	return out
}

// Len returns the number of captured messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
