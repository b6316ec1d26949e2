// Package queue provides the dispatch targets for post-save and
// post-delete notifications: a NATS JetStream queue for production and
// an in-memory queue for tests.
package queue

import "context"

// Queue is a destination for notification payloads. Delivery is
// at-least-once; Send returns once the queue has acknowledged the
// message. Implementations must be safe for concurrent use.
type Queue interface {
	Send(ctx context.Context, payload []byte) error
}
