package queue

import (
	"context"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/natsclient"
)

// NATSQueue publishes notifications to a JetStream subject and waits
// for the stream acknowledgment, giving at-least-once delivery.
type NATSQueue struct {
	client  *natsclient.Client
	subject string
}

// NewNATSQueue binds a queue to a subject. The subject's stream must
// already exist; queue provisioning is deployment concern, not the
// store's.
func NewNATSQueue(client *natsclient.Client, subject string) (*NATSQueue, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "queue", "NewNATSQueue", "nats client")
	}
	if subject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "queue", "NewNATSQueue", "subject is required")
	}
	return &NATSQueue{client: client, subject: subject}, nil
}

// Send implements Queue.
func (q *NATSQueue) Send(ctx context.Context, payload []byte) error {
	js := q.client.JetStream()
	if js == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "queue", "Send", "nats connection")
	}

	if _, err := js.Publish(ctx, q.subject, payload); err != nil {
		return errors.Backend(err, "queue", "Send", "publish "+q.subject)
	}
	return nil
}
