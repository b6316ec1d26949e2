package securestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pkg/worker"
	"github.com/c360/leo/queue"
	"github.com/c360/leo/storage"
)

// bulkWorkers bounds the concurrent enqueues during bulk operations.
const bulkWorkers = 8

// bulkDrainTimeout bounds how long a bulk operation waits for in-flight
// enqueues after the listing is exhausted.
const bulkDrainTimeout = 30 * time.Second

// ReindexAll walks every object in the container under prefix and
// enqueues one index notification per entry. Enqueues run concurrently;
// every entry is attempted before any failure is surfaced.
//
// Tombstoned entries are not filtered out: a re-index can enqueue
// tombstones, and the index consumer must tolerate them.
func (s *Store) ReindexAll(ctx context.Context, container, prefix string) error {
	if s.indexQueue == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "ReindexAll", "index queue")
	}
	return s.bulkDispatch(ctx, container, prefix, s.indexQueue, "ReindexAll")
}

// BackupAll is ReindexAll for the backup queue.
func (s *Store) BackupAll(ctx context.Context, container, prefix string) error {
	if s.backupQueue == nil {
		return errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "BackupAll", "backup queue")
	}
	return s.bulkDispatch(ctx, container, prefix, s.backupQueue, "BackupAll")
}

func (s *Store) bulkDispatch(ctx context.Context, container, prefix string, target queue.Queue, operation string) error {
	pool := worker.NewPool(bulkWorkers, 4*bulkWorkers, func(ctx context.Context, entry storage.LocationWithMetadata) error {
		payload, err := json.Marshal(newNotification(entry.Location, entry.Metadata))
		if err != nil {
			return errors.WrapInvalid(err, "SecureStore", operation, "marshal notification")
		}
		if err := target.Send(ctx, payload); err != nil {
			return errors.Wrap(err, "SecureStore", operation, "enqueue "+entry.Location.String())
		}
		return nil
	})
	if err := pool.Start(ctx); err != nil {
		return err
	}

	files := s.backend.FindFiles(ctx, container, prefix)
	defer files.Close()

	count := 0
	var submitErr error
	for files.Next() {
		if err := pool.Submit(ctx, files.Value()); err != nil {
			submitErr = err
			break
		}
		count++
	}

	drainErr := pool.Drain(bulkDrainTimeout)

	s.logger.Debug("bulk dispatch finished",
		"operation", operation,
		"container", container,
		"prefix", prefix,
		"entries", count)

	return errors.Join(files.Err(), submitErr, drainErr)
}
