package securestore

import (
	"context"
	"time"

	"github.com/c360/leo/storage"
)

// Delete removes the object at loc. With OptKeepDeletes the object is
// tombstoned and its snapshots survive; otherwise the object and all
// snapshots are permanently removed. Deleting an absent object is a
// no-op. Backup and index notifications fan out exactly as on save,
// carrying the metadata the object had before deletion.
func (s *Store) Delete(ctx context.Context, loc storage.Location, opts Options) error {
	start := time.Now()

	if err := s.checkQueues(opts, "Delete"); err != nil {
		return err
	}

	meta, err := s.backend.GetMetadata(ctx, loc, "")
	if err != nil {
		return s.wrapBackendErr(err, "Delete", loc)
	}
	if meta == nil {
		return nil
	}

	if opts.Has(OptKeepDeletes) {
		if err := s.backend.SoftDelete(ctx, loc); err != nil {
			return s.wrapBackendErr(err, "Delete", loc)
		}
	} else {
		if err := s.backend.PermanentDelete(ctx, loc); err != nil {
			return s.wrapBackendErr(err, "Delete", loc)
		}
	}

	s.metricsDelete(time.Since(start))
	s.logger.Debug("object deleted",
		"location", loc.String(),
		"soft", opts.Has(OptKeepDeletes))

	return s.dispatch(ctx, loc, meta, opts)
}
