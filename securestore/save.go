package securestore

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pipeline"
	"github.com/c360/leo/storage"
)

// Notification is the canonical queue message emitted after saves and
// deletes. Field names are the wire contract.
type Notification struct {
	Container string            `json:"Container"`
	BasePath  string            `json:"BasePath"`
	ID        *int64            `json:"Id"`
	Metadata  map[string]string `json:"Metadata"`
}

// newNotification builds the message for a location and its metadata.
func newNotification(loc storage.Location, meta *storage.Metadata) Notification {
	n := Notification{
		Container: loc.Container,
		BasePath:  loc.BasePath,
		Metadata:  meta.Map(),
	}
	if loc.HasID() {
		id := loc.ID
		n.ID = &id
	}
	return n
}

// SaveData writes the payload stream to loc, applying the transforms
// and side effects selected by opts. The returned location carries the
// allocated id when OptGenerateID was in effect.
//
// Within one call the pipeline wrap, id allocation, and backend save
// are strictly ordered; the queue notifications run in parallel after
// the backend acknowledges. A queue failure is surfaced even though the
// payload is already durable — the caller retries the notification, not
// the write.
func (s *Store) SaveData(ctx context.Context, loc storage.Location, r io.Reader, meta *storage.Metadata, opts Options) (storage.Location, error) {
	loc, savedMeta, err := s.save(ctx, loc, r, meta, opts, false)
	if err != nil {
		return loc, err
	}
	if err := s.dispatch(ctx, loc, savedMeta, opts); err != nil {
		return loc, err
	}
	return loc, nil
}

// SaveDataWithETag is SaveData with optimistic-concurrency semantics:
// the write succeeds only if the ETag in meta matches the stored one
// (or, with no ETag, only if the object does not exist). Losing the
// race returns ok=false with no error and no notifications.
func (s *Store) SaveDataWithETag(ctx context.Context, loc storage.Location, r io.Reader, meta *storage.Metadata, opts Options) (storage.Location, bool, error) {
	loc, savedMeta, err := s.save(ctx, loc, r, meta, opts, true)
	if err != nil {
		return loc, false, err
	}
	if savedMeta == nil {
		s.metricsConflict()
		return loc, false, nil
	}
	if err := s.dispatch(ctx, loc, savedMeta, opts); err != nil {
		return loc, false, err
	}
	return loc, true, nil
}

// save runs steps 1-5 of the write path. A nil returned metadata with a
// nil error means the optimistic write lost the race.
func (s *Store) save(ctx context.Context, loc storage.Location, r io.Reader, meta *storage.Metadata, opts Options, optimistic bool) (storage.Location, *storage.Metadata, error) {
	start := time.Now()

	if err := s.checkQueues(opts, "SaveData"); err != nil {
		return loc, nil, err
	}

	meta = meta.Clone()

	// Codec selection tags the metadata; disabled options strip stale
	// reserved keys rather than leaving them behind.
	var codecs []pipeline.Codec
	if opts.Has(OptCompress) {
		if s.compressor == nil {
			return loc, nil, errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "SaveData", "compressor")
		}
		meta.SetCompression(s.compressor.Algorithm())
		codecs = append(codecs, s.compressor)
	} else {
		meta.Delete(storage.KeyCompression)
	}

	if opts.Has(OptEncrypt) {
		if s.encryptor == nil {
			return loc, nil, errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "SaveData", "encryptor")
		}
		meta.SetEncryption(s.encryptor.Algorithm())
		codecs = append(codecs, s.encryptor)
	} else {
		meta.Delete(storage.KeyEncryption)
	}

	if opts.Has(OptGenerateID) && !loc.HasID() {
		if s.idgen == nil {
			return loc, nil, errors.WrapFatal(errors.ErrNotConfigured, "SecureStore", "SaveData", "id generator")
		}
		id, err := s.idgen.NextID(ctx)
		if err != nil {
			return loc, nil, err
		}
		loc = loc.WithID(id)
		s.metricsIDAllocated()
	}

	body := s.encodeStream(ctx, r, codecs)
	obj := storage.Object{Reader: body, Metadata: meta}

	var savedMeta *storage.Metadata
	if optimistic {
		m, ok, err := s.backend.TryOptimisticWrite(ctx, loc, obj)
		if err != nil {
			return loc, nil, s.wrapBackendErr(err, "SaveData", loc)
		}
		if !ok {
			s.logger.Debug("optimistic write lost etag race", "location", loc.String())
			return loc, nil, nil
		}
		savedMeta = m
	} else {
		m, err := s.backend.Save(ctx, loc, obj)
		if err != nil {
			return loc, nil, s.wrapBackendErr(err, "SaveData", loc)
		}
		savedMeta = m
	}

	s.metricsSave(time.Since(start))
	s.logger.Debug("object saved",
		"location", loc.String(),
		"options", opts.String(),
		"etag", savedMeta.ETag)

	return loc, savedMeta, nil
}

// encodeStream turns the caller's reader into the byte stream the
// backend persists, layering the write-side codecs through an in-flight
// pipe so nothing is buffered whole.
func (s *Store) encodeStream(ctx context.Context, r io.Reader, codecs []pipeline.Codec) io.ReadCloser {
	if len(codecs) == 0 {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc
		}
		return io.NopCloser(r)
	}

	pr, pw := io.Pipe()
	go func() {
		w, err := pipeline.NewWriter(ctx, pw, codecs...)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		chunk := make([]byte, pipeline.ChunkSize)
		if _, err := io.CopyBuffer(w, r, chunk); err != nil {
			w.Abort()
			pw.CloseWithError(err)
			return
		}
		if err := w.Close(); err != nil {
			pw.CloseWithError(err)
		}
	}()
	return pr
}

// dispatch fans the notification out to the queues selected by opts,
// in parallel, and waits for every acknowledgment.
func (s *Store) dispatch(ctx context.Context, loc storage.Location, meta *storage.Metadata, opts Options) error {
	wantBackup := opts.Has(OptBackup)
	wantIndex := opts.Has(OptIndex)
	if !wantBackup && !wantIndex {
		return nil
	}

	payload, err := json.Marshal(newNotification(loc, meta))
	if err != nil {
		return errors.WrapInvalid(err, "SecureStore", "dispatch", "marshal notification")
	}

	g, gctx := errgroup.WithContext(ctx)
	if wantBackup {
		g.Go(func() error {
			if err := s.backupQueue.Send(gctx, payload); err != nil {
				s.metricsDispatch("backup", false)
				return errors.Wrap(err, "SecureStore", "dispatch", "backup enqueue")
			}
			s.metricsDispatch("backup", true)
			return nil
		})
	}
	if wantIndex {
		g.Go(func() error {
			if err := s.indexQueue.Send(gctx, payload); err != nil {
				s.metricsDispatch("index", false)
				return errors.Wrap(err, "SecureStore", "dispatch", "index enqueue")
			}
			s.metricsDispatch("index", true)
			return nil
		})
	}
	return g.Wait()
}

// wrapBackendErr keeps lease and cancellation kinds recognizable while
// tagging everything else as a backend failure.
func (s *Store) wrapBackendErr(err error, operation string, loc storage.Location) error {
	if errors.IsLocked(err) || errors.IsCancelled(err) || errors.IsBackendFailure(err) {
		return err
	}
	return errors.Backend(err, "SecureStore", operation, loc.String())
}
