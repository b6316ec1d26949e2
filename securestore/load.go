package securestore

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pipeline"
	"github.com/c360/leo/storage"
)

// LoadData reads the object at loc, inverting the transforms its
// metadata declares. snapshotID selects a point-in-time version; the
// empty string selects the current object.
//
// Returns (nil, nil) when the object is absent or tombstoned. Snapshot
// loads ignore the tombstone. The caller owns the returned object and
// must Close it to release the backend handle.
func (s *Store) LoadData(ctx context.Context, loc storage.Location, snapshotID string) (*storage.Object, error) {
	start := time.Now()

	obj, err := s.backend.Load(ctx, loc, snapshotID)
	if err != nil {
		return nil, s.wrapBackendErr(err, "LoadData", loc)
	}
	if obj == nil {
		return nil, nil
	}

	// Tombstoned objects read as absent; snapshots predate the
	// tombstone and stay loadable.
	if snapshotID == "" && obj.Metadata.IsDeleted() {
		obj.Close()
		return nil, nil
	}

	decoders, err := s.decodersFor(obj.Metadata)
	if err != nil {
		obj.Close()
		return nil, err
	}

	if len(decoders) > 0 {
		reader, err := pipeline.NewReader(ctx, obj.Reader, decoders...)
		if err != nil {
			obj.Close()
			return nil, errors.Wrap(err, "SecureStore", "LoadData", "pipeline")
		}
		obj = &storage.Object{Reader: reader, Metadata: obj.Metadata}
	}

	s.metricsLoad(time.Since(start))
	return obj, nil
}

// LoadMetadata reads metadata without the payload. Tombstoned objects
// read as absent unless a snapshot is addressed.
func (s *Store) LoadMetadata(ctx context.Context, loc storage.Location, snapshotID string) (*storage.Metadata, error) {
	meta, err := s.backend.GetMetadata(ctx, loc, snapshotID)
	if err != nil {
		return nil, s.wrapBackendErr(err, "LoadMetadata", loc)
	}
	if meta == nil {
		return nil, nil
	}
	if snapshotID == "" && meta.IsDeleted() {
		return nil, nil
	}
	return meta, nil
}

// decodersFor resolves the read-side codec chain declared by the
// metadata, outermost layer first: decrypt, then decompress. A declared
// algorithm with no registered codec is a hard failure.
func (s *Store) decodersFor(meta *storage.Metadata) ([]pipeline.Codec, error) {
	var decoders []pipeline.Codec

	if algorithm, ok := meta.Encryption(); ok {
		codec, found := s.decoders[algorithm]
		if !found {
			return nil, errors.WrapInvalid(
				fmt.Errorf("no decryptor for algorithm %q: %w", algorithm, errors.ErrInvariantViolation),
				"SecureStore", "LoadData", "encryption metadata")
		}
		decoders = append(decoders, codec)
	}

	if algorithm, ok := meta.Compression(); ok {
		codec, found := s.decoders[algorithm]
		if !found {
			return nil, errors.WrapInvalid(
				fmt.Errorf("no decompressor for algorithm %q: %w", algorithm, errors.ErrInvariantViolation),
				"SecureStore", "LoadData", "compression metadata")
		}
		decoders = append(decoders, codec)
	}

	return decoders, nil
}
