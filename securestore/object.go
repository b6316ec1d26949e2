package securestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/storage"
)

// TypeNameOf derives a fully-qualified logical type name from a Go
// value: import path plus type name. Applications may pass their own
// names instead; the store compares them by equality only.
func TypeNameOf(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// SaveObject serializes value as UTF-8 JSON, stamps the type name into
// the metadata, and delegates to SaveData with the given options.
func SaveObject[T any](ctx context.Context, s *Store, loc storage.Location, value T, typeName string, meta *storage.Metadata, opts Options) (storage.Location, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return loc, errors.WrapInvalid(err, "SecureStore", "SaveObject", "marshal")
	}

	meta = meta.Clone()
	meta.SetTypeName(typeName)

	return s.SaveData(ctx, loc, bytes.NewReader(payload), meta, opts)
}

// LoadObject reads the object at loc, verifies its stored type name
// against typeName, and deserializes the JSON payload. Returns
// (nil, nil, nil) when the object is absent or tombstoned; a type
// mismatch is an invariant violation.
func LoadObject[T any](ctx context.Context, s *Store, loc storage.Location, typeName string) (*T, *storage.Metadata, error) {
	obj, err := s.LoadData(ctx, loc, "")
	if err != nil {
		return nil, nil, err
	}
	if obj == nil {
		return nil, nil, nil
	}
	defer obj.Close()

	stored, _ := obj.Metadata.TypeName()
	if stored != typeName {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("stored type %q, expected %q: %w", stored, typeName, errors.ErrInvariantViolation),
			"SecureStore", "LoadObject", "type check")
	}

	payload, err := io.ReadAll(obj.Reader)
	if err != nil {
		return nil, nil, errors.Backend(err, "SecureStore", "LoadObject", "read payload")
	}

	value := new(T)
	if err := json.Unmarshal(payload, value); err != nil {
		return nil, nil, errors.WrapInvalid(err, "SecureStore", "LoadObject", "unmarshal")
	}
	return value, obj.Metadata, nil
}
