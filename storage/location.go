package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Location identifies an object as (container, base path, optional id).
// The id is appended to the key when present; an id of zero means
// "no id" since allocated ids are strictly positive.
type Location struct {
	Container string
	BasePath  string
	ID        int64
}

// NewLocation builds a location without an id.
func NewLocation(container, basePath string) Location {
	return Location{Container: container, BasePath: basePath}
}

// WithID returns a copy of the location carrying the given id.
func (l Location) WithID(id int64) Location {
	l.ID = id
	return l
}

// HasID reports whether the location carries an id.
func (l Location) HasID() bool {
	return l.ID > 0
}

// Key returns the backend key for this location. Keys are opaque to the
// backend; the id, when present, is appended as a final path segment.
func (l Location) Key() string {
	if !l.HasID() {
		return l.BasePath
	}
	return l.BasePath + "/" + strconv.FormatInt(l.ID, 10)
}

// String renders the location for logs and error messages.
func (l Location) String() string {
	return fmt.Sprintf("%s/%s", l.Container, l.Key())
}

// ParseKey rebuilds a Location from a stored key. A trailing all-digit
// segment is interpreted as the id, inverting how Key appends allocated
// ids.
func ParseKey(container, key string) Location {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		if id, err := strconv.ParseInt(key[idx+1:], 10, 64); err == nil && id > 0 {
			return Location{Container: container, BasePath: key[:idx], ID: id}
		}
	}
	return Location{Container: container, BasePath: key}
}
