package storage

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Reserved metadata keys. These are stable wire constants: backends
// persist them as opaque strings and the secure store keys its
// invariants off them.
const (
	// KeyCompression names the compression algorithm applied to the
	// payload bytes. Present iff the payload is compressed.
	KeyCompression = "compression"

	// KeyEncryption names the encryption algorithm applied to the
	// payload bytes. Present iff the payload is encrypted.
	KeyEncryption = "encryption"

	// KeyType carries the fully-qualified logical type name for typed
	// object payloads.
	KeyType = "type"

	// KeyContentLength, KeyModified, and KeySize are backend-populated
	// and read-only from the store's point of view.
	KeyContentLength = "content-length"
	KeyModified      = "modified"
	KeySize          = "size"

	// KeyDeleted is the tombstone marker. Its value is the deletion
	// timestamp; load operations treat an object carrying it as
	// non-existent, snapshot loads excepted.
	KeyDeleted = "leodeleted"
)

// Metadata is an insertion-ordered string-to-string map with two
// reserved fields exposed first-class: the ETag version token and the
// snapshot id of the write that produced it.
//
// Metadata values are never shared across requests: Clone at every
// entry point. The zero value is not usable; construct with NewMetadata
// or Clone.
type Metadata struct {
	// ETag is the opaque version token returned by the backend on every
	// write. Supplying it on a write requests update-if-unchanged;
	// omitting it requests create-if-absent.
	ETag string

	// SnapshotID is the point-in-time identifier assigned by the backend.
	SnapshotID string

	keys   []string
	values map[string]string
}

// NewMetadata returns an empty metadata map.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Clone returns a deep copy, preserving insertion order, ETag, and
// snapshot id. Clone of nil returns a fresh empty map.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	out.ETag = m.ETag
	out.SnapshotID = m.SnapshotID
	out.keys = append(out.keys, m.keys...)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Get returns the value for key and whether it is present.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores key=value, preserving the key's original position when it
// already exists.
func (m *Metadata) Set(key, value string) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key. Reports whether it was present.
func (m *Metadata) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, exists := m.values[key]; !exists {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Equal reports whether both maps hold the same key and value sets.
// Order, ETag, and snapshot id do not participate in equality.
func (m *Metadata) Equal(other *Metadata) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil || other == nil {
		return true
	}
	for k, v := range m.values {
		ov, ok := other.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Map returns the entries as a plain map. The map is a copy.
func (m *Metadata) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON emits the entries as a JSON object in insertion order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.keys) == 0 {
		return []byte("{}"), nil
	}
	buf := make([]byte, 0, 16*len(m.keys))
	buf = append(buf, '{')
	for i, k := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON replaces the entries with the object's fields. Key order
// follows the document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	// Consume the opening brace, then read keys in document order.
	if _, err := dec.Token(); err != nil {
		return err
	}
	m.keys = m.keys[:0]
	m.values = make(map[string]string, len(raw))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		m.Set(key, value)
	}
	return nil
}

// Typed accessors for the reserved keys.

// Compression returns the compression algorithm tag, if any.
func (m *Metadata) Compression() (string, bool) { return m.Get(KeyCompression) }

// SetCompression marks the payload compressed with the given algorithm.
func (m *Metadata) SetCompression(algorithm string) { m.Set(KeyCompression, algorithm) }

// Encryption returns the encryption algorithm tag, if any.
func (m *Metadata) Encryption() (string, bool) { return m.Get(KeyEncryption) }

// SetEncryption marks the payload encrypted with the given algorithm.
func (m *Metadata) SetEncryption(algorithm string) { m.Set(KeyEncryption, algorithm) }

// TypeName returns the logical type name for typed object payloads.
func (m *Metadata) TypeName() (string, bool) { return m.Get(KeyType) }

// SetTypeName records the logical type name of the payload.
func (m *Metadata) SetTypeName(name string) { m.Set(KeyType, name) }

// ContentLength returns the backend-reported stored byte count.
func (m *Metadata) ContentLength() (int64, bool) {
	v, ok := m.Get(KeyContentLength)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Modified returns the backend-reported last modification time.
func (m *Metadata) Modified() (time.Time, bool) {
	v, ok := m.Get(KeyModified)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsDeleted reports whether the tombstone marker is present.
func (m *Metadata) IsDeleted() bool {
	_, ok := m.Get(KeyDeleted)
	return ok
}

// SetDeleted stamps the tombstone marker with the given time.
func (m *Metadata) SetDeleted(at time.Time) {
	m.Set(KeyDeleted, at.UTC().Format(time.RFC3339Nano))
}

// DeletedAt returns the tombstone timestamp, if present and parseable.
func (m *Metadata) DeletedAt() (time.Time, bool) {
	v, ok := m.Get(KeyDeleted)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
