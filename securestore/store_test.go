package securestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/pipeline"
	"github.com/c360/leo/queue"
	"github.com/c360/leo/storage"
	"github.com/c360/leo/storage/memstore"
)

func newTestIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	return identity
}

// testStore builds a fully-equipped store over a fresh memstore.
func testStore(t *testing.T, opts ...Option) (*Store, *memstore.Store, *queue.MemoryQueue, *queue.MemoryQueue) {
	t.Helper()

	backend := memstore.New()
	backup := queue.NewMemoryQueue()
	index := queue.NewMemoryQueue()

	counterLoc := storage.NewLocation("system", "ids/counter")
	allOpts := append([]Option{
		WithCompressor(pipeline.NewZstdCodec()),
		WithEncryptor(pipeline.NewAgeCodec(newTestIdentity(t))),
		WithIDGenerator(NewRangeAllocator(backend, counterLoc)),
		WithBackupQueue(backup),
		WithIndexQueue(index),
	}, opts...)

	s, err := New(backend, allOpts...)
	require.NoError(t, err)
	return s, backend, backup, index
}

func loadBytes(t *testing.T, s *Store, loc storage.Location, snapshotID string) ([]byte, *storage.Metadata) {
	t.Helper()
	obj, err := s.LoadData(context.Background(), loc, snapshotID)
	require.NoError(t, err)
	if obj == nil {
		return nil, nil
	}
	defer obj.Close()
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, err)
	return data, obj.Metadata
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestSaveData_CompressedEncryptedRoundTrip(t *testing.T) {
	s, backend, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "payloads/random")

	payload := randomBytes(t, 1<<20)

	meta := storage.NewMetadata()
	meta.Set("origin", "sensor-17")

	_, err := s.SaveData(ctx, loc, bytes.NewReader(payload), meta, OptCompress|OptEncrypt)
	require.NoError(t, err)

	// Stored metadata declares both transforms.
	rawMeta, err := backend.GetMetadata(ctx, loc, "")
	require.NoError(t, err)
	algo, ok := rawMeta.Compression()
	require.True(t, ok)
	assert.Equal(t, "zstd", algo)
	algo, ok = rawMeta.Encryption()
	require.True(t, ok)
	assert.Equal(t, "age-x25519", algo)

	origin, ok := rawMeta.Get("origin")
	require.True(t, ok)
	assert.Equal(t, "sensor-17", origin)

	// The backend holds transformed bytes, not the input.
	rawObj, err := backend.Load(ctx, loc, "")
	require.NoError(t, err)
	rawBytes, err := io.ReadAll(rawObj.Reader)
	require.NoError(t, err)
	rawObj.Close()
	assert.NotEqual(t, payload, rawBytes)

	// Reading through the store restores the exact input.
	decoded, decodedMeta := loadBytes(t, s, loc, "")
	assert.Equal(t, payload, decoded)
	origin, _ = decodedMeta.Get("origin")
	assert.Equal(t, "sensor-17", origin)
}

func TestSaveData_PlainPassthrough(t *testing.T) {
	s, backend, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "plain")

	payload := []byte("uncompressed and unencrypted")
	_, err := s.SaveData(ctx, loc, bytes.NewReader(payload), nil, OptNone)
	require.NoError(t, err)

	rawObj, err := backend.Load(ctx, loc, "")
	require.NoError(t, err)
	rawBytes, err := io.ReadAll(rawObj.Reader)
	require.NoError(t, err)
	rawObj.Close()
	assert.Equal(t, payload, rawBytes, "no options means bytes land verbatim")

	decoded, _ := loadBytes(t, s, loc, "")
	assert.Equal(t, payload, decoded)
}

func TestSaveData_StripsStaleReservedKeys(t *testing.T) {
	s, backend, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "restamped")

	// First write with both transforms.
	_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("v1")), nil, OptCompress|OptEncrypt)
	require.NoError(t, err)

	// Second write with options cleared, even recycling the previous
	// metadata: the reserved keys must not survive.
	prevMeta, err := backend.GetMetadata(ctx, loc, "")
	require.NoError(t, err)

	_, err = s.SaveData(ctx, loc, bytes.NewReader([]byte("v2")), prevMeta, OptNone)
	require.NoError(t, err)

	storedMeta, err := backend.GetMetadata(ctx, loc, "")
	require.NoError(t, err)
	_, hasCompression := storedMeta.Compression()
	_, hasEncryption := storedMeta.Encryption()
	assert.False(t, hasCompression)
	assert.False(t, hasEncryption)

	decoded, _ := loadBytes(t, s, loc, "")
	assert.Equal(t, []byte("v2"), decoded)
}

func TestSaveData_GeneratesID(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx := context.Background()

	loc, err := s.SaveData(ctx, storage.NewLocation("vault", "docs"), bytes.NewReader([]byte("a")), nil, OptGenerateID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loc.ID)

	loc, err = s.SaveData(ctx, storage.NewLocation("vault", "docs"), bytes.NewReader([]byte("b")), nil, OptGenerateID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loc.ID)

	// An explicit id short-circuits allocation.
	loc, err = s.SaveData(ctx, storage.NewLocation("vault", "docs").WithID(99), bytes.NewReader([]byte("c")), nil, OptGenerateID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), loc.ID)
}

func TestSaveData_NotificationWireFormat(t *testing.T) {
	s, _, backup, index := testStore(t)
	ctx := context.Background()

	meta := storage.NewMetadata()
	meta.Set("kind", "invoice")

	loc, err := s.SaveData(ctx, storage.NewLocation("billing", "invoices"),
		bytes.NewReader([]byte("x")), meta, OptGenerateID|OptBackup|OptIndex)
	require.NoError(t, err)

	require.Equal(t, 1, backup.Len())
	require.Equal(t, 1, index.Len())
	assert.Equal(t, backup.Messages()[0], index.Messages()[0], "both queues get the same payload")

	var n Notification
	require.NoError(t, json.Unmarshal(backup.Messages()[0], &n))
	assert.Equal(t, "billing", n.Container)
	assert.Equal(t, "invoices", n.BasePath)
	require.NotNil(t, n.ID)
	assert.Equal(t, loc.ID, *n.ID)
	assert.Equal(t, "invoice", n.Metadata["kind"])

	// Exact field names are the wire contract.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(backup.Messages()[0], &raw))
	for _, field := range []string{"Container", "BasePath", "Id", "Metadata"} {
		assert.Contains(t, raw, field)
	}
}

func TestSaveData_NoIDMarshalsNull(t *testing.T) {
	s, _, backup, _ := testStore(t)
	ctx := context.Background()

	_, err := s.SaveData(ctx, storage.NewLocation("billing", "summary"),
		bytes.NewReader([]byte("x")), nil, OptBackup)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(backup.Messages()[0], &raw))
	assert.Equal(t, "null", string(raw["Id"]))
}

func TestSaveData_QueueFailureSurfaces(t *testing.T) {
	s, backend, backup, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "notified")

	sendErr := errors.New("broker unavailable")
	backup.FailWith(sendErr)

	_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("durable")), nil, OptBackup)
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)

	// The payload is already durable; only the notification failed.
	rawObj, err := backend.Load(ctx, loc, "")
	require.NoError(t, err)
	require.NotNil(t, rawObj)
	rawObj.Close()
}

func TestSaveData_MissingCollaborators(t *testing.T) {
	backend := memstore.New()
	bare, err := New(backend)
	require.NoError(t, err)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "x")

	tests := []struct {
		name string
		opts Options
	}{
		{"compressor", OptCompress},
		{"encryptor", OptEncrypt},
		{"id generator", OptGenerateID},
		{"backup queue", OptBackup},
		{"index queue", OptIndex},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := bare.SaveData(ctx, loc, bytes.NewReader([]byte("x")), nil, test.opts)
			require.Error(t, err)
			assert.True(t, errors.IsNotConfigured(err))
		})
	}
}

func TestSaveDataWithETag_ConflictIsValueNotError(t *testing.T) {
	s, _, backup, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "contended")

	// First write: create-if-absent.
	_, ok, err := s.SaveDataWithETag(ctx, loc, bytes.NewReader([]byte("base")), nil, OptNone)
	require.NoError(t, err)
	require.True(t, ok)

	baseMeta, err := s.LoadMetadata(ctx, loc, "")
	require.NoError(t, err)

	// Two writers race on the same etag.
	winMeta := storage.NewMetadata()
	winMeta.ETag = baseMeta.ETag
	_, ok, err = s.SaveDataWithETag(ctx, loc, bytes.NewReader([]byte("first")), winMeta, OptBackup)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, backup.Len())

	loseMeta := storage.NewMetadata()
	loseMeta.ETag = baseMeta.ETag
	_, ok, err = s.SaveDataWithETag(ctx, loc, bytes.NewReader([]byte("second")), loseMeta, OptBackup)
	require.NoError(t, err, "conflict is a value, not an error")
	assert.False(t, ok)
	assert.Equal(t, 1, backup.Len(), "loser sends no notification")

	data, _ := loadBytes(t, s, loc, "")
	assert.Equal(t, []byte("first"), data)
}

func TestSaveDataWithETag_NoETagOnExistingLoses(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "existing")

	_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("v1")), nil, OptNone)
	require.NoError(t, err)

	_, ok, err := s.SaveDataWithETag(ctx, loc, bytes.NewReader([]byte("v2")), nil, OptNone)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_SoftPreservesSnapshots(t *testing.T) {
	s, _, backup, index := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "audited")

	_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("A")), nil, OptNone)
	require.NoError(t, err)
	meta, err := s.LoadMetadata(ctx, loc, "")
	require.NoError(t, err)
	snapID := meta.SnapshotID

	require.NoError(t, s.Delete(ctx, loc, OptKeepDeletes|OptBackup|OptIndex))

	// Current object reads as absent...
	data, _ := loadBytes(t, s, loc, "")
	assert.Nil(t, data)
	gone, err := s.LoadMetadata(ctx, loc, "")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// ...but the pre-existing snapshot still loads.
	snapData, _ := loadBytes(t, s, loc, snapID)
	assert.Equal(t, []byte("A"), snapData)

	// Delete notified both queues.
	assert.Equal(t, 1, backup.Len())
	assert.Equal(t, 1, index.Len())
}

func TestDelete_PermanentRemovesSnapshots(t *testing.T) {
	s, backend, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "purged")

	_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("A")), nil, OptNone)
	require.NoError(t, err)
	meta, err := s.LoadMetadata(ctx, loc, "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, loc, OptNone))

	data, _ := loadBytes(t, s, loc, "")
	assert.Nil(t, data)
	snapData, _ := loadBytes(t, s, loc, meta.SnapshotID)
	assert.Nil(t, snapData)

	snaps, err := storage.Collect(backend.FindSnapshots(ctx, loc))
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	s, _, backup, index := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, storage.NewLocation("vault", "never-existed"), OptBackup|OptIndex))
	assert.Equal(t, 0, backup.Len())
	assert.Equal(t, 0, index.Len())
}

func TestLock_ExcludesWriters(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("vault", "guarded")

	lease, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	require.NotNil(t, lease)

	// A second lock fails fast with a nil handle.
	second, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	assert.Nil(t, second)

	// Writers without the lease fail with Locked.
	_, err = s.SaveData(ctx, loc, bytes.NewReader([]byte("x")), nil, OptNone)
	require.Error(t, err)
	assert.True(t, errors.IsLocked(err))

	require.NoError(t, lease.Release(ctx))

	_, err = s.SaveData(ctx, loc, bytes.NewReader([]byte("x")), nil, OptNone)
	assert.NoError(t, err)
}

func TestLoadData_MissingDecoderIsInvariantViolation(t *testing.T) {
	backend := memstore.New()
	ctx := context.Background()
	loc := storage.NewLocation("vault", "opaque")

	writer, err := New(backend,
		WithCompressor(pipeline.NewGzipCodec()),
		WithEncryptor(pipeline.NewAgeCodec(newTestIdentity(t))),
	)
	require.NoError(t, err)

	_, err = writer.SaveData(ctx, loc, bytes.NewReader([]byte("secret")), nil, OptCompress|OptEncrypt)
	require.NoError(t, err)

	// A reader with no codecs cannot satisfy the declared algorithms.
	reader, err := New(backend)
	require.NoError(t, err)

	_, err = reader.LoadData(ctx, loc, "")
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))

	// A reader with only the compressor still misses the decryptor.
	partial, err := New(backend, WithCompressor(pipeline.NewGzipCodec()))
	require.NoError(t, err)

	_, err = partial.LoadData(ctx, loc, "")
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))
}

func TestLoadData_AbsentReturnsNil(t *testing.T) {
	s, _, _, _ := testStore(t)

	obj, err := s.LoadData(context.Background(), storage.NewLocation("vault", "missing"), "")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

type invoiceDoc struct {
	Number string  `json:"number"`
	Amount float64 `json:"amount"`
}

func TestTypedObject_RoundTrip(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("billing", "invoices/2026-001")

	in := invoiceDoc{Number: "2026-001", Amount: 1234.56}
	typeName := TypeNameOf(in)

	_, err := SaveObject(ctx, s, loc, in, typeName, nil, OptCompress|OptEncrypt)
	require.NoError(t, err)

	out, meta, err := LoadObject[invoiceDoc](ctx, s, loc, typeName)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in, *out)

	stored, ok := meta.TypeName()
	require.True(t, ok)
	assert.Equal(t, typeName, stored)
}

func TestTypedObject_TypeMismatch(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx := context.Background()
	loc := storage.NewLocation("billing", "mistyped")

	_, err := SaveObject(ctx, s, loc, invoiceDoc{Number: "x"}, "billing.Invoice", nil, OptNone)
	require.NoError(t, err)

	_, _, err = LoadObject[invoiceDoc](ctx, s, loc, "billing.CreditNote")
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))
}

func TestTypedObject_AbsentReturnsNil(t *testing.T) {
	s, _, _, _ := testStore(t)

	out, meta, err := LoadObject[invoiceDoc](context.Background(), s, storage.NewLocation("billing", "none"), "billing.Invoice")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, meta)
}

func TestTypeNameOf(t *testing.T) {
	name := TypeNameOf(invoiceDoc{})
	assert.Equal(t, "github.com/c360/leo/securestore.invoiceDoc", name)
	assert.Equal(t, name, TypeNameOf(&invoiceDoc{}), "pointers resolve to the element type")
}

func TestSaveData_CancelledContext(t *testing.T) {
	s, _, _, _ := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveData(ctx, storage.NewLocation("vault", "never"), bytes.NewReader([]byte("x")), nil, OptCompress)
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}
