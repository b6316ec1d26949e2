package securestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/storage"
	"github.com/c360/leo/storage/memstore"
)

func TestReindexAll_OneMessagePerMatchingFile(t *testing.T) {
	s, _, _, index := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		loc := storage.NewLocation("corpus", fmt.Sprintf("articles/%c", 'a'+i))
		_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("body")), nil, OptNone)
		require.NoError(t, err)
	}
	_, err := s.SaveData(ctx, storage.NewLocation("corpus", "drafts/x"), bytes.NewReader([]byte("draft")), nil, OptNone)
	require.NoError(t, err)

	require.NoError(t, s.ReindexAll(ctx, "corpus", "articles/"))
	assert.Equal(t, 5, index.Len())

	paths := make(map[string]bool)
	for _, msg := range index.Messages() {
		var n Notification
		require.NoError(t, json.Unmarshal(msg, &n))
		assert.Equal(t, "corpus", n.Container)
		paths[n.BasePath] = true
	}
	assert.Len(t, paths, 5, "exactly one message per matching file")
}

func TestReindexAll_IncludesTombstones(t *testing.T) {
	s, _, _, index := testStore(t)
	ctx := context.Background()

	liveLoc := storage.NewLocation("corpus", "docs/live")
	deadLoc := storage.NewLocation("corpus", "docs/dead")
	_, err := s.SaveData(ctx, liveLoc, bytes.NewReader([]byte("live")), nil, OptNone)
	require.NoError(t, err)
	_, err = s.SaveData(ctx, deadLoc, bytes.NewReader([]byte("dead")), nil, OptNone)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, deadLoc, OptKeepDeletes))

	require.NoError(t, s.ReindexAll(ctx, "corpus", "docs/"))

	// Tombstoned entries are enqueued too; the consumer tolerates them.
	assert.Equal(t, 2, index.Len())
	tombstoned := 0
	for _, msg := range index.Messages() {
		var n Notification
		require.NoError(t, json.Unmarshal(msg, &n))
		if _, ok := n.Metadata[storage.KeyDeleted]; ok {
			tombstoned++
		}
	}
	assert.Equal(t, 1, tombstoned)
}

func TestBackupAll(t *testing.T) {
	s, _, backup, _ := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		loc := storage.NewLocation("corpus", fmt.Sprintf("keep/%d-doc", i+1))
		_, err := s.SaveData(ctx, loc, bytes.NewReader([]byte("x")), nil, OptNone)
		require.NoError(t, err)
	}

	require.NoError(t, s.BackupAll(ctx, "corpus", ""))
	assert.Equal(t, 3, backup.Len())
}

// tallyQueue counts sends and fails a chosen subset.
type tallyQueue struct {
	mu       sync.Mutex
	attempts int
	failWhen func(payload []byte) bool
}

func (q *tallyQueue) Send(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.failWhen != nil && q.failWhen(payload) {
		return fmt.Errorf("refused payload")
	}
	return nil
}

func TestReindexAll_AttemptsEverythingBeforeFailing(t *testing.T) {
	backend := newSeededBackend(t, "corpus", "files/", 10)

	failing := &tallyQueue{failWhen: func(payload []byte) bool {
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return true
		}
		return n.BasePath == "files/3-doc"
	}}

	s, err := New(backend, WithIndexQueue(failing))
	require.NoError(t, err)

	err = s.ReindexAll(context.Background(), "corpus", "files/")
	require.Error(t, err, "the one refused payload surfaces")
	assert.Equal(t, 10, failing.attempts, "every entry is attempted before failure is reported")
}

func TestReindexAll_RequiresIndexQueue(t *testing.T) {
	s, err := New(newSeededBackend(t, "corpus", "files/", 1))
	require.NoError(t, err)

	err = s.ReindexAll(context.Background(), "corpus", "")
	require.Error(t, err)
	assert.True(t, errors.IsNotConfigured(err))

	err = s.BackupAll(context.Background(), "corpus", "")
	require.Error(t, err)
	assert.True(t, errors.IsNotConfigured(err))
}

// newSeededBackend fills a memstore with n objects under prefix.
func newSeededBackend(t *testing.T, container, prefix string, n int) storage.Backend {
	t.Helper()

	mem := memstore.New()
	for i := 0; i < n; i++ {
		loc := storage.NewLocation(container, fmt.Sprintf("%s%d-doc", prefix, i+1))
		_, err := mem.Save(context.Background(), loc, storage.Object{
			Reader:   io.NopCloser(strings.NewReader("payload")),
			Metadata: storage.NewMetadata(),
		})
		require.NoError(t, err)
	}
	return mem
}
