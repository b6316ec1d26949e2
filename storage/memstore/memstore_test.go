package memstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/leo/errors"
	"github.com/c360/leo/storage"
)

func newObject(data string, meta *storage.Metadata) storage.Object {
	if meta == nil {
		meta = storage.NewMetadata()
	}
	return storage.Object{
		Reader:   io.NopCloser(bytes.NewReader([]byte(data))),
		Metadata: meta,
	}
}

func readBody(t *testing.T, obj *storage.Object) string {
	t.Helper()
	require.NotNil(t, obj)
	defer obj.Close()
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, err)
	return string(data)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "reports/q3")

	meta := storage.NewMetadata()
	meta.Set("owner", "finance")

	saved, err := s.Save(ctx, loc, newObject("hello world", meta))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ETag)
	assert.NotEmpty(t, saved.SnapshotID)

	length, ok := saved.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(11), length)

	obj, err := s.Load(ctx, loc, "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", readBody(t, obj))

	owner, ok := obj.Metadata.Get("owner")
	require.True(t, ok)
	assert.Equal(t, "finance", owner)
	assert.Equal(t, saved.ETag, obj.Metadata.ETag)
}

func TestStore_LoadAbsentReturnsNil(t *testing.T) {
	s := New()
	ctx := context.Background()

	obj, err := s.Load(ctx, storage.NewLocation("docs", "missing"), "")
	require.NoError(t, err)
	assert.Nil(t, obj)

	meta, err := s.GetMetadata(ctx, storage.NewLocation("docs", "missing"), "")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestStore_EveryWriteChangesETag(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "counter")

	first, err := s.Save(ctx, loc, newObject("1", nil))
	require.NoError(t, err)
	second, err := s.Save(ctx, loc, newObject("2", nil))
	require.NoError(t, err)

	assert.NotEqual(t, first.ETag, second.ETag)
	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
}

func TestStore_OptimisticWrite_CreateIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "unique")

	meta, ok, err := s.TryOptimisticWrite(ctx, loc, newObject("first", nil))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, meta.ETag)

	// No etag against an existing object loses the race.
	_, ok, err = s.TryOptimisticWrite(ctx, loc, newObject("second", nil))
	require.NoError(t, err)
	assert.False(t, ok)

	obj, err := s.Load(ctx, loc, "")
	require.NoError(t, err)
	assert.Equal(t, "first", readBody(t, obj))
}

func TestStore_OptimisticWrite_ETagRace(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "contended")

	saved, err := s.Save(ctx, loc, newObject("base", nil))
	require.NoError(t, err)

	// Two writers with the same etag: first wins, second loses.
	winMeta := storage.NewMetadata()
	winMeta.ETag = saved.ETag
	updated, ok, err := s.TryOptimisticWrite(ctx, loc, storage.Object{
		Reader:   io.NopCloser(bytes.NewReader([]byte("winner"))),
		Metadata: winMeta,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, saved.ETag, updated.ETag)

	loseMeta := storage.NewMetadata()
	loseMeta.ETag = saved.ETag
	_, ok, err = s.TryOptimisticWrite(ctx, loc, storage.Object{
		Reader:   io.NopCloser(bytes.NewReader([]byte("loser"))),
		Metadata: loseMeta,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	obj, err := s.Load(ctx, loc, "")
	require.NoError(t, err)
	assert.Equal(t, "winner", readBody(t, obj))
}

func TestStore_SoftDeletePreservesSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "audited")

	saved, err := s.Save(ctx, loc, newObject("A", nil))
	require.NoError(t, err)
	snapID := saved.SnapshotID

	require.NoError(t, s.SoftDelete(ctx, loc))

	// The backend surfaces the tombstoned object; filtering is the
	// secure store's job.
	obj, err := s.Load(ctx, loc, "")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.True(t, obj.Metadata.IsDeleted())
	obj.Close()

	// Snapshot content is untouched.
	snap, err := s.Load(ctx, loc, snapID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.False(t, snap.Metadata.IsDeleted())
	assert.Equal(t, "A", readBody(t, snap))
}

func TestStore_PermanentDeleteRemovesSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "purged")

	saved, err := s.Save(ctx, loc, newObject("gone", nil))
	require.NoError(t, err)

	require.NoError(t, s.PermanentDelete(ctx, loc))

	obj, err := s.Load(ctx, loc, "")
	require.NoError(t, err)
	assert.Nil(t, obj)

	snap, err := s.Load(ctx, loc, saved.SnapshotID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	snaps, err := storage.Collect(s.FindSnapshots(ctx, loc))
	require.NoError(t, err)
	assert.Empty(t, snaps)

	// Deleting again is a no-op.
	require.NoError(t, s.PermanentDelete(ctx, loc))
}

func TestStore_FindSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "versioned")

	var want []string
	for _, body := range []string{"v1", "v2", "v3"} {
		saved, err := s.Save(ctx, loc, newObject(body, nil))
		require.NoError(t, err)
		want = append(want, saved.SnapshotID)
	}

	snaps, err := storage.Collect(s.FindSnapshots(ctx, loc))
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	var got []string
	for _, snap := range snaps {
		got = append(got, snap.ID)
	}
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func TestStore_FindFiles(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Save(ctx, storage.NewLocation("c", "inbox/a"), newObject("1", nil))
	require.NoError(t, err)
	_, err = s.Save(ctx, storage.NewLocation("c", "inbox/b").WithID(7), newObject("2", nil))
	require.NoError(t, err)
	_, err = s.Save(ctx, storage.NewLocation("c", "outbox/c"), newObject("3", nil))
	require.NoError(t, err)

	entries, err := storage.Collect(s.FindFiles(ctx, "c", "inbox/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := make(map[string]storage.Location)
	for _, e := range entries {
		byPath[e.Location.BasePath] = e.Location
	}
	assert.Contains(t, byPath, "inbox/a")
	require.Contains(t, byPath, "inbox/b")
	assert.Equal(t, int64(7), byPath["inbox/b"].ID, "trailing numeric segment parses as id")

	all, err := storage.Collect(s.FindFiles(ctx, "c", ""))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_LockExcludesSecondHolderAndWriters(t *testing.T) {
	s := New()
	ctx := context.Background()
	loc := storage.NewLocation("docs", "guarded")

	l1, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	require.NotNil(t, l1)
	assert.NotEmpty(t, l1.Token())

	// Second lock fails fast with a nil handle.
	l2, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	assert.Nil(t, l2)

	// Writers observe the lease.
	_, err = s.Save(ctx, loc, newObject("blocked", nil))
	assert.True(t, errors.IsLocked(err))

	_, _, err = s.TryOptimisticWrite(ctx, loc, newObject("blocked", nil))
	assert.True(t, errors.IsLocked(err))

	require.NoError(t, l1.Release(ctx))
	require.NoError(t, l1.Release(ctx), "release is idempotent")

	// After release the next lock and the next write succeed.
	l3, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	require.NotNil(t, l3)
	require.NoError(t, l3.Release(ctx))

	_, err = s.Save(ctx, loc, newObject("unblocked", nil))
	assert.NoError(t, err)
}

func TestStore_ExpiredLeaseIsReclaimable(t *testing.T) {
	current := time.Now()
	s := New(WithLeaseTTL(time.Second), withClock(func() time.Time { return current }))
	ctx := context.Background()
	loc := storage.NewLocation("docs", "expiring")

	l1, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	require.NotNil(t, l1)

	current = current.Add(2 * time.Second)

	l2, err := s.Lock(ctx, loc)
	require.NoError(t, err)
	assert.NotNil(t, l2, "expired lease must be reclaimable")

	_, err = s.Save(ctx, loc, newObject("held by l2", nil))
	assert.True(t, errors.IsLocked(err))
}

func TestStore_DeleteContainer(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateContainer(ctx, "tmp"))
	require.NoError(t, s.CreateContainer(ctx, "tmp"), "create is idempotent")

	_, err := s.Save(ctx, storage.NewLocation("tmp", "x"), newObject("1", nil))
	require.NoError(t, err)

	require.NoError(t, s.DeleteContainer(ctx, "tmp"))

	obj, err := s.Load(ctx, storage.NewLocation("tmp", "x"), "")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestStore_SaveHonorsCancellation(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, storage.NewLocation("docs", "never"), newObject("data", nil))
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}
