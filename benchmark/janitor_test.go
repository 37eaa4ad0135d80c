package benchmark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickshadows/scripts/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorAbortStale(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.stalePending = []backend.PendingUpload{
		{Key: "loadtest/a.bin", UploadID: "old", Initiated: now.Add(-2 * time.Hour)},
		{Key: "loadtest/b.bin", UploadID: "recent", Initiated: now.Add(-time.Minute)},
		{Key: "loadtest-old/c.bin", UploadID: "other-prefix", Initiated: now.Add(-48 * time.Hour)},
	}

	j := NewJanitor(store, JanitorOptions{
		Bucket:    "bench",
		OlderThan: time.Hour,
		Logger:    discardLogger(),
		Now:       func() time.Time { return now },
	})
	res, err := j.AbortStale(context.Background(), "loadtest")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, int32(1), store.aborts.Load())
}

func TestJanitorAbortStaleAll(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		_, err := store.CreateMultipartUpload(context.Background(), "bench", "loadtest/x.bin")
		require.NoError(t, err)
	}

	j := NewJanitor(store, JanitorOptions{Bucket: "bench", Concurrency: 2, Logger: discardLogger()})
	res, err := j.AbortStale(context.Background(), "loadtest/")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Removed)

	left, err := store.ListMultipartUploads(context.Background(), "bench", "")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestJanitorDryRun(t *testing.T) {
	store := newFakeStore()
	store.put("loadtest/a.bin", []byte("a"))
	_, err := store.CreateMultipartUpload(context.Background(), "bench", "loadtest/b.bin")
	require.NoError(t, err)

	j := NewJanitor(store, JanitorOptions{Bucket: "bench", DryRun: true, Logger: discardLogger()})

	res, err := j.Purge(context.Background(), "loadtest")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	_, ok := store.object("loadtest/a.bin")
	assert.True(t, ok)

	_, err = j.AbortStale(context.Background(), "loadtest")
	require.NoError(t, err)
	assert.Zero(t, store.aborts.Load())
}

func TestJanitorPurge(t *testing.T) {
	store := newFakeStore()
	store.put("loadtest/a.bin", []byte("a"))
	store.put("loadtest/b.bin", []byte("bb"))
	store.put("keep/c.bin", []byte("c"))

	j := NewJanitor(store, JanitorOptions{Bucket: "bench", Logger: discardLogger()})
	res, err := j.Purge(context.Background(), "/loadtest/")
	require.NoError(t, err)

	assert.Equal(t, CleanupResult{Found: 2, Removed: 2, Elapsed: res.Elapsed}, res)
	_, ok := store.object("keep/c.bin")
	assert.True(t, ok)
	_, ok = store.object("loadtest/a.bin")
	assert.False(t, ok)
}

func TestJanitorPurgePartialFailure(t *testing.T) {
	store := newFakeStore()
	store.put("loadtest/a.bin", []byte("a"))
	store.put("loadtest/b.bin", []byte("b"))
	store.deleteErr = map[string]error{"loadtest/b.bin": errors.New("AccessDenied")}

	j := NewJanitor(store, JanitorOptions{Bucket: "bench", Logger: discardLogger()})
	res, err := j.Purge(context.Background(), "loadtest")
	require.Error(t, err)

	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestJanitorNothingToDo(t *testing.T) {
	j := NewJanitor(newFakeStore(), JanitorOptions{Bucket: "bench", Logger: discardLogger()})

	res, err := j.Purge(context.Background(), "loadtest")
	require.NoError(t, err)
	assert.Zero(t, res.Found)

	res, err = j.AbortStale(context.Background(), "loadtest")
	require.NoError(t, err)
	assert.Zero(t, res.Found)
}

func TestListPrefix(t *testing.T) {
	assert.Equal(t, "", listPrefix(""))
	assert.Equal(t, "", listPrefix("/"))
	assert.Equal(t, "loadtest/", listPrefix("loadtest"))
	assert.Equal(t, "a/b/", listPrefix("/a/b/"))
}
