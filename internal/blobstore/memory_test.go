// Package blobstore_test tests the audio payload stores.
package blobstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/echoverse-service/internal/blobstore"
)

func TestMemory_UploadDownload(t *testing.T) {
	t.Parallel()

	store := blobstore.NewMemory()
	ctx := context.Background()

	data := []byte("mp3 payload")
	require.NoError(t, store.Upload(ctx, "a.mp3", data))

	got, err := store.Download(ctx, "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// The store keeps its own copy.
	data[0] = 'X'

	got, err = store.Download(ctx, "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3 payload"), got)
}

func TestMemory_DownloadMiss(t *testing.T) {
	t.Parallel()

	store := blobstore.NewMemory()

	_, err := store.Download(context.Background(), "missing.mp3")
	require.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()

	store := blobstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "a.mp3", []byte("data")))
	require.NoError(t, store.Delete(ctx, "a.mp3"))

	_, err := store.Download(ctx, "a.mp3")
	require.ErrorIs(t, err, blobstore.ErrBlobNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "a.mp3"))
}
