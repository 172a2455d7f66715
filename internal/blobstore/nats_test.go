// Package blobstore_test tests the NATS JetStream audio store against an
// in-memory NATS server.
package blobstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/echoverse-service/internal/blobstore"
)

// startTestServer starts an in-memory NATS server for testing purposes.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNATS_UploadDownloadDelete(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := blobstore.NewNATS(jetstreamContext, "test-audio")
	require.NoError(t, err)

	ctx := context.Background()
	key := "narration-1.mp3"
	audio := []byte("fake mp3 audio payload")

	err = store.Upload(ctx, key, audio)
	require.NoError(t, err)

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	require.Equal(t, audio, downloaded)

	err = store.Delete(ctx, key)
	require.NoError(t, err)

	_, err = store.Download(ctx, key)
	require.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}

func TestNATS_BindToExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := blobstore.NewNATS(jetstreamContext, "shared-audio")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Upload(ctx, "x.mp3", []byte("data")))

	// A second store over the same bucket binds instead of failing.
	second, err := blobstore.NewNATS(jetstreamContext, "shared-audio")
	require.NoError(t, err)

	data, err := second.Download(ctx, "x.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), data)
}
