package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS stores audio payloads in a JetStream object-store bucket. It keeps
// narration audio off the service heap and lets a restarted instance serve
// audio for sessions that survive in front of it.
type NATS struct {
	bucket string
	store  nats.ObjectStore
}

// NewNATS creates the bucket if it does not exist yet, or binds to it.
func NewNATS(jetstreamContext nats.JetStreamContext, bucketName string) (*NATS, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Narration audio for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf(
				"failed to create object store bucket '%s': %w",
				bucketName, err,
			)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to bind to existing object store bucket '%s': %w",
				bucketName, err,
			)
		}
	}

	return &NATS{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Upload saves an audio payload to the bucket.
func (n *NATS) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf(
			"failed to put object '%s' to bucket '%s': %w",
			key, n.bucket, err,
		)
	}

	return nil
}

// Download retrieves an audio payload from the bucket.
func (n *NATS) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}

		return nil, fmt.Errorf(
			"failed to get object '%s' from bucket '%s': %w",
			key, n.bucket, err,
		)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Delete removes an audio payload from the bucket. Deleting an absent key is
// not an error.
func (n *NATS) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf(
			"failed to delete object '%s' from bucket '%s': %w",
			key, n.bucket, err,
		)
	}

	return nil
}
