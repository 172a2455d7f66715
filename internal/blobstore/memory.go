// Package blobstore provides the audio payload stores backing narration
// playback: an in-memory default and a NATS JetStream implementation for
// deployments that want the audio bytes off the service heap.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBlobNotFound is returned when a key has no stored payload.
var ErrBlobNotFound = errors.New("blob not found")

// Memory is the default in-process blob store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
	}
}

// Upload stores a payload under the given key, replacing any previous one.
func (m *Memory) Upload(_ context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = stored

	return nil
}

// Download retrieves the payload stored under the given key.
func (m *Memory) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// Delete removes the payload stored under the given key. Deleting an absent
// key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)

	return nil
}
