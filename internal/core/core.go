// Package core defines the domain types, interfaces, and error categories
// shared by the EchoVerse service components.
package core

import (
	"context"
	"errors"
	"time"
)

// Error categories. Every failure surfaced to the request boundary wraps
// exactly one of these so handlers can classify with errors.Is.
var (
	// ErrInvalidInput indicates bad or missing user input. User-correctable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured indicates a missing deployment secret or endpoint.
	// Operator-correctable, never user-correctable.
	ErrNotConfigured = errors.New("service is not configured")

	// ErrIdentityRejected indicates the identity provider refused to issue
	// a bearer token for the configured credentials.
	ErrIdentityRejected = errors.New("identity provider rejected credentials")

	// ErrUpstream indicates the rewrite or synthesis provider returned an
	// error status, an unexpected response shape, or a non-audio payload.
	ErrUpstream = errors.New("upstream service error")
)

// Narration is one generated result: the original text, its rewritten form,
// and the key locating the synthesized audio. Immutable after creation.
type Narration struct {
	ID            string
	OriginalText  string
	RewrittenText string
	Tone          string
	Voice         string
	AudioKey      string
	CreatedAt     time.Time
}

// Rewriter rewrites a prompt through a hosted language model.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}

// Synthesizer converts text into audio bytes using a provider voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// TokenSource yields a currently valid bearer token, refreshing as needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BlobStore stores synthesized audio payloads keyed by narration id.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NarrationStore holds one session's narrations, most-recent-first.
type NarrationStore interface {
	Append(n Narration)
	Find(id string) (Narration, bool)
	List() []Narration
}

// SnippetLimit is the maximum number of bytes of an upstream response body
// carried into an error message.
const SnippetLimit = 200

// Snippet truncates an upstream response body for inclusion in error
// messages.
func Snippet(body []byte) string {
	if len(body) <= SnippetLimit {
		return string(body)
	}

	return string(body[:SnippetLimit])
}
