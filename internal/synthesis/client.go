// Package synthesis calls the IBM Watson Text-to-Speech REST API, returning
// MP3 audio for rewritten narration text.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse-service/internal/core"
)

// API paths and query parameters.
const (
	synthesizePath  = "/v1/synthesize"
	voiceQueryParam = "voice"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	contentTypeJSON     = "application/json"
	contentTypeMP3      = "audio/mp3"
	bearerPrefix        = "Bearer "
)

// synthesizeRequest is the JSON payload for the synthesize endpoint.
type synthesizeRequest struct {
	Text string `json:"text"`
}

// Client is a client for the Watson Text-to-Speech service. It obtains a
// bearer token from the shared token source before each request.
type Client struct {
	serviceURL string
	tokens     core.TokenSource
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a synthesis client for the given service URL. The timeout
// bounds each synthesis call; synthesis is typically slower than rewriting,
// so it is configured longer. An empty serviceURL is allowed at
// construction; Synthesize reports it as a configuration error when invoked.
func New(serviceURL string, tokens core.TokenSource, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Synthesize converts text to MP3 audio using the given provider voice
// identifier. A success status with a JSON content type is still a failure:
// the service signals certain errors with HTTP 200 and a JSON error payload
// instead of audio, so the content type is inspected, not the status alone.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.serviceURL == "" {
		return nil, fmt.Errorf("%w: synthesis service URL is empty", core.ErrNotConfigured)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	requestBody, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	requestURL := c.serviceURL + synthesizePath +
		"?" + voiceQueryParam + "=" + url.QueryEscape(voiceID)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		requestURL,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	req.Header.Set(headerAuthorization, bearerPrefix+token)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeMP3)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: synthesis request to %s failed: %w",
			core.ErrUpstream, c.serviceURL, err,
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Error("Synthesis API error: %s", resp.Status)

		return nil, fmt.Errorf(
			"%w: synthesis API returned %s: %s",
			core.ErrUpstream, resp.Status, core.Snippet(body),
		)
	}

	contentType := resp.Header.Get(headerContentType)
	if strings.Contains(contentType, contentTypeJSON) {
		return nil, fmt.Errorf(
			"%w: synthesis API returned an error payload: %s",
			core.ErrUpstream, core.Snippet(body),
		)
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("%w: synthesis API returned empty audio", core.ErrUpstream)
	}

	return body, nil
}
