// Package rewrite calls the Hugging Face Inference API to rewrite text in a
// target tone using a hosted instruct model.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse-service/internal/core"
)

const (
	modelsPath = "/models/"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// generateRequest is the Inference API payload for text generation.
type generateRequest struct {
	Inputs string `json:"inputs"`
}

// listShape matches the usual text-generation response:
// [{"generated_text": "..."}].
type listShape []struct {
	GeneratedText string `json:"generated_text"`
}

// objectShape matches the alternative single-object responses some instruct
// and summarization models return.
type objectShape struct {
	GeneratedText string `json:"generated_text"`
	SummaryText   string `json:"summary_text"`
}

// Client calls the Inference API for one configured model.
type Client struct {
	token      string
	modelURL   string
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a rewrite client for the given model. The timeout bounds each
// generation request. An empty token is allowed at construction; Rewrite
// reports it as a configuration error when invoked.
func New(token, baseURL, modelID string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		token:    token,
		modelURL: baseURL + modelsPath + modelID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Rewrite sends the prompt to the model and returns the generated text.
// The response is decoded tolerantly over the known shapes; anything else
// is an upstream error.
func (c *Client) Rewrite(ctx context.Context, prompt string) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("%w: rewrite API token is empty", core.ErrNotConfigured)
	}

	requestBody, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.modelURL,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create rewrite request: %w", err)
	}

	req.Header.Set(headerAuthorization, bearerPrefix+c.token)
	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(
			"%w: rewrite request to %s failed: %w",
			core.ErrUpstream, c.modelURL, err,
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read rewrite response: %w", err)
	}

	// The Inference API signals a loading or rate-limited model with
	// 503/429; the status and body are surfaced for diagnostics.
	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Error("Rewrite API error: %s", resp.Status)

		return "", fmt.Errorf(
			"%w: rewrite API returned %s: %s",
			core.ErrUpstream, resp.Status, core.Snippet(body),
		)
	}

	return decodeGenerated(body)
}

// decodeGenerated extracts generated text from the loosely structured
// Inference API response, trying each known shape in order.
func decodeGenerated(body []byte) (string, error) {
	var list listShape
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) > 0 && list[0].GeneratedText != "" {
			return list[0].GeneratedText, nil
		}
	}

	var obj objectShape
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.GeneratedText != "" {
			return obj.GeneratedText, nil
		}

		if obj.SummaryText != "" {
			return obj.SummaryText, nil
		}
	}

	return "", fmt.Errorf(
		"%w: unexpected rewrite response shape: %s",
		core.ErrUpstream, core.Snippet(body),
	)
}
