// Package iam caches bearer tokens issued by the IBM Cloud IAM identity
// service. A single cache instance is shared by all synthesis calls so one
// refresh benefits every concurrent request.
package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse-service/internal/core"
)

const (
	grantType = "urn:ibm:params:oauth:grant-type:apikey"

	// expirySlack refreshes the token this long before its actual expiry
	// to tolerate clock skew and in-flight request latency.
	expirySlack = 60 * time.Second

	// defaultExpiresIn is assumed when the identity response omits the
	// expires_in field.
	defaultExpiresIn = 3600
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeForm   = "application/x-www-form-urlencoded"
	contentTypeJSON   = "application/json"
)

// tokenResponse is the subset of the IAM token response the cache reads.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenCache holds a bearer token and its expiry, refreshing lazily when a
// caller asks for a token at or past the expiry instant. The token/expiry
// pair is always replaced as a unit; callers never observe a torn pair.
// Concurrent callers racing past the expiry check may each trigger a
// redundant refresh; refreshes are idempotent and the last writer wins.
type TokenCache struct {
	apiKey     string
	tokenURL   string
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenCache creates a token cache for the given identity endpoint. The
// timeout bounds each refresh call. An empty apiKey is allowed at
// construction; Token reports it as a configuration error when invoked.
func NewTokenCache(
	apiKey, tokenURL string,
	timeout time.Duration,
	log *logger.Logger,
) *TokenCache {
	return &TokenCache{
		apiKey:   apiKey,
		tokenURL: tokenURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
		now: time.Now,
	}
}

// NewTokenCacheWithClock creates a token cache with an injected clock.
// This constructor is primarily for testing purposes, allowing expiry
// behavior to be exercised without waiting on real time.
func NewTokenCacheWithClock(
	apiKey, tokenURL string,
	timeout time.Duration,
	log *logger.Logger,
	now func() time.Time,
) *TokenCache {
	cache := NewTokenCache(apiKey, tokenURL, timeout, log)
	cache.now = now

	return cache
}

// Token returns a currently valid bearer token, refreshing it first when the
// cached one is absent or stale. A cached token that has not reached its
// expiry is returned without any network call.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: identity API key is empty", core.ErrNotConfigured)
	}

	token, expiresAt := c.cached()
	if token != "" && c.now().Before(expiresAt) {
		return token, nil
	}

	token, expiresAt, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}

	c.replace(token, expiresAt)
	c.log.Info("Refreshed IAM token; expires at %s", expiresAt.Format(time.RFC3339))

	return token, nil
}

func (c *TokenCache) cached() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token, c.expiresAt
}

func (c *TokenCache) replace(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.expiresAt = expiresAt
}

// refresh performs one synchronous token exchange against the identity
// endpoint. It runs without the cache lock held; the caller installs the
// result.
func (c *TokenCache) refresh(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeForm)
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf(
			"%w: token request to %s failed: %w",
			core.ErrIdentityRejected, c.tokenURL, err,
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", time.Time{}, fmt.Errorf(
			"%w: %s %s",
			core.ErrIdentityRejected, resp.Status, core.Snippet(body),
		)
	}

	var tr tokenResponse

	err = json.Unmarshal(body, &tr)
	if err != nil {
		return "", time.Time{}, fmt.Errorf(
			"%w: unparseable token response: %s",
			core.ErrIdentityRejected, core.Snippet(body),
		)
	}

	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf(
			"%w: token response has no access_token: %s",
			core.ErrIdentityRejected, core.Snippet(body),
		)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}

	lifetime := time.Duration(expiresIn)*time.Second - expirySlack
	if lifetime < 0 {
		lifetime = 0
	}

	return tr.AccessToken, c.now().Add(lifetime), nil
}
