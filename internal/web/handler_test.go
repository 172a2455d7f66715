// Package web_test tests the browser-facing routes end to end with mocked
// upstream clients.
package web_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/echoverse-service/internal/blobstore"
	"github.com/book-expert/echoverse-service/internal/narrator"
	"github.com/book-expert/echoverse-service/internal/session"
	"github.com/book-expert/echoverse-service/internal/web"
)

const testAudio = "fake-mp3-bytes"

var (
	errMockRewrite = errors.New("mock rewrite error")

	audioLinkPattern = regexp.MustCompile(`/audio/([0-9a-f-]+)`)
)

type mockRewriter struct {
	shouldFail bool
}

func (m *mockRewriter) Rewrite(_ context.Context, _ string) (string, error) {
	if m.shouldFail {
		return "", errMockRewrite
	}

	return "rewritten output", nil
}

type mockSynthesizer struct{}

func (m *mockSynthesizer) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	return []byte(testAudio), nil
}

type fixture struct {
	server   *httptest.Server
	rewriter *mockRewriter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	rewriter := &mockRewriter{}
	blobs := blobstore.NewMemory()
	submitter := narrator.New(rewriter, &mockSynthesizer{}, blobs, 5000, log)
	sessions := session.NewManager([]byte("test-secret"), time.Hour)

	handler, err := web.New(sessions, submitter, blobs, log)
	require.NoError(t, err)

	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &fixture{server: server, rewriter: rewriter}
}

// client returns an HTTP client that keeps cookies and does not follow
// redirects, so tests can assert on the redirect itself.
func (f *fixture) client(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *fixture) postText(t *testing.T, client *http.Client, text, tone, voice string) *http.Response {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("text_input", text))
	require.NoError(t, writer.WriteField("tone", tone))
	require.NoError(t, writer.WriteField("voice", voice))
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	require.NoError(t, err)

	return resp
}

func (f *fixture) getBody(t *testing.T, client *http.Client, path string) (*http.Response, string) {
	t.Helper()

	resp, err := client.Get(f.server.URL + path)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestIndex_RendersForm(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp, body := f.getBody(t, client, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="text_input"`)
	assert.Contains(t, body, `name="file_input"`)
	assert.Contains(t, body, "Suspenseful")
	assert.Contains(t, body, "Allison (en-US)")
	assert.Contains(t, body, "No narrations yet")
}

func TestSubmit_SuccessFlowServesAudioAndDownload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp := f.postText(t, client, "Hello world", "Suspenseful", "Allison (en-US)")
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, body := f.getBody(t, client, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Audiobook generated!")
	assert.Contains(t, body, "rewritten output")

	match := audioLinkPattern.FindStringSubmatch(body)
	require.NotNil(t, match, "index page should link to the narration audio")
	narrationID := match[1]

	resp, audio := f.getBody(t, client, "/audio/"+narrationID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, testAudio, audio)

	resp, download := f.getBody(t, client, "/download/"+narrationID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testAudio, download)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), narrationID+".mp3")
}

func TestSubmit_EmptyInputFlashesErrorAndStoresNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp := f.postText(t, client, "   ", "Neutral", "Allison (en-US)")
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := f.getBody(t, client, "/")
	assert.Contains(t, body, "please provide input")
	assert.Contains(t, body, "No narrations yet")
}

func TestSubmit_RewriteFailureFlashesError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rewriter.shouldFail = true
	client := f.client(t)

	resp := f.postText(t, client, "Hello world", "Neutral", "Allison (en-US)")
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := f.getBody(t, client, "/")
	assert.Contains(t, body, "rewrite failed")
	assert.Contains(t, body, "No narrations yet")
}

func TestAudio_UnknownIDIsNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp, _ := f.getBody(t, client, "/audio/no-such-narration")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.getBody(t, client, "/download/no-such-narration")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAudio_OtherSessionCannotAccessNarration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.client(t)

	resp := f.postText(t, owner, "Hello world", "Neutral", "Allison (en-US)")
	resp.Body.Close()

	_, body := f.getBody(t, owner, "/")
	match := audioLinkPattern.FindStringSubmatch(body)
	require.NotNil(t, match)

	// A different browser session must not see the narration.
	stranger := f.client(t)

	resp, _ = f.getBody(t, stranger, "/audio/"+match[1])
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownPath_RendersErrorPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp, body := f.getBody(t, client, "/no-such-page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client := f.client(t)

	resp, body := f.getBody(t, client, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}
