// Package web exposes the browser-facing HTTP surface: the submission form,
// narration playback and download, and the error pages.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse-service/internal/core"
	"github.com/book-expert/echoverse-service/internal/narrator"
	"github.com/book-expert/echoverse-service/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Route paths.
const (
	pathIndex    = "/"
	pathAudio    = "/audio/"
	pathDownload = "/download/"
	pathHealthz  = "/healthz"
)

// Form field names, matching the submission form.
const (
	fieldFile  = "file_input"
	fieldText  = "text_input"
	fieldTone  = "tone"
	fieldVoice = "voice"
)

// maxUploadBytes bounds the multipart form kept in memory while parsing.
const maxUploadBytes = 10 << 20

// User-facing notices.
const (
	noticeGenerated    = "Audiobook generated!"
	noticeTruncatedFmt = "Input truncated to %d characters due to length limits."
	msgNotFound        = "Not found"
	msgPageNotFound    = "Page not found"
	msgServerError     = "Internal server error"
)

// indexData feeds the index template.
type indexData struct {
	Tones         []string
	Voices        []string
	Flashes       []session.Flash
	Narrations    []core.Narration
	MaxTextLength int
}

// errorData feeds the error template.
type errorData struct {
	Error string
}

// Handler serves the EchoVerse web UI.
type Handler struct {
	sessions  *session.Manager
	submitter *narrator.Service
	blobs     core.BlobStore
	log       *logger.Logger
	templates *template.Template
}

// New creates the web handler, parsing the embedded templates.
func New(
	sessions *session.Manager,
	submitter *narrator.Service,
	blobs core.BlobStore,
	log *logger.Logger,
) (*Handler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{
		sessions:  sessions,
		submitter: submitter,
		blobs:     blobs,
		log:       log,
		templates: templates,
	}, nil
}

// Routes returns the service's HTTP handler with panic recovery applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pathIndex, h.index)
	mux.HandleFunc(pathAudio, h.audio)
	mux.HandleFunc(pathDownload, h.download)
	mux.HandleFunc(pathHealthz, h.healthz)

	return h.recoverPanics(mux)
}

// index renders the form on GET and runs one submission on POST. Every POST
// outcome redirects back to the form with a flash notice; failures never
// leave partial state behind.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != pathIndex {
		h.renderError(w, http.StatusNotFound, msgPageNotFound)

		return
	}

	sess := h.sessions.Get(w, r)

	if r.Method == http.MethodPost {
		h.submit(w, r, sess)

		return
	}

	data := indexData{
		Tones:         narrator.ToneLabels(),
		Voices:        narrator.VoiceLabels(),
		Flashes:       sess.ConsumeFlashes(),
		Narrations:    sess.List(),
		MaxTextLength: h.submitter.MaxTextLength(),
	}

	h.render(w, http.StatusOK, "index.html", data)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, err := parseSubmitForm(r)
	if err != nil {
		h.log.Error("Failed to parse submission form: %v", err)
		sess.Flash(err.Error(), session.FlashDanger)
		http.Redirect(w, r, pathIndex, http.StatusSeeOther)

		return
	}

	result, err := h.submitter.Submit(r.Context(), req)
	if err != nil {
		h.log.Error("Generation failed: %v", err)
		sess.Flash(err.Error(), session.FlashDanger)
		http.Redirect(w, r, pathIndex, http.StatusSeeOther)

		return
	}

	sess.Append(result.Narration)

	if result.Truncated {
		sess.Flash(
			fmt.Sprintf(noticeTruncatedFmt, h.submitter.MaxTextLength()),
			session.FlashWarning,
		)
	}

	sess.Flash(noticeGenerated, session.FlashSuccess)
	http.Redirect(w, r, pathIndex, http.StatusSeeOther)
}

// parseSubmitForm extracts the submission fields from the multipart form.
// A plain form post without a file part is accepted as well.
func parseSubmitForm(r *http.Request) (narrator.SubmitRequest, error) {
	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return narrator.SubmitRequest{}, fmt.Errorf("failed to parse form: %w", err)
	}

	req := narrator.SubmitRequest{
		PastedText: r.FormValue(fieldText),
		Tone:       r.FormValue(fieldTone),
		Voice:      r.FormValue(fieldVoice),
	}

	file, header, err := r.FormFile(fieldFile)
	if err == nil {
		defer file.Close()

		data, readErr := io.ReadAll(file)
		if readErr != nil {
			return narrator.SubmitRequest{}, fmt.Errorf("failed to read upload: %w", readErr)
		}

		req.FileName = header.Filename
		req.FileData = data
	}

	return req, nil
}

// audio streams a narration's audio for in-page playback.
func (h *Handler) audio(w http.ResponseWriter, r *http.Request) {
	h.serveAudio(w, r, false)
}

// download serves the same bytes with an attachment disposition so the
// browser saves the file as <id>.mp3.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	h.serveAudio(w, r, true)
}

func (h *Handler) serveAudio(w http.ResponseWriter, r *http.Request, attachment bool) {
	prefix := pathAudio
	if attachment {
		prefix = pathDownload
	}

	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, msgNotFound, http.StatusNotFound)

		return
	}

	sess := h.sessions.Get(w, r)

	n, ok := sess.Find(id)
	if !ok {
		http.Error(w, msgNotFound, http.StatusNotFound)

		return
	}

	data, err := h.blobs.Download(r.Context(), n.AudioKey)
	if err != nil {
		h.log.Error("Failed to load audio %s: %v", n.AudioKey, err)
		h.renderError(w, http.StatusInternalServerError, msgServerError)

		return
	}

	if attachment {
		w.Header().Set(
			"Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", n.ID+".mp3"),
		)
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))

	_, err = w.Write(data)
	if err != nil {
		h.log.Warn("Failed to write audio response: %v", err)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("ok"))
	if err != nil {
		h.log.Warn("Failed to write health response: %v", err)
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	err := h.templates.ExecuteTemplate(w, name, data)
	if err != nil {
		h.log.Error("Failed to render template %s: %v", name, err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, message string) {
	h.render(w, status, "error.html", errorData{Error: message})
}

// recoverPanics converts a handler panic into the generic 500 page. The
// panic detail is logged server-side only.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec != nil {
				h.log.Error("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				h.renderError(w, http.StatusInternalServerError, msgServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
