// Package session provides per-browser session state carried by a signed
// cookie. Each session owns an ordered narration history and a queue of
// one-shot flash notices; sessions idle past their TTL are pruned together
// with the audio they reference.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/book-expert/echoverse-service/internal/core"
)

// CookieName is the browser cookie carrying the signed session identifier.
const CookieName = "echoverse_session"

const cookieSeparator = "."

// Flash categories used by the request handlers.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Flash is a one-shot notice shown on the next page render.
type Flash struct {
	Message  string
	Category string
}

// Session is one browser session's state. It implements core.NarrationStore.
// The mutex tolerates overlapping requests from the same browser; sessions
// are otherwise independent and need no cross-session coordination.
type Session struct {
	id string

	mu         sync.Mutex
	narrations []core.Narration
	flashes    []Flash
	lastSeen   time.Time
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append inserts a narration at the front of the history, so the list stays
// most-recent-first.
func (s *Session) Append(n core.Narration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.narrations = append([]core.Narration{n}, s.narrations...)
}

// Find looks up a narration by identifier.
func (s *Session) Find(id string) (core.Narration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.narrations {
		if n.ID == id {
			return n, true
		}
	}

	return core.Narration{}, false
}

// List returns a snapshot of the history, most-recent-first.
func (s *Session) List() []core.Narration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Narration, len(s.narrations))
	copy(out, s.narrations)

	return out
}

// Flash queues a notice for the next page render.
func (s *Session) Flash(message, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flashes = append(s.flashes, Flash{Message: message, Category: category})
}

// ConsumeFlashes returns the queued notices and clears the queue.
func (s *Session) ConsumeFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()

	flashes := s.flashes
	s.flashes = nil

	return flashes
}

// audioKeys returns the audio keys referenced by the history.
func (s *Session) audioKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.narrations))
	for _, n := range s.narrations {
		if n.AudioKey != "" {
			keys = append(keys, n.AudioKey)
		}
	}

	return keys
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return now.Sub(s.lastSeen)
}

// Manager issues and resolves sessions. The cookie value is the session id
// joined with an HMAC-SHA256 signature so a tampered id never resolves to
// another session's state.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. Sessions idle longer than ttl are
// removed by Prune.
func NewManager(secret []byte, ttl time.Duration) *Manager {
	return &Manager{
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get resolves the request's session, lazily creating one (and setting the
// cookie) when the cookie is absent, unverifiable, or expired.
func (m *Manager) Get(w http.ResponseWriter, r *http.Request) *Session {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if id, ok := m.verify(cookie.Value); ok {
			m.mu.RLock()
			sess := m.sessions[id]
			m.mu.RUnlock()

			if sess != nil {
				sess.touch(m.now())

				return sess
			}
		}
	}

	return m.create(w)
}

func (m *Manager) create(w http.ResponseWriter) *Session {
	sess := &Session{
		id:       uuid.NewString(),
		lastSeen: m.now(),
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.sign(sess.id),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return sess
}

// Prune removes sessions idle past the TTL and returns the audio keys their
// histories referenced, so the caller can release the stored audio.
func (m *Manager) Prune() []string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var orphaned []string

	for id, sess := range m.sessions {
		if sess.idleSince(now) > m.ttl {
			orphaned = append(orphaned, sess.audioKeys()...)
			delete(m.sessions, id)
		}
	}

	return orphaned
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))

	return id + cookieSeparator + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(value string) (string, bool) {
	id, _, found := strings.Cut(value, cookieSeparator)
	if !found || id == "" {
		return "", false
	}

	if !hmac.Equal([]byte(m.sign(id)), []byte(value)) {
		return "", false
	}

	return id, true
}
