package web

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"text-completion-go/completion"
)

const sessionCookie = "completion_session"

// Session is the per-browser UI state: the prompt box contents, the sampling
// controls, and whatever the last generate action produced. Stored sessions
// are treated as immutable snapshots: handlers get a private copy, mutate it,
// and Put it back, so concurrent requests on one cookie never share a
// mutable pointer. The last Put wins.
type Session struct {
	Prompt      string
	MaxLength   int
	Temperature float64
	Result      *completion.Result
	ErrorMsg    string
	Warning     string
}

func newSession() *Session {
	return &Session{
		MaxLength:   DefaultMaxLength,
		Temperature: DefaultTemperature,
	}
}

// clone returns a copy the caller may mutate freely. Result is shared, but a
// Result is never modified after it is built.
func (s *Session) clone() *Session {
	c := *s
	return &c
}

// SessionStore keeps sessions in a TTL cache so idle ones expire on their own
type SessionStore struct {
	cache *ttlcache.Cache[string, *Session]
}

// NewSessionStore creates a session store with the given idle TTL
func NewSessionStore(ttl time.Duration) *SessionStore {
	c := ttlcache.New[string, *Session](
		ttlcache.WithTTL[string, *Session](ttl),
	)
	go c.Start()
	return &SessionStore{cache: c}
}

// Stop shuts down the expiry loop
func (s *SessionStore) Stop() {
	s.cache.Stop()
}

// Get returns a copy of the session for an ID, or nil if it is unknown or
// expired.
func (s *SessionStore) Get(id string) *Session {
	item := s.cache.Get(id)
	if item == nil {
		return nil
	}
	return item.Value().clone()
}

// Put stores a snapshot of the session under an ID, refreshing its TTL
func (s *SessionStore) Put(id string, sess *Session) {
	s.cache.Set(id, sess.clone(), ttlcache.DefaultTTL)
}

// FromRequest resolves the request's session, creating one (and setting the
// cookie) when none exists yet. The returned session is the caller's private
// copy; changes become visible only through Put.
func (s *SessionStore) FromRequest(w http.ResponseWriter, r *http.Request) (string, *Session) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if sess := s.Get(cookie.Value); sess != nil {
			return cookie.Value, sess
		}
	}

	id := newSessionID()
	sess := newSession()
	s.Put(id, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return id, sess
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}
