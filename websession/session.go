// Package websession wraps gorilla/sessions behind the narrow contract
// the Controller needs (spec.md §4.9): a per-request authenticated flag
// and username, carried in a signed cookie.
package websession

import (
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// CookieName is the session cookie name spec.md §6 fixes.
const CookieName = "deployhub_session"

const (
	keyAuthenticated = "authenticated"
	keyUsername      = "username"
)

// Store issues and reads the login session carried by CookieName.
type Store struct {
	store sessions.Store
}

// NewStore builds a Store backed by a cookie store keyed with key.
// Keys should come from securecookie.GenerateRandomKey in production;
// callers needing a throwaway key for tests can use NewRandomKey.
func NewStore(key []byte) *Store {
	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{store: cookies}
}

// NewRandomKey generates a fresh securecookie key, for use when no
// --session-key is configured (ephemeral sessions across restarts).
func NewRandomKey() []byte {
	return securecookie.GenerateRandomKey(32)
}

// Session is one request's view of the login state.
type Session struct {
	Authenticated bool
	Username      string

	raw *sessions.Session
}

// Get loads the session for r, never failing: a corrupt or absent cookie
// yields a fresh, unauthenticated session rather than an error, matching
// the Controller's "no session ⇒ treat as logged out" handling.
func (s *Store) Get(r *http.Request) *Session {
	raw, _ := s.store.Get(r, CookieName)

	sess := &Session{raw: raw}
	if v, ok := raw.Values[keyAuthenticated].(bool); ok {
		sess.Authenticated = v
	}
	if v, ok := raw.Values[keyUsername].(string); ok {
		sess.Username = v
	}
	return sess
}

// Login marks sess authenticated as username and saves it.
func (s *Store) Login(w http.ResponseWriter, r *http.Request, sess *Session, username string) error {
	sess.Authenticated = true
	sess.Username = username
	sess.raw.Values[keyAuthenticated] = true
	sess.raw.Values[keyUsername] = username
	return sess.raw.Save(r, w)
}

// Logout clears sess and saves it, per spec.md §4.8's logout operation.
func (s *Store) Logout(w http.ResponseWriter, r *http.Request, sess *Session) error {
	sess.Authenticated = false
	sess.Username = ""
	sess.raw.Values = make(map[any]any)
	sess.raw.Options.MaxAge = -1
	return sess.raw.Save(r, w)
}
