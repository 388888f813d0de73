// Package session persists the signed-in state of the CLI between runs.
package session

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrNotFound means there is no usable session: none was saved, it
	// expired, or its signature did not verify.
	ErrNotFound = errors.New("session not found")
)

// Cookie is the persisted form of an HTTP cookie issued by the host.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// Session is what a login leaves behind.
type Session struct {
	Username string   `json:"username,omitempty"`
	Guest    bool     `json:"guest,omitempty"`
	Remember bool     `json:"remember,omitempty"`
	Cookies  []Cookie `json:"cookies"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HTTPCookies converts the stored cookies for a cookie jar.
func (s Session) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return out
}

// FromHTTPCookies converts jar cookies into their stored form.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return out
}

// Store keeps at most one session.
type Store interface {
	Get() (Session, error)
	Set(Session) error
	Clear() error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	session *Session
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Get returns a copy of the saved session.
func (m *MemoryStore) Get() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, ErrNotFound
	}
	if !m.session.ExpiresAt.IsZero() && !m.now().Before(m.session.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	s := *m.session
	s.Cookies = append([]Cookie(nil), m.session.Cookies...)
	return s, nil
}

// Set replaces the saved session.
func (m *MemoryStore) Set(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	s.Cookies = append([]Cookie(nil), s.Cookies...)
	m.session = &s
	return nil
}

// Clear forgets the session.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}
