package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedNow struct{ t time.Time }

func (f *fixedNow) Now() time.Time { return f.t }

func newFileStore(t *testing.T, secret []byte) (*FileStore, *fixedNow) {
	t.Helper()
	clock := &fixedNow{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewFileStore(FileOptions{
		Path:        filepath.Join(t.TempDir(), "nested", "session.json"),
		Secret:      secret,
		TTL:         12 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	return store, clock
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := newFileStore(t, []byte("secret"))

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(Session{
		Username: "ada",
		Cookies:  []Cookie{{Name: "session", Value: "abc", Path: "/"}},
	}))

	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, []Cookie{{Name: "session", Value: "abc", Path: "/"}}, got.Cookies)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), got.ExpiresAt.UTC())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreExpiry(t *testing.T) {
	store, clock := newFileStore(t, []byte("secret"))
	require.NoError(t, store.Set(Session{Username: "ada"}))
	require.NoError(t, store.Set(Session{Username: "bob", Remember: true}))

	clock.t = clock.t.Add(13 * time.Hour)
	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	clock.t = clock.t.Add(30 * 24 * time.Hour)
	_, err = store.Get()
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreRejectsTampering(t *testing.T) {
	store, _ := newFileStore(t, []byte("secret"))
	require.NoError(t, store.Set(Session{Username: "ada"}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Session = []byte(`{"username":"mallory","cookies":[]}`)
	data, err = json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data, 0o600))

	_, err = store.Get()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreGeneratesKey(t *testing.T) {
	store, _ := newFileStore(t, nil)
	require.NoError(t, store.Set(Session{Guest: true}))

	key, err := os.ReadFile(store.keyPath())
	require.NoError(t, err)
	assert.Len(t, key, 32)

	got, err := store.Get()
	require.NoError(t, err)
	assert.True(t, got.Guest)

	// a second store over the same file reuses the key
	other, err := NewFileStore(FileOptions{Path: store.Path(), Now: store.now})
	require.NoError(t, err)
	got, err = other.Get()
	require.NoError(t, err)
	assert.True(t, got.Guest)
}

func TestFileStoreClear(t *testing.T) {
	store, _ := newFileStore(t, []byte("secret"))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Set(Session{Username: "ada"}))
	require.NoError(t, store.Clear())
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Get()
	assert.ErrorIs(t, err, ErrNotFound)

	cookies := []Cookie{{Name: "s", Value: "1"}}
	require.NoError(t, m.Set(Session{Username: "ada", Cookies: cookies}))
	cookies[0].Value = "changed"

	got, err := m.Get()
	require.NoError(t, err)
	assert.Equal(t, "1", got.Cookies[0].Value)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, m.Clear())
	_, err = m.Get()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCookieConversion(t *testing.T) {
	s := Session{Cookies: []Cookie{{Name: "a", Value: "b", Path: "/"}}}
	httpCookies := s.HTTPCookies()
	require.Len(t, httpCookies, 1)
	assert.Equal(t, "a", httpCookies[0].Name)
	assert.Equal(t, s.Cookies, FromHTTPCookies(httpCookies))
}
