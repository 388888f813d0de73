package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dharsanguruparan/snapdrop/internal/signing"
)

// envelope is the on-disk form: the session JSON plus its seal. The payload
// is kept as base64 so the signed bytes survive re-encoding untouched.
type envelope struct {
	Session   []byte `json:"session"`
	Expires   int64  `json:"expires"`
	Signature string `json:"signature"`
}

// FileOptions configures a FileStore.
type FileOptions struct {
	Path string
	// Secret seals records. When empty a key is generated once and kept next
	// to the session file.
	Secret      []byte
	TTL         time.Duration
	RememberTTL time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// FileStore persists one signed session as JSON. Every access holds an
// exclusive flock so concurrent CLI invocations do not interleave writes.
type FileStore struct {
	path        string
	secret      []byte
	ttl         time.Duration
	rememberTTL time.Duration
	lock        *flock.Flock
	log         *slog.Logger
	now         func() time.Time
}

// NewFileStore builds a FileStore, creating the parent directory.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	if opts.Path == "" {
		return nil, errors.New("session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.RememberTTL <= 0 {
		opts.RememberTTL = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:        opts.Path,
		secret:      opts.Secret,
		ttl:         opts.TTL,
		rememberTTL: opts.RememberTTL,
		lock:        flock.New(opts.Path + ".lock"),
		log:         logger.With("component", "session"),
		now:         opts.Now,
	}, nil
}

// Path returns the session file location.
func (f *FileStore) Path() string { return f.path }

// Get loads and verifies the saved session. Tampered or expired records are
// removed and reported as ErrNotFound.
func (f *FileStore) Get() (Session, error) {
	if err := f.lock.Lock(); err != nil {
		return Session{}, fmt.Errorf("lock session: %w", err)
	}
	defer f.unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.log.Warn("discarding unreadable session", "path", f.path, "error", err)
		f.removeLocked()
		return Session{}, ErrNotFound
	}
	signer, err := f.signerLocked(false)
	if err != nil {
		return Session{}, err
	}
	if signer == nil || !signer.Verify(env.Session, env.Expires, env.Signature, f.now()) {
		f.log.Info("discarding expired or unsigned session", "path", f.path)
		f.removeLocked()
		return Session{}, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(env.Session, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// Set seals and writes s. ExpiresAt is derived from the remember flag when
// the caller leaves it zero.
func (f *FileStore) Set(s Session) error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer f.unlock()

	now := f.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		ttl := f.ttl
		if s.Remember {
			ttl = f.rememberTTL
		}
		s.ExpiresAt = now.Add(ttl)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	signer, err := f.signerLocked(true)
	if err != nil {
		return err
	}
	env := envelope{
		Session:   payload,
		Expires:   s.ExpiresAt.Unix(),
		Signature: signer.Sign(payload, s.ExpiresAt.Unix()),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear deletes the session file. A missing file is not an error.
func (f *FileStore) Clear() error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer f.unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (f *FileStore) keyPath() string { return f.path + ".key" }

// signerLocked returns the configured signer or one backed by the key file.
// With create unset a missing key file yields a nil signer.
func (f *FileStore) signerLocked(create bool) (*signing.Signer, error) {
	if len(f.secret) > 0 {
		return signing.NewSigner(f.secret), nil
	}
	key, err := os.ReadFile(f.keyPath())
	if err == nil && len(key) == signing.KeySize {
		return signing.NewSigner(key), nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read session key: %w", err)
	}
	if !create {
		return nil, nil
	}
	key, err = signing.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(f.keyPath(), key, 0o600); err != nil {
		return nil, fmt.Errorf("write session key: %w", err)
	}
	return signing.NewSigner(key), nil
}

func (f *FileStore) removeLocked() {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.log.Warn("remove session file", "path", f.path, "error", err)
	}
}

func (f *FileStore) unlock() {
	if err := f.lock.Unlock(); err != nil {
		f.log.Warn("release session lock", "error", err)
	}
}
