// Package devhost is an in-memory image host. It speaks the same JSON and
// multipart dialect as the real service and backs both local development
// (cmd/devhost) and the client tests.
package devhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const cookieName = "session"

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
	"mp4": true, "webm": true, "mov": true, "avi": true, "mkv": true, "flv": true,
}

type user struct {
	name     string
	password string
	guest    bool
	logins   []loginRecord
}

type loginRecord struct {
	UserAgent string    `json:"user_agent"`
	LoginAt   time.Time `json:"login_at"`
	HashedIP  string    `json:"hashed_ip"`
}

type image struct {
	id        int
	owner     string
	filename  string
	original  string
	data      []byte
	uploaded  time.Time
	expiresAt time.Time
}

// Upload records one accepted file.
type Upload struct {
	ID          int
	Owner       string
	Name        string
	ContentType string
	Size        int
}

// Host holds every account, session and image in memory.
type Host struct {
	log *slog.Logger

	mu            sync.Mutex
	users         map[string]*user
	sessions      map[string]string
	images        map[int]*image
	nextID        int
	uploads       []Upload
	failures      map[string]int
	statusCode    int
	announcements []map[string]string
	now           func() time.Time
}

// Options configures a Host.
type Options struct {
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns an empty host.
func New(opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Host{
		log:        logger.With("component", "devhost"),
		users:      make(map[string]*user),
		sessions:   make(map[string]string),
		images:     make(map[int]*image),
		failures:   make(map[string]int),
		nextID:     1,
		statusCode: http.StatusOK,
		now:        now,
	}
}

// Handler exposes the routes with request logging and CORS headers.
func (s *Host) Handler() http.Handler {
	return corsMiddleware(loggingMiddleware(s.log, s.routes()))
}

// Run serves the host on addr until ctx is cancelled.
func (s *Host) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info("dev host listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// AddUser creates an account.
func (s *Host) AddUser(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = &user{name: name, password: password}
}

// FailUploads makes uploads of the named file answer with status.
func (s *Host) FailUploads(filename string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[filename] = status
}

// SetStatusCode changes what GET /status reports.
func (s *Host) SetStatusCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCode = code
}

// Announce adds an operator message shown to signed-in users.
func (s *Host) Announce(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := map[string]string{"message": message, "created_at": s.now().UTC().Format("2006-01-02T15:04:05.000000")}
	s.announcements = append([]map[string]string{entry}, s.announcements...)
}

// Expire moves an image's expiry into the past.
func (s *Host) Expire(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images[id]; ok {
		img.expiresAt = s.now().Add(-time.Minute)
	}
}

// Uploads returns accepted uploads in arrival order.
func (s *Host) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Host) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /announcements", s.handleAnnouncements)
	mux.HandleFunc("GET /auth_status", s.handleAuthStatus)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /guest_login", s.handleGuestLogin)
	mux.HandleFunc("POST /logout", s.requireUser(s.handleLogout))
	mux.HandleFunc("POST /upload", s.requireUser(s.handleUpload))
	mux.HandleFunc("GET /images", s.requireUser(s.handleImages))
	mux.HandleFunc("GET /image/{id}", s.handleImage)
	mux.HandleFunc("DELETE /image/{id}", s.requireUser(s.handleDeleteImage))
	mux.HandleFunc("GET /uploads/{name}", s.handleFile)
	mux.HandleFunc("GET /account/sessions", s.requireUser(s.handleLoginSessions))
	mux.HandleFunc("POST /account/change-username", s.requireUser(s.handleChangeUsername))
	mux.HandleFunc("POST /account/change-password", s.requireUser(s.handleChangePassword))
	mux.HandleFunc("POST /account/delete", s.requireUser(s.handleDeleteAccount))
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Host) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := s.currentUser(r)
		if u == nil {
			fail(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		next(w, r, u)
	}
}

func (s *Host) currentUser(r *http.Request) *user {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessions[c.Value]
	if !ok {
		return nil
	}
	return s.users[name]
}

func (s *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code := s.statusCode
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]int{"status_code": code})
}

func (s *Host) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) == nil {
		fail(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	s.mu.Lock()
	list := append([]map[string]string{}, s.announcements...)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, list)
}

func (s *Host) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	u := s.currentUser(r)
	if u == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      u.name,
		"is_guest":      u.guest,
		// Same digest as the login records, so clients can spot this session.
		"last_seen_ip_hash": hashIP(r),
	})
}

// hashIP digests the caller's address without its port.
func hashIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return hex.EncodeToString(sum[:])
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Host) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		fail(w, http.StatusBadRequest, "Missing username or password")
		return
	}
	s.mu.Lock()
	if _, exists := s.users[in.Username]; exists {
		s.mu.Unlock()
		fail(w, http.StatusConflict, "Username already exists")
		return
	}
	u := &user{name: in.Username, password: in.Password}
	s.users[u.name] = u
	s.mu.Unlock()
	s.signIn(w, r, u, http.StatusCreated, "Registration successful")
}

func (s *Host) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	u, ok := s.users[in.Username]
	s.mu.Unlock()
	if !ok || u.password != in.Password {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.signIn(w, r, u, http.StatusOK, "Login successful")
}

func (s *Host) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	u := &user{
		name:     "Guest-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		password: uuid.NewString(),
		guest:    true,
	}
	s.mu.Lock()
	s.users[u.name] = u
	s.mu.Unlock()
	s.signIn(w, r, u, http.StatusOK, "Guest login successful")
}

func (s *Host) signIn(w http.ResponseWriter, r *http.Request, u *user, status int, message string) {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = u.name
	u.logins = append(u.logins, loginRecord{
		UserAgent: r.UserAgent(),
		LoginAt:   s.now().UTC(),
		HashedIP:  hashIP(r),
	})
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: token, Path: "/", HttpOnly: true})
	respondJSON(w, status, map[string]any{
		"success":  true,
		"message":  message,
		"username": u.name,
		"is_guest": u.guest,
	})
}

func (s *Host) handleLogout(w http.ResponseWriter, r *http.Request, _ *user) {
	if c, err := r.Cookie(cookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Host) handleUpload(w http.ResponseWriter, r *http.Request, u *user) {
	mr, err := r.MultipartReader()
	if err != nil {
		fail(w, http.StatusBadRequest, "No file part")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			fail(w, http.StatusBadRequest, "No file part")
			return
		}
		if err != nil {
			fail(w, http.StatusBadRequest, "No file part")
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		s.persistPart(w, r, part.FileName(), part.Header.Get("Content-Type"), part, u)
		part.Close()
		return
	}
}

func (s *Host) persistPart(w http.ResponseWriter, r *http.Request, filename, contentType string, body io.Reader, u *user) {
	if filename == "" {
		fail(w, http.StatusBadRequest, "No selected file")
		return
	}
	data, err := io.ReadAll(body)
	if err != nil {
		fail(w, http.StatusBadRequest, "No file part")
		return
	}
	s.mu.Lock()
	status, failing := s.failures[filename]
	s.mu.Unlock()
	if failing {
		fail(w, status, "Failed to save image metadata")
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !allowedExtensions[ext] {
		fail(w, http.StatusBadRequest, "File type not allowed")
		return
	}

	s.mu.Lock()
	now := s.now().UTC()
	img := &image{
		id:        s.nextID,
		owner:     u.name,
		filename:  strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext,
		original:  filename,
		data:      data,
		uploaded:  now,
		expiresAt: nextMonthStart(now),
	}
	s.nextID++
	s.images[img.id] = img
	s.uploads = append(s.uploads, Upload{ID: img.id, Owner: u.name, Name: filename, ContentType: contentType, Size: len(data)})
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "File uploaded successfully",
		"image_url":  fileURL(r, img),
		"details_id": img.id,
	})
}

func nextMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func fileURL(r *http.Request, img *image) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/uploads/" + img.filename
}

func (s *Host) handleImages(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	now := s.now()
	var owned []*image
	for _, img := range s.images {
		if img.owner == u.name {
			owned = append(owned, img)
		}
	}
	s.mu.Unlock()
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].uploaded.Equal(owned[j].uploaded) {
			return owned[i].id > owned[j].id
		}
		return owned[i].uploaded.After(owned[j].uploaded)
	})
	list := make([]map[string]any, 0, len(owned))
	for _, img := range owned {
		list = append(list, map[string]any{
			"id":               img.id,
			"url":              fileURL(r, img),
			"filename":         img.filename,
			"upload_date":      img.uploaded.Format("2006-01-02T15:04:05.000000"),
			"expires_at":       img.expiresAt.Format(time.RFC3339),
			"is_expiring_soon": img.expiresAt.Sub(now) < 7*24*time.Hour,
		})
	}
	respondJSON(w, http.StatusOK, list)
}

// lookup resolves {id} and drops the image when it has expired.
func (s *Host) lookup(w http.ResponseWriter, r *http.Request) (*image, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		fail(w, http.StatusNotFound, "Image not found.")
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		fail(w, http.StatusNotFound, "Image not found.")
		return nil, false
	}
	if img.expiresAt.Before(s.now()) {
		delete(s.images, id)
		fail(w, http.StatusGone, "This image has expired and has been deleted.")
		return nil, false
	}
	return img, true
}

func (s *Host) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := s.lookup(w, r)
	if !ok {
		return
	}
	u := s.currentUser(r)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"url":         fileURL(r, img),
		"filename":    img.filename,
		"upload_date": img.uploaded.Format("2006-01-02T15:04:05.000000"),
		"expires_at":  img.expiresAt.Format(time.RFC3339),
		"is_owner":    u != nil && u.name == img.owner,
	})
}

func (s *Host) handleDeleteImage(w http.ResponseWriter, r *http.Request, u *user) {
	img, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if img.owner != u.name {
		fail(w, http.StatusForbidden, "Unauthorized.")
		return
	}
	s.mu.Lock()
	delete(s.images, img.id)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Image deleted."})
}

func (s *Host) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	var found *image
	for _, img := range s.images {
		if img.filename == name {
			found = img
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		http.Error(w, "Image not found.", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(found.data)))
	_, _ = w.Write(found.data)
}

func (s *Host) handleLoginSessions(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	logins := append([]loginRecord{}, u.logins...)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, logins)
}

func (s *Host) handleChangeUsername(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		NewUsername string `json:"new_username"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.NewUsername == "" {
		fail(w, http.StatusBadRequest, "New username cannot be empty.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.users[in.NewUsername]; taken {
		fail(w, http.StatusConflict, "Username already exists")
		return
	}
	old := u.name
	delete(s.users, old)
	u.name = in.NewUsername
	s.users[u.name] = u
	for token, name := range s.sessions {
		if name == old {
			s.sessions[token] = u.name
		}
	}
	for _, img := range s.images {
		if img.owner == old {
			img.owner = u.name
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Username updated successfully."})
}

func (s *Host) handleChangePassword(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
		Confirm string `json:"confirm_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Current != u.password {
		fail(w, http.StatusUnauthorized, "Current password is incorrect.")
		return
	}
	if in.New != in.Confirm {
		fail(w, http.StatusBadRequest, "New passwords do not match.")
		return
	}
	u.password = in.New
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully."})
}

func (s *Host) handleDeleteAccount(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Password != u.password {
		fail(w, http.StatusUnauthorized, "Incorrect password.")
		return
	}
	delete(s.users, u.name)
	for token, name := range s.sessions {
		if name == u.name {
			delete(s.sessions, token)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Account deleted."})
}

func fail(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode json failed", "error", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}
