// Package hostapi is the HTTP client for the image hosting service: status,
// authentication, uploads, the gallery and account management.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/session"
)

// uploadField is the multipart field the host reads the file from.
const uploadField = "file"

// Options configures a Client.
type Options struct {
	BaseURL string
	// RequestTimeout bounds every call except uploads.
	RequestTimeout time.Duration
	// TransferTimeout bounds uploads.
	TransferTimeout time.Duration
	// Sessions mirrors the cookie jar. Nil keeps cookies in memory only.
	Sessions   session.Store
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one host.
type Client struct {
	base            *url.URL
	http            *http.Client
	sessions        session.Store
	requestTimeout  time.Duration
	transferTimeout time.Duration
	log             *slog.Logger
}

// New builds a Client and restores cookies from the session store.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", opts.BaseURL)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 8 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 2 * time.Minute
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		httpClient = &clone
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	httpClient.Jar = jar

	c := &Client{
		base:            base,
		http:            httpClient,
		sessions:        sessions,
		requestTimeout:  opts.RequestTimeout,
		transferTimeout: opts.TransferTimeout,
		log:             logger.With("component", "hostapi"),
	}
	if s, err := sessions.Get(); err == nil {
		jar.SetCookies(c.base, s.HTTPCookies())
	} else if !errors.Is(err, session.ErrNotFound) {
		c.log.Warn("could not restore session", "error", err)
	}
	return c, nil
}

// BaseURL returns the host root.
func (c *Client) BaseURL() string { return c.base.String() }

// Status reports whether the host is operational.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var out StatusReport
	err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Announcements returns operator messages, newest first. A 401 means there
// is nothing for this visitor and yields an empty list.
func (c *Client) Announcements(ctx context.Context) ([]Announcement, error) {
	var out []Announcement
	err := c.doJSON(ctx, http.MethodGet, "/announcements", nil, &out)
	if errors.Is(err, ErrUnauthorized) {
		return nil, nil
	}
	return out, err
}

// AuthStatus asks the host who the current cookies belong to. A signed-out
// answer clears the stored session.
func (c *Client) AuthStatus(ctx context.Context) (AuthStatus, error) {
	var out AuthStatus
	err := c.doJSON(ctx, http.MethodGet, "/auth_status", nil, &out)
	if errors.Is(err, ErrUnauthorized) {
		out, err = AuthStatus{}, nil
	}
	if err != nil {
		return out, err
	}
	if !out.Authenticated {
		if clearErr := c.sessions.Clear(); clearErr != nil {
			c.log.Warn("clear session", "error", clearErr)
		}
	}
	return out, nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login signs in and saves the session. With remember set the session
// outlives the short default lifetime.
func (c *Client) Login(ctx context.Context, username, password string, remember bool) (Account, error) {
	var out Account
	if err := c.doJSON(ctx, http.MethodPost, "/login", credentials{username, password}, &out); err != nil {
		return out, err
	}
	return out, c.saveSession(out, remember)
}

// Register creates an account and signs it in. The credentials are checked
// locally first, see ValidateRegistration.
func (c *Client) Register(ctx context.Context, username, password string) (Account, error) {
	var out Account
	if err := ValidateRegistration(username, password, password); err != nil {
		return out, err
	}
	if err := c.doJSON(ctx, http.MethodPost, "/register", credentials{username, password}, &out); err != nil {
		return out, err
	}
	return out, c.saveSession(out, false)
}

// GuestLogin creates a throwaway guest account and signs it in.
func (c *Client) GuestLogin(ctx context.Context) (Account, error) {
	var out Account
	if err := c.doJSON(ctx, http.MethodPost, "/guest_login", nil, &out); err != nil {
		return out, err
	}
	return out, c.saveSession(out, false)
}

// Logout ends the session on the host and forgets it locally even when the
// host call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/logout", nil, nil)
	if jar, jarErr := cookiejar.New(nil); jarErr == nil {
		c.http.Jar = jar
	}
	if clearErr := c.sessions.Clear(); clearErr != nil {
		return errors.Join(err, fmt.Errorf("clear session: %w", clearErr))
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

// Upload streams one file to the host as multipart form data.
func (c *Client) Upload(ctx context.Context, file model.File) (UploadResponse, error) {
	var out UploadResponse
	body, err := file.Open()
	if err != nil {
		return out, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer body.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeFilePart(form, file, body))
	}()
	// The writer goroutine must be gone before body is closed.
	defer func() {
		pr.Close()
		<-done
	}()

	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), pr)
	if err != nil {
		return out, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.log.Debug("uploading", "file", file.Name, "size", file.Size, "type", file.ContentType)
	if err := c.send(req, &out); err != nil {
		return out, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return out, &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	return out, nil
}

func writeFilePart(form *multipart.Writer, file model.File, body io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("write form part: %w", err)
	}
	return form.Close()
}

// Transfer uploads file and returns its details id, so a Client can drive
// the upload queue directly.
func (c *Client) Transfer(ctx context.Context, file model.File) (model.Receipt, error) {
	resp, err := c.Upload(ctx, file)
	if err != nil {
		return model.Receipt{}, err
	}
	return model.Receipt{ID: resp.DetailsID.String(), URL: resp.ImageURL}, nil
}

// Images lists the signed-in user's uploads, newest first.
func (c *Client) Images(ctx context.Context) ([]Image, error) {
	var out []Image
	err := c.doJSON(ctx, http.MethodGet, "/images", nil, &out)
	return out, err
}

// Image fetches one upload's details. Expired images fail with an error
// matching ErrExpired.
func (c *Client) Image(ctx context.Context, id string) (ImageDetails, error) {
	var out ImageDetails
	err := c.doJSON(ctx, http.MethodGet, "/image/"+url.PathEscape(id), nil, &out)
	return out, err
}

// DeleteImage removes one of the signed-in user's uploads.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/image/"+url.PathEscape(id), nil, nil)
}

// LoginSessions lists recent sign-ins for the account.
func (c *Client) LoginSessions(ctx context.Context) ([]LoginSession, error) {
	var out []LoginSession
	err := c.doJSON(ctx, http.MethodGet, "/account/sessions", nil, &out)
	return out, err
}

// ChangeUsername renames the account and returns the host's message.
func (c *Client) ChangeUsername(ctx context.Context, newUsername string) (string, error) {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return "", errors.New("new username cannot be empty")
	}
	var out envelope
	payload := map[string]string{"new_username": newUsername}
	if err := c.doJSON(ctx, http.MethodPost, "/account/change-username", payload, &out); err != nil {
		return "", err
	}
	if s, err := c.sessions.Get(); err == nil {
		s.Username = newUsername
		if err := c.sessions.Set(s); err != nil {
			c.log.Warn("update session", "error", err)
		}
	}
	return out.Message, nil
}

// ChangePassword validates locally before asking the host.
func (c *Client) ChangePassword(ctx context.Context, current, next, confirm string) (string, error) {
	if len(next) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if next != confirm {
		return "", ErrPasswordMismatch
	}
	var out envelope
	payload := map[string]string{
		"current_password": current,
		"new_password":     next,
		"confirm_password": confirm,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/account/change-password", payload, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// DeleteAccount removes the account and forgets the local session.
func (c *Client) DeleteAccount(ctx context.Context, password string) (string, error) {
	var out envelope
	if err := c.doJSON(ctx, http.MethodPost, "/account/delete", map[string]string{"password": password}, &out); err != nil {
		return "", err
	}
	if err := c.sessions.Clear(); err != nil {
		c.log.Warn("clear session", "error", err)
	}
	return out.Message, nil
}

func (c *Client) saveSession(acct Account, remember bool) error {
	s := session.Session{
		Username: acct.Username,
		Guest:    acct.IsGuest,
		Remember: remember,
		Cookies:  session.FromHTTPCookies(c.http.Jar.Cookies(c.base)),
	}
	if err := c.sessions.Set(s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// doJSON sends a request with an optional JSON body under the request
// timeout and decodes a JSON reply into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: request timed out: %w", req.Method, req.URL.Path, err)
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s reply: %w", req.URL.Path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		if json.Unmarshal(data, &env) != nil {
			env.Error = strings.TrimSpace(string(data))
		}
		return newAPIError(resp.StatusCode, env)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", req.URL.Path, err)
	}
	return nil
}
