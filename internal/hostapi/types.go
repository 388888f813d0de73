package hostapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Identifier is a server-assigned artifact id. The host sends it as a JSON
// number; strings are accepted too.
type Identifier string

func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	*id = Identifier(n.String())
	return nil
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id Identifier) String() string { return string(id) }

// Time accepts RFC 3339 timestamps as well as ISO timestamps without a zone,
// which are read as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// StatusReport is the body of GET /status.
type StatusReport struct {
	StatusCode int `json:"status_code"`
}

// Operational reports whether the host says all systems are up.
func (s StatusReport) Operational() bool { return s.StatusCode == 200 }

// Announcement is a message broadcast by the host operators.
type Announcement struct {
	Message   string `json:"message"`
	CreatedAt Time   `json:"created_at"`
}

// AuthStatus is the body of GET /auth_status.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	IsGuest       bool   `json:"is_guest,omitempty"`
	// LastSeenIPHash matches LoginSession.HashedIP for the caller's own
	// address.
	LastSeenIPHash string `json:"last_seen_ip_hash,omitempty"`
}

// Account is returned by login, register and guest login.
type Account struct {
	Username string `json:"username"`
	IsGuest  bool   `json:"is_guest"`
	Message  string `json:"message,omitempty"`
}

// UploadResponse is the body of POST /upload.
type UploadResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	DetailsID Identifier `json:"details_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Image is one gallery entry.
type Image struct {
	ID             Identifier `json:"id"`
	URL            string     `json:"url"`
	Filename       string     `json:"filename"`
	UploadDate     Time       `json:"upload_date"`
	ExpiresAt      *Time      `json:"expires_at"`
	IsExpiringSoon bool       `json:"is_expiring_soon"`
}

// ImageDetails is the body of GET /image/{id}.
type ImageDetails struct {
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	UploadDate Time   `json:"upload_date"`
	ExpiresAt  *Time  `json:"expires_at"`
	IsOwner    bool   `json:"is_owner"`
}

// LoginSession is one entry of GET /account/sessions.
type LoginSession struct {
	UserAgent string `json:"user_agent"`
	LoginAt   Time   `json:"login_at"`
	HashedIP  string `json:"hashed_ip"`
}

// envelope carries the fields every JSON reply may have.
type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
