// Package model contains simple struct definitions shared across packages.
package model

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

// JobStatus describes the upload lifecycle of a queued file. A named string
// type keeps the four states from being mixed up with arbitrary strings.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusUploading JobStatus = "uploading"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions can happen for the status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrNoContent is returned by File.Open when the file has no opener.
var ErrNoContent = errors.New("file has no content source")

// File is a candidate payload: a name, a byte length and a declared media
// type. The bytes themselves are only read when Open is called, which keeps
// large videos off the heap until the transfer starts.
type File struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	// Path is set when the file came from the local filesystem.
	Path   string                        `json:"path,omitempty"`
	Opener func() (io.ReadCloser, error) `json:"-"`
}

// Open returns a fresh reader over the file contents.
func (f File) Open() (io.ReadCloser, error) {
	if f.Opener != nil {
		return f.Opener()
	}
	if f.Path != "" {
		return os.Open(f.Path)
	}
	return nil, ErrNoContent
}

// BytesFile builds an in-memory File, handy for tests and small payloads.
func BytesFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Opener: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// SizedFile builds a File that reports size bytes without holding them.
// Reading it yields size zero bytes.
func SizedFile(name, contentType string, size int64) File {
	return File{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Opener: func() (io.ReadCloser, error) {
			return io.NopCloser(io.LimitReader(zeroReader{}, size)), nil
		},
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// Receipt is what the remote side hands back for a stored artifact.
type Receipt struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// UploadJob is one file's upload attempt within the queue.
type UploadJob struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	File  File   `json:"file"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	// Identifier is the server-assigned artifact id once completed.
	Identifier string `json:"identifier,omitempty"`
	URL        string `json:"url,omitempty"`
	// Reason keeps the failure message for display until the queue resets.
	Reason string `json:"reason,omitempty"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
	SettledAt  time.Time `json:"settledAt,omitempty"`
}

// StatusText is the inline status string shown next to a queue row.
func (j UploadJob) StatusText() string {
	switch j.Status {
	case StatusUploading:
		return "Uploading..."
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		if j.Reason == "" {
			return "Failed - Unknown error"
		}
		return "Failed - " + j.Reason
	default:
		return "Pending..."
	}
}
