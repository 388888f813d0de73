// Package media classifies declared media types and applies the per-kind
// size ceilings enforced before a file may join the upload queue.
package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Kind is the category a declared media type falls into.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindRejected Kind = "rejected"
)

// Label is the capitalized name used in notices.
func (k Kind) Label() string {
	switch k {
	case KindImage:
		return "Image"
	case KindVideo:
		return "Video"
	default:
		return "File"
	}
}

var imageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpg":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

var videoTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/mov":       {},
	"video/avi":       {},
	"video/mkv":       {},
	"video/flv":       {},
	"video/quicktime": {},
}

// Classify maps a declared media type onto exactly one Kind. Parameters such
// as "; charset=" are ignored and matching is case-insensitive.
func Classify(contentType string) Kind {
	mt := normalize(contentType)
	if _, ok := imageTypes[mt]; ok {
		return KindImage
	}
	if _, ok := videoTypes[mt]; ok {
		return KindVideo
	}
	if strings.HasPrefix(mt, "video/") && len(mt) > len("video/") {
		return KindVideo
	}
	return KindRejected
}

func normalize(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Policy holds the size ceiling for each accepted kind.
type Policy struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

// Limit returns the ceiling for kind, or zero when the kind is not accepted.
func (p Policy) Limit(kind Kind) int64 {
	switch kind {
	case KindImage:
		return p.MaxImageBytes
	case KindVideo:
		return p.MaxVideoBytes
	default:
		return 0
	}
}

// Check classifies contentType and verifies size against the ceiling. The
// returned error is one of ErrInvalidType or a *SizeError.
func (p Policy) Check(contentType string, size int64) (Kind, error) {
	kind := Classify(contentType)
	if kind == KindRejected {
		return kind, ErrInvalidType
	}
	if limit := p.Limit(kind); size > limit {
		return kind, &SizeError{Kind: kind, Size: size, Limit: limit}
	}
	return kind, nil
}

// ErrInvalidType means the declared type is neither an allowed image nor a
// video type.
var ErrInvalidType = errors.New("invalid media type")

// SizeError reports a file larger than its kind allows.
type SizeError struct {
	Kind  Kind
	Size  int64
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s exceeds size limit of %s", strings.ToLower(e.Kind.Label()), FormatSize(e.Limit))
}

// FormatSize renders bytes in binary units ("10 MiB").
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}
