package uploadqueue

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/snapdrop/internal/media"
	"github.com/dharsanguruparan/snapdrop/internal/model"
)

var (
	// ErrSubmitted rejects enqueue while a submitted batch has not been
	// cleared yet.
	ErrSubmitted = errors.New("uploads already submitted")
	// ErrProcessing rejects a second Process call, or a removal, while the
	// loop is running.
	ErrProcessing = errors.New("upload queue is processing")
	// ErrEmptyQueue is returned by Process when nothing is queued.
	ErrEmptyQueue = errors.New("upload queue is empty")
	// ErrIndexOutOfRange is returned by Remove for an unknown index.
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

// ValidationError explains why a candidate file was skipped.
type ValidationError struct {
	File model.File
	Kind media.Kind
	// Limit is set when the file was too large for its kind.
	Limit int64
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.File.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Notice renders the banner text shown for the skipped file.
func (e *ValidationError) Notice() string {
	if errors.Is(e.Err, media.ErrInvalidType) {
		return fmt.Sprintf("File %q has invalid type. Skipped.", e.File.Name)
	}
	return fmt.Sprintf("File %q exceeds size limit for %s (%s). Skipped.", e.File.Name, e.Kind.Label(), media.FormatSize(e.Limit))
}

// CapacityError reports files dropped from a batch because the queue was full.
type CapacityError struct {
	Capacity int
	Dropped  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("queue capacity %d reached, %d file(s) dropped", e.Capacity, e.Dropped)
}

// TransferError records a failed upload for one job. It never aborts the
// batch.
type TransferError struct {
	Job model.UploadJob
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Job.File.Name, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// RateLimitError reports that a processing run stopped early because the
// terminal-job threshold was reached.
type RateLimitError struct {
	Threshold int
	Pending   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upload limit of %d reached, %d file(s) still pending", e.Threshold, e.Pending)
}
