// Package worker consumes upload journal tasks and stores them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/snapdrop/internal/queue"
	"github.com/dharsanguruparan/snapdrop/internal/repository"
)

// Recorder persists journal rows.
type Recorder interface {
	Record(ctx context.Context, u *repository.Upload) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo Recorder
	log  *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo Recorder, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{repo: repo, log: logger.With("component", "journal-worker")}
}

// Handler registers the record job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RecordUploadTask, p.handleRecord)
	return mux
}

func (p *Processor) handleRecord(ctx context.Context, task *asynq.Task) error {
	var payload queue.RecordPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// a malformed payload will never decode, retrying is pointless
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.FileName == "" {
		return fmt.Errorf("record without job id or file name: %w", asynq.SkipRetry)
	}
	row := &repository.Upload{
		JobID:       payload.JobID,
		FileName:    payload.FileName,
		ContentType: payload.ContentType,
		Size:        payload.Size,
		Status:      payload.Status,
		Identifier:  optional(payload.Identifier),
		URL:         optional(payload.URL),
		Reason:      optional(payload.Reason),
		Backend:     payload.Backend,
		Target:      payload.Target,
		SettledAt:   payload.SettledAt,
	}
	if err := p.repo.Record(ctx, row); err != nil {
		p.log.Warn("record upload failed", "job", payload.JobID, "error", err)
		return err
	}
	p.log.Info("upload recorded", "job", payload.JobID, "file", payload.FileName, "status", payload.Status)
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsPermanent reports whether err tells asynq not to retry.
func IsPermanent(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
