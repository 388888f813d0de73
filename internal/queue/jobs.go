// Package queue publishes upload journal entries as asynq tasks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/uploadqueue"
)

const (
	// RecordUploadTask is scheduled each time a queued upload settles.
	RecordUploadTask = "upload:record"
)

// RecordPayload is serialized into the task payload so the journal worker
// can store the outcome without talking to the host.
type RecordPayload struct {
	JobID       string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Status      string    `json:"status"`
	Identifier  string    `json:"identifier,omitempty"`
	URL         string    `json:"url,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Backend     string    `json:"backend"`
	Target      string    `json:"target"`
	SettledAt   time.Time `json:"settled_at"`
}

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewRecordTask builds the task for one settled upload.
func NewRecordTask(payload RecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(RecordUploadTask, data), nil
}

// EnqueueRecord enqueues a journal entry.
func EnqueueRecord(ctx context.Context, client Enqueuer, payload RecordPayload) error {
	task, err := NewRecordTask(payload)
	if err != nil {
		return err
	}
	// The job id doubles as the task id so a replayed event is not stored twice.
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.TaskID(payload.JobID)); err != nil {
		return fmt.Errorf("enqueue record task: %w", err)
	}
	return nil
}

// Publisher turns settled jobs into journal tasks. It is a queue listener.
// Records are handed to a background goroutine so a slow or unreachable
// Redis never stalls the upload loop; Close flushes what is buffered.
type Publisher struct {
	client  Enqueuer
	backend string
	target  string
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	closed  bool
	records chan RecordPayload
	done    chan struct{}
}

// backlog holds more than a full queue so one batch never drops entries.
const backlog = 64

// NewPublisher returns a running Publisher labelling entries with backend and
// target. Callers must Close it.
func NewPublisher(client Enqueuer, backend, target string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:  client,
		backend: backend,
		target:  target,
		timeout: 5 * time.Second,
		log:     logger.With("component", "journal"),
		records: make(chan RecordPayload, backlog),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// HandleEvent queues a record for every job that reached a terminal state.
// It never waits on Redis; a full backlog drops the entry with a warning.
func (p *Publisher) HandleEvent(e uploadqueue.Event) {
	if e.Kind != uploadqueue.EventJobUpdated || !e.Job.Status.Terminal() {
		return
	}
	payload := p.payload(e.Job)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("journal closed, entry dropped", "job", payload.JobID, "file", payload.FileName)
		return
	}
	select {
	case p.records <- payload:
	default:
		p.log.Warn("journal backlog full, entry dropped", "job", payload.JobID, "file", payload.FileName)
	}
}

// Close stops accepting records and waits until the buffered ones are sent
// or ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.records)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush journal: %w", ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for payload := range p.records {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := EnqueueRecord(ctx, p.client, payload)
		cancel()
		if err != nil {
			p.log.Warn("journal entry dropped", "job", payload.JobID, "file", payload.FileName, "error", err)
		}
	}
}

func (p *Publisher) payload(job model.UploadJob) RecordPayload {
	settled := job.SettledAt
	if settled.IsZero() {
		settled = time.Now()
	}
	return RecordPayload{
		JobID:       job.ID,
		FileName:    job.File.Name,
		ContentType: job.File.ContentType,
		Size:        job.File.Size,
		Status:      string(job.Status),
		Identifier:  job.Identifier,
		URL:         job.URL,
		Reason:      job.Reason,
		Backend:     p.backend,
		Target:      p.target,
		SettledAt:   settled.UTC(),
	}
}
