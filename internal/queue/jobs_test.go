package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/uploadqueue"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
	// gate, when set, holds every enqueue until it is closed.
	gate chan struct{}
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) recorded() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

func closePublisher(t *testing.T, pub *Publisher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pub.Close(ctx))
}

func settledJob(status model.JobStatus) model.UploadJob {
	return model.UploadJob{
		ID:         "job-1",
		File:       model.SizedFile("a.png", "image/png", 2048),
		Status:     status,
		Identifier: "17",
		SettledAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisherRecordsTerminalJobs(t *testing.T) {
	enq := &fakeEnqueuer{}
	pub := NewPublisher(enq, "http", "http://host", nil)

	pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusUploading)})
	pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventStats})
	pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusCompleted)})
	closePublisher(t, pub)

	tasks := enq.recorded()
	require.Len(t, tasks, 1)
	assert.Equal(t, RecordUploadTask, tasks[0].Type())

	var payload RecordPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &payload))
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "a.png", payload.FileName)
	assert.Equal(t, int64(2048), payload.Size)
	assert.Equal(t, "completed", payload.Status)
	assert.Equal(t, "17", payload.Identifier)
	assert.Equal(t, "http", payload.Backend)
	assert.Equal(t, "http://host", payload.Target)
}

func TestPublisherSwallowsErrors(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	pub := NewPublisher(enq, "s3", "bucket", nil)
	assert.NotPanics(t, func() {
		pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusFailed)})
	})
	closePublisher(t, pub)
	assert.Empty(t, enq.recorded())
}

func TestPublisherDoesNotWaitOnRedis(t *testing.T) {
	enq := &fakeEnqueuer{gate: make(chan struct{})}
	pub := NewPublisher(enq, "http", "http://host", nil)

	start := time.Now()
	for range 3 {
		pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusCompleted)})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, enq.recorded())

	close(enq.gate)
	closePublisher(t, pub)
	assert.Len(t, enq.recorded(), 3)
}

func TestPublisherCloseHonorsContext(t *testing.T) {
	enq := &fakeEnqueuer{gate: make(chan struct{})}
	defer close(enq.gate)
	pub := NewPublisher(enq, "http", "http://host", nil)
	pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusCompleted)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Close(ctx), context.Canceled)

	// Entries after Close are dropped instead of panicking on a closed channel.
	assert.NotPanics(t, func() {
		pub.HandleEvent(uploadqueue.Event{Kind: uploadqueue.EventJobUpdated, Job: settledJob(model.StatusFailed)})
	})
}

func TestEnqueueRecordWrapsError(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	err := EnqueueRecord(context.Background(), enq, RecordPayload{JobID: "x"})
	assert.ErrorContains(t, err, "enqueue record task: redis down")
}
