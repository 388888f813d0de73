// Package uploadqueue owns the client-side upload queue: validation on the
// way in, strictly sequential transfers on the way out, a per-run limit on
// settled jobs, and events describing every change for whatever renders it.
package uploadqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/snapdrop/internal/config"
	"github.com/dharsanguruparan/snapdrop/internal/media"
	"github.com/dharsanguruparan/snapdrop/internal/model"
)

// Transferer uploads one file and returns the stored artifact's identifier.
type Transferer interface {
	Transfer(ctx context.Context, file model.File) (model.Receipt, error)
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, file model.File) (model.Receipt, error)

func (f TransferFunc) Transfer(ctx context.Context, file model.File) (model.Receipt, error) {
	return f(ctx, file)
}

// Notifier surfaces a transient banner to the user.
type Notifier interface {
	Notify(message string, severity model.Severity)
}

const (
	msgWaitForUploads = "Please wait for current uploads to complete or cancel them first."
	msgRateLimited    = "Upload limit reached. Please wait 1 minute before uploading more files."
	msgCleared        = "Upload queue cleared."
)

// Options configures queue policy and timing.
type Options struct {
	Capacity        int
	RateLimit       int
	Policy          media.Policy
	UploadPause     time.Duration
	TransferTimeout time.Duration
	SubmitCooldown  time.Duration
	ResetDelay      time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// OptionsFromConfig copies the queue settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Capacity:  cfg.QueueCapacity,
		RateLimit: cfg.RateLimit,
		Policy: media.Policy{
			MaxImageBytes: cfg.MaxImageBytes,
			MaxVideoBytes: cfg.MaxVideoBytes,
		},
		UploadPause:     cfg.UploadPause,
		TransferTimeout: cfg.TransferTimeout,
		SubmitCooldown:  cfg.SubmitCooldown,
		ResetDelay:      cfg.ResetDelay,
	}
}

// EnqueueResult describes what happened to a batch of candidates.
type EnqueueResult struct {
	Added    []model.UploadJob
	Rejected []*ValidationError
	// Overflow is set when files were dropped because the queue was full.
	Overflow *CapacityError
}

// Result summarizes one processing run.
type Result struct {
	Total     int
	Completed int
	Failed    int
	Pending   int

	Failures  []*TransferError
	RateLimit *RateLimitError
	// Canceled is true when the queue was cleared while the run was active.
	Canceled bool
	// FirstIdentifier is the artifact id of the first successful job.
	FirstIdentifier string
	// NavigateTo is set when a single-file batch succeeded.
	NavigateTo string
}

// Controller is the application state for the upload view. All methods are
// safe for concurrent use; the lock is never held across a transfer, a pause,
// or a call into a notifier or listener.
type Controller struct {
	transfer Transferer
	notifier Notifier
	opts     Options
	clock    Clock
	log      *slog.Logger

	mu         sync.Mutex
	jobs       []model.UploadJob
	submitted  bool
	processing bool
	// generation changes on every reset so stale transfers and timers can
	// tell their queue is gone.
	generation   uint64
	resetPending bool
	stopCooldown func() bool
	stopReset    func() bool

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New builds a Controller. A nil notifier discards notices.
func New(transfer Transferer, notifier Notifier, opts Options) *Controller {
	if opts.Capacity <= 0 {
		opts.Capacity = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Policy.MaxImageBytes <= 0 {
		opts.Policy.MaxImageBytes = 10 << 20
	}
	if opts.Policy.MaxVideoBytes <= 0 {
		opts.Policy.MaxVideoBytes = 50 << 20
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 2 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		transfer:  transfer,
		notifier:  notifier,
		opts:      opts,
		clock:     clock,
		log:       logger.With("component", "uploadqueue"),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l for queue events and returns a func that removes it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

// Enqueue validates candidates in order and appends the accepted ones. It
// fails only with ErrSubmitted; per-file problems are reported in the result
// and as notices.
func (c *Controller) Enqueue(files ...model.File) (EnqueueResult, error) {
	var res EnqueueResult
	if len(files) == 0 {
		return res, nil
	}

	c.mu.Lock()
	if c.submitted {
		c.mu.Unlock()
		c.notify(msgWaitForUploads, model.SeverityError)
		return res, ErrSubmitted
	}
	var events []Event
	if c.resetPending {
		// A fully uploaded batch is still on display; clear it before the
		// next selection joins.
		events = append(events, c.resetLocked()...)
	}

	dropped := 0
	for _, f := range files {
		if len(c.jobs) >= c.opts.Capacity {
			dropped++
			continue
		}
		kind, err := c.opts.Policy.Check(f.ContentType, f.Size)
		if err != nil {
			verr := &ValidationError{File: f, Kind: kind, Err: err}
			var sizeErr *media.SizeError
			if errors.As(err, &sizeErr) {
				verr.Limit = sizeErr.Limit
			}
			res.Rejected = append(res.Rejected, verr)
			continue
		}
		job := model.UploadJob{
			ID:         uuid.NewString(),
			Index:      len(c.jobs),
			File:       f,
			Status:     model.StatusPending,
			EnqueuedAt: c.clock.Now(),
		}
		c.jobs = append(c.jobs, job)
		res.Added = append(res.Added, job)
		events = append(events, Event{Kind: EventJobAdded, Job: job})
	}
	if dropped > 0 {
		res.Overflow = &CapacityError{Capacity: c.opts.Capacity, Dropped: dropped}
	}
	events = append(events, c.summaryEventsLocked()...)
	c.mu.Unlock()

	for _, verr := range res.Rejected {
		c.log.Info("file skipped", "file", verr.File.Name, "type", verr.File.ContentType, "size", verr.File.Size, "reason", verr.Err)
		c.notify(verr.Notice(), model.SeverityError)
	}
	if res.Overflow != nil {
		c.notify(fmt.Sprintf("Maximum %d files allowed. Remove some files first.", c.opts.Capacity), model.SeverityError)
	}
	c.publish(events...)
	return res, nil
}

// Remove deletes the job at index and re-indexes the jobs after it.
func (c *Controller) Remove(index int) (model.UploadJob, error) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return model.UploadJob{}, ErrProcessing
	}
	if index < 0 || index >= len(c.jobs) {
		c.mu.Unlock()
		return model.UploadJob{}, ErrIndexOutOfRange
	}
	removed := c.jobs[index]
	jobs := make([]model.UploadJob, 0, len(c.jobs)-1)
	jobs = append(jobs, c.jobs[:index]...)
	jobs = append(jobs, c.jobs[index+1:]...)
	for i := range jobs {
		jobs[i].Index = i
	}
	c.jobs = jobs

	events := []Event{{Kind: EventJobRemoved, Job: removed}}
	events = append(events, c.summaryEventsLocked()...)
	if len(c.jobs) == 0 {
		events = append(events, Event{Kind: EventQueueReset})
	}
	done := c.allCompletedLocked()
	if done {
		c.scheduleResetLocked()
	}
	c.mu.Unlock()

	c.publish(events...)
	if done {
		c.notifyAllUploaded(len(jobs))
	}
	return removed, nil
}

// Process uploads pending jobs one at a time in index order. Individual
// failures are recorded on their job and do not stop the run; only the rate
// limit, a reset, or ctx ends it early.
func (c *Controller) Process(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return Result{}, ErrProcessing
	}
	if len(c.jobs) == 0 {
		c.mu.Unlock()
		return Result{}, ErrEmptyQueue
	}
	c.cancelTimersLocked()
	c.submitted = true
	c.processing = true
	gen := c.generation
	batchSize := len(c.jobs)
	events := append([]Event{{Kind: EventInputDisabled}}, c.summaryEventsLocked()...)
	c.mu.Unlock()
	c.publish(events...)

	c.log.Info("processing upload queue", "jobs", batchSize)

	var (
		res      Result
		runErr   error
		settled  int
		firstID  string
		canceled bool
	)
	for i := 0; ; i++ {
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			canceled = true
			break
		}
		if i >= len(c.jobs) {
			c.mu.Unlock()
			break
		}
		if c.jobs[i].Status != model.StatusPending {
			c.mu.Unlock()
			continue
		}
		if settled >= c.opts.RateLimit {
			pending := model.ComputeStats(c.jobs).Pending
			c.mu.Unlock()
			res.RateLimit = &RateLimitError{Threshold: c.opts.RateLimit, Pending: pending}
			c.log.Info("upload limit reached", "settled", settled, "pending", pending)
			c.notify(msgRateLimited, model.SeverityInfo)
			break
		}
		c.jobs[i].Status = model.StatusUploading
		c.jobs[i].Progress = 0
		job := c.jobs[i]
		c.mu.Unlock()
		c.publish(Event{Kind: EventJobUpdated, Job: job})

		receipt, err := c.transferOne(ctx, job)

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			c.log.Info("discarding upload result for cleared queue", "file", job.File.Name, "job", job.ID)
			canceled = true
			break
		}
		settled++
		current := &c.jobs[i]
		current.SettledAt = c.clock.Now()
		if err != nil {
			current.Status = model.StatusFailed
			current.Progress = 0
			current.Reason = err.Error()
			res.Failures = append(res.Failures, &TransferError{Job: *current, Err: err})
		} else {
			current.Status = model.StatusCompleted
			current.Progress = 100
			current.Identifier = receipt.ID
			current.URL = receipt.URL
			if firstID == "" {
				firstID = receipt.ID
			}
		}
		job = *current
		last := !c.pendingAfterLocked(i)
		stats := model.ComputeStats(c.jobs)
		c.mu.Unlock()

		c.publish(Event{Kind: EventJobUpdated, Job: job}, Event{Kind: EventStats, Stats: stats})
		if err != nil {
			c.log.Warn("upload failed", "file", job.File.Name, "job", job.ID, "error", err)
		} else {
			c.log.Info("upload completed", "file", job.File.Name, "job", job.ID, "identifier", job.Identifier)
			if batchSize == 1 {
				res.NavigateTo = job.Identifier
				c.notify(fmt.Sprintf("File %q uploaded successfully! Showing details...", job.File.Name), model.SeveritySuccess)
				c.publish(Event{Kind: EventNavigate, Identifier: job.Identifier, Job: job})
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = ctxErr
			break
		}
		if !last {
			if sleepErr := c.clock.Sleep(ctx, c.opts.UploadPause); sleepErr != nil {
				runErr = sleepErr
				break
			}
		}
	}

	res.FirstIdentifier = firstID
	if canceled {
		res.Canceled = true
		c.log.Info("upload run ended by reset")
		return res, runErr
	}
	c.finish(gen, &res)
	return res, runErr
}

func (c *Controller) transferOne(ctx context.Context, job model.UploadJob) (model.Receipt, error) {
	tctx, cancel := context.WithTimeout(ctx, c.opts.TransferTimeout)
	defer cancel()
	c.log.Debug("upload started", "file", job.File.Name, "job", job.ID, "size", job.File.Size)
	receipt, err := c.transfer.Transfer(tctx, job.File)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return receipt, fmt.Errorf("upload timed out after %s: %w", c.opts.TransferTimeout, err)
	}
	return receipt, err
}

func (c *Controller) finish(gen uint64, res *Result) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		res.Canceled = true
		return
	}
	c.processing = false
	stats := model.ComputeStats(c.jobs)
	res.Total = stats.Total
	res.Completed = stats.Completed
	res.Failed = stats.Failed
	res.Pending = stats.Pending

	// Submitted stays set briefly so a second click cannot resubmit at once.
	c.stopCooldown = c.clock.AfterFunc(c.opts.SubmitCooldown, func() {
		c.mu.Lock()
		if c.generation != gen || c.processing {
			c.mu.Unlock()
			return
		}
		c.submitted = false
		c.stopCooldown = nil
		events := c.summaryEventsLocked()
		c.mu.Unlock()
		c.publish(events...)
	})
	done := c.allCompletedLocked()
	if done {
		c.scheduleResetLocked()
	}
	// Stats were already published when the last job settled.
	events := []Event{{Kind: EventInputEnabled}, {Kind: EventSummary, Summary: c.summaryLocked()}}
	c.mu.Unlock()

	c.publish(events...)
	c.log.Info("upload run finished", "completed", stats.Completed, "failed", stats.Failed, "pending", stats.Pending)
	if done {
		c.notifyAllUploaded(stats.Completed)
	}
}

// Cancel discards the whole queue immediately. A transfer already on the
// wire is not aborted, but its result is ignored.
func (c *Controller) Cancel() {
	c.mu.Lock()
	hadJobs := len(c.jobs) > 0
	events := c.resetLocked()
	c.mu.Unlock()
	c.publish(events...)
	if hadJobs {
		c.notify(msgCleared, model.SeverityInfo)
	}
}

// Reset empties the queue and clears all flags, as when leaving the upload
// view.
func (c *Controller) Reset() {
	c.mu.Lock()
	events := c.resetLocked()
	c.mu.Unlock()
	c.publish(events...)
}

// Jobs returns a snapshot of the queue in index order.
func (c *Controller) Jobs() []model.UploadJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.UploadJob, len(c.jobs))
	copy(out, c.jobs)
	return out
}

// Stats returns the current aggregate counts.
func (c *Controller) Stats() model.QueueStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ComputeStats(c.jobs)
}

// Summary returns the submit control state.
func (c *Controller) Summary() model.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

// Submitted reports whether new files are currently refused.
func (c *Controller) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// Processing reports whether the upload loop is running.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

func (c *Controller) resetLocked() []Event {
	c.generation++
	c.cancelTimersLocked()
	c.jobs = nil
	c.submitted = false
	c.processing = false
	return []Event{
		{Kind: EventQueueReset},
		{Kind: EventInputEnabled},
		{Kind: EventSummary, Summary: model.Summary{}},
		{Kind: EventStats, Stats: model.QueueStats{}},
	}
}

func (c *Controller) cancelTimersLocked() {
	if c.stopCooldown != nil {
		c.stopCooldown()
		c.stopCooldown = nil
	}
	if c.stopReset != nil {
		c.stopReset()
		c.stopReset = nil
	}
	c.resetPending = false
}

func (c *Controller) scheduleResetLocked() {
	if c.resetPending {
		return
	}
	gen := c.generation
	c.resetPending = true
	c.stopReset = c.clock.AfterFunc(c.opts.ResetDelay, func() {
		c.mu.Lock()
		if c.generation != gen || !c.resetPending {
			c.mu.Unlock()
			return
		}
		c.stopReset = nil
		events := c.resetLocked()
		c.mu.Unlock()
		c.publish(events...)
	})
}

func (c *Controller) pendingAfterLocked(i int) bool {
	for _, job := range c.jobs[i+1:] {
		if job.Status == model.StatusPending {
			return true
		}
	}
	return false
}

func (c *Controller) allCompletedLocked() bool {
	if c.processing {
		return false
	}
	stats := model.ComputeStats(c.jobs)
	return stats.Total > 0 && stats.Completed == stats.Total
}

func (c *Controller) notifyAllUploaded(n int) {
	c.notify(fmt.Sprintf("All %d files uploaded successfully!", n), model.SeveritySuccess)
}

func (c *Controller) summaryLocked() model.Summary {
	return model.Summary{
		FileCount:     len(c.jobs),
		SubmitEnabled: len(c.jobs) > 0 && !c.processing && !c.submitted,
	}
}

func (c *Controller) summaryEventsLocked() []Event {
	return []Event{
		{Kind: EventSummary, Summary: c.summaryLocked()},
		{Kind: EventStats, Stats: model.ComputeStats(c.jobs)},
	}
}

func (c *Controller) notify(msg string, severity model.Severity) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(msg, severity)
}

func (c *Controller) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.lmu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.lmu.RUnlock()
	for _, e := range events {
		for _, l := range listeners {
			l.HandleEvent(e)
		}
	}
}
