package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/config"
	"github.com/dharsanguruparan/snapdrop/internal/filesource"
	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/notify"
	"github.com/dharsanguruparan/snapdrop/internal/queue"
	"github.com/dharsanguruparan/snapdrop/internal/s3storage"
	"github.com/dharsanguruparan/snapdrop/internal/uploadqueue"
)

type uploadOptions struct {
	dir       string
	recursive bool
	backend   string
	journal   bool
	yes       bool
}

func newUploadCmd(global *globalOptions) *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Queue files and upload them one at a time",
		Long: `Queue local images and videos and upload them sequentially.

Files that are not images or videos, or that exceed the size ceiling for their
kind, are skipped with a notice. At most 10 files are queued and a run stops
once 5 uploads have settled; the rest stay pending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.dir == "" {
				return errors.New("no files given; pass paths or --dir")
			}
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), a, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Queue every file in this directory")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "Descend into subdirectories of --dir")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Upload backend: http or s3 (overrides config)")
	cmd.Flags().BoolVar(&opts.journal, "journal", false, "Record settled uploads in the journal")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Start without asking for confirmation")
	return cmd
}

func runUpload(ctx context.Context, a *app, opts *uploadOptions, paths []string) error {
	if opts.backend != "" {
		a.cfg.Backend = opts.backend
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	transfer, target, err := openBackend(ctx, a)
	if err != nil {
		return err
	}

	banner := a.banner()
	ctrlOpts := uploadqueue.OptionsFromConfig(a.cfg)
	ctrlOpts.Logger = a.log
	ctrl := uploadqueue.New(transfer, notify.Multi(banner, notify.NewLogger(a.log)), ctrlOpts)

	progress := newProgressPrinter(a)
	unsubscribe := ctrl.Subscribe(progress)
	defer unsubscribe()

	if opts.journal {
		if err := a.cfg.ValidateJournal(); err != nil {
			return err
		}
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		defer client.Close()
		journal := queue.NewPublisher(client, a.cfg.Backend, target, a.log)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := journal.Close(flushCtx); err != nil {
				a.log.Warn("journal entries may be missing", "error", err)
			}
		}()
		stop := ctrl.Subscribe(journal)
		defer stop()
	}

	src := filesource.Paths(paths...)
	if opts.dir != "" {
		src = filesource.Concat(src, filesource.Dir(opts.dir, opts.recursive))
	}
	files, errs := filesource.Collect(src)
	for _, err := range errs {
		banner.Notify(err.Error(), model.SeverityError)
	}
	if _, err := ctrl.Enqueue(files...); err != nil {
		return err
	}
	if len(ctrl.Jobs()) == 0 {
		return errors.New("nothing to upload")
	}

	fmt.Fprintln(a.out, renderJobs(ctrl.Jobs()))
	if !opts.yes {
		ok, err := newPrompter(a.in, a.out).confirm(fmt.Sprintf("Upload %d file(s) to %s?", ctrl.Summary().FileCount, target))
		if err != nil {
			return err
		}
		if !ok {
			ctrl.Reset()
			return nil
		}
	}

	res, err := processUntilInterrupted(ctx, ctrl)
	if err != nil {
		return err
	}
	if res.Canceled {
		return context.Canceled
	}

	// A fully uploaded batch clears itself after the reset delay, so the
	// summary comes from what the printer saw rather than the controller.
	jobs := progress.snapshot()
	fmt.Fprintln(a.out, renderJobs(jobs))
	fmt.Fprintln(a.out, uploadqueue.StatsLine(model.QueueStats{
		Total:     res.Total,
		Completed: res.Completed,
		Failed:    res.Failed,
		Pending:   res.Pending,
	}))
	if res.NavigateTo != "" {
		if err := showUploaded(ctx, a, res.NavigateTo, jobs); err != nil {
			a.log.Debug("upload details unavailable", "id", res.NavigateTo, "error", err)
		}
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d upload(s) failed", res.Failed, res.Total)
	}
	return nil
}

// processUntilInterrupted runs the queue and turns cancellation of ctx into
// Controller.Cancel: the transfer on the wire finishes, its result is
// discarded, and the queue is cleared.
func processUntilInterrupted(ctx context.Context, ctrl *uploadqueue.Controller) (uploadqueue.Result, error) {
	stop := context.AfterFunc(ctx, ctrl.Cancel)
	defer stop()
	return ctrl.Process(context.WithoutCancel(ctx))
}

// openBackend returns the transfer for the configured backend and a label
// for where files end up.
func openBackend(ctx context.Context, a *app) (uploadqueue.Transferer, string, error) {
	switch a.cfg.Backend {
	case config.BackendS3:
		store, err := s3storage.New(a.cfg)
		if err != nil {
			return nil, "", err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, "", err
		}
		return store, "s3://" + store.Bucket(), nil
	default:
		client, err := a.hostClient()
		if err != nil {
			return nil, "", err
		}
		status, err := client.AuthStatus(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("check sign-in: %w", err)
		}
		if !status.Authenticated {
			return nil, "", errors.New("not signed in; run `snapdrop login` or `snapdrop guest` first")
		}
		return client, client.BaseURL(), nil
	}
}

// showUploaded prints the single uploaded file's details. For the http
// backend this is the host's image page; otherwise the job's own receipt.
func showUploaded(ctx context.Context, a *app, id string, jobs []model.UploadJob) error {
	if a.cfg.Backend == config.BackendHTTP {
		client, err := a.hostClient()
		if err != nil {
			return err
		}
		return printImage(ctx, a, client, id)
	}
	for _, job := range jobs {
		if job.Identifier == id {
			a.printf("Uploaded %s\n  id:  %s\n  url: %s\n", job.File.Name, job.Identifier, job.URL)
			return nil
		}
	}
	return fmt.Errorf("job %s not found", id)
}

func renderJobs(jobs []model.UploadJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.Itoa(job.Index + 1),
			job.File.Name,
			job.File.ContentType,
			humanize.IBytes(uint64(max(job.File.Size, 0))),
			job.StatusText(),
		})
	}
	return renderTable(
		[]string{"#", "File", "Type", "Size", "Status"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// progressPrinter reports each job as it settles and remembers the last
// state of every job it has seen.
type progressPrinter struct {
	a *app

	mu        sync.Mutex
	jobs      map[string]model.UploadJob
	lastStats string
}

func newProgressPrinter(a *app) *progressPrinter {
	return &progressPrinter{a: a, jobs: make(map[string]model.UploadJob)}
}

func (p *progressPrinter) snapshot() []model.UploadJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	jobs := make([]model.UploadJob, 0, len(p.jobs))
	for _, job := range p.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(x, y model.UploadJob) int { return x.Index - y.Index })
	return jobs
}

func (p *progressPrinter) HandleEvent(e uploadqueue.Event) {
	switch e.Kind {
	case uploadqueue.EventJobAdded:
		p.mu.Lock()
		p.jobs[e.Job.ID] = e.Job
		p.mu.Unlock()
	case uploadqueue.EventJobRemoved:
		p.mu.Lock()
		delete(p.jobs, e.Job.ID)
		p.mu.Unlock()
	case uploadqueue.EventJobUpdated:
		p.mu.Lock()
		p.jobs[e.Job.ID] = e.Job
		p.mu.Unlock()
		switch e.Job.Status {
		case model.StatusUploading:
			p.a.printf("  uploading %s (%s)\n", e.Job.File.Name, humanize.IBytes(uint64(max(e.Job.File.Size, 0))))
		case model.StatusCompleted, model.StatusFailed:
			p.a.printf("  %s: %s\n", e.Job.File.Name, e.Job.StatusText())
		}
	case uploadqueue.EventQueueReset:
		p.mu.Lock()
		p.lastStats = ""
		p.mu.Unlock()
	case uploadqueue.EventStats:
		if e.Stats.Terminal() == 0 {
			return
		}
		line := uploadqueue.StatsLine(e.Stats)
		p.mu.Lock()
		repeat := line == p.lastStats
		p.lastStats = line
		p.mu.Unlock()
		if !repeat {
			p.a.printf("  %s\n", line)
		}
	}
}
