package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/config"
	"github.com/dharsanguruparan/snapdrop/internal/hostapi"
	"github.com/dharsanguruparan/snapdrop/internal/logging"
	"github.com/dharsanguruparan/snapdrop/internal/notify"
	"github.com/dharsanguruparan/snapdrop/internal/session"
)

// app bundles what every command needs once flags are parsed.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	in       io.Reader
	out      io.Writer
	sessions *session.FileStore
}

func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.apiURL != "" {
		cfg.APIBaseURL = opts.apiURL
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewFileStore(session.FileOptions{
		Path:        cfg.SessionPath,
		Secret:      cfg.SessionSecret,
		TTL:         cfg.SessionTTL,
		RememberTTL: cfg.RememberTTL,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		log:      logger,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		sessions: sessions,
	}, nil
}

func (a *app) hostClient() (*hostapi.Client, error) {
	return hostapi.New(hostapi.Options{
		BaseURL:         a.cfg.APIBaseURL,
		RequestTimeout:  a.cfg.RequestTimeout,
		TransferTimeout: a.cfg.TransferTimeout,
		Sessions:        a.sessions,
		Logger:          a.log,
	})
}

func (a *app) banner() *notify.Banner {
	return notify.NewBanner(a.out)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
