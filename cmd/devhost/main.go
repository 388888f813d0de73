// Command devhost serves the in-memory image host on a local port so the
// snapdrop CLI can be exercised without the real service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/devhost"
	"github.com/dharsanguruparan/snapdrop/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "devhost: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		addr          string
		users         []string
		announcements []string
		failures      []string
		logLevel      string
	)
	cmd := &cobra.Command{
		Use:           "devhost",
		Short:         "Serve an in-memory image host for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: logLevel, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			host := devhost.New(devhost.Options{Logger: logger})
			for _, entry := range users {
				name, password, ok := strings.Cut(entry, ":")
				if !ok || name == "" {
					return fmt.Errorf("invalid --user %q, want name:password", entry)
				}
				host.AddUser(name, password)
			}
			for _, msg := range announcements {
				host.Announce(msg)
			}
			for _, name := range failures {
				host.FailUploads(name, 500)
			}
			return host.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:2028", "Listen address")
	cmd.Flags().StringArrayVar(&users, "user", nil, "Seed an account as name:password (repeatable)")
	cmd.Flags().StringArrayVar(&announcements, "announce", nil, "Publish an announcement (repeatable)")
	cmd.Flags().StringArrayVar(&failures, "fail", nil, "Answer uploads of this file name with a server error (repeatable)")
	cmd.Flags().StringVar(&logLevel, "log-level", "debug", "Log level")
	return cmd
}
