package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "snapdrop: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	apiURL     string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "snapdrop",
		Short: "Upload images and videos to a snapdrop host",
		Long: `snapdrop queues local images and videos, validates them against the host's
type and size rules, and uploads them one at a time. It also manages the
signed-in session and the gallery of uploaded files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $SNAPDROP_CONFIG or <user config dir>/snapdrop/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Host API base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.AddCommand(
		newUploadCmd(opts),
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newGuestCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newStatusCmd(opts),
		newGalleryCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newAccountCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}
