package main

import (
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/database"
	"github.com/dharsanguruparan/snapdrop/internal/repository"
)

func newHistoryCmd(global *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled uploads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			if a.cfg.DatabaseURL == "" {
				return errors.New("history requires SNAPDROP_DATABASE_URL")
			}
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, a.cfg.DatabaseURL, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			uploads, err := repository.NewUploadRepository(pool).Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(uploads) == 0 {
				a.printf("No journaled uploads.\n")
				return nil
			}
			rows := make([][]string, 0, len(uploads))
			for _, u := range uploads {
				rows = append(rows, []string{
					u.SettledAt.Local().Format(timeLayout),
					u.FileName,
					humanize.IBytes(uint64(max(u.Size, 0))),
					u.Status,
					u.Backend,
					deref(u.Identifier),
					deref(u.Reason),
				})
			}
			a.printf("%s\n", renderTable(
				[]string{"Settled", "File", "Size", "Status", "Backend", "ID", "Reason"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
