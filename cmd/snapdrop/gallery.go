package main

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/hostapi"
	"github.com/dharsanguruparan/snapdrop/internal/model"
)

const timeLayout = "2006-01-02 15:04"

func newStatusCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show host status and announcements",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			report, err := client.Status(ctx)
			if err != nil {
				a.banner().Notify("Host unreachable: "+err.Error(), model.SeverityError)
				return err
			}
			if report.Operational() {
				a.banner().Notify("All systems operational.", model.SeveritySuccess)
			} else {
				a.banner().Notify("Host reports degraded service.", model.SeverityError)
			}
			notices, err := client.Announcements(ctx)
			if err != nil {
				a.log.Warn("announcements unavailable", "error", err)
				return nil
			}
			for _, n := range notices {
				a.printf("%s  %s\n", n.CreatedAt.Local().Format(timeLayout), n.Message)
			}
			return nil
		},
	}
}

func newGalleryCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "gallery",
		Aliases: []string{"ls"},
		Short:   "List uploaded images",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			images, err := client.Images(cmd.Context())
			if err != nil {
				return signInHint(err)
			}
			if len(images) == 0 {
				a.printf("No uploads yet.\n")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(images))
			for _, img := range images {
				rows = append(rows, []string{
					img.ID.String(),
					img.Filename,
					img.UploadDate.Local().Format(timeLayout),
					expiryText(img.ExpiresAt, img.IsExpiringSoon, now),
					img.URL,
				})
			}
			a.printf("%s\n", renderTable(
				[]string{"ID", "File", "Uploaded", "Expires", "URL"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func newShowCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one uploaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			return printImage(cmd.Context(), a, client, args[0])
		},
	}
}

func newDeleteCmd(global *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an uploaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			if !yes {
				ok, err := newPrompter(a.in, a.out).confirm("Delete image " + args[0] + "?")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			if err := client.DeleteImage(cmd.Context(), args[0]); err != nil {
				return signInHint(err)
			}
			a.banner().Notify("Image deleted.", model.SeveritySuccess)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func printImage(ctx context.Context, a *app, client *hostapi.Client, id string) error {
	details, err := client.Image(ctx, id)
	switch {
	case errors.Is(err, hostapi.ErrExpired):
		return errors.New("this image has expired")
	case errors.Is(err, hostapi.ErrNotFound):
		return errors.New("image not found")
	case err != nil:
		return err
	}
	a.printf("%s\n", details.Filename)
	a.printf("  url:      %s\n", details.URL)
	a.printf("  uploaded: %s\n", details.UploadDate.Local().Format(timeLayout))
	a.printf("  expires:  %s\n", expiryText(details.ExpiresAt, false, time.Now()))
	if details.IsOwner {
		a.printf("  owner:    you\n")
	}
	return nil
}

func expiryText(at *hostapi.Time, soon bool, now time.Time) string {
	if at == nil || at.IsZero() {
		return "never"
	}
	text := at.Local().Format(timeLayout) + " (" + humanize.RelTime(at.Time, now, "ago", "from now") + ")"
	if soon {
		text += " !"
	}
	return text
}

func signInHint(err error) error {
	if errors.Is(err, hostapi.ErrUnauthorized) {
		return errors.New("not signed in; run `snapdrop login` first")
	}
	return err
}

func newAccountCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the signed-in account",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "sessions",
			Short: "List recent sign-ins",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, client, err := accountClient(cmd, global)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				sessions, err := client.LoginSessions(ctx)
				if err != nil {
					return signInHint(err)
				}
				var current string
				if status, err := client.AuthStatus(ctx); err == nil {
					current = status.LastSeenIPHash
				}
				a.printf("%s\n", renderTable([]string{"Signed in", "Device", "IP hash", "Current"}, sessionRows(sessions, current), nil))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <new-username>",
			Short: "Change the account name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, client, err := accountClient(cmd, global)
				if err != nil {
					return err
				}
				msg, err := client.ChangeUsername(cmd.Context(), args[0])
				if err != nil {
					return signInHint(err)
				}
				a.banner().Notify(orDefault(msg, "Username changed."), model.SeveritySuccess)
				return nil
			},
		},
		&cobra.Command{
			Use:   "password",
			Short: "Change the account password",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, client, err := accountClient(cmd, global)
				if err != nil {
					return err
				}
				p := newPrompter(a.in, a.out)
				current, err := p.secret("Current password: ")
				if err != nil {
					return err
				}
				next, err := p.secret("New password: ")
				if err != nil {
					return err
				}
				confirm, err := p.secret("Confirm new password: ")
				if err != nil {
					return err
				}
				if len(next) >= hostapi.MinPasswordLength {
					a.printf("Password strength: %s\n", hostapi.PasswordStrength(next))
				}
				msg, err := client.ChangePassword(cmd.Context(), current, next, confirm)
				if err != nil {
					return signInHint(err)
				}
				a.banner().Notify(orDefault(msg, "Password changed."), model.SeveritySuccess)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete the account and all of its uploads",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, client, err := accountClient(cmd, global)
				if err != nil {
					return err
				}
				p := newPrompter(a.in, a.out)
				ok, err := p.confirm("Delete this account permanently?")
				if err != nil || !ok {
					return err
				}
				password, err := p.secret("Password: ")
				if err != nil {
					return err
				}
				msg, err := client.DeleteAccount(cmd.Context(), password)
				if err != nil {
					return signInHint(err)
				}
				a.banner().Notify(orDefault(msg, "Account deleted."), model.SeverityInfo)
				return nil
			},
		},
	)
	return cmd
}

// sessionRows renders sign-ins in host order. A row whose IP hash matches
// current is marked as this machine.
func sessionRows(sessions []hostapi.LoginSession, current string) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		marker := ""
		if current != "" && s.HashedIP == current {
			marker = "current"
		}
		rows = append(rows, []string{
			s.LoginAt.Local().Format(timeLayout),
			hostapi.ParseUserAgent(s.UserAgent).String(),
			shortHash(s.HashedIP),
			marker,
		})
	}
	return rows
}

func shortHash(h string) string {
	if len(h) <= 10 {
		return h
	}
	return h[:10] + "..."
}

func accountClient(cmd *cobra.Command, global *globalOptions) (*app, *hostapi.Client, error) {
	a, err := newApp(cmd, global)
	if err != nil {
		return nil, nil, err
	}
	client, err := a.hostClient()
	if err != nil {
		return nil, nil, err
	}
	return a, client, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
