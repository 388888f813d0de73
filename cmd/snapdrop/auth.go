package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/snapdrop/internal/hostapi"
	"github.com/dharsanguruparan/snapdrop/internal/model"
	"github.com/dharsanguruparan/snapdrop/internal/session"
)

func newLoginCmd(global *globalOptions) *cobra.Command {
	var (
		username string
		remember bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			p := newPrompter(a.in, a.out)
			if username == "" {
				if username, err = p.line("Username: "); err != nil {
					return err
				}
			}
			password, err := p.secret("Password: ")
			if err != nil {
				return err
			}
			acct, err := client.Login(cmd.Context(), username, password, remember)
			if err != nil {
				if errors.Is(err, hostapi.ErrUnauthorized) {
					return errors.New("invalid username or password")
				}
				return err
			}
			a.banner().Notify(welcome(acct), model.SeverityInfo)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name (prompted when empty)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Keep the session for the long remember-me lifetime")
	return cmd
}

const termsNotice = `Terms of Service
  Uploads must be images or videos you have the right to share.
  Files expire after 24 hours and may be removed earlier.
  Accounts used for abuse are deleted without notice.`

// errTermsDeclined ends registration before the host is contacted.
var errTermsDeclined = errors.New("terms of service not accepted; no account was created")

func newRegisterCmd(global *globalOptions) *cobra.Command {
	var (
		username  string
		acceptTOS bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			p := newPrompter(a.in, a.out)
			if username == "" {
				if username, err = p.line("Username: "); err != nil {
					return err
				}
			}
			password, err := p.secret("Password: ")
			if err != nil {
				return err
			}
			confirm, err := p.secret("Confirm password: ")
			if err != nil {
				return err
			}
			if err := hostapi.ValidateRegistration(username, password, confirm); err != nil {
				return err
			}
			a.printf("Password strength: %s\n", hostapi.PasswordStrength(password))
			if !acceptTOS {
				a.printf("%s\n", termsNotice)
				ok, err := p.confirm("Do you accept the Terms of Service?")
				if err != nil {
					return err
				}
				if !ok {
					return errTermsDeclined
				}
			}
			acct, err := client.Register(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			a.banner().Notify(welcome(acct), model.SeveritySuccess)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name (prompted when empty)")
	cmd.Flags().BoolVar(&acceptTOS, "accept-tos", false, "Accept the Terms of Service without being asked")
	return cmd
}

func newGuestCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Sign in with a temporary guest account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			acct, err := client.GuestLogin(cmd.Context())
			if err != nil {
				return err
			}
			a.banner().Notify(welcome(acct), model.SeverityInfo)
			return nil
		},
	}
}

func newLogoutCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			if err := client.Logout(cmd.Context()); err != nil {
				return err
			}
			a.banner().Notify("Signed out.", model.SeverityInfo)
			return nil
		},
	}
}

func newWhoamiCmd(global *globalOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			if offline {
				s, err := a.sessions.Get()
				if errors.Is(err, session.ErrNotFound) {
					a.printf("Not signed in.\n")
					return nil
				}
				if err != nil {
					return err
				}
				a.printf("%s (saved, expires %s)\n", accountLabel(s.Username, s.Guest), s.ExpiresAt.Local().Format("2006-01-02 15:04"))
				return nil
			}
			client, err := a.hostClient()
			if err != nil {
				return err
			}
			status, err := client.AuthStatus(cmd.Context())
			if err != nil {
				return err
			}
			if !status.Authenticated {
				a.printf("Not signed in.\n")
				return nil
			}
			a.printf("%s\n", accountLabel(status.Username, status.IsGuest))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the saved session without asking the host")
	return cmd
}

func welcome(acct hostapi.Account) string {
	if msg := strings.TrimSpace(acct.Message); msg != "" {
		return msg
	}
	return "Signed in as " + accountLabel(acct.Username, acct.IsGuest) + "."
}

func accountLabel(username string, guest bool) string {
	if guest {
		return username + " (guest)"
	}
	return username
}
