// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/auth"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/spf13/cobra"
)

// NewAuthCmd creates the auth command
func NewAuthCmd(get func() *app.App) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to DeployMate with GitHub",
		Long:  `Sign in with GitHub through the browser, inspect the session, or delete the account.`,
	}

	authCmd.AddCommand(newLoginCmd(get))
	authCmd.AddCommand(newLogoutCmd(get))
	authCmd.AddCommand(newStatusCmd(get))
	authCmd.AddCommand(newDeleteAccountCmd(get))

	return authCmd
}

func newLoginCmd(get func() *app.App) *cobra.Command {
	var (
		timeout  time.Duration
		token    string
		userJSON string
	)

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with GitHub",
		Long: `Opens the GitHub login page in the browser and waits for the backend to
redirect back to a local callback with the session token.

With --token and --user the session is stored directly, without a browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if token != "" || userJSON != "" {
				cb, err := auth.ParseCallback(url.Values{"token": {token}, "user": {userJSON}})
				if err != nil {
					return err
				}
				if err := a.Auth.Login(cb.Token, cb.User); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				a.Toaster.Success("Logged in as " + displayUser(cb.User))
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			fmt.Fprintln(a.Err, "Waiting for GitHub login in the browser...")
			user, err := a.Auth.LoginWithBrowser(ctx, a.Client.LoginURL(), a.Config.CallbackPort, a.OpenBrowser)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			a.Toaster.Success("Logged in as " + displayUser(user))
			return nil
		},
	}
	loginCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser login")
	loginCmd.Flags().StringVar(&token, "token", "", "session token issued by the backend")
	loginCmd.Flags().StringVar(&userJSON, "user", "", "user record as JSON, used with --token")
	return loginCmd
}

func newLogoutCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if !a.Auth.IsAuthenticated() {
				a.Toaster.Info("Not logged in.")
				return nil
			}
			a.Auth.Logout()
			a.Toaster.Success("Logged out.")
			return nil
		},
	}
}

// Status is what `auth status` reports
type Status struct {
	Authenticated bool         `json:"authenticated" yaml:"authenticated"`
	User          *models.User `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
	Expired       bool         `json:"expired" yaml:"expired"`
	APIURL        string       `json:"apiUrl" yaml:"api_url"`
}

const statusView = `{{if .Authenticated -}}
Logged in as {{.User.Username}}{{with .User.Email}} <{{.}}>{{end}}
{{- if .ExpiresAt}}
Token {{if .Expired}}expired{{else}}expires{{end}} {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}
{{- end}}
{{- else -}}
Not logged in. Run: deploymate auth login
{{- end}}
Backend: {{.APIURL}}
`

func newStatusCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			st := Status{Authenticated: a.Auth.IsAuthenticated(), APIURL: a.Client.BaseURL()}
			if st.Authenticated {
				st.User = a.Auth.User()
				if st.User == nil {
					st.User = &models.User{Username: "unknown"}
				}
				if exp, ok := a.Auth.Expiry(); ok {
					st.ExpiresAt = &exp
					st.Expired = !exp.After(time.Now())
				}
			}
			return a.Render("auth-status", statusView, st, nil)
		},
	}
}

func newDeleteAccountCmd(get func() *app.App) *cobra.Command {
	var yes bool

	deleteCmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the DeployMate account",
		Long: `Deletes the account on the backend. On success the session and all
session data are cleared. Repositories on GitHub are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			ok, err := a.Confirm("Delete your DeployMate account? This cannot be undone.", yes)
			if err != nil {
				return err
			}
			if !ok {
				a.Toaster.Info("Account deletion cancelled.")
				return nil
			}
			if !a.Auth.DeleteAccount(cmd.Context(), a.Client) {
				a.Toaster.Error("Account deletion failed.")
				return fmt.Errorf("account deletion failed")
			}
			if err := a.Pipeline.Reset(); err != nil {
				return err
			}
			a.Toaster.Success("Account deleted.")
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return deleteCmd
}

func displayUser(u *models.User) string {
	if u == nil || u.Username == "" {
		return "GitHub user"
	}
	return u.Username
}
