// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/template"
	"time"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/history"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(get func() *app.App) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show your DeployMate activity",
		Long: `Lists what DeployMate did on each repository: connections, CI and CD
generation. Every successful fetch is cached for --offline use.`,
	}

	historyCmd.AddCommand(newListCmd(get))
	historyCmd.AddCommand(newWatchCmd(get))

	return historyCmd
}

// newService builds the history service. The cache is only required for
// offline listing; otherwise a cache held by another process is skipped.
func newService(a *app.App, offline bool) (*history.Service, error) {
	opts := []history.Option{history.WithLogger(a.Logger)}
	c, err := a.HistoryCache()
	switch {
	case err == nil:
		opts = append(opts, history.WithCache(c))
	case offline:
		return nil, err
	default:
		a.Logger.Warn().Err(err).Msg("history cache unavailable, fetching without it")
	}
	return history.NewService(a.Client, opts...), nil
}

// funcs renders history fields relative to now
func funcs(now time.Time) template.FuncMap {
	return template.FuncMap{
		"ago":      func(ts string) string { return history.RelativeTime(ts, now) },
		"mark":     history.StatusMark,
		"icon":     history.OperationIcon,
		"plural":   history.Plural,
		"workflow": history.HasWorkflow,
	}
}

// View is what `history list` reports
type View struct {
	Items     []models.HistoryItem `json:"items" yaml:"items"`
	Offline   bool                 `json:"offline" yaml:"offline"`
	FetchedAt *time.Time           `json:"fetchedAt,omitempty" yaml:"fetched_at,omitempty"`
	Workflows bool                 `json:"-" yaml:"-"`
}

const listView = `{{if not .Items}}No activity yet.
{{else}}{{$wf := .Workflows}}{{range .Items}}{{.RepoName}}  {{plural .OperationCount "operation"}}, last {{ago .LastActivity}}
{{range .Operations}}  {{icon .Type}} {{pad 12 .Action}} {{with mark .Status}}{{.}} {{end}}{{.Status}}  {{ago .Timestamp}}
{{if and $wf (workflow .Type .WorkflowContent)}}
{{indent 6 .WorkflowContent}}

{{end}}{{end}}
{{end}}{{if .Offline}}(cached{{with .FetchedAt}} {{.Format "2006-01-02 15:04"}}{{end}})
{{end}}{{end}}`

func newView(items []models.HistoryItem, offline, workflows bool) View {
	v := View{Items: items, Offline: offline, Workflows: workflows}
	if offline && len(items) > 0 && !items[0].FetchedAt.IsZero() {
		t := items[0].FetchedAt
		v.FetchedAt = &t
	}
	return v
}

func newListCmd(get func() *app.App) *cobra.Command {
	var (
		offline   bool
		repo      string
		workflows bool
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List activity per repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			svc, err := newService(a, offline)
			if err != nil {
				return err
			}

			var items []models.HistoryItem
			switch {
			case offline && repo != "":
				c, _ := a.HistoryCache()
				items, err = c.ForRepo(repo)
			case offline:
				items, err = svc.Cached()
			default:
				if err := a.RequireAuth(); err != nil {
					return err
				}
				items, err = svc.Fetch(cmd.Context())
				items = onlyRepo(items, repo)
			}
			if err != nil {
				return err
			}
			return a.Render("history", listView, newView(items, offline, workflows), funcs(svc.Now()))
		},
	}
	listCmd.Flags().BoolVar(&offline, "offline", false, "show the last fetched history without calling the backend")
	listCmd.Flags().StringVar(&repo, "repo", "", "only this repository")
	listCmd.Flags().BoolVarP(&workflows, "workflows", "w", false, "print the CI/CD workflow of each operation")
	return listCmd
}

func onlyRepo(items []models.HistoryItem, repo string) []models.HistoryItem {
	if repo == "" {
		return items
	}
	var out []models.HistoryItem
	for _, it := range items {
		if it.RepoName == repo {
			out = append(out, it)
		}
	}
	return out
}

func newWatchCmd(get func() *app.App) *cobra.Command {
	var schedule string

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the history on a schedule",
		Long: `Prints the history now and again on every tick of the schedule until
interrupted. The schedule is a cron expression such as "@every 30s".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			svc, err := newService(a, false)
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = a.Config.HistoryInterval
			}

			w := history.NewWatcher(svc, a.Auth.Token, func(u history.Update) {
				if u.Err != nil {
					fmt.Fprintf(a.Err, "✕ %v\n", u.Err)
					return
				}
				if err := a.Render("history", listView, newView(u.Items, false, false), funcs(svc.Now())); err != nil {
					a.Logger.Error().Err(err).Msg("error rendering history")
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w.Refresh()
			if err := w.Start(schedule); err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			return nil
		},
	}
	watchCmd.Flags().StringVar(&schedule, "every", "", "cron schedule, defaults to history_interval from the configuration")
	return watchCmd
}
