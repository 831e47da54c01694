// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"fmt"
	"strconv"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/repos"
	"github.com/spf13/cobra"
)

// NewRepoCmd creates the repo command
func NewRepoCmd(get func() *app.App) *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Choose the GitHub repository to work on",
		Long:  `List your GitHub repositories, connect one to DeployMate and make it the pipeline's repository.`,
	}

	repoCmd.AddCommand(newListCmd(get))
	repoCmd.AddCommand(newSelectedCmd(get))
	repoCmd.AddCommand(newSelectCmd(get))
	repoCmd.AddCommand(newRemoveCmd(get))

	return repoCmd
}

func service(a *app.App) *repos.Service {
	return repos.NewService(a.Client, a.Pipeline, a.Logger)
}

// Listing is one page of repositories
type Listing struct {
	Repositories []models.Repository `json:"repositories" yaml:"repositories"`
	Total        int                 `json:"total" yaml:"total"`
	More         bool                `json:"more" yaml:"more"`
	NextPage     int                 `json:"nextPage,omitempty" yaml:"next_page,omitempty"`
	CurrentID    int64               `json:"currentRepoId,omitempty" yaml:"current_repo_id,omitempty"`
}

const listView = `{{if not .Repositories}}No repositories found.
{{else}}{{range .Repositories}}{{if .Private}}[private]{{else}}[public] {{end}} {{pad 40 .DisplayName}} {{default "-" .Language}}
{{with .Description}}           {{.}}
{{end}}{{end}}{{if .More}}
Showing {{len .Repositories}} of {{.Total}}. Next page: --page {{.NextPage}}
{{end}}{{end}}`

func newListCmd(get func() *app.App) *cobra.Command {
	var (
		query      string
		visibility string
		page       int
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your GitHub repositories",
		Long: `Lists repositories readable with your GitHub token, six at a time.
A query matches the name, language or description and shows every match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			vis, err := repos.ParseVisibility(visibility)
			if err != nil {
				return err
			}

			all, err := service(a).Available(cmd.Context())
			if err != nil {
				return err
			}
			filter := repos.Filter{Query: query, Visibility: vis}
			matched := filter.Apply(all)
			shown, more := filter.Page(all, page)

			out := Listing{Repositories: shown, Total: len(matched), More: more}
			if more {
				out.NextPage = page + 1
			}
			return a.Render("repo-list", listView, out, nil)
		},
	}
	listCmd.Flags().StringVarP(&query, "query", "q", "", "filter by name, language or description")
	listCmd.Flags().StringVar(&visibility, "visibility", string(repos.All), "all, public or private")
	listCmd.Flags().IntVar(&page, "page", 1, "page number, six repositories per page")
	return listCmd
}

const selectedView = `{{if not .Repositories}}No repository connected yet. Run: deploymate repo select <owner/name>
{{else}}{{$cur := .CurrentID}}{{range .Repositories}}{{if eq .RepoID $cur}}* {{else}}  {{end}}{{pad 8 (printf "%d" .RepoID)}} {{.DisplayName}}
{{end}}{{end}}`

func newSelectedCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "selected",
		Short: "List repositories connected to DeployMate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			list, err := service(a).Selected(cmd.Context())
			if err != nil {
				return err
			}
			return a.Render("repo-selected", selectedView, Listing{
				Repositories: list,
				Total:        len(list),
				CurrentID:    a.Pipeline.RepoID(),
			}, nil)
		},
	}
}

func newSelectCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "select <owner/name|name|id>",
		Short: "Connect a repository and make it current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			svc := service(a)
			all, err := svc.Available(cmd.Context())
			if err != nil {
				return err
			}
			target, err := repos.Find(all, args[0])
			if err != nil {
				return err
			}
			stored, err := svc.Select(cmd.Context(), target)
			if err != nil {
				return err
			}
			a.Toaster.Success(fmt.Sprintf("Repository %s selected (id %d).", stored.DisplayName(), stored.RepoID))
			return nil
		},
	}
}

func newRemoveCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repo-id>",
		Short: "Disconnect a repository from DeployMate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			repoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid repository id %q", args[0])
			}
			var userID int64
			if u := a.Auth.User(); u != nil {
				userID = u.ID
			}
			if err := service(a).Deselect(cmd.Context(), userID, repoID); err != nil {
				return err
			}
			a.Toaster.Success("Repository removed.")
			return nil
		},
	}
}
