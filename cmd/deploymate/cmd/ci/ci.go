// SPDX-License-Identifier: Apache-2.0

package ci

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/wizard/ci"
	"github.com/spf13/cobra"
)

// NewCICmd creates the ci command
func NewCICmd(get func() *app.App) *cobra.Command {
	ciCmd := &cobra.Command{
		Use:   "ci",
		Short: "Preview and push GitHub Actions CI workflows",
		Long: `Generates the CI workflow of each service, compares it with the
repository and pushes it according to the file handling strategy.`,
	}

	ciCmd.AddCommand(newPreviewCmd(get))
	ciCmd.AddCommand(newPushCmd(get))
	ciCmd.AddCommand(newVerifyCmd(get))

	return ciCmd
}

func openStage(ctx context.Context, a *app.App, strategy, service string) (*ci.Stage, error) {
	if err := a.RequireAuth(); err != nil {
		return nil, err
	}
	s := a.Strategy()
	if strategy != "" {
		parsed, ok := models.ParseStrategy(strings.ToUpper(strategy))
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", strategy)
		}
		s = parsed
	}
	stage, err := ci.New(a.Client, a.Pipeline, a.Toaster, s, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := stage.LoadPreview(ctx); err != nil {
		return nil, err
	}
	if service != "" {
		if err := stage.Select(service); err != nil {
			return nil, err
		}
	}
	return stage, nil
}

// WorkflowView is one generated workflow
type WorkflowView struct {
	models.CIPreview `yaml:",inline"`
	Current          bool   `json:"current" yaml:"current"`
	Body             string `json:"-" yaml:"content,omitempty"`
}

// View is what `ci preview` reports
type View struct {
	Strategy   models.FileHandlingStrategy `json:"strategy" yaml:"strategy"`
	Workflows  []WorkflowView              `json:"workflows" yaml:"workflows"`
	AllApplied bool                        `json:"allApplied" yaml:"all_applied"`
}

func newView(stage *ci.Stage, all bool) View {
	v := View{Strategy: stage.Strategy(), AllApplied: stage.AllApplied()}
	cur := stage.Current()
	for _, p := range stage.Previews() {
		w := WorkflowView{CIPreview: p, Current: cur != nil && cur.Service == p.Service}
		if all || w.Current {
			w.Body = p.Content
		}
		v.Workflows = append(v.Workflows, w)
	}
	return v
}

const previewView = `Strategy: {{.Strategy}}
{{range .Workflows}}
{{if .Current}}* {{else}}  {{end}}{{pad 20 .Service}} {{pad 10 .Status}} {{.FilePath}}
{{- with .Body}}

{{indent 4 .}}
{{end}}
{{end}}
{{if .AllApplied}}Every workflow matches the repository. Next: deploymate cd preview
{{else}}Next: deploymate ci push
{{end}}`

func newPreviewCmd(get func() *app.App) *cobra.Command {
	var (
		strategy string
		service  string
		all      bool
	)

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the CI workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stage, err := openStage(cmd.Context(), a, strategy, service)
			if err != nil {
				return err
			}
			return a.Render("ci-preview", previewView, newView(stage, all), nil)
		},
	}
	previewCmd.Flags().StringVar(&strategy, "strategy", "", "file handling strategy, defaults to the configured one")
	previewCmd.Flags().StringVarP(&service, "service", "s", "", "service whose workflow to show")
	previewCmd.Flags().BoolVar(&all, "all", false, "show every workflow")
	return previewCmd
}

// nothingToPush reports a push that was skipped because the repository
// already has the workflow
func nothingToPush(err error) bool {
	return errors.Is(err, ci.ErrBlocked) && strings.HasSuffix(err.Error(), ci.MsgNothingToPush)
}

func newPushCmd(get func() *app.App) *cobra.Command {
	var (
		strategy string
		service  string
		all      bool
	)

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Push the CI workflow to the repository",
		Long: `Pushes the workflow of the current service, or with --all every workflow.
An identical workflow is not pushed under UPDATE_IF_EXISTS, and an existing
one stops the push under FAIL_IF_EXISTS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stage, err := openStage(cmd.Context(), a, strategy, service)
			if err != nil {
				return err
			}
			if all {
				err = stage.PushAll(cmd.Context())
			} else {
				err = stage.PushOne(cmd.Context(), service)
			}
			if err != nil && !nothingToPush(err) {
				return err
			}
			return a.Render("ci-preview", previewView, newView(stage, false), nil)
		},
	}
	pushCmd.Flags().StringVar(&strategy, "strategy", "", "file handling strategy, defaults to the configured one")
	pushCmd.Flags().StringVarP(&service, "service", "s", "", "service whose workflow to push")
	pushCmd.Flags().BoolVar(&all, "all", false, "push every workflow")
	return pushCmd
}

// repositoryName finds the owner/name of the pipeline's repository
func repositoryName(ctx context.Context, a *app.App) (string, error) {
	selected, err := a.Client.SelectedRepositories(ctx)
	if err != nil {
		return "", err
	}
	id := a.Pipeline.RepoID()
	for _, r := range selected {
		if r.RepoID == id {
			return r.DisplayName(), nil
		}
	}
	return "", fmt.Errorf("repository %d is not connected, pass --repo", id)
}

func newVerifyCmd(get func() *app.App) *cobra.Command {
	var (
		repo      string
		ref       string
		githubAPI string
	)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the workflow status directly on GitHub",
		Long: `Reads each workflow file from GitHub and compares it with the generated
one, correcting the status reported by the backend. Uses github_token from
the configuration or DEPLOYMATE_GITHUB_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stage, err := openStage(cmd.Context(), a, "", "")
			if err != nil {
				return err
			}
			if repo == "" {
				if repo, err = repositoryName(cmd.Context(), a); err != nil {
					return err
				}
			}
			files, err := ci.NewGitHubFiles(cmd.Context(), a.Config.GithubToken, githubAPI)
			if err != nil {
				return err
			}
			changed, err := stage.Verify(cmd.Context(), files, repo, ref)
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				a.Toaster.Info("GitHub agrees with the backend.")
			} else {
				a.Toaster.Info(fmt.Sprintf("Status corrected for %s.", strings.Join(changed, ", ")))
			}
			return a.Render("ci-preview", previewView, newView(stage, false), nil)
		},
	}
	verifyCmd.Flags().StringVar(&repo, "repo", "", "owner/name, defaults to the selected repository")
	verifyCmd.Flags().StringVar(&ref, "ref", "", "branch to read, defaults to the repository default branch")
	verifyCmd.Flags().StringVar(&githubAPI, "github-api", "", "GitHub API URL for GitHub Enterprise")
	return verifyCmd
}
