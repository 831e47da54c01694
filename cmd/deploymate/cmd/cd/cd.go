// SPDX-License-Identifier: Apache-2.0

package cd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/wizard/cd"
	"github.com/spf13/cobra"
)

// NewCDCmd creates the cd command
func NewCDCmd(get func() *app.App) *cobra.Command {
	cdCmd := &cobra.Command{
		Use:   "cd",
		Short: "Preview and push the CD workflow",
		Long: `Generates the continuous deployment workflow of the selected repository.
When the backend needs a docker-compose file first, it is previewed and,
once you accept, pushed before the CD call is retried.`,
	}

	cdCmd.AddCommand(newActionCmd(get, cd.ActionPreview, "Preview the CD workflow"))
	cdCmd.AddCommand(newActionCmd(get, cd.ActionPush, "Push the CD workflow to the repository"))

	return cdCmd
}

// View is what the cd commands report
type View struct {
	Action   cd.Action `json:"action" yaml:"action"`
	Workflow string    `json:"workflow" yaml:"workflow"`
	Commit   string    `json:"commit,omitempty" yaml:"commit,omitempty"`
}

const workflowView = `{{with .Commit}}Commit: {{.}}

{{end}}{{with .Workflow}}{{.}}{{else}}(empty workflow){{end}}
`

const composeView = `A docker-compose file is required first.
{{if .SkipPreview}}{{with .PreviewErr}}Compose preview unavailable: {{.}}
{{else}}The backend returned no compose preview.
{{end}}{{else}}
{{.FilePath}}:

{{indent 4 .Content}}

{{end}}`

func newActionCmd(get func() *app.App, action cd.Action, short string) *cobra.Command {
	var yes bool

	actionCmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.RequireAuth(); err != nil {
				return err
			}
			stage, err := cd.New(a.Client, a.Pipeline, a.Toaster, a.Logger)
			if err != nil {
				return err
			}

			if err := run(cmd.Context(), stage, action); err != nil {
				if !errors.Is(err, cd.ErrComposeRequired) {
					return err
				}
				applied, err := resolveCompose(cmd.Context(), a, stage, yes)
				if err != nil || !applied {
					return err
				}
			}
			return a.Render("cd-workflow", workflowView, View{
				Action:   action,
				Workflow: stage.Workflow(),
				Commit:   stage.Commit(),
			}, nil)
		},
	}
	actionCmd.Flags().BoolVarP(&yes, "yes", "y", false, "push a required compose file without asking")
	return actionCmd
}

func run(ctx context.Context, stage *cd.Stage, action cd.Action) error {
	if action == cd.ActionPush {
		return stage.Push(ctx)
	}
	return stage.Preview(ctx)
}

// resolveCompose shows the compose file and pushes it when accepted. It
// reports whether the held action was replayed.
func resolveCompose(ctx context.Context, a *app.App, stage *cd.Stage, yes bool) (bool, error) {
	pending := stage.Pending()
	if pending == nil {
		return false, nil
	}
	if !yes {
		if err := a.Render("cd-compose", composeView, pending, nil); err != nil {
			return false, err
		}
	}
	ok, err := a.Confirm("Push the docker-compose file and continue?", yes)
	if err != nil {
		return false, err
	}
	if !ok {
		stage.DismissCompose()
		a.Toaster.Info(fmt.Sprintf("CD %s cancelled, no compose file pushed.", pending.Action))
		return false, nil
	}
	if err := stage.ApplyCompose(ctx); err != nil {
		return false, err
	}
	return true, nil
}
