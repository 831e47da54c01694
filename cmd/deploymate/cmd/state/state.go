// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/spf13/cobra"
)

// NewStateCmd creates the state command
func NewStateCmd(get func() *app.App) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the pipeline state",
		Long: `The pipeline state links the stages: the selected repository, the
confirmed analysis and the image settings. It persists between runs.`,
	}

	stateCmd.AddCommand(newShowCmd(get))
	stateCmd.AddCommand(newResetCmd(get))

	return stateCmd
}

const showView = `{{if .RepoID}}Repository: {{.RepoID}}{{else}}Repository: none (deploymate repo select){{end}}
{{with .Analysis}}Analysis:   {{.Mode}}, {{if .IsMulti}}{{len .Services}} services{{else}}{{with .Analysis}}{{.StackType}}{{end}}{{end}}{{else}}Analysis:   not confirmed (deploymate analyze confirm){{end}}
Registry:   {{.DockerOptions.Registry}}{{with .DockerOptions.ImageNameOverride}}
Image:      {{.}}{{end}}
Strategy:   {{.DockerOptions.Strategy}}
`

func newShowCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			return a.Render("state", showView, a.Pipeline.Snapshot(), nil)
		},
	}
}

func newResetCmd(get func() *app.App) *cobra.Command {
	var yes bool

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the repository, analysis and image settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ok, err := a.Confirm("Reset the pipeline state?", yes)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := a.Pipeline.Reset(); err != nil {
				return err
			}
			a.Toaster.Success("Pipeline state reset.")
			return nil
		},
	}
	resetCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return resetCmd
}
