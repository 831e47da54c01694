// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/wizard/dockerfile"
	"github.com/spf13/cobra"
)

// NewDockerCmd creates the docker command
func NewDockerCmd(get func() *app.App) *cobra.Command {
	dockerCmd := &cobra.Command{
		Use:   "docker",
		Short: "Preview and apply Dockerfiles",
		Long: `Previews the Dockerfile of each service of the confirmed analysis and
commits missing ones to the repository.`,
	}

	dockerCmd.AddCommand(newPreviewCmd(get))
	dockerCmd.AddCommand(newApplyCmd(get))
	dockerCmd.AddCommand(newOptionsCmd(get))

	return dockerCmd
}

// imageFlags are the image settings accepted by preview and apply
type imageFlags struct {
	registry string
	image    string
	strategy string
}

func (f *imageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.registry, "registry", "", "container registry, e.g. ghcr.io or docker.io")
	cmd.Flags().StringVar(&f.image, "image", "", "image name override, \"-\" clears it")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "UPDATE_IF_EXISTS, FAIL_IF_EXISTS or CREATE_NEW_ALWAYS")
}

// apply stores changed settings in the pipeline
func (f *imageFlags) apply(a *app.App) error {
	if f.registry == "" && f.image == "" && f.strategy == "" {
		return nil
	}
	o := a.Pipeline.DockerOptions()
	if f.registry != "" {
		o.Registry = f.registry
	}
	switch f.image {
	case "":
	case "-":
		o.ImageNameOverride = nil
	default:
		name := f.image
		o.ImageNameOverride = &name
	}
	if f.strategy != "" {
		s, ok := models.ParseStrategy(strings.ToUpper(f.strategy))
		if !ok {
			return fmt.Errorf("unknown strategy %q", f.strategy)
		}
		o.DockerfileStrategy = s
	}
	return a.Pipeline.SetDockerOptions(o)
}

func openStage(ctx context.Context, a *app.App, flags *imageFlags, service string) (*dockerfile.Stage, error) {
	if err := a.RequireAuth(); err != nil {
		return nil, err
	}
	if err := flags.apply(a); err != nil {
		return nil, err
	}
	stage, err := dockerfile.New(a.Client, a.Pipeline, a.Toaster, a.Logger)
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

// PlanView is one service's Dockerfile plan with the content chosen for display
type PlanView struct {
	models.ContainerPlan `yaml:",inline"`
	Preview              dockerfile.Preview `json:"preview" yaml:"preview"`
	Current              bool               `json:"current" yaml:"current"`
}

// View is what `docker preview` reports
type View struct {
	Options    models.DockerOptions `json:"options" yaml:"options"`
	Plans      []PlanView           `json:"plans" yaml:"plans"`
	ReadyForCI bool                 `json:"readyForCi" yaml:"ready_for_ci"`
	Next       dockerfile.Action    `json:"next" yaml:"next"`
}

func newView(a *app.App, stage *dockerfile.Stage, all bool) View {
	current := stage.CurrentPlan()
	v := View{
		Options:    a.Pipeline.DockerOptions(),
		ReadyForCI: stage.AllReady(),
		Next:       stage.PrimaryAction(),
	}
	for _, p := range stage.Plans() {
		p := p
		isCurrent := current != nil && current.WorkingDirectory == p.WorkingDirectory
		if !all && !isCurrent {
			v.Plans = append(v.Plans, PlanView{ContainerPlan: p})
			continue
		}
		v.Plans = append(v.Plans, PlanView{ContainerPlan: p, Preview: dockerfile.PickPreview(&p), Current: isCurrent})
	}
	return v
}

const previewView = `Registry: {{.Options.Registry}}{{with .Options.ImageNameOverride}}  Image: {{.}}{{end}}
{{range .Plans}}
{{if .Current}}* {{else}}  {{end}}{{default "." .WorkingDirectory}}  {{.Registry}}/{{.ImageName}}
    dockerfile: {{if .HasDockerfile}}present{{else}}missing{{end}}{{if .ShouldGenerateDockerfile}}, will be generated{{end}}{{with .ComposeFiles}}  compose: {{join . ", "}}{{end}}
{{- if .Preview.Content}}
    source: {{.Preview.Source}}

{{indent 4 .Preview.Content}}
{{end}}
{{end}}
{{if .ReadyForCI}}All Dockerfiles are in place. Next: deploymate ci preview
{{else}}Next: {{.Next.Label}}{{if .Next.Apply}} (deploymate docker apply){{end}}
{{end}}`

func newPreviewCmd(get func() *app.App) *cobra.Command {
	var (
		flags   imageFlags
		service string
		all     bool
	)

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the Dockerfiles",
		Long: `Asks the backend for the container plan of each service and shows the
Dockerfile of the current one: the first service, or --service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stage, err := openStage(cmd.Context(), a, &flags, service)
			if err != nil {
				return err
			}
			return a.Render("docker-preview", previewView, newView(a, stage, all), nil)
		},
	}
	flags.register(previewCmd)
	previewCmd.Flags().StringVarP(&service, "service", "s", "", "working directory of the service to show")
	previewCmd.Flags().BoolVar(&all, "all", false, "show the Dockerfile of every service")
	return previewCmd
}

func newApplyCmd(get func() *app.App) *cobra.Command {
	var (
		flags   imageFlags
		service string
		all     bool
	)

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Commit the Dockerfile to the repository",
		Long: `Commits the generated Dockerfile of the current service, or with --all every
missing Dockerfile of a multi-service analysis, then previews again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stage, err := openStage(cmd.Context(), a, &flags, service)
			if err != nil {
				return err
			}

			if all {
				err = stage.ApplyAll(cmd.Context())
			} else {
				err = stage.ApplyOne(cmd.Context(), service)
			}
			if err != nil {
				return err
			}
			return a.Render("docker-preview", previewView, newView(a, stage, false), nil)
		},
	}
	flags.register(applyCmd)
	applyCmd.Flags().StringVarP(&service, "service", "s", "", "working directory of the service to apply")
	applyCmd.Flags().BoolVar(&all, "all", false, "apply every missing Dockerfile")
	return applyCmd
}

const optionsView = `registry: {{.Registry}}
image:    {{with .ImageNameOverride}}{{.}}{{else}}(derived from the repository){{end}}
strategy: {{.Strategy}}
`

func newOptionsCmd(get func() *app.App) *cobra.Command {
	var flags imageFlags

	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "Show or change the image settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := flags.apply(a); err != nil {
				return err
			}
			return a.Render("docker-options", optionsView, a.Pipeline.DockerOptions(), nil)
		},
	}
	flags.register(optionsCmd)
	return optionsCmd
}
