// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/wizard/analysis"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd(get func() *app.App) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the selected repository's stack",
		Long: `Runs the backend stack analysis of the selected repository, shows the
detected services and file tree, lets you correct fields and confirms the
result before Dockerfile generation.`,
	}

	analyzeCmd.AddCommand(newRunCmd(get))
	analyzeCmd.AddCommand(newTreeCmd(get))
	analyzeCmd.AddCommand(newEditCmd(get))
	analyzeCmd.AddCommand(newConfirmCmd(get))
	analyzeCmd.AddCommand(newForgetCmd(get))

	return analyzeCmd
}

func newPage(a *app.App) (*analysis.Page, error) {
	if err := a.RequireAuth(); err != nil {
		return nil, err
	}
	return analysis.New(analysis.Options{
		RepoID:   a.Pipeline.RepoID(),
		Backend:  a.Client,
		Pipeline: a.Pipeline,
		Local:    a.Local,
		Session:  a.Session,
		Filter:   a.TreeFilter(),
		Logger:   a.Logger,
	})
}

// openPage resumes the session draft when there is one, otherwise runs the
// analysis
func openPage(ctx context.Context, a *app.App, fresh bool) (*analysis.Page, error) {
	page, err := newPage(a)
	if err != nil {
		return nil, err
	}
	if !fresh && page.Resume() {
		return page, nil
	}
	if err := page.Load(ctx); err != nil {
		var unsupported *analysis.UnsupportedError
		if errors.As(err, &unsupported) {
			a.Toaster.Error(analysis.UnsupportedMessage)
		}
		return nil, err
	}
	return page, nil
}

// View is what `analyze run` reports
type View struct {
	RepoID       int64                      `json:"repoId" yaml:"repo_id"`
	Phase        analysis.Phase             `json:"phase" yaml:"phase"`
	Mode         string                     `json:"mode" yaml:"mode"`
	Services     []models.ServiceDescriptor `json:"services" yaml:"services"`
	DatabaseType string                     `json:"databaseType,omitempty" yaml:"database_type,omitempty"`
	DatabaseName string                     `json:"databaseName,omitempty" yaml:"database_name,omitempty"`
	Rejections   []string                   `json:"rejections,omitempty" yaml:"rejections,omitempty"`
	Unsaved      bool                       `json:"unsavedChanges" yaml:"unsaved_changes"`
	Confirmed    bool                       `json:"confirmed" yaml:"confirmed"`
	Files        int                        `json:"files" yaml:"files"`
	FilesError   string                     `json:"filesError,omitempty" yaml:"files_error,omitempty"`
}

func newView(page *analysis.Page, repoID int64) View {
	res := page.Analysis()
	files, filesErr := page.Files()
	v := View{
		RepoID:     repoID,
		Phase:      page.Phase(),
		Mode:       res.Mode,
		Rejections: page.Rejections(),
		Unsaved:    page.HasUnsavedChanges(),
		Confirmed:  page.IsConfirmed(),
		Files:      len(files),
	}
	if filesErr != nil {
		v.FilesError = filesErr.Error()
	}
	if res.IsMulti() {
		v.Services = res.Services
		v.DatabaseType = res.DatabaseType
		v.DatabaseName = res.DatabaseName
	} else if svc := res.PrimaryService(); svc != nil {
		v.Services = []models.ServiceDescriptor{*svc}
		v.DatabaseType = svc.DatabaseType
		v.DatabaseName = svc.DatabaseName
	}
	return v
}

const analysisView = `Repository {{.RepoID}} ({{.Mode}} mode, {{.Phase}})
{{range $i, $s := .Services}}
{{if gt (len $.Services) 1}}[services.{{$i}}] {{end}}{{default "." $s.WorkingDirectory}}
  stack:        {{$s.StackType}}
  build tool:   {{$s.BuildTool}}
  language:     {{default "-" $s.Language}}
  java version: {{default "-" $s.JavaVersion}}
{{- range $k, $v := $s.ProjectDetails}}
  {{pad 13 (printf "%s:" $k)}} {{$v}}
{{- end}}
{{end}}
Database: {{default "NONE" .DatabaseType}}{{with .DatabaseName}} ({{.}}){{end}}
{{- with .Rejections}}

Filtered out:
{{range .}}  • {{.}}
{{end}}{{end}}
{{if .FilesError}}File tree unavailable: {{.FilesError}}{{else}}{{.Files}} files in the repository tree{{end}}
{{if .Unsaved}}Unsaved changes. Run: deploymate analyze confirm
{{else if .Confirmed}}Confirmed. Next: deploymate docker preview
{{else}}Not confirmed yet. Run: deploymate analyze confirm
{{end}}`

func newRunCmd(get func() *app.App) *cobra.Command {
	var resume bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stack analysis",
		Long: `Analyzes the selected repository. Services outside the supported stacks
(Spring Boot with Maven or Gradle, Node.js) are filtered out with a reason.
With --resume, unsaved edits from this session are shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			page, err := openPage(cmd.Context(), a, !resume)
			if err != nil {
				return err
			}
			return a.Render("analysis", analysisView, newView(page, a.Pipeline.RepoID()), nil)
		},
	}
	runCmd.Flags().BoolVar(&resume, "resume", false, "show the session draft instead of analyzing again")
	return runCmd
}

func newEditCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <path> <value>",
		Short: "Correct one analysis field",
		Long: `Sets one field of the analysis. The change stays in this session until
"analyze confirm" saves it.

Paths address the analysis as the backend returns it, for example:
  analysis.buildTool                 single-service build tool
  analysis.javaVersion
  analysis.projectDetails.nodeVersion
  services.1.workingDirectory        second service of a multi analysis
  databaseType                       multi analysis database
  databaseName`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			page, err := openPage(cmd.Context(), a, false)
			if err != nil {
				return err
			}
			if err := page.Edit(args[0], args[1]); err != nil {
				return err
			}
			a.Toaster.Success("Updated " + args[0] + ".")
			return a.Render("analysis", analysisView, newView(page, a.Pipeline.RepoID()), nil)
		},
	}
}

const payloadView = `The following parameters will be saved:
{{range .}}  {{.}}
{{end}}`

func newConfirmCmd(get func() *app.App) *cobra.Command {
	var yes bool

	confirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Save the analysis and continue to the Dockerfile stage",
		Long: `Saves the analysis parameters to the backend and hands the analysis to
the pipeline. A repository confirmed before without edits since continues
without asking.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			page, err := openPage(cmd.Context(), a, false)
			if err != nil {
				return err
			}
			ask, err := page.Proceed()
			if err != nil {
				return err
			}
			if !ask {
				a.Toaster.Info("Analysis already confirmed.")
				return nil
			}

			if !yes {
				if err := a.Render("payload", payloadView, payloadLines(page.Payload()), nil); err != nil {
					return err
				}
			}
			ok, err := a.Confirm("Save this analysis and continue?", yes)
			if err != nil {
				page.CancelConfirm()
				return err
			}
			if !ok {
				page.CancelConfirm()
				a.Toaster.Info("Analysis not saved.")
				return nil
			}
			if err := page.Confirm(cmd.Context()); err != nil {
				a.Toaster.Error("Failed to save analysis.")
				return err
			}
			a.Toaster.Success("Analysis saved. Next: deploymate docker preview")
			return nil
		},
	}
	confirmCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return confirmCmd
}

func payloadLines(payload map[string]string) []string {
	lines := make([]string, 0, len(payload))
	for k, v := range payload {
		lines = append(lines, k+" = "+v)
	}
	sort.Strings(lines)
	return lines
}

func newForgetCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Ask for confirmation again next time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			page, err := newPage(a)
			if err != nil {
				return err
			}
			if err := page.Forget(); err != nil {
				return err
			}
			a.Toaster.Info("Confirmation forgotten for repository.")
			return nil
		},
	}
}

// treeLines renders the tree with two spaces per level, directories with a slash
func treeLines(root *analysis.Node) string {
	var b strings.Builder
	root.Walk(func(n *analysis.Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		if n.Type == analysis.NodeDir {
			b.WriteString("/")
		}
		b.WriteString("\n")
	})
	return b.String()
}
