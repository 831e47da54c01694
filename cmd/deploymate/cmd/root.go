// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/analyze"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/auth"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/cd"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/ci"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/configure"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/docker"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/history"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/repo"
	"github.com/kusari-oss/deploymate/cmd/deploymate/cmd/state"
	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/config"
	"github.com/kusari-oss/deploymate/internal/core/format"
	"github.com/kusari-oss/deploymate/internal/version"
	"github.com/spf13/cobra"
)

var (
	// Configuration path
	configFile string

	// Flag overrides
	apiURL       string
	output       string
	logLevel     string
	templateFile string

	// Built in PersistentPreRunE
	application *app.App
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deploymate",
		Short: "DeployMate - CI/CD generation for GitHub repositories",
		Long: `DeployMate connects to your GitHub repositories, analyzes their stack and
generates Dockerfiles, GitHub Actions CI workflows and CD workflows.

Typical flow:
  deploymate auth login
  deploymate repo select owner/name
  deploymate analyze run
  deploymate docker apply
  deploymate ci push
  deploymate cd push`,
		Version:       fmt.Sprintf("%s (commit: %s)", version.Version, version.Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			if apiURL != "" {
				cfg.APIURL = strings.TrimRight(apiURL, "/")
			}
			if logLevel != "" {
				cfg.LogLevel = strings.ToLower(logLevel)
			}
			if output != "" {
				if !format.ValidOutput(output) {
					return fmt.Errorf("unsupported output %q, use text, yaml or json", output)
				}
				cfg.Output = output
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			application, err = app.New(cfg,
				app.WithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()),
				app.WithInput(cmd.InOrStdin()),
				app.WithTemplate(templateFile),
			)
			return err
		},
	}

	get := func() *app.App { return application }

	rootCmd.AddCommand(auth.NewAuthCmd(get))
	rootCmd.AddCommand(repo.NewRepoCmd(get))
	rootCmd.AddCommand(analyze.NewAnalyzeCmd(get))
	rootCmd.AddCommand(docker.NewDockerCmd(get))
	rootCmd.AddCommand(ci.NewCICmd(get))
	rootCmd.AddCommand(cd.NewCDCmd(get))
	rootCmd.AddCommand(history.NewHistoryCmd(get))
	rootCmd.AddCommand(state.NewStateCmd(get))
	rootCmd.AddCommand(configure.NewConfigCmd(get))

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ~/.deploymate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "DeployMate backend URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format: text, yaml or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&templateFile, "template", "", "render text output through this Go template file")

	return rootCmd
}

// Execute runs the command tree
func Execute() error {
	return run(NewRootCmd())
}

// run executes root and closes the App even when the command failed
func run(root *cobra.Command) error {
	err := root.Execute()
	if application != nil {
		if cerr := application.Close(); cerr != nil && err == nil {
			err = cerr
		}
		application = nil
	}
	return err
}
