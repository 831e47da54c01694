// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"fmt"
	"time"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/format"
	"github.com/kusari-oss/deploymate/internal/wizard/analysis"
	"github.com/spf13/cobra"
)

func newTreeCmd(get func() *app.App) *cobra.Command {
	var reveal bool

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the repository file tree",
		Long: `Shows the repository files the backend sees, minus the configured
ignore patterns. With --reveal the files scroll in one at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			page, err := newPage(a)
			if err != nil {
				return err
			}
			if err := page.Load(cmd.Context()); err != nil {
				return err
			}
			files, filesErr := page.Files()
			if filesErr != nil {
				return fmt.Errorf("file tree unavailable: %w", filesErr)
			}

			if a.Output == format.YAML || a.Output == format.JSON {
				return format.Write(a.Out, page.Tree(), a.Output)
			}

			interval := time.Duration(a.Config.TreeRevealIntervalMS) * time.Millisecond
			if !reveal || interval <= 0 {
				_, err := fmt.Fprint(a.Out, treeLines(page.Tree()))
				return err
			}

			done := make(chan struct{})
			shown := 0
			r := analysis.NewRevealer(nil, interval)
			r.Start(files, func(visible []string) {
				for _, f := range visible[shown:] {
					fmt.Fprintln(a.Out, f)
				}
				shown = len(visible)
			}, func() { close(done) })

			select {
			case <-done:
				return nil
			case <-cmd.Context().Done():
				r.Stop()
				return cmd.Context().Err()
			}
		},
	}
	treeCmd.Flags().BoolVar(&reveal, "reveal", false, "reveal files progressively at the configured interval")
	return treeCmd
}
