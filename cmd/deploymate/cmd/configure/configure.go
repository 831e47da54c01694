// SPDX-License-Identifier: Apache-2.0

package configure

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/core/config"
	"github.com/kusari-oss/deploymate/internal/core/format"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config command
func NewConfigCmd(get func() *app.App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Long: `Configuration is read from ~/.deploymate/config.yaml, then DEPLOYMATE_*
environment variables, then command line flags.`,
	}

	configCmd.AddCommand(newShowCmd(get))
	configCmd.AddCommand(newSetCmd(get))
	configCmd.AddCommand(newPathCmd(get))

	return configCmd
}

func newShowCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := a.Output
			if out != format.JSON {
				out = format.YAML
			}
			shown := *a.Config
			if shown.GithubToken != "" {
				shown.GithubToken = "********"
			}
			return format.Write(a.Out, &shown, out)
		},
	}
}

func newPathCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the global configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GlobalConfigFilePath()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(get().Out, path)
			return err
		},
	}
}

func newSetCmd(get func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the global configuration file",
		Long: `Sets one key of ~/.deploymate/config.yaml. Values are read as YAML, so
lists are written as [a, b] and numbers stay numbers. Example:

  deploymate config set api_url https://api.deploymate.dev
  deploymate config set ignore_patterns "[.git/, vendor/]"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGlobal()
			if err != nil {
				return err
			}
			if err := Set(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveGlobalConfig(cfg); err != nil {
				return err
			}
			get().Toaster.Success(fmt.Sprintf("%s updated.", args[0]))
			return nil
		},
	}
}

// loadGlobal reads the global file alone, so environment overrides are
// never written back
func loadGlobal() (*config.Config, error) {
	path, err := config.GlobalConfigFilePath()
	if err != nil {
		return nil, err
	}
	cfg := config.NewDefaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err := format.ParseFile(path, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Set assigns the YAML value to key and validates the result. cfg is left
// untouched on error.
func Set(cfg *config.Config, key, value string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return err
	}
	if !knownKey(key) {
		return fmt.Errorf("unknown configuration key %q, known keys: %v", key, Keys())
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if parsed == nil {
		parsed = ""
	}
	fields[key] = parsed

	data, err = yaml.Marshal(fields)
	if err != nil {
		return err
	}
	updated := config.Config{}
	if err := yaml.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*cfg = updated
	return nil
}

// Keys lists the configuration keys in the global file
func Keys() []string {
	data, _ := yaml.Marshal(config.Config{GithubToken: "x", BrowserCommand: "x"})
	fields := map[string]interface{}{}
	_ = yaml.Unmarshal(data, &fields)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func knownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}
