// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by -o
const (
	Text = "text"
	YAML = "yaml"
	JSON = "json"
)

// ValidOutput reports whether name is a supported output format
func ValidOutput(name string) bool {
	switch name {
	case Text, YAML, JSON:
		return true
	}
	return false
}

// ParseFile reads and parses a file. TOML is chosen by extension, anything
// else goes through ParseData.
func ParseFile(filePath string, v interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	if IsTOMLFile(filePath) {
		if err := toml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse as TOML: %w", err)
		}
		return nil
	}

	return ParseData(data, v)
}

// ParseData parses data, trying YAML first, then JSON
func ParseData(data []byte, v interface{}) error {
	err := yaml.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	jsonErr := json.Unmarshal(data, v)
	if jsonErr == nil {
		return nil
	}

	return fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", err, jsonErr)
}

// WriteFile writes data to a file in the format implied by its extension
func WriteFile(filePath string, v interface{}) error {
	var data []byte
	var err error

	switch {
	case IsJSONFile(filePath):
		data, err = json.MarshalIndent(v, "", "  ")
	case IsTOMLFile(filePath):
		data, err = toml.Marshal(v)
	default:
		data, err = yaml.Marshal(v)
	}

	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}

	return os.WriteFile(filePath, data, 0600)
}

// FormatData formats data as YAML or JSON string
func FormatData(v interface{}, useYAML bool) (string, error) {
	var data []byte
	var err error

	if useYAML {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}

	if err != nil {
		return "", fmt.Errorf("error formatting data: %w", err)
	}

	return string(data), nil
}

// Write renders v to w as yaml or json. Text output is handled by the
// template views, so asking for it here is an error.
func Write(w io.Writer, v interface{}, output string) error {
	var s string
	var err error
	switch output {
	case YAML:
		s, err = FormatData(v, true)
	case JSON:
		s, err = FormatData(v, false)
	default:
		return fmt.Errorf("unsupported structured output %q", output)
	}
	if err != nil {
		return err
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err = io.WriteString(w, s)
	return err
}

// IsJSONFile returns true if the file extension suggests it's a JSON file
func IsJSONFile(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".json"
}

// IsTOMLFile returns true if the file extension suggests it's a TOML file
func IsTOMLFile(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".toml"
}
