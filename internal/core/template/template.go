// SPDX-License-Identifier: Apache-2.0

// Package template renders text views and parameterized command lines.
package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
)

// Funcs are available to every view
func Funcs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  strings.Join,
		"indent": func(n int, s string) string {
			pad := strings.Repeat(" ", n)
			return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
		},
		"default": func(def, v string) string {
			if strings.TrimSpace(v) == "" {
				return def
			}
			return v
		},
		"yesno": func(b bool) string {
			if b {
				return "yes"
			}
			return "no"
		},
		"pad": func(n int, s string) string {
			if len(s) >= n {
				return s
			}
			return s + strings.Repeat(" ", n-len(s))
		},
	}
}

// ProcessString expands a template with params; missing keys are errors
func ProcessString(text string, params map[string]interface{}) ([]byte, error) {
	tmpl, err := template.New("template").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("error parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}

	return buf.Bytes(), nil
}

// Render executes the view text against data, with Funcs plus extra
func Render(w io.Writer, name, text string, data interface{}, extra template.FuncMap) error {
	funcs := Funcs()
	for k, v := range extra {
		funcs[k] = v
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return fmt.Errorf("error parsing %s view: %w", name, err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("error rendering %s view: %w", name, err)
	}
	return nil
}

// RenderFile renders a user-supplied view file
func RenderFile(w io.Writer, filePath string, data interface{}, extra template.FuncMap) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("template file does not exist: %s", filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading template file: %w", err)
	}

	return Render(w, filePath, string(content), data, extra)
}
