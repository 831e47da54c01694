// SPDX-License-Identifier: Apache-2.0

// Package executor runs external commands, currently the browser launcher
// used by the login flow.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/template"
)

// CommandExecutor handles running cli command functionality
type CommandExecutor struct {
	command string
	args    []string
}

// CommandResult holds the result of command execution
type CommandResult struct {
	Output     []byte
	Error      error
	ExitStatus int
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(command string, args []string) *CommandExecutor {
	return &CommandExecutor{
		command: command,
		args:    args,
	}
}

// ParseCommandLine splits a configured command such as "firefox --new-tab {{.url}}"
func ParseCommandLine(line string) (*CommandExecutor, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return NewCommandExecutor(fields[0], fields[1:]), nil
}

// Command returns the program and its arguments
func (e *CommandExecutor) Command() (string, []string) {
	return e.command, e.args
}

// ProcessParameters renders command and arguments as templates
func (e *CommandExecutor) ProcessParameters(params map[string]interface{}) error {
	processedCommand, err := template.ProcessString(e.command, params)
	if err != nil {
		return fmt.Errorf("error processing command: %w", err)
	}
	e.command = string(processedCommand)

	processedArgs := make([]string, 0, len(e.args))
	for _, arg := range e.args {
		processedArg, err := template.ProcessString(arg, params)
		if err != nil {
			return fmt.Errorf("error processing argument: %w", err)
		}
		processedArgs = append(processedArgs, string(processedArg))
	}
	e.args = processedArgs
	return nil
}

func (e *CommandExecutor) build(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, e.command, e.args...)
}

// Execute runs the command to completion and returns its output
func (e *CommandExecutor) Execute(ctx context.Context) (*CommandResult, error) {
	cmd := e.build(ctx)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &CommandResult{
		Output: stdout.Bytes(),
		Error:  err,
	}
	if exitError, ok := err.(*exec.ExitError); ok {
		result.ExitStatus = exitError.ExitCode()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
			result.Error = err
		}
	}
	return result, err
}

// Start launches the command without waiting for it
func (e *CommandExecutor) Start(ctx context.Context) error {
	cmd := e.build(ctx)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting %s: %w", e.command, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// BrowserCommand returns the launcher for url. A configured command line may
// reference {{.url}}; when it does not, the url is appended.
func BrowserCommand(configured, url string) (*CommandExecutor, error) {
	line := configured
	if line == "" {
		line = defaultBrowser(runtime.GOOS)
	}
	if !strings.Contains(line, "{{.url}}") {
		line += " {{.url}}"
	}

	e, err := ParseCommandLine(line)
	if err != nil {
		return nil, err
	}
	if err := e.ProcessParameters(map[string]interface{}{"url": url}); err != nil {
		return nil, err
	}
	return e, nil
}

func defaultBrowser(goos string) string {
	switch goos {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32 url.dll,FileProtocolHandler"
	default:
		return "xdg-open"
	}
}
