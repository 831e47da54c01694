// SPDX-License-Identifier: Apache-2.0

package executor_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/kusari-oss/deploymate/internal/core/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping test on Windows")
	}

	tests := []struct {
		name        string
		command     string
		args        []string
		params      map[string]interface{}
		shouldError bool
		outputCheck func(t *testing.T, result *executor.CommandResult)
	}{
		{
			name:    "echo command",
			command: "echo",
			args:    []string{"open {{.url}}"},
			params:  map[string]interface{}{"url": "http://localhost:8080/api/auth/login"},
			outputCheck: func(t *testing.T, result *executor.CommandResult) {
				assert.Contains(t, string(result.Output), "open http://localhost:8080/api/auth/login")
			},
		},
		{
			name:        "failing command",
			command:     "sh",
			args:        []string{"-c", "echo nope >&2; exit 3"},
			params:      map[string]interface{}{},
			shouldError: true,
			outputCheck: func(t *testing.T, result *executor.CommandResult) {
				assert.Equal(t, 3, result.ExitStatus)
				assert.Contains(t, result.Error.Error(), "nope")
			},
		},
		{
			name:        "missing parameter",
			command:     "echo",
			args:        []string{"{{.missing}}"},
			params:      map[string]interface{}{},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := executor.NewCommandExecutor(tt.command, tt.args)
			err := e.ProcessParameters(tt.params)
			if err != nil {
				assert.True(t, tt.shouldError)
				return
			}

			result, err := e.Execute(context.Background())
			if tt.shouldError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.outputCheck != nil {
				tt.outputCheck(t, result)
			}
		})
	}
}

func TestBrowserCommand(t *testing.T) {
	e, err := executor.BrowserCommand("firefox --new-tab {{.url}}", "http://x/login")
	require.NoError(t, err)
	cmd, args := e.Command()
	assert.Equal(t, "firefox", cmd)
	assert.Equal(t, []string{"--new-tab", "http://x/login"}, args)

	e, err = executor.BrowserCommand("my-browser", "http://x/login")
	require.NoError(t, err)
	cmd, args = e.Command()
	assert.Equal(t, "my-browser", cmd)
	assert.Equal(t, []string{"http://x/login"}, args)

	e, err = executor.BrowserCommand("", "http://x/login")
	require.NoError(t, err)
	_, args = e.Command()
	assert.Contains(t, args, "http://x/login")
}

func TestParseCommandLine_Empty(t *testing.T) {
	_, err := executor.ParseCommandLine("   ")
	assert.Error(t, err)
}
