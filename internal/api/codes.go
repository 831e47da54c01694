// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"regexp"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/models"
)

// Machine-readable error codes a backend may send in the `code` field
const (
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeGithubTokenMissing   = "GITHUB_TOKEN_MISSING"
	CodeDockerfileNotApplied = "DOCKERFILE_NOT_APPLIED"
	CodeComposeMissing       = "COMPOSE_MISSING"
	CodeCIWorkflowMissing    = "CI_WORKFLOW_MISSING"
	CodeFileExists           = "FILE_EXISTS"
	CodeIOError              = "IO_ERROR"
)

// User-facing messages
const (
	MsgTransport         = "Could not reach the DeployMate backend."
	MsgUnauthorized      = "Authentication required or repository not owned."
	MsgGithubToken       = "GitHub token not found for user. Reconnect your GitHub account."
	MsgDockerfileMissing = "Dockerfile not applied yet. Apply the Dockerfile first, then push the CI workflow."
	MsgComposeMissing    = "A Docker Compose file is required before generating the CD workflow."
	MsgCIWorkflowMissing = "Generate a CI workflow for this repository before generating a CD workflow."
	MsgFileExists        = "File already exists and strategy is FAIL_IF_EXISTS. Push aborted."
	MsgIOError           = "I/O error while writing to the repository."
	MsgUnknown           = "Unknown error."
)

var codeMessages = map[string]string{
	CodeUnauthorized:         MsgUnauthorized,
	CodeGithubTokenMissing:   MsgGithubToken,
	CodeDockerfileNotApplied: MsgDockerfileMissing,
	CodeComposeMissing:       MsgComposeMissing,
	CodeCIWorkflowMissing:    MsgCIWorkflowMissing,
	CodeFileExists:           MsgFileExists,
	CodeIOError:              MsgIOError,
}

var ioErrorPrefix = regexp.MustCompile(`(?i)^io error:\s*`)

// Humanize turns a request error into text for the user. A known `code`
// wins; otherwise the status and message are inspected.
func Humanize(err error, strategy models.FileHandlingStrategy) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTransport) {
		return MsgTransport
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return err.Error()
	}

	apiErr, ok := AsAPIError(err)
	if !ok {
		return err.Error()
	}

	if msg, ok := codeMessages[apiErr.Payload.Code]; ok {
		if apiErr.Payload.Code == CodeIOError && apiErr.Payload.Message != "" {
			return ioErrorPrefix.ReplaceAllString(apiErr.Payload.Message, "I/O error: ")
		}
		return msg
	}

	m := apiErr.Payload.Message
	lower := strings.ToLower(m)

	switch apiErr.Status {
	case 401:
		return MsgUnauthorized
	case 400:
		if strings.Contains(lower, "github token not found") {
			return MsgGithubToken
		}
		if strategy == models.FailIfExists && strings.Contains(lower, "exists") {
			return MsgFileExists
		}
	case 409:
		if m == "" {
			return MsgCIWorkflowMissing
		}
	case 428:
		if apiErr.Payload.MissingCompose {
			return MsgComposeMissing
		}
		if m == "" {
			return MsgDockerfileMissing
		}
		return MsgDockerfileMissing + " (" + m + ")"
	case 500:
		if ioErrorPrefix.MatchString(m) {
			return ioErrorPrefix.ReplaceAllString(m, "I/O error: ")
		}
	}

	if m == "" {
		return MsgUnknown
	}
	return m
}
