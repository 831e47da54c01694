// SPDX-License-Identifier: Apache-2.0

// Package cd drives the CD stage. When the backend reports that a production
// Docker Compose file is missing, the stage holds the requested action,
// offers the compose file, and replays the action once it is pushed.
package cd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/phuslu/log"
)

// Action is the CD call the user asked for
type Action string

const (
	ActionPreview Action = "preview"
	ActionPush    Action = "push"
)

var (
	// ErrComposeRequired is returned when the action waits on a compose file
	ErrComposeRequired = errors.New("docker compose file required")
	// ErrNoPendingCompose is returned by ApplyCompose when nothing waits on it
	ErrNoPendingCompose = errors.New("no action is waiting for a compose file")
	// ErrBusy is returned while another request of the stage is in flight
	ErrBusy = errors.New("a request is already in progress")
	// ErrNoRepository is returned when no repository is selected
	ErrNoRepository = errors.New("no repository selected, run `deploymate repo select`")
)

// Backend is the part of the API the stage calls
type Backend interface {
	CDPreview(ctx context.Context, repoID int64) (*api.CDResponse, error)
	CDApply(ctx context.Context, repoID int64) (*api.CDResponse, error)
	ComposePreview(ctx context.Context, repoID int64) (*api.ComposeResponse, error)
	ComposeApply(ctx context.Context, repoID int64) (*api.ComposeResponse, error)
}

// Notifier shows toasts
type Notifier interface {
	Show(t models.Toast, d time.Duration)
}

// ComposeRequired describes an action held until the compose file exists.
// PreviewErr is set when the compose preview could not be fetched; the
// compose file can still be pushed without it.
type ComposeRequired struct {
	Action     Action
	Content    string
	FilePath   string
	PreviewErr error
}

// SkipPreview reports whether the compose preview is unavailable
func (c *ComposeRequired) SkipPreview() bool {
	return c.PreviewErr != nil || c.Content == ""
}

// Stage is one visit to the CD stage
type Stage struct {
	backend Backend
	state   *pipeline.State
	notify  Notifier
	logger  *log.Logger

	mu       sync.Mutex
	busy     bool
	workflow string
	commit   string
	pending  *ComposeRequired
}

// New creates the stage for the pipeline's repository
func New(backend Backend, state *pipeline.State, notify Notifier, logger *log.Logger) (*Stage, error) {
	if state.RepoID() == 0 {
		return nil, ErrNoRepository
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Stage{backend: backend, state: state, notify: notify, logger: logger}, nil
}

// IsComposeRequired reports whether err asks for a compose file first
func IsComposeRequired(err error) bool {
	apiErr, ok := api.AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.Status == http.StatusPreconditionRequired ||
		apiErr.Payload.MissingCompose ||
		apiErr.Payload.Code == api.CodeComposeMissing
}

func (s *Stage) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Stage) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Workflow returns the last previewed or pushed workflow YAML
func (s *Stage) Workflow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflow
}

// Commit returns the commit of the last push
func (s *Stage) Commit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit
}

// Pending returns the action waiting on a compose file, if any
func (s *Stage) Pending() *ComposeRequired {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// Preview renders the CD workflow
func (s *Stage) Preview(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.run(ctx, ActionPreview)
}

// Push commits the CD workflow
func (s *Stage) Push(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.run(ctx, ActionPush)
}

func (s *Stage) call(ctx context.Context, action Action) (*api.CDResponse, error) {
	if action == ActionPush {
		return s.backend.CDApply(ctx, s.state.RepoID())
	}
	return s.backend.CDPreview(ctx, s.state.RepoID())
}

func (s *Stage) run(ctx context.Context, action Action) error {
	res, err := s.call(ctx, action)
	if err != nil {
		if IsComposeRequired(err) {
			s.requireCompose(ctx, action)
			return fmt.Errorf("%w: %s", ErrComposeRequired, action)
		}
		s.logger.Error().Err(err).Str("action", string(action)).Msg("cd request failed")
		s.toastError(err, fmt.Sprintf("CD %s failed.", action))
		return err
	}

	s.record(action, res)
	return nil
}

func (s *Stage) record(action Action, res *api.CDResponse) {
	s.mu.Lock()
	if res.WorkflowYAML != "" {
		s.workflow = res.WorkflowYAML
	}
	if action == ActionPush {
		s.commit = res.CommitHash
	}
	s.mu.Unlock()

	if action == ActionPush {
		msg := "CD workflow pushed."
		if res.CommitHash != "" {
			msg = fmt.Sprintf("CD workflow pushed (commit %s).", res.CommitHash)
		}
		s.notify.Show(models.Toast{Message: msg, Type: models.ToastSuccess, Position: "center"}, 0)
	}
}

// requireCompose records the held action and fetches the compose preview.
// A failed preview is kept on the record, not returned.
func (s *Stage) requireCompose(ctx context.Context, action Action) {
	p := &ComposeRequired{Action: action}
	res, err := s.backend.ComposePreview(ctx, s.state.RepoID())
	if err != nil {
		s.logger.Warn().Err(err).Msg("compose preview unavailable")
		p.PreviewErr = err
	} else {
		p.Content = res.Content
		p.FilePath = res.FilePath
	}

	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
	s.notify.Show(models.Toast{Message: api.MsgComposeMissing, Type: models.ToastInfo, Position: "center"}, 0)
}

// ApplyCompose pushes the compose file and replays the held action once
func (s *Stage) ApplyCompose(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p == nil {
		return ErrNoPendingCompose
	}

	res, err := s.backend.ComposeApply(ctx, s.state.RepoID())
	if err != nil {
		s.logger.Error().Err(err).Msg("compose push failed")
		s.toastError(err, "Docker Compose push failed.")
		return err
	}
	msg := "Docker Compose pushed."
	if res.CommitHash != "" {
		msg = fmt.Sprintf("Docker Compose pushed (commit %s).", res.CommitHash)
	}
	s.notify.Show(models.Toast{Message: msg, Type: models.ToastSuccess, Position: "center"}, 0)

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	retry, err := s.call(ctx, p.Action)
	if err != nil {
		s.logger.Error().Err(err).Str("action", string(p.Action)).Msg("cd retry failed")
		s.toastError(err, fmt.Sprintf("CD %s failed.", p.Action))
		return err
	}
	s.record(p.Action, retry)
	return nil
}

// DismissCompose drops the held action
func (s *Stage) DismissCompose() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *Stage) toastError(err error, fallback string) {
	msg := api.Humanize(err, models.UpdateIfExists)
	if msg == "" {
		msg = fallback
	}
	s.notify.Show(models.Toast{Message: msg, Type: models.ToastError, Position: "center"}, 0)
}
