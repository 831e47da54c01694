// SPDX-License-Identifier: Apache-2.0

// Package ci drives the CI stage: preview the generated GitHub Actions
// workflow of each service and push it, checking the file handling strategy
// locally before calling the backend.
package ci

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/kusari-oss/deploymate/internal/wizard/dockerfile"
	"github.com/phuslu/log"
)

// DefaultWorkflowPath is assumed when a single-mode preview names no file
const DefaultWorkflowPath = ".github/workflows/ci.yml"

// Preflight messages
const (
	MsgNothingToPush = "Workflow is identical to the repository, nothing to push."
	MsgFileExists    = "File already exists and strategy is FAIL_IF_EXISTS, push aborted."
)

var (
	// ErrBlocked is returned when preflight stops a push before any request
	ErrBlocked = errors.New("push blocked")
	// ErrBusy is returned while another request of the stage is in flight
	ErrBusy = errors.New("a request is already in progress")
	// ErrNoAnalysis is returned when the pipeline has no confirmed analysis
	ErrNoAnalysis = dockerfile.ErrNoAnalysis
	// ErrServiceNotFound is returned for an unknown service
	ErrServiceNotFound = errors.New("service not found")
)

// Backend is the part of the API the stage calls
type Backend interface {
	CIPreview(ctx context.Context, req api.StageRequest) (*api.CIPreviewResponse, error)
	GenerateCI(ctx context.Context, req api.StageRequest) (*api.CIGenerateResponse, error)
}

// Notifier shows toasts
type Notifier interface {
	Show(t models.Toast, d time.Duration)
}

// Decision is the outcome of Preflight. A nil Toast means proceed.
type Decision struct {
	Proceed bool
	Toast   *models.Toast
}

// Preflight decides locally whether a push can succeed: an identical file
// under UPDATE_IF_EXISTS has nothing to push, and any existing file under
// FAIL_IF_EXISTS would be rejected.
func Preflight(status string, strategy models.FileHandlingStrategy) Decision {
	switch {
	case status == models.StatusIdentical && strategy == models.UpdateIfExists:
		return Decision{Toast: &models.Toast{Message: MsgNothingToPush, Type: models.ToastInfo}}
	case (status == models.StatusIdentical || status == models.StatusDifferent) && strategy == models.FailIfExists:
		return Decision{Toast: &models.Toast{Message: MsgFileExists, Type: models.ToastError}}
	}
	return Decision{Proceed: true}
}

// Stage is one visit to the CI stage
type Stage struct {
	backend  Backend
	state    *pipeline.State
	notify   Notifier
	strategy models.FileHandlingStrategy
	logger   *log.Logger

	mu       sync.Mutex
	busy     bool
	previews []models.CIPreview
	selected string
}

// New creates the stage; the pipeline must hold a repository and an analysis
func New(backend Backend, state *pipeline.State, notify Notifier, strategy models.FileHandlingStrategy, logger *log.Logger) (*Stage, error) {
	if state.RepoID() == 0 || state.Analysis() == nil {
		return nil, ErrNoAnalysis
	}
	if strategy == "" {
		strategy = models.UpdateIfExists
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Stage{backend: backend, state: state, notify: notify, strategy: strategy, logger: logger}, nil
}

// Strategy returns the file handling strategy sent with pushes
func (s *Stage) Strategy() models.FileHandlingStrategy {
	return s.strategy
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

func (s *Stage) request(services []models.ServiceDescriptor) api.StageRequest {
	a := s.state.Analysis()
	req := api.StageRequest{
		RepoID:               s.state.RepoID(),
		Docker:               s.state.DockerOptions(),
		FileHandlingStrategy: s.strategy,
	}
	if a.IsMulti() {
		if services == nil {
			services = a.Services
		}
		req.Services = services
	} else {
		req.TechStackInfo = dockerfile.SingleTechStackInfo(a)
	}
	return req
}

func serviceKey(service string) string {
	if service == "" {
		return "."
	}
	return service
}

// LoadPreview fetches the generated workflows and their repository status
func (s *Stage) LoadPreview(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	res, err := s.backend.CIPreview(ctx, s.request(nil))
	if err != nil {
		s.toastError(err, "Failed to preview CI.")
		return err
	}

	a := s.state.Analysis()
	var previews []models.CIPreview
	if a.IsMulti() {
		for _, p := range res.Previews {
			p.Service = serviceKey(p.Service)
			if p.Status == "" {
				p.Status = models.StatusNotFound
			}
			previews = append(previews, p)
		}
	} else {
		p := models.CIPreview{Service: ".", FilePath: res.FilePath, Status: res.Status, Content: res.Content}
		if p.FilePath == "" {
			p.FilePath = DefaultWorkflowPath
		}
		if p.Status == "" {
			p.Status = models.StatusNotFound
		}
		previews = []models.CIPreview{p}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = previews
	switch {
	case len(previews) > 0:
		s.selected = previews[0].Service
	case a.IsMulti() && len(a.Services) > 0:
		s.selected = serviceKey(a.Services[0].WorkingDirectory)
	default:
		s.selected = "."
	}
	return nil
}

// Previews returns the loaded previews
func (s *Stage) Previews() []models.CIPreview {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CIPreview, len(s.previews))
	copy(out, s.previews)
	return out
}

// caller holds s.mu
func (s *Stage) findLocked(service string) int {
	key := serviceKey(service)
	for i := range s.previews {
		if s.previews[i].Service == key {
			return i
		}
	}
	return -1
}

// Select makes service the current one
func (s *Stage) Select(service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(service) < 0 {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	s.selected = serviceKey(service)
	return nil
}

// Current returns the preview in view
func (s *Stage) Current() *models.CIPreview {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findLocked(s.selected)
	if i < 0 {
		return nil
	}
	p := s.previews[i]
	return &p
}

// AllApplied is true when every workflow is identical to the repository
func (s *Stage) AllApplied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.previews) == 0 {
		return false
	}
	for _, p := range s.previews {
		if p.Status != models.StatusIdentical {
			return false
		}
	}
	return true
}

func (s *Stage) block(d Decision) error {
	t := *d.Toast
	t.Position = "center"
	s.notify.Show(t, 0)
	return fmt.Errorf("%w: %s", ErrBlocked, t.Message)
}

// PushOne pushes the workflow of service, or of the current one when empty
func (s *Stage) PushOne(ctx context.Context, service string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if service == "" {
		service = s.selected
	}
	key := serviceKey(service)
	status := models.StatusNotFound
	if i := s.findLocked(key); i >= 0 {
		status = s.previews[i].Status
	}
	s.mu.Unlock()

	if d := Preflight(status, s.strategy); !d.Proceed {
		return s.block(d)
	}

	a := s.state.Analysis()
	var services []models.ServiceDescriptor
	if a.IsMulti() {
		svc, ok := findService(a.Services, key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrServiceNotFound, key)
		}
		services = []models.ServiceDescriptor{svc}
	}

	res, err := s.backend.GenerateCI(ctx, s.request(services))
	if err != nil {
		s.logger.Error().Err(err).Str("service", key).Msg("ci push failed")
		s.toastError(err, "Push failed.")
		return err
	}

	kind := models.ToastSuccess
	if a.IsMulti() && len(res.Workflows) == 0 {
		kind = models.ToastInfo
	}
	s.notify.Show(models.Toast{Message: "Pushed. Check your repo.", Type: kind, Position: "center"}, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.findLocked(key); i >= 0 {
		if !a.IsMulti() && res.FilePath != "" {
			s.previews[i].FilePath = res.FilePath
		}
		if !a.IsMulti() || len(res.Workflows) > 0 {
			s.previews[i].Status = models.StatusIdentical
		}
	}
	return nil
}

// PushAll pushes every workflow preflight lets through. Any FAIL_IF_EXISTS
// conflict aborts the whole push.
func (s *Stage) PushAll(ctx context.Context) error {
	a := s.state.Analysis()
	if !a.IsMulti() {
		return s.PushOne(ctx, "")
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	var (
		services []models.ServiceDescriptor
		skipped  *Decision
	)
	for _, svc := range a.Services {
		status := models.StatusNotFound
		s.mu.Lock()
		if i := s.findLocked(svc.WorkingDirectory); i >= 0 {
			status = s.previews[i].Status
		}
		s.mu.Unlock()

		d := Preflight(status, s.strategy)
		if d.Proceed {
			services = append(services, svc)
			continue
		}
		if d.Toast.Type == models.ToastError {
			return s.block(d)
		}
		skipped = &d
	}
	if len(services) == 0 {
		if skipped != nil {
			return s.block(*skipped)
		}
		return fmt.Errorf("%w: no services", ErrBlocked)
	}

	res, err := s.backend.GenerateCI(ctx, s.request(services))
	if err != nil {
		s.logger.Error().Err(err).Msg("ci bulk push failed")
		s.toastError(err, "Bulk push failed.")
		return err
	}
	msg := fmt.Sprintf("Pushed %d workflow(s). Check your repo.", len(res.Workflows))
	s.notify.Show(models.Toast{Message: msg, Type: models.ToastSuccess, Position: "center"}, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range res.Workflows {
		if i := s.findLocked(w.Service); i >= 0 {
			s.previews[i].Status = models.StatusIdentical
		}
	}
	return nil
}

func findService(services []models.ServiceDescriptor, key string) (models.ServiceDescriptor, bool) {
	for _, svc := range services {
		if serviceKey(svc.WorkingDirectory) == key {
			return svc, true
		}
	}
	return models.ServiceDescriptor{}, false
}

func (s *Stage) toastError(err error, fallback string) {
	msg := api.Humanize(err, s.strategy)
	if msg == "" {
		msg = fallback
	}
	s.notify.Show(models.Toast{Message: msg, Type: models.ToastError, Position: "center"}, 0)
}
