// SPDX-License-Identifier: Apache-2.0

// Package dockerfile drives the Dockerfile stage: preview the container plan
// of each service and commit missing Dockerfiles.
package dockerfile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/phuslu/log"
)

var (
	// ErrBusy is returned while another request of the stage is in flight
	ErrBusy = errors.New("a request is already in progress")
	// ErrNoAnalysis is returned when the pipeline has no confirmed analysis
	ErrNoAnalysis = errors.New("no analysis loaded, run `deploymate analyze run` first")
	// ErrServiceNotFound is returned for an unknown working directory
	ErrServiceNotFound = errors.New("service not found")
	// ErrSingleMode is returned by ApplyAll on a single-service analysis
	ErrSingleMode = errors.New("apply all needs a multi-service analysis")
)

// Action labels
const (
	LabelApply = "Apply to GitHub"
	LabelNext  = "Next: Preview CI"
)

// DefaultOrchestrator is sent when the analysis names none
const DefaultOrchestrator = "github-actions"

// Backend is the part of the API the stage calls
type Backend interface {
	DockerPreview(ctx context.Context, req api.StageRequest) (*api.DockerPreviewResponse, error)
	ApplyDockerfile(ctx context.Context, req api.StageRequest) (*api.DockerApplyResponse, error)
}

// Notifier shows toasts
type Notifier interface {
	Show(t models.Toast, d time.Duration)
}

// Preview is the Dockerfile content chosen for display and where it came from
type Preview struct {
	Content string `json:"content" yaml:"content"`
	Source  string `json:"source" yaml:"source"`
}

// Action is the stage's primary button
type Action struct {
	Label string `json:"label" yaml:"label"`
	Apply bool   `json:"apply" yaml:"apply"`
}

// Stage is one visit to the Dockerfile stage
type Stage struct {
	backend Backend
	state   *pipeline.State
	notify  Notifier
	logger  *log.Logger

	mu         sync.Mutex
	busy       bool
	selectedWD string
}

// New creates the stage; the pipeline must hold a repository and an analysis
func New(backend Backend, state *pipeline.State, notify Notifier, logger *log.Logger) (*Stage, error) {
	if state.RepoID() == 0 || state.Analysis() == nil {
		return nil, ErrNoAnalysis
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Stage{backend: backend, state: state, notify: notify, logger: logger}, nil
}

// SingleTechStackInfo describes the primary service for single-mode requests
func SingleTechStackInfo(a *models.AnalysisResult) *api.TechStackInfo {
	src := a.PrimaryService()
	if src == nil {
		return nil
	}
	info := &api.TechStackInfo{
		WorkingDirectory: src.WorkingDirectory,
		BuildTool:        strings.ToLower(src.BuildTool),
		Orchestrator:     src.Orchestrator,
		ProjectDetails:   src.ProjectDetails,
	}
	if info.WorkingDirectory == "" || info.WorkingDirectory == models.NotDetected {
		info.WorkingDirectory = "."
	}
	if info.Orchestrator == "" || info.Orchestrator == models.NotDetected {
		info.Orchestrator = DefaultOrchestrator
	}
	if src.JavaVersion != "" && src.JavaVersion != models.NotDetected {
		jv := src.JavaVersion
		info.JavaVersion = &jv
	}
	return info
}

// PickPreview chooses what to show: explicit preview, then existing, then
// generated, then proposed content. Blank content is skipped.
func PickPreview(plan *models.ContainerPlan) Preview {
	if plan == nil {
		return Preview{Source: "-"}
	}
	has := func(s string) bool { return strings.TrimSpace(s) != "" }

	switch {
	case has(plan.PreviewDockerfileContent):
		src := plan.PreviewSource
		if src == "" {
			src = "-"
		}
		return Preview{Content: plan.PreviewDockerfileContent, Source: src}
	case has(plan.ExistingDockerfileContent):
		return Preview{Content: plan.ExistingDockerfileContent, Source: "existing"}
	case has(plan.GeneratedDockerfileContent):
		return Preview{Content: plan.GeneratedDockerfileContent, Source: "generated"}
	case has(plan.ProposedDockerfileContent):
		return Preview{Content: plan.ProposedDockerfileContent, Source: "generated"}
	}
	return Preview{Source: "-"}
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

// Busy reports whether a request is in flight
func (s *Stage) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Stage) request(services []models.ServiceDescriptor) (api.StageRequest, error) {
	a := s.state.Analysis()
	req := api.StageRequest{RepoID: s.state.RepoID(), Docker: s.state.DockerOptions()}
	if a.IsMulti() {
		if services == nil {
			services = a.Services
		}
		req.Services = services
		return req, nil
	}
	req.TechStackInfo = SingleTechStackInfo(a)
	if req.TechStackInfo == nil {
		return req, fmt.Errorf("cannot describe the single service: %w", ErrNoAnalysis)
	}
	return req, nil
}

// LoadPreview fetches fresh container plans into the pipeline
func (s *Stage) LoadPreview(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.loadPreview(ctx)
}

func (s *Stage) loadPreview(ctx context.Context) error {
	req, err := s.request(nil)
	if err != nil {
		return err
	}
	res, err := s.backend.DockerPreview(ctx, req)
	if err != nil {
		s.toastError(err, "Failed to preview Dockerfile.")
		return err
	}

	plans := res.AllPlans()
	s.state.SetContainerPlans(plans, res.ReadyForCI)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := findPlan(plans, s.selectedWD); !ok {
		s.selectedWD = ""
		a := s.state.Analysis()
		switch {
		case a.IsMulti() && len(a.Services) > 0:
			s.selectedWD = a.Services[0].WorkingDirectory
		case len(plans) > 0:
			s.selectedWD = plans[0].WorkingDirectory
		}
	}
	return nil
}

func findPlan(plans []models.ContainerPlan, wd string) (*models.ContainerPlan, bool) {
	if wd == "" {
		return nil, false
	}
	for i := range plans {
		if plans[i].WorkingDirectory == wd {
			return &plans[i], true
		}
	}
	return nil, false
}

// Plans returns the plans of the latest preview
func (s *Stage) Plans() []models.ContainerPlan {
	return s.state.ContainerPlans()
}

// Select makes wd the current service
func (s *Stage) Select(wd string) error {
	if _, ok := findPlan(s.state.ContainerPlans(), wd); !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, wd)
	}
	s.mu.Lock()
	s.selectedWD = wd
	s.mu.Unlock()
	return nil
}

// CurrentPlan returns the plan in view: the only plan in single mode, the
// selected one in multi mode
func (s *Stage) CurrentPlan() *models.ContainerPlan {
	plans := s.state.ContainerPlans()
	if !s.state.Analysis().IsMulti() {
		if len(plans) == 0 {
			return nil
		}
		return &plans[0]
	}
	s.mu.Lock()
	wd := s.selectedWD
	s.mu.Unlock()
	p, _ := findPlan(plans, wd)
	return p
}

// AllReady is true when the server says readyForCi and no relevant plan
// still needs a Dockerfile
func (s *Stage) AllReady() bool {
	if !s.state.ReadyForCI() {
		return false
	}
	if s.state.Analysis().IsMulti() {
		plans := s.state.ContainerPlans()
		if len(plans) == 0 {
			return false
		}
		for _, p := range plans {
			if p.ShouldGenerateDockerfile {
				return false
			}
		}
		return true
	}
	p := s.CurrentPlan()
	return p != nil && !p.ShouldGenerateDockerfile
}

// CanProceed gates the CI stage
func (s *Stage) CanProceed() bool {
	return s.AllReady() && !s.Busy()
}

// PrimaryAction applies when the current plan needs a Dockerfile, otherwise moves on
func (s *Stage) PrimaryAction() Action {
	if p := s.CurrentPlan(); p != nil && p.ShouldGenerateDockerfile {
		return Action{Label: LabelApply, Apply: true}
	}
	return Action{Label: LabelNext}
}

// ApplyOne commits the Dockerfile of the service at wd, or of the current
// service when wd is empty, then reloads the preview.
func (s *Stage) ApplyOne(ctx context.Context, wd string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	var services []models.ServiceDescriptor
	if a := s.state.Analysis(); a.IsMulti() {
		if wd == "" {
			s.mu.Lock()
			wd = s.selectedWD
			s.mu.Unlock()
		}
		svc, ok := findService(a.Services, wd)
		if !ok {
			err := fmt.Errorf("%w: %s", ErrServiceNotFound, wd)
			s.toastError(err, "Apply failed.")
			return err
		}
		services = []models.ServiceDescriptor{svc}
	}
	return s.apply(ctx, services, "Dockerfile applied.", "Apply failed.")
}

// ApplyAll commits every missing Dockerfile of a multi-service analysis
func (s *Stage) ApplyAll(ctx context.Context) error {
	if !s.state.Analysis().IsMulti() {
		return ErrSingleMode
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.apply(ctx, nil, "Dockerfiles applied.", "Bulk apply failed.")
}

func findService(services []models.ServiceDescriptor, wd string) (models.ServiceDescriptor, bool) {
	for _, svc := range services {
		if svc.WorkingDirectory == wd {
			return svc, true
		}
	}
	return models.ServiceDescriptor{}, false
}

func (s *Stage) apply(ctx context.Context, services []models.ServiceDescriptor, okMsg, failMsg string) error {
	req, err := s.request(services)
	if err != nil {
		return err
	}
	res, err := s.backend.ApplyDockerfile(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Int64("repo_id", req.RepoID).Msg("dockerfile apply failed")
		s.toastError(err, failMsg)
		return err
	}

	msg := res.Message
	if msg == "" {
		msg = okMsg
	}
	kind := models.ToastSuccess
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "already present") || strings.Contains(lower, "nothing to apply") {
		kind = models.ToastInfo
	}
	if res.CommitHash != "" {
		msg += fmt.Sprintf(" (commit %s)", res.CommitHash)
	}
	s.notify.Show(models.Toast{Message: msg, Type: kind, Position: "center"}, 0)

	if err := s.loadPreview(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("preview reload after apply failed")
	}
	return nil
}

func (s *Stage) toastError(err error, fallback string) {
	msg := api.Humanize(err, s.state.DockerOptions().Strategy())
	if msg == "" {
		msg = fallback
	}
	s.notify.Show(models.Toast{Message: msg, Type: models.ToastError, Position: "center"}, 0)
}
