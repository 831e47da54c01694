// SPDX-License-Identifier: Apache-2.0

// Package analysis drives the repository analysis stage: load the analysis
// and file tree, let the user correct fields, and confirm the result back to
// the backend.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
)

// Phase is the stage's position in the confirmation flow
type Phase string

const (
	Analyzing            Phase = "analyzing"
	AnalysisReady        Phase = "ready"
	UserEditing          Phase = "editing"
	AwaitingConfirmation Phase = "awaiting-confirmation"
	Confirmed            Phase = "confirmed"
	AnalysisFailed       Phase = "failed"
)

var (
	// ErrNotLoaded is returned when an operation needs a loaded analysis
	ErrNotLoaded = errors.New("analysis is not loaded")
	// ErrNotEditing is returned by SaveEdit without a field in edit
	ErrNotEditing = errors.New("no field is being edited")
	// ErrNoRepository is returned when no repository is selected
	ErrNoRepository = errors.New("no repository selected, run `deploymate repo select`")
)

// Backend is the part of the API the stage calls
type Backend interface {
	Analyze(ctx context.Context, repoID int64) (*models.AnalysisResult, error)
	RepositoryFiles(ctx context.Context, repoID int64) ([]string, error)
	UpdateParameters(ctx context.Context, repoID int64, params map[string]string) error
}

// Pipeline receives the confirmed analysis
type Pipeline interface {
	SetRepoID(id int64) error
	SetAnalysis(a *models.AnalysisResult) error
}

// ConfirmedKey is the local store key remembering a confirmed repository
func ConfirmedKey(repoID int64) string {
	return "analysisConfirmed:" + strconv.FormatInt(repoID, 10)
}

// DraftKey is the session store key holding unsaved edits
func DraftKey(repoID int64) string {
	return "analysisDraft:" + strconv.FormatInt(repoID, 10)
}

type draft struct {
	Analysis          *models.AnalysisResult `json:"analysis"`
	Rejections        []string               `json:"rejections,omitempty"`
	HasUnsavedChanges bool                   `json:"hasUnsavedChanges"`
}

// Options wires a Page
type Options struct {
	RepoID   int64
	Backend  Backend
	Pipeline Pipeline
	Local    *localstore.Store
	Session  *localstore.Store
	Checker  *Checker
	Filter   *Filter
	Logger   *log.Logger
}

// Page is one visit to the analysis stage for a repository
type Page struct {
	repoID   int64
	backend  Backend
	pipeline Pipeline
	local    *localstore.Store
	session  *localstore.Store
	checker  *Checker
	filter   *Filter
	logger   *log.Logger

	mu                sync.Mutex
	phase             Phase
	analysis          *models.AnalysisResult
	rejections        []string
	failure           error
	files             []string
	filesErr          error
	editingField      string
	editingValue      string
	hasUnsavedChanges bool
}

// New creates the page in the Analyzing phase
func New(opts Options) (*Page, error) {
	if opts.RepoID == 0 {
		return nil, ErrNoRepository
	}
	if opts.Checker == nil {
		c, err := NewChecker(nil)
		if err != nil {
			return nil, err
		}
		opts.Checker = c
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Page{
		repoID:   opts.RepoID,
		backend:  opts.Backend,
		pipeline: opts.Pipeline,
		local:    opts.Local,
		session:  opts.Session,
		checker:  opts.Checker,
		filter:   opts.Filter,
		logger:   opts.Logger,
		phase:    Analyzing,
	}, nil
}

// Load fetches the file tree and the analysis concurrently. A file tree
// failure is kept for display and does not fail the analysis.
func (p *Page) Load(ctx context.Context) error {
	p.mu.Lock()
	p.phase = Analyzing
	p.mu.Unlock()

	var (
		files    []string
		filesErr error
		raw      *models.AnalysisResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		files, filesErr = p.backend.RepositoryFiles(gctx, p.repoID)
		return nil
	})
	g.Go(func() error {
		var err error
		raw, err = p.backend.Analyze(gctx, p.repoID)
		return err
	})
	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if filesErr != nil {
		p.logger.Warn().Err(filesErr).Int64("repo_id", p.repoID).Msg("file tree unavailable")
	}
	p.files = p.filter.Apply(files)
	p.filesErr = filesErr

	if err != nil {
		p.phase = AnalysisFailed
		p.failure = err
		return err
	}

	normalized, reasons, err := p.checker.Validate(raw)
	p.rejections = reasons
	if err != nil {
		p.phase = AnalysisFailed
		p.failure = err
		return err
	}

	p.analysis = normalized
	p.failure = nil
	p.hasUnsavedChanges = false
	p.phase = AnalysisReady
	p.saveDraftLocked()
	return nil
}

// Resume restores an analysis left in the session store by an earlier
// visit. It reports false when there is nothing to resume.
func (p *Page) Resume() bool {
	if p.session == nil {
		return false
	}
	var d draft
	found, err := p.session.GetJSON(DraftKey(p.repoID), &d)
	if err != nil || !found || d.Analysis == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.analysis = d.Analysis
	p.rejections = d.Rejections
	p.hasUnsavedChanges = d.HasUnsavedChanges
	p.phase = AnalysisReady
	return true
}

// caller holds p.mu
func (p *Page) saveDraftLocked() {
	if p.session == nil || p.analysis == nil {
		return
	}
	err := p.session.SetJSON(DraftKey(p.repoID), draft{
		Analysis:          p.analysis,
		Rejections:        p.rejections,
		HasUnsavedChanges: p.hasUnsavedChanges,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("error saving analysis draft")
	}
}

// Phase returns the current phase
func (p *Page) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Analysis returns the normalized analysis, nil before a successful load
func (p *Page) Analysis() *models.AnalysisResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analysis
}

// Rejections lists why services were filtered out
func (p *Page) Rejections() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejections
}

// Failure is the error that put the page in AnalysisFailed
func (p *Page) Failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

// Files returns the visible repository files and the tree fetch error, if any
func (p *Page) Files() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files, p.filesErr
}

// Tree builds the file tree of the visible files
func (p *Page) Tree() *Node {
	files, _ := p.Files()
	return BuildTree(files)
}

// HasUnsavedChanges reports whether an edit was made since the last confirm
func (p *Page) HasUnsavedChanges() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasUnsavedChanges
}

// IsConfirmed reports whether this repository was confirmed before
func (p *Page) IsConfirmed() bool {
	if p.local == nil {
		return false
	}
	v, ok := p.local.GetItem(ConfirmedKey(p.repoID))
	return ok && v == "1"
}

func (p *Page) requireLoaded() error {
	switch {
	case p.phase == AnalysisFailed:
		return p.failure
	case p.analysis == nil:
		return ErrNotLoaded
	}
	return nil
}

// StartEdit opens path for editing, replacing any field already in edit.
// The editing value starts from the current value.
func (p *Page) StartEdit(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLoaded(); err != nil {
		return err
	}
	current, err := GetField(p.analysis, path)
	if err != nil {
		return err
	}
	p.editingField = path
	p.editingValue = current
	p.phase = UserEditing
	return nil
}

// EditingField returns the path in edit, "" when none
func (p *Page) EditingField() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.editingField
}

// SetEditingValue updates the pending value
func (p *Page) SetEditingValue(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.editingValue = v
}

// SaveEdit applies the pending value to a copy of the analysis
func (p *Page) SaveEdit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.editingField == "" {
		return ErrNotEditing
	}
	updated, err := SetField(p.analysis, p.editingField, p.editingValue)
	if err != nil {
		return err
	}
	p.analysis = updated
	p.hasUnsavedChanges = true
	p.editingField = ""
	p.editingValue = ""
	p.phase = AnalysisReady
	p.saveDraftLocked()
	return nil
}

// CancelEdit drops the pending value
func (p *Page) CancelEdit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.editingField = ""
	p.editingValue = ""
	if p.phase == UserEditing {
		p.phase = AnalysisReady
	}
}

// Edit sets path to value in one step
func (p *Page) Edit(path, value string) error {
	if err := p.StartEdit(path); err != nil {
		return err
	}
	p.SetEditingValue(value)
	return p.SaveEdit()
}

// Proceed moves towards the Dockerfile stage. It reports true when the user
// must confirm first; a repository confirmed before and not edited since
// goes straight to Confirmed.
func (p *Page) Proceed() (bool, error) {
	confirmed := p.IsConfirmed()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLoaded(); err != nil {
		return false, err
	}
	if confirmed && !p.hasUnsavedChanges {
		p.phase = Confirmed
		return false, p.publishLocked()
	}
	p.phase = AwaitingConfirmation
	return true, nil
}

// CancelConfirm closes the confirmation without saving
func (p *Page) CancelConfirm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == AwaitingConfirmation {
		p.phase = AnalysisReady
	}
}

// Payload returns what Confirm would send
func (p *Page) Payload() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BuildPayload(p.analysis)
}

// Confirm saves the analysis to the backend, remembers the repository as
// confirmed and hands the analysis to the pipeline.
func (p *Page) Confirm(ctx context.Context) error {
	p.mu.Lock()
	if err := p.requireLoaded(); err != nil {
		p.mu.Unlock()
		return err
	}
	payload := BuildPayload(p.analysis)
	p.mu.Unlock()

	if err := ValidatePayload(payload); err != nil {
		return err
	}
	if err := p.backend.UpdateParameters(ctx, p.repoID, payload); err != nil {
		p.logger.Error().Err(err).Int64("repo_id", p.repoID).Msg("error saving analysis")
		return fmt.Errorf("error saving analysis: %w", err)
	}

	if p.local != nil {
		if err := p.local.SetItem(ConfirmedKey(p.repoID), "1"); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasUnsavedChanges = false
	p.phase = Confirmed
	if p.session != nil {
		_ = p.session.RemoveItem(DraftKey(p.repoID))
	}
	return p.publishLocked()
}

// caller holds p.mu
func (p *Page) publishLocked() error {
	if p.pipeline == nil {
		return nil
	}
	if err := p.pipeline.SetRepoID(p.repoID); err != nil {
		return err
	}
	return p.pipeline.SetAnalysis(p.analysis)
}

// Forget clears the confirmation memory for the repository
func (p *Page) Forget() error {
	if p.local == nil {
		return nil
	}
	return p.local.RemoveItem(ConfirmedKey(p.repoID))
}
