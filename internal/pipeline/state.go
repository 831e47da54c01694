// SPDX-License-Identifier: Apache-2.0

// Package pipeline holds the wizard state shared across stages. RepoID,
// Analysis and DockerOptions persist to the local store on every change;
// container plans and readiness are per-visit only.
package pipeline

import (
	"encoding/json"
	"sync"

	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/phuslu/log"
)

// StateKey is the local store key holding the persisted fields
const StateKey = "ci_cd_app_state"

type persisted struct {
	RepoID        int64                  `json:"repoId,omitempty"`
	Analysis      *models.AnalysisResult `json:"analysis,omitempty"`
	DockerOptions models.DockerOptions   `json:"dockerOptions"`
}

// Snapshot is a read-only copy of the state for display
type Snapshot struct {
	RepoID         int64                  `json:"repoId" yaml:"repo_id"`
	Analysis       *models.AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	DockerOptions  models.DockerOptions   `json:"dockerOptions" yaml:"docker_options"`
	ContainerPlans []models.ContainerPlan `json:"containerPlans,omitempty" yaml:"container_plans,omitempty"`
	ReadyForCI     bool                   `json:"readyForCi" yaml:"ready_for_ci"`
	Toast          *models.Toast          `json:"toast,omitempty" yaml:"toast,omitempty"`
}

// State is the shared wizard store
type State struct {
	store  *localstore.Store
	logger *log.Logger

	mu             sync.RWMutex
	repoID         int64
	analysis       *models.AnalysisResult
	dockerOptions  models.DockerOptions
	containerPlans []models.ContainerPlan
	readyForCI     bool
	toast          *models.Toast
}

// Load hydrates the state. Each persisted field is patched in on its own so
// a bad field does not discard the good ones.
func Load(store *localstore.Store, logger *log.Logger) *State {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &State{
		store:         store,
		logger:        logger,
		dockerOptions: models.DefaultDockerOptions(),
	}

	raw, ok := store.GetItem(StateKey)
	if !ok {
		return s
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		logger.Warn().Err(err).Msg("ignoring unreadable pipeline state")
		return s
	}

	if v, ok := fields["repoId"]; ok {
		var id int64
		if err := json.Unmarshal(v, &id); err == nil {
			s.repoID = id
		}
	}
	if v, ok := fields["analysis"]; ok {
		var a models.AnalysisResult
		if err := json.Unmarshal(v, &a); err == nil && string(v) != "null" {
			s.analysis = &a
		}
	}
	if v, ok := fields["dockerOptions"]; ok {
		opts := models.DefaultDockerOptions()
		if err := json.Unmarshal(v, &opts); err == nil {
			if opts.Registry == "" {
				opts.Registry = models.DefaultDockerOptions().Registry
			}
			s.dockerOptions = opts
		}
	}
	return s
}

// caller holds s.mu
func (s *State) persist() error {
	data, err := json.Marshal(persisted{
		RepoID:        s.repoID,
		Analysis:      s.analysis,
		DockerOptions: s.dockerOptions,
	})
	if err != nil {
		return err
	}
	return s.store.SetItem(StateKey, string(data))
}

// RepoID returns the selected repository, 0 when none
func (s *State) RepoID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repoID
}

// SetRepoID selects a repository. Changing repositories drops the analysis
// and the per-visit plans.
func (s *State) SetRepoID(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.repoID {
		s.analysis = nil
		s.containerPlans = nil
		s.readyForCI = false
	}
	s.repoID = id
	return s.persist()
}

// Analysis returns the confirmed analysis
func (s *State) Analysis() *models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysis
}

// SetAnalysis stores the confirmed analysis
func (s *State) SetAnalysis(a *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = a
	return s.persist()
}

// DockerOptions returns the image settings
func (s *State) DockerOptions() models.DockerOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dockerOptions
}

// SetDockerOptions stores the image settings
func (s *State) SetDockerOptions(o models.DockerOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Registry == "" {
		o.Registry = models.DefaultDockerOptions().Registry
	}
	s.dockerOptions = o
	return s.persist()
}

// SetContainerPlans records the latest preview; never persisted
func (s *State) SetContainerPlans(plans []models.ContainerPlan, readyForCI bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containerPlans = plans
	s.readyForCI = readyForCI
}

// ContainerPlans returns the plans from the latest preview
func (s *State) ContainerPlans() []models.ContainerPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containerPlans
}

// ReadyForCI returns the server's readiness flag from the latest preview
func (s *State) ReadyForCI() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyForCI
}

// Toast returns the current toast, nil when none
func (s *State) Toast() *models.Toast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toast
}

// SetToast replaces the current toast; nil clears it
func (s *State) SetToast(t *models.Toast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toast = t
}

// Reset returns every field to its default and removes the stored key
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repoID = 0
	s.analysis = nil
	s.dockerOptions = models.DefaultDockerOptions()
	s.containerPlans = nil
	s.readyForCI = false
	s.toast = nil
	return s.store.RemoveItem(StateKey)
}

// Snapshot copies the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		RepoID:         s.repoID,
		Analysis:       s.analysis,
		DockerOptions:  s.dockerOptions,
		ContainerPlans: s.containerPlans,
		ReadyForCI:     s.readyForCI,
		Toast:          s.toast,
	}
}
