// SPDX-License-Identifier: Apache-2.0

// Package repos lists, filters and selects the user's GitHub repositories.
package repos

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/phuslu/log"
)

// PageStep is how many repositories each page adds
const PageStep = 6

// Visibility filters repositories by their private flag
type Visibility string

const (
	All     Visibility = "all"
	Public  Visibility = "public"
	Private Visibility = "private"
)

var (
	// ErrInvalidVisibility is returned for unknown visibility names
	ErrInvalidVisibility = errors.New("visibility must be all, public or private")
	// ErrNotFound is returned when no repository matches a reference
	ErrNotFound = errors.New("repository not found")
	// ErrAmbiguous is returned when a reference matches several repositories
	ErrAmbiguous = errors.New("repository reference is ambiguous")
)

// ParseVisibility accepts all, public or private; "" means all
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case "", All:
		return All, nil
	case Public:
		return Public, nil
	case Private:
		return Private, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
}

// Filter is the search box and visibility selector of the repository list
type Filter struct {
	Query      string
	Visibility Visibility
}

// Matches reports whether repo passes the filter. The query is a
// case-insensitive substring of the full name, language or description.
func (f Filter) Matches(repo models.Repository) bool {
	switch f.Visibility {
	case Public:
		if repo.Private {
			return false
		}
	case Private:
		if !repo.Private {
			return false
		}
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(repo.DisplayName()), q) ||
		strings.Contains(strings.ToLower(repo.Language), q) ||
		strings.Contains(strings.ToLower(repo.Description), q)
}

// Apply returns the repositories passing the filter, in order
func (f Filter) Apply(repos []models.Repository) []models.Repository {
	var out []models.Repository
	for _, r := range repos {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Page returns what the list shows for the given page number (1-based) and
// whether more remain. A search shows every match at once.
func (f Filter) Page(repos []models.Repository, page int) ([]models.Repository, bool) {
	filtered := f.Apply(repos)
	if strings.TrimSpace(f.Query) != "" {
		return filtered, false
	}
	if page < 1 {
		page = 1
	}
	visible := page * PageStep
	if visible >= len(filtered) {
		return filtered, false
	}
	return filtered[:visible], true
}

// Find resolves ref to one repository. ref may be a GitHub id, an
// owner/name, or a bare name when that name is unique.
func Find(repos []models.Repository, ref string) (models.Repository, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, r := range repos {
			if r.GithubID == id || r.RepoID == id {
				return r, nil
			}
		}
	}
	for _, r := range repos {
		if strings.EqualFold(r.DisplayName(), ref) {
			return r, nil
		}
	}
	var matches []models.Repository
	for _, r := range repos {
		if strings.EqualFold(r.Name, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return models.Repository{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return models.Repository{}, fmt.Errorf("%w: %s matches %d repositories", ErrAmbiguous, ref, len(matches))
	}
}

// Backend is the part of the API the service calls
type Backend interface {
	AvailableRepositories(ctx context.Context) ([]models.Repository, error)
	SelectRepository(ctx context.Context, repo models.Repository) (*models.Repository, error)
	SelectedRepositories(ctx context.Context) ([]models.Repository, error)
	DeselectRepository(ctx context.Context, userID, repoID int64) error
}

// Service ties repository selection to the pipeline
type Service struct {
	backend Backend
	state   *pipeline.State
	logger  *log.Logger
}

// NewService creates a service
func NewService(backend Backend, state *pipeline.State, logger *log.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{backend: backend, state: state, logger: logger}
}

// Available lists the user's GitHub repositories
func (s *Service) Available(ctx context.Context) ([]models.Repository, error) {
	repos, err := s.backend.AvailableRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing repositories: %w", err)
	}
	return repos, nil
}

// Selected lists repositories already connected to DeployMate
func (s *Service) Selected(ctx context.Context) ([]models.Repository, error) {
	repos, err := s.backend.SelectedRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing selected repositories: %w", err)
	}
	return repos, nil
}

// Select connects repo and makes it the pipeline's repository
func (s *Service) Select(ctx context.Context, repo models.Repository) (*models.Repository, error) {
	stored, err := s.backend.SelectRepository(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("error selecting %s: %w", repo.DisplayName(), err)
	}
	if stored.RepoID == 0 {
		return nil, fmt.Errorf("backend returned no id for %s", repo.DisplayName())
	}
	if err := s.state.SetRepoID(stored.RepoID); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("repo_id", stored.RepoID).Str("repo", stored.DisplayName()).Msg("repository selected")
	return stored, nil
}

// Deselect disconnects a repository; the pipeline is reset when it was
// working on it
func (s *Service) Deselect(ctx context.Context, userID, repoID int64) error {
	if err := s.backend.DeselectRepository(ctx, userID, repoID); err != nil {
		return fmt.Errorf("error removing repository %d: %w", repoID, err)
	}
	if s.state.RepoID() == repoID {
		if err := s.state.Reset(); err != nil {
			return err
		}
	}
	s.logger.Info().Int64("repo_id", repoID).Msg("repository removed")
	return nil
}
