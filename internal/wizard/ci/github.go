// SPDX-License-Identifier: Apache-2.0

package ci

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"golang.org/x/oauth2"
)

// ErrInvalidRepository is returned for names that are not owner/name
var ErrInvalidRepository = errors.New("repository must be owner/name")

// GitHubFiles reads workflow files straight from GitHub to confirm what the
// backend reports
type GitHubFiles struct {
	client *github.Client
}

// NewGitHubFiles creates a reader. An empty token uses anonymous access.
// baseURL overrides the API root, mainly for GitHub Enterprise and tests.
func NewGitHubFiles(ctx context.Context, token, baseURL string) (*GitHubFiles, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(hc)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}
	return &GitHubFiles{client: client}, nil
}

// SplitRepository splits "owner/name"
func SplitRepository(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, fullName)
	}
	return owner, name, nil
}

// Content returns the decoded file at path, and false when it does not exist
func (g *GitHubFiles) Content(ctx context.Context, owner, repo, ref, path string) (string, bool, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, resp, err := g.client.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s from %s/%s: %w", path, owner, repo, err)
	}
	if file == nil {
		// path is a directory
		return "", false, nil
	}
	content, err := file.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return content, true, nil
}

// Compare classifies a preview against the repository file
func (g *GitHubFiles) Compare(ctx context.Context, owner, repo, ref string, p models.CIPreview) (string, error) {
	content, found, err := g.Content(ctx, owner, repo, ref, p.FilePath)
	if err != nil {
		return "", err
	}
	switch {
	case !found:
		return models.StatusNotFound, nil
	case strings.TrimSpace(content) == strings.TrimSpace(p.Content):
		return models.StatusIdentical, nil
	default:
		return models.StatusDifferent, nil
	}
}

// Verify re-checks every loaded preview against GitHub and updates its
// status. It returns the services whose status changed.
func (s *Stage) Verify(ctx context.Context, files *GitHubFiles, fullName, ref string) ([]string, error) {
	owner, repo, err := SplitRepository(fullName)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		if a := s.state.Analysis(); a != nil {
			ref = a.DefaultBranch
		}
	}

	var changed []string
	for _, p := range s.Previews() {
		if p.FilePath == "" {
			continue
		}
		status, err := files.Compare(ctx, owner, repo, ref, p)
		if err != nil {
			return changed, err
		}
		if status == p.Status {
			continue
		}
		s.logger.Info().Str("service", p.Service).Str("from", p.Status).Str("to", status).Msg("workflow status differs on GitHub")
		s.mu.Lock()
		if i := s.findLocked(p.Service); i >= 0 {
			s.previews[i].Status = status
		}
		s.mu.Unlock()
		changed = append(changed, p.Service)
	}
	return changed, nil
}
