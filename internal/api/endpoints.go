// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kusari-oss/deploymate/internal/core/models"
)

// Backend routes
const (
	PathLogin              = "/api/auth/login"
	PathDeleteAccount      = "/api/auth/delete-account"
	PathReposAvailable     = "/api/repositories/available"
	PathReposSelect        = "/api/repositories/select"
	PathReposSelected      = "/api/repositories/selected"
	PathDockerPreview      = "/api/workflows/docker/preview"
	PathDockerfileApply    = "/api/workflows/dockerfile/apply"
	PathCIPreview          = "/api/workflows/ci/preview"
	PathCIGenerate         = "/api/workflows/generate"
	PathCDPreview          = "/api/cd-workflow/preview"
	PathCDApply            = "/api/cd-workflow/apply"
	PathComposeProdPreview = "/api/workflows/compose/prod/preview"
	PathComposeProdApply   = "/api/workflows/compose/prod/apply"
	PathUserActivity       = "/api/history/user-activity"
)

// Envelope is the success/message pair most responses carry
type Envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failed returns an *APIError when the body explicitly says success=false
func (e Envelope) Failed(fallback string) error {
	if e.Success == nil || *e.Success {
		return nil
	}
	msg := e.Message
	if msg == "" {
		msg = fallback
	}
	return &APIError{Status: http.StatusOK, Payload: Payload{Message: msg}}
}

// TechStackInfo is the single-service description sent to generation endpoints
type TechStackInfo struct {
	WorkingDirectory string                 `json:"workingDirectory"`
	BuildTool        string                 `json:"buildTool"`
	Orchestrator     string                 `json:"orchestrator"`
	JavaVersion      *string                `json:"javaVersion"`
	ProjectDetails   map[string]interface{} `json:"projectDetails"`
}

// StageRequest is the body of Dockerfile and CI preview/apply calls.
// Exactly one of Services or TechStackInfo is set.
type StageRequest struct {
	RepoID               int64                       `json:"repoId"`
	Services             []models.ServiceDescriptor  `json:"services,omitempty"`
	TechStackInfo        *TechStackInfo              `json:"techStackInfo,omitempty"`
	Docker               models.DockerOptions        `json:"docker"`
	FileHandlingStrategy models.FileHandlingStrategy `json:"fileHandlingStrategy,omitempty"`
}

// DockerPreviewResponse is returned by the Dockerfile preview
type DockerPreviewResponse struct {
	Envelope
	Mode          string                 `json:"mode"`
	Plans         []models.ContainerPlan `json:"plans,omitempty"`
	ContainerPlan *models.ContainerPlan  `json:"containerPlan,omitempty"`
	ReadyForCI    bool                   `json:"readyForCi"`
}

// AllPlans flattens single and multi responses
func (r *DockerPreviewResponse) AllPlans() []models.ContainerPlan {
	if r.Mode == models.ModeMulti {
		return r.Plans
	}
	if r.ContainerPlan != nil {
		return []models.ContainerPlan{*r.ContainerPlan}
	}
	return r.Plans
}

// DockerApplyResponse is returned by the Dockerfile apply
type DockerApplyResponse struct {
	Envelope
	Mode            string            `json:"mode"`
	DockerfilePath  string            `json:"dockerfilePath,omitempty"`
	DockerfilePaths []string          `json:"dockerfilePaths,omitempty"`
	CommitHash      string            `json:"commitHash,omitempty"`
	Commits         map[string]string `json:"commits,omitempty"`
}

// CIPreviewResponse is returned by the CI preview. Single mode fills the
// top-level fields, multi mode fills Previews.
type CIPreviewResponse struct {
	Envelope
	Previews []models.CIPreview `json:"previews,omitempty"`
	Content  string             `json:"content,omitempty"`
	FilePath string             `json:"filePath,omitempty"`
	Status   string             `json:"status,omitempty"`
}

// PushedWorkflow is one workflow committed by a CI generate call
type PushedWorkflow struct {
	Service    string `json:"service"`
	FilePath   string `json:"filePath"`
	CommitHash string `json:"commitHash,omitempty"`
}

// CIGenerateResponse is returned by the CI generate call
type CIGenerateResponse struct {
	Envelope
	Mode       string           `json:"mode"`
	CommitHash string           `json:"commitHash,omitempty"`
	FilePath   string           `json:"filePath,omitempty"`
	Workflows  []PushedWorkflow `json:"workflows,omitempty"`
}

// CDResponse is returned by the CD preview and apply calls
type CDResponse struct {
	Envelope
	WorkflowYAML string `json:"workflowYaml,omitempty"`
	CommitHash   string `json:"commitHash,omitempty"`
}

// ComposeResponse is returned by the production compose preview and apply calls
type ComposeResponse struct {
	Envelope
	Content    string `json:"content,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
}

// LoginURL is where the browser starts the GitHub OAuth flow
func (c *Client) LoginURL() string {
	return c.baseURL + PathLogin
}

// DeleteAccount removes the user on the backend
func (c *Client) DeleteAccount(ctx context.Context) error {
	var out Envelope
	if err := c.Delete(ctx, PathDeleteAccount, &out); err != nil {
		return err
	}
	return out.Failed("account deletion failed")
}

// AvailableRepositories lists the user's GitHub repositories
func (c *Client) AvailableRepositories(ctx context.Context) ([]models.Repository, error) {
	var out struct {
		Envelope
		Repositories []models.Repository `json:"repositories"`
	}
	if err := c.Get(ctx, PathReposAvailable, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("could not load repositories"); err != nil {
		return nil, err
	}
	return out.Repositories, nil
}

// SelectRepository registers repo with the backend and returns the stored record
func (c *Client) SelectRepository(ctx context.Context, repo models.Repository) (*models.Repository, error) {
	var out struct {
		Envelope
		Repository *models.Repository `json:"repository"`
	}
	body := map[string]interface{}{"repoData": repo}
	if err := c.Post(ctx, PathReposSelect, body, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("repository selection failed"); err != nil {
		return nil, err
	}
	if out.Repository == nil {
		return nil, fmt.Errorf("backend returned no repository")
	}
	return out.Repository, nil
}

// SelectedRepositories lists repositories already connected to DeployMate
func (c *Client) SelectedRepositories(ctx context.Context) ([]models.Repository, error) {
	var out struct {
		Envelope
		Repositories []models.Repository `json:"repositories"`
	}
	if err := c.Get(ctx, PathReposSelected, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("could not load selected repositories"); err != nil {
		return nil, err
	}
	return out.Repositories, nil
}

// DeselectRepository disconnects a repository from the user
func (c *Client) DeselectRepository(ctx context.Context, userID, repoID int64) error {
	var out Envelope
	path := fmt.Sprintf("/api/repositories/user/%d/repository/%d", userID, repoID)
	if err := c.Delete(ctx, path, &out); err != nil {
		return err
	}
	return out.Failed("repository removal failed")
}

// Analyze triggers stack analysis for a repository
func (c *Client) Analyze(ctx context.Context, repoID int64) (*models.AnalysisResult, error) {
	var out models.AnalysisResult
	if err := c.Post(ctx, fmt.Sprintf("/api/stack-analysis/analyze/%d", repoID), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "repository analysis failed"
		}
		return nil, &APIError{Status: http.StatusOK, Payload: Payload{Message: msg}}
	}
	return &out, nil
}

// RepositoryFiles returns every file path of the repository
func (c *Client) RepositoryFiles(ctx context.Context, repoID int64) ([]string, error) {
	var out struct {
		Envelope
		Files []string `json:"files"`
	}
	if err := c.Get(ctx, fmt.Sprintf("/api/stack-analysis/repository/%d/all-files", repoID), &out); err != nil {
		return nil, err
	}
	if err := out.Failed("could not load repository files"); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// UpdateParameters saves the user-confirmed analysis fields
func (c *Client) UpdateParameters(ctx context.Context, repoID int64, params map[string]string) error {
	var out Envelope
	path := fmt.Sprintf("/api/stack-analysis/repository/%d/update-parameters", repoID)
	if err := c.Put(ctx, path, params, &out); err != nil {
		return err
	}
	return out.Failed("saving analysis failed")
}

// DockerPreview computes container plans
func (c *Client) DockerPreview(ctx context.Context, req StageRequest) (*DockerPreviewResponse, error) {
	var out DockerPreviewResponse
	if err := c.Post(ctx, PathDockerPreview, req, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("failed to preview Dockerfile"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyDockerfile commits generated Dockerfiles
func (c *Client) ApplyDockerfile(ctx context.Context, req StageRequest) (*DockerApplyResponse, error) {
	var out DockerApplyResponse
	if err := c.Post(ctx, PathDockerfileApply, req, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("failed to apply Dockerfile"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CIPreview renders CI workflows and compares them with the repository
func (c *Client) CIPreview(ctx context.Context, req StageRequest) (*CIPreviewResponse, error) {
	var out CIPreviewResponse
	if err := c.Post(ctx, PathCIPreview, req, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("failed to preview CI"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateCI pushes CI workflows
func (c *Client) GenerateCI(ctx context.Context, req StageRequest) (*CIGenerateResponse, error) {
	var out CIGenerateResponse
	if err := c.Post(ctx, PathCIGenerate, req, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("push failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

func repoQuery(path string, repoID int64) string {
	return path + "?" + url.Values{"repoId": {fmt.Sprint(repoID)}}.Encode()
}

// CDPreview renders the CD workflow
func (c *Client) CDPreview(ctx context.Context, repoID int64) (*CDResponse, error) {
	var out CDResponse
	if err := c.Post(ctx, repoQuery(PathCDPreview, repoID), nil, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("preview failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CDApply pushes the CD workflow
func (c *Client) CDApply(ctx context.Context, repoID int64) (*CDResponse, error) {
	var out CDResponse
	if err := c.Post(ctx, repoQuery(PathCDApply, repoID), nil, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("push failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComposePreview renders the production Docker Compose file
func (c *Client) ComposePreview(ctx context.Context, repoID int64) (*ComposeResponse, error) {
	var out ComposeResponse
	body := map[string]int64{"repoId": repoID}
	if err := c.Post(ctx, PathComposeProdPreview, body, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("compose preview failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComposeApply pushes the production Docker Compose file
func (c *Client) ComposeApply(ctx context.Context, repoID int64) (*ComposeResponse, error) {
	var out ComposeResponse
	body := map[string]int64{"repoId": repoID}
	if err := c.Post(ctx, PathComposeProdApply, body, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("compose push failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserActivity returns the user's history grouped by repository
func (c *Client) UserActivity(ctx context.Context) ([]models.HistoryItem, error) {
	var out struct {
		Envelope
		History []models.HistoryItem `json:"history"`
	}
	if err := c.Get(ctx, PathUserActivity, &out); err != nil {
		return nil, err
	}
	if err := out.Failed("failed to fetch history"); err != nil {
		return nil, err
	}
	return out.History, nil
}
