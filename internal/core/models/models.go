// SPDX-License-Identifier: Apache-2.0

// Package models holds the value objects exchanged with the DeployMate backend.
// Field names follow the backend's camelCase JSON.
package models

import "time"

// NotDetected is the sentinel shown for analysis fields the backend left empty
const NotDetected = "NONE"

// Analysis modes
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// User is the authenticated GitHub identity returned by the OAuth callback
type User struct {
	ID        int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Username  string `json:"username" yaml:"username"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatar_url,omitempty"`
	GithubID  int64  `json:"githubId,omitempty" yaml:"github_id,omitempty"`
}

// Session is the token/user pair owned by the auth store
type Session struct {
	Token string `json:"token" yaml:"token"`
	User  *User  `json:"user" yaml:"user"`
}

// Repository is a GitHub repository as listed or selected through the backend
type Repository struct {
	RepoID        int64  `json:"repoId,omitempty" yaml:"repo_id,omitempty"`
	GithubID      int64  `json:"id,omitempty" yaml:"github_id,omitempty"`
	Name          string `json:"name" yaml:"name"`
	FullName      string `json:"fullName,omitempty" yaml:"full_name,omitempty"`
	GithubName    string `json:"full_name,omitempty" yaml:"-"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	Language      string `json:"language,omitempty" yaml:"language,omitempty"`
	Private       bool   `json:"private" yaml:"private"`
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	HTMLURL       string `json:"html_url,omitempty" yaml:"-"`
	DefaultBranch string `json:"defaultBranch,omitempty" yaml:"default_branch,omitempty"`
}

// DisplayName returns the owner/name form regardless of which payload shape filled it
func (r Repository) DisplayName() string {
	switch {
	case r.FullName != "":
		return r.FullName
	case r.GithubName != "":
		return r.GithubName
	default:
		return r.Name
	}
}

// ServiceDescriptor is the per-service stack analysis
type ServiceDescriptor struct {
	ID               string                 `json:"id,omitempty" yaml:"id,omitempty"`
	StackType        string                 `json:"stackType" yaml:"stack_type"`
	BuildTool        string                 `json:"buildTool" yaml:"build_tool"`
	WorkingDirectory string                 `json:"workingDirectory" yaml:"working_directory"`
	Language         string                 `json:"language,omitempty" yaml:"language,omitempty"`
	JavaVersion      string                 `json:"javaVersion,omitempty" yaml:"java_version,omitempty"`
	Orchestrator     string                 `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`
	ProjectDetails   map[string]interface{} `json:"projectDetails,omitempty" yaml:"project_details,omitempty"`
	DatabaseType     string                 `json:"databaseType,omitempty" yaml:"database_type,omitempty"`
	DatabaseName     string                 `json:"databaseName,omitempty" yaml:"database_name,omitempty"`
}

// Detail returns a project detail as a string, or "" when absent
func (s ServiceDescriptor) Detail(key string) string {
	if s.ProjectDetails == nil {
		return ""
	}
	v, ok := s.ProjectDetails[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return ""
}

// AnalysisResult is the backend's stack analysis, discriminated by Mode
type AnalysisResult struct {
	Success          bool                `json:"success" yaml:"success"`
	Message          string              `json:"message,omitempty" yaml:"message,omitempty"`
	Mode             string              `json:"mode" yaml:"mode"`
	Analysis         *ServiceDescriptor  `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Services         []ServiceDescriptor `json:"services,omitempty" yaml:"services,omitempty"`
	DatabaseType     string              `json:"databaseType,omitempty" yaml:"database_type,omitempty"`
	DatabaseName     string              `json:"databaseName,omitempty" yaml:"database_name,omitempty"`
	PrimaryServiceID string              `json:"primaryServiceId,omitempty" yaml:"primary_service_id,omitempty"`
	DefaultBranch    string              `json:"defaultBranch,omitempty" yaml:"default_branch,omitempty"`
}

// IsMulti reports whether the analysis describes several services
func (a *AnalysisResult) IsMulti() bool {
	return a != nil && a.Mode == ModeMulti
}

// PrimaryService returns the single-mode service, or the first multi-mode one
func (a *AnalysisResult) PrimaryService() *ServiceDescriptor {
	if a == nil {
		return nil
	}
	if a.Analysis != nil {
		return a.Analysis
	}
	if len(a.Services) > 0 {
		return &a.Services[0]
	}
	return nil
}

// FileHandlingStrategy controls what the backend does when a target file exists
type FileHandlingStrategy string

const (
	UpdateIfExists  FileHandlingStrategy = "UPDATE_IF_EXISTS"
	FailIfExists    FileHandlingStrategy = "FAIL_IF_EXISTS"
	CreateNewAlways FileHandlingStrategy = "CREATE_NEW_ALWAYS"
)

// ParseStrategy returns the strategy for s, defaulting to UPDATE_IF_EXISTS
func ParseStrategy(s string) (FileHandlingStrategy, bool) {
	switch FileHandlingStrategy(s) {
	case UpdateIfExists, FailIfExists, CreateNewAlways:
		return FileHandlingStrategy(s), true
	case "":
		return UpdateIfExists, true
	default:
		return UpdateIfExists, false
	}
}

// DockerOptions are the user's image settings sent with every preview/apply
type DockerOptions struct {
	Registry           string               `json:"registry" yaml:"registry"`
	ImageNameOverride  *string              `json:"imageNameOverride" yaml:"image_name_override"`
	DockerfileStrategy FileHandlingStrategy `json:"dockerfileStrategy,omitempty" yaml:"dockerfile_strategy,omitempty"`
}

// DefaultDockerOptions mirrors the backend default registry
func DefaultDockerOptions() DockerOptions {
	return DockerOptions{Registry: "ghcr.io"}
}

// Strategy returns the Dockerfile strategy, defaulting to UPDATE_IF_EXISTS
func (d DockerOptions) Strategy() FileHandlingStrategy {
	if d.DockerfileStrategy == "" {
		return UpdateIfExists
	}
	return d.DockerfileStrategy
}

// ContainerPlan is the backend's per-service Dockerfile plan
type ContainerPlan struct {
	WorkingDirectory           string   `json:"workingDirectory" yaml:"working_directory"`
	Registry                   string   `json:"registry" yaml:"registry"`
	ImageName                  string   `json:"imageName" yaml:"image_name"`
	DockerContext              string   `json:"dockerContext" yaml:"docker_context"`
	DockerfilePath             string   `json:"dockerfilePath,omitempty" yaml:"dockerfile_path,omitempty"`
	HasDockerfile              bool     `json:"hasDockerfile" yaml:"has_dockerfile"`
	ShouldGenerateDockerfile   bool     `json:"shouldGenerateDockerfile" yaml:"should_generate_dockerfile"`
	PreviewDockerfileContent   string   `json:"previewDockerfileContent,omitempty" yaml:"-"`
	PreviewSource              string   `json:"previewSource,omitempty" yaml:"preview_source,omitempty"`
	ExistingDockerfileContent  string   `json:"existingDockerfileContent,omitempty" yaml:"-"`
	GeneratedDockerfileContent string   `json:"generatedDockerfileContent,omitempty" yaml:"-"`
	ProposedDockerfileContent  string   `json:"proposedDockerfileContent,omitempty" yaml:"-"`
	HasCompose                 bool     `json:"hasCompose" yaml:"has_compose"`
	ComposeFiles               []string `json:"composeFiles,omitempty" yaml:"compose_files,omitempty"`
}

// CI preview statuses
const (
	StatusNotFound  = "NOT_FOUND"
	StatusDifferent = "DIFFERENT"
	StatusIdentical = "IDENTICAL"
)

// CIPreview is the generated workflow for one service and how it compares to the repo
type CIPreview struct {
	Service  string `json:"service" yaml:"service"`
	FilePath string `json:"filePath" yaml:"file_path"`
	Status   string `json:"status" yaml:"status"`
	Content  string `json:"content" yaml:"-"`
}

// Operation is one recorded step in a repository's history
type Operation struct {
	Type            string `json:"type" yaml:"type"`
	Action          string `json:"action" yaml:"action"`
	Status          string `json:"status" yaml:"status"`
	Timestamp       string `json:"timestamp" yaml:"timestamp"`
	WorkflowContent string `json:"workflowContent,omitempty" yaml:"-"`
}

// HistoryItem is the activity of one repository, grouped by the backend
type HistoryItem struct {
	ID             string      `json:"id" yaml:"id" badgerhold:"key"`
	RepoName       string      `json:"repoName" yaml:"repo_name" badgerholdIndex:"RepoName"`
	Type           string      `json:"type" yaml:"type"`
	Status         string      `json:"status" yaml:"status"`
	Action         string      `json:"action" yaml:"action"`
	CreatedAt      string      `json:"createdAt" yaml:"created_at"`
	LastActivity   string      `json:"lastActivity" yaml:"last_activity"`
	OperationCount int         `json:"operationCount" yaml:"operation_count"`
	Operations     []Operation `json:"operations" yaml:"operations"`
	FetchedAt      time.Time   `json:"-" yaml:"-"`
	Rank           int         `json:"-" yaml:"-"`
}

// Toast kinds
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// Toast is a transient user notification
type Toast struct {
	Message  string `json:"message" yaml:"message"`
	Type     string `json:"type" yaml:"type"`
	Position string `json:"position,omitempty" yaml:"position,omitempty"`
}
