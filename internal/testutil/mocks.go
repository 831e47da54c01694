// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/stretchr/testify/mock"
)

// MockBackend provides a testify mock of every backend call the stages make.
// It satisfies the Backend interface of each stage package.
type MockBackend struct {
	mock.Mock
}

// Analyze mocks the Analyze method
func (m *MockBackend) Analyze(ctx context.Context, repoID int64) (*models.AnalysisResult, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalysisResult), args.Error(1)
}

// RepositoryFiles mocks the RepositoryFiles method
func (m *MockBackend) RepositoryFiles(ctx context.Context, repoID int64) ([]string, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// UpdateParameters mocks the UpdateParameters method
func (m *MockBackend) UpdateParameters(ctx context.Context, repoID int64, params map[string]string) error {
	args := m.Called(ctx, repoID, params)
	return args.Error(0)
}

// DockerPreview mocks the DockerPreview method
func (m *MockBackend) DockerPreview(ctx context.Context, req api.StageRequest) (*api.DockerPreviewResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.DockerPreviewResponse), args.Error(1)
}

// ApplyDockerfile mocks the ApplyDockerfile method
func (m *MockBackend) ApplyDockerfile(ctx context.Context, req api.StageRequest) (*api.DockerApplyResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.DockerApplyResponse), args.Error(1)
}

// CIPreview mocks the CIPreview method
func (m *MockBackend) CIPreview(ctx context.Context, req api.StageRequest) (*api.CIPreviewResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CIPreviewResponse), args.Error(1)
}

// GenerateCI mocks the GenerateCI method
func (m *MockBackend) GenerateCI(ctx context.Context, req api.StageRequest) (*api.CIGenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CIGenerateResponse), args.Error(1)
}

// CDPreview mocks the CDPreview method
func (m *MockBackend) CDPreview(ctx context.Context, repoID int64) (*api.CDResponse, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CDResponse), args.Error(1)
}

// CDApply mocks the CDApply method
func (m *MockBackend) CDApply(ctx context.Context, repoID int64) (*api.CDResponse, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CDResponse), args.Error(1)
}

// ComposePreview mocks the ComposePreview method
func (m *MockBackend) ComposePreview(ctx context.Context, repoID int64) (*api.ComposeResponse, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ComposeResponse), args.Error(1)
}

// ComposeApply mocks the ComposeApply method
func (m *MockBackend) ComposeApply(ctx context.Context, repoID int64) (*api.ComposeResponse, error) {
	args := m.Called(ctx, repoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ComposeResponse), args.Error(1)
}

// AvailableRepositories mocks the AvailableRepositories method
func (m *MockBackend) AvailableRepositories(ctx context.Context) ([]models.Repository, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

// SelectRepository mocks the SelectRepository method
func (m *MockBackend) SelectRepository(ctx context.Context, repo models.Repository) (*models.Repository, error) {
	args := m.Called(ctx, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repository), args.Error(1)
}

// SelectedRepositories mocks the SelectedRepositories method
func (m *MockBackend) SelectedRepositories(ctx context.Context) ([]models.Repository, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

// DeselectRepository mocks the DeselectRepository method
func (m *MockBackend) DeselectRepository(ctx context.Context, userID, repoID int64) error {
	args := m.Called(ctx, userID, repoID)
	return args.Error(0)
}

// UserActivity mocks the UserActivity method
func (m *MockBackend) UserActivity(ctx context.Context) ([]models.HistoryItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoryItem), args.Error(1)
}

// DeleteAccount mocks the DeleteAccount method
func (m *MockBackend) DeleteAccount(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
