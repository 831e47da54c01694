// SPDX-License-Identifier: Apache-2.0

package ci

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/kusari-oss/deploymate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	toasts []models.Toast
}

func (r *recorder) Show(t models.Toast, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recorder) last() models.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return models.Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

func newState(t *testing.T, a *models.AnalysisResult) *pipeline.State {
	t.Helper()
	store, err := localstore.Open(t.TempDir(), localstore.Local)
	require.NoError(t, err)
	s := pipeline.Load(store, nil)
	require.NoError(t, s.SetRepoID(42))
	require.NoError(t, s.SetAnalysis(a))
	return s
}

func single() *models.AnalysisResult {
	return &models.AnalysisResult{
		Mode:     models.ModeSingle,
		Analysis: &models.ServiceDescriptor{StackType: "NODE_JS", BuildTool: "npm", WorkingDirectory: "./frontend"},
	}
}

func multi() *models.AnalysisResult {
	return &models.AnalysisResult{
		Mode: models.ModeMulti,
		Services: []models.ServiceDescriptor{
			{StackType: "SPRING_BOOT", BuildTool: "Maven", WorkingDirectory: "api"},
			{StackType: "NODE_JS", BuildTool: "npm", WorkingDirectory: "web"},
		},
	}
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		strategy  models.FileHandlingStrategy
		proceed   bool
		toastType string
	}{
		{"identical update", models.StatusIdentical, models.UpdateIfExists, false, models.ToastInfo},
		{"identical fail", models.StatusIdentical, models.FailIfExists, false, models.ToastError},
		{"different fail", models.StatusDifferent, models.FailIfExists, false, models.ToastError},
		{"different update", models.StatusDifferent, models.UpdateIfExists, true, ""},
		{"not found fail", models.StatusNotFound, models.FailIfExists, true, ""},
		{"identical create new", models.StatusIdentical, models.CreateNewAlways, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Preflight(tt.status, tt.strategy)
			assert.Equal(t, tt.proceed, d.Proceed)
			if tt.proceed {
				assert.Nil(t, d.Toast)
				return
			}
			require.NotNil(t, d.Toast)
			assert.Equal(t, tt.toastType, d.Toast.Type)
		})
	}
}

func TestNew(t *testing.T) {
	store, err := localstore.Open(t.TempDir(), localstore.Local)
	require.NoError(t, err)
	_, err = New(new(testutil.MockBackend), pipeline.Load(store, nil), &recorder{}, "", nil)
	assert.ErrorIs(t, err, ErrNoAnalysis)

	s, err := New(new(testutil.MockBackend), newState(t, single()), &recorder{}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateIfExists, s.Strategy())
}

func TestStage_SingleDefaults(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.MatchedBy(func(r api.StageRequest) bool {
		return r.TechStackInfo != nil && r.Services == nil && r.TechStackInfo.WorkingDirectory == "./frontend"
	})).Return(&api.CIPreviewResponse{Content: "name: CI"}, nil)

	s, err := New(backend, newState(t, single()), &recorder{}, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))

	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, DefaultWorkflowPath, cur.FilePath)
	assert.Equal(t, models.StatusNotFound, cur.Status)
	assert.Equal(t, "name: CI", cur.Content)
	assert.False(t, s.AllApplied())
	backend.AssertExpectations(t)
}

func TestStage_PreflightBlocksWithoutCallingBackend(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		strategy  models.FileHandlingStrategy
		toastType string
	}{
		{"identical with update", models.StatusIdentical, models.UpdateIfExists, models.ToastInfo},
		{"different with fail", models.StatusDifferent, models.FailIfExists, models.ToastError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(testutil.MockBackend)
			backend.On("CIPreview", mock.Anything, mock.Anything).
				Return(&api.CIPreviewResponse{FilePath: ".github/workflows/ci.yml", Status: tt.status, Content: "x"}, nil)
			notes := &recorder{}

			s, err := New(backend, newState(t, single()), notes, tt.strategy, nil)
			require.NoError(t, err)
			require.NoError(t, s.LoadPreview(context.Background()))

			err = s.PushOne(context.Background(), "")
			assert.ErrorIs(t, err, ErrBlocked)
			assert.Equal(t, tt.toastType, notes.last().Type)
			backend.AssertNotCalled(t, "GenerateCI", mock.Anything, mock.Anything)
		})
	}
}

func TestStage_PushOneSingle(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).
		Return(&api.CIPreviewResponse{Status: models.StatusDifferent}, nil)
	backend.On("GenerateCI", mock.Anything, mock.MatchedBy(func(r api.StageRequest) bool {
		return r.FileHandlingStrategy == models.UpdateIfExists && r.RepoID == 42
	})).Return(&api.CIGenerateResponse{FilePath: ".github/workflows/node.yml", CommitHash: "abc"}, nil)
	notes := &recorder{}

	s, err := New(backend, newState(t, single()), notes, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))
	require.NoError(t, s.PushOne(context.Background(), ""))

	assert.Equal(t, "Pushed. Check your repo.", notes.last().Message)
	assert.Equal(t, models.ToastSuccess, notes.last().Type)
	cur := s.Current()
	assert.Equal(t, models.StatusIdentical, cur.Status)
	assert.Equal(t, ".github/workflows/node.yml", cur.FilePath)
	assert.True(t, s.AllApplied())

	// now identical: a second push is blocked locally
	assert.ErrorIs(t, s.PushOne(context.Background(), ""), ErrBlocked)
	backend.AssertNumberOfCalls(t, "GenerateCI", 1)
}

func TestStage_MultiSelectAndPush(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.MatchedBy(func(r api.StageRequest) bool {
		return len(r.Services) == 2 && r.TechStackInfo == nil
	})).Return(&api.CIPreviewResponse{Previews: []models.CIPreview{
		{Service: "api", FilePath: ".github/workflows/api.yml", Status: models.StatusNotFound},
		{Service: "web", FilePath: ".github/workflows/web.yml", Status: models.StatusIdentical},
	}}, nil)
	backend.On("GenerateCI", mock.Anything, mock.MatchedBy(func(r api.StageRequest) bool {
		return len(r.Services) == 1 && r.Services[0].WorkingDirectory == "api"
	})).Return(&api.CIGenerateResponse{Workflows: []api.PushedWorkflow{{Service: "api", FilePath: ".github/workflows/api.yml"}}}, nil)
	notes := &recorder{}

	s, err := New(backend, newState(t, multi()), notes, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))
	assert.Equal(t, "api", s.Current().Service)

	assert.ErrorIs(t, s.Select("nope"), ErrServiceNotFound)
	require.NoError(t, s.Select("web"))
	assert.ErrorIs(t, s.PushOne(context.Background(), ""), ErrBlocked)

	require.NoError(t, s.PushOne(context.Background(), "api"))
	assert.Equal(t, models.ToastSuccess, notes.last().Type)
	assert.True(t, s.AllApplied())
}

func TestStage_MultiPushWithoutWorkflowsIsInfo(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).Return(&api.CIPreviewResponse{Previews: []models.CIPreview{
		{Service: "api", Status: models.StatusDifferent},
	}}, nil)
	backend.On("GenerateCI", mock.Anything, mock.Anything).Return(&api.CIGenerateResponse{}, nil)
	notes := &recorder{}

	s, err := New(backend, newState(t, multi()), notes, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))
	require.NoError(t, s.PushOne(context.Background(), "api"))
	assert.Equal(t, models.ToastInfo, notes.last().Type)
	assert.Equal(t, models.StatusDifferent, s.Current().Status)
}

func TestStage_PushAll(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).Return(&api.CIPreviewResponse{Previews: []models.CIPreview{
		{Service: "api", Status: models.StatusNotFound},
		{Service: "web", Status: models.StatusIdentical},
	}}, nil)
	backend.On("GenerateCI", mock.Anything, mock.MatchedBy(func(r api.StageRequest) bool {
		return len(r.Services) == 1 && r.Services[0].WorkingDirectory == "api"
	})).Return(&api.CIGenerateResponse{Workflows: []api.PushedWorkflow{{Service: "api"}}}, nil)
	notes := &recorder{}

	s, err := New(backend, newState(t, multi()), notes, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))
	require.NoError(t, s.PushAll(context.Background()))
	assert.Equal(t, "Pushed 1 workflow(s). Check your repo.", notes.last().Message)
	assert.True(t, s.AllApplied())

	// everything identical now
	assert.ErrorIs(t, s.PushAll(context.Background()), ErrBlocked)
	assert.Equal(t, models.ToastInfo, notes.last().Type)
}

func TestStage_PushAllFailIfExistsAborts(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).Return(&api.CIPreviewResponse{Previews: []models.CIPreview{
		{Service: "api", Status: models.StatusNotFound},
		{Service: "web", Status: models.StatusDifferent},
	}}, nil)
	notes := &recorder{}

	s, err := New(backend, newState(t, multi()), notes, models.FailIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))
	assert.ErrorIs(t, s.PushAll(context.Background()), ErrBlocked)
	assert.Equal(t, MsgFileExists, notes.last().Message)
	backend.AssertNotCalled(t, "GenerateCI", mock.Anything, mock.Anything)
}

func TestStage_HumanizedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &api.APIError{Status: 401}, api.MsgUnauthorized},
		{"github token", &api.APIError{Status: 400, Payload: api.Payload{Message: "GitHub token not found"}}, api.MsgGithubToken},
		{"dockerfile first", &api.APIError{Status: 428}, api.MsgDockerfileMissing},
		{"io error", &api.APIError{Status: 500, Payload: api.Payload{Message: "io error: disk"}}, "I/O error: disk"},
		{"transport", api.ErrTransport, api.MsgTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(testutil.MockBackend)
			backend.On("CIPreview", mock.Anything, mock.Anything).Return(&api.CIPreviewResponse{}, nil)
			backend.On("GenerateCI", mock.Anything, mock.Anything).Return(nil, tt.err)
			notes := &recorder{}

			s, err := New(backend, newState(t, single()), notes, models.UpdateIfExists, nil)
			require.NoError(t, err)
			require.NoError(t, s.LoadPreview(context.Background()))

			err = s.PushOne(context.Background(), "")
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, tt.want, notes.last().Message)
			assert.Equal(t, models.ToastError, notes.last().Type)
			assert.Equal(t, models.StatusNotFound, s.Current().Status)
		})
	}
}

func TestStage_Busy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&api.CIPreviewResponse{}, nil).Once()

	s, err := New(backend, newState(t, single()), &recorder{}, "", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.LoadPreview(context.Background()) }()
	<-started
	assert.ErrorIs(t, s.LoadPreview(context.Background()), ErrBusy)
	assert.ErrorIs(t, s.PushOne(context.Background(), ""), ErrBusy)
	close(release)
	require.NoError(t, <-done)
}
