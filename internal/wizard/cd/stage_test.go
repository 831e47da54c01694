// SPDX-License-Identifier: Apache-2.0

package cd

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

func newStage(t *testing.T, backend *testutil.MockBackend, notes *recorder) *Stage {
	t.Helper()
	store, err := localstore.Open(t.TempDir(), localstore.Local)
	require.NoError(t, err)
	state := pipeline.Load(store, nil)
	require.NoError(t, state.SetRepoID(7))
	s, err := New(backend, state, notes, nil)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresRepository(t *testing.T) {
	store, err := localstore.Open(t.TempDir(), localstore.Local)
	require.NoError(t, err)
	_, err = New(new(testutil.MockBackend), pipeline.Load(store, nil), &recorder{}, nil)
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestIsComposeRequired(t *testing.T) {
	assert.True(t, IsComposeRequired(&api.APIError{Status: 428}))
	assert.True(t, IsComposeRequired(&api.APIError{Status: 400, Payload: api.Payload{MissingCompose: true}}))
	assert.True(t, IsComposeRequired(&api.APIError{Status: 400, Payload: api.Payload{Code: api.CodeComposeMissing}}))
	assert.False(t, IsComposeRequired(&api.APIError{Status: 409}))
	assert.False(t, IsComposeRequired(errors.New("x")))
	assert.False(t, IsComposeRequired(nil))
}

func TestStage_PreviewAndPush(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CDPreview", mock.Anything, int64(7)).Return(&api.CDResponse{WorkflowYAML: "name: CD"}, nil)
	backend.On("CDApply", mock.Anything, int64(7)).Return(&api.CDResponse{CommitHash: "c0ffee"}, nil)
	notes := &recorder{}
	s := newStage(t, backend, notes)

	require.NoError(t, s.Preview(context.Background()))
	assert.Equal(t, "name: CD", s.Workflow())
	assert.Empty(t, notes.toasts)

	require.NoError(t, s.Push(context.Background()))
	assert.Equal(t, "c0ffee", s.Commit())
	assert.Equal(t, "name: CD", s.Workflow())
	assert.Equal(t, "CD workflow pushed (commit c0ffee).", notes.last().Message)
}

func TestStage_MissingCIIsHumanized(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CDPreview", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 409})
	notes := &recorder{}
	s := newStage(t, backend, notes)

	err := s.Preview(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrComposeRequired))
	assert.Equal(t, api.MsgCIWorkflowMissing, notes.last().Message)
	assert.Nil(t, s.Pending())
}

func TestStage_ComposeSaga(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CDApply", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 428, Payload: api.Payload{MissingCompose: true}}).Once()
	backend.On("ComposePreview", mock.Anything, int64(7)).Return(&api.ComposeResponse{Content: "services: {}", FilePath: "docker-compose.prod.yml"}, nil)
	backend.On("ComposeApply", mock.Anything, int64(7)).Return(&api.ComposeResponse{CommitHash: "aaa"}, nil)
	backend.On("CDApply", mock.Anything, int64(7)).Return(&api.CDResponse{WorkflowYAML: "name: CD", CommitHash: "bbb"}, nil).Once()
	notes := &recorder{}
	s := newStage(t, backend, notes)

	err := s.Push(context.Background())
	assert.ErrorIs(t, err, ErrComposeRequired)
	p := s.Pending()
	require.NotNil(t, p)
	assert.Equal(t, ActionPush, p.Action)
	assert.Equal(t, "docker-compose.prod.yml", p.FilePath)
	assert.False(t, p.SkipPreview())
	assert.Equal(t, api.MsgComposeMissing, notes.last().Message)

	require.NoError(t, s.ApplyCompose(context.Background()))
	assert.Nil(t, s.Pending())
	assert.Equal(t, "bbb", s.Commit())
	assert.Equal(t, "CD workflow pushed (commit bbb).", notes.last().Message)
	backend.AssertNumberOfCalls(t, "CDApply", 2)
	backend.AssertNumberOfCalls(t, "ComposeApply", 1)
}

func TestStage_ComposePreviewFailureIsTolerated(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CDPreview", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 428}).Once()
	backend.On("ComposePreview", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 500, Payload: api.Payload{Message: "boom"}})
	backend.On("ComposeApply", mock.Anything, int64(7)).Return(&api.ComposeResponse{}, nil)
	backend.On("CDPreview", mock.Anything, int64(7)).Return(&api.CDResponse{WorkflowYAML: "name: CD"}, nil).Once()
	s := newStage(t, backend, &recorder{})

	assert.ErrorIs(t, s.Preview(context.Background()), ErrComposeRequired)
	p := s.Pending()
	require.NotNil(t, p)
	assert.True(t, p.SkipPreview())
	assert.Error(t, p.PreviewErr)

	require.NoError(t, s.ApplyCompose(context.Background()))
	assert.Equal(t, "name: CD", s.Workflow())
	assert.Empty(t, s.Commit())
}

func TestStage_RetryHappensOnce(t *testing.T) {
	composeMissing := &api.APIError{Status: 428}
	backend := new(testutil.MockBackend)
	backend.On("CDApply", mock.Anything, int64(7)).Return(nil, composeMissing)
	backend.On("ComposePreview", mock.Anything, int64(7)).Return(&api.ComposeResponse{}, nil)
	backend.On("ComposeApply", mock.Anything, int64(7)).Return(&api.ComposeResponse{}, nil)
	notes := &recorder{}
	s := newStage(t, backend, notes)

	assert.ErrorIs(t, s.Push(context.Background()), ErrComposeRequired)
	err := s.ApplyCompose(context.Background())
	assert.ErrorIs(t, err, composeMissing)
	assert.Equal(t, models.ToastError, notes.last().Type)
	assert.Nil(t, s.Pending())
	backend.AssertNumberOfCalls(t, "CDApply", 2)
}

func TestStage_ApplyComposeWithoutPending(t *testing.T) {
	s := newStage(t, new(testutil.MockBackend), &recorder{})
	assert.ErrorIs(t, s.ApplyCompose(context.Background()), ErrNoPendingCompose)
}

func TestStage_ComposeApplyFailureKeepsPending(t *testing.T) {
	backend := new(testutil.MockBackend)
	backend.On("CDPreview", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 428})
	backend.On("ComposePreview", mock.Anything, int64(7)).Return(&api.ComposeResponse{Content: "x"}, nil)
	backend.On("ComposeApply", mock.Anything, int64(7)).Return(nil, &api.APIError{Status: 401})
	notes := &recorder{}
	s := newStage(t, backend, notes)

	assert.ErrorIs(t, s.Preview(context.Background()), ErrComposeRequired)
	assert.Error(t, s.ApplyCompose(context.Background()))
	assert.Equal(t, api.MsgUnauthorized, notes.last().Message)
	assert.NotNil(t, s.Pending())

	s.DismissCompose()
	assert.Nil(t, s.Pending())
	backend.AssertNumberOfCalls(t, "CDPreview", 1)
}
