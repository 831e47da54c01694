// SPDX-License-Identifier: Apache-2.0

package ci

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the contents API from a path -> content map
func fakeGitHub(t *testing.T, files map[string]string, gotAuth *string, gotRef *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		if gotRef != nil {
			*gotRef = r.URL.Query().Get("ref")
		}
		content, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSplitRepository(t *testing.T) {
	owner, name, err := SplitRepository("acme/app")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "app", name)

	for _, bad := range []string{"", "acme", "/app", "acme/", "a/b/c"} {
		_, _, err := SplitRepository(bad)
		assert.ErrorIs(t, err, ErrInvalidRepository, bad)
	}
}

func TestGitHubFiles_Compare(t *testing.T) {
	var auth, ref string
	srv := fakeGitHub(t, map[string]string{
		"/repos/acme/app/contents/.github/workflows/api.yml": "name: API\n",
		"/repos/acme/app/contents/.github/workflows/web.yml": "name: old",
	}, &auth, &ref)

	files, err := NewGitHubFiles(context.Background(), "ghp_secret", srv.URL)
	require.NoError(t, err)

	tests := []struct {
		name    string
		preview models.CIPreview
		want    string
	}{
		{"identical ignoring whitespace", models.CIPreview{FilePath: ".github/workflows/api.yml", Content: "name: API"}, models.StatusIdentical},
		{"different", models.CIPreview{FilePath: ".github/workflows/web.yml", Content: "name: new"}, models.StatusDifferent},
		{"missing", models.CIPreview{FilePath: ".github/workflows/ci.yml", Content: "name: CI"}, models.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := files.Compare(context.Background(), "acme", "app", "main", tt.preview)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Bearer ghp_secret", auth)
			assert.Equal(t, "main", ref)
		})
	}
}

func TestGitHubFiles_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	files, err := NewGitHubFiles(context.Background(), "", srv.URL)
	require.NoError(t, err)
	_, _, err = files.Content(context.Background(), "acme", "app", "", "x.yml")
	assert.Error(t, err)
}

func TestStage_Verify(t *testing.T) {
	var ref string
	srv := fakeGitHub(t, map[string]string{
		"/repos/acme/app/contents/.github/workflows/api.yml": "name: API",
	}, nil, &ref)

	backend := new(testutil.MockBackend)
	backend.On("CIPreview", mock.Anything, mock.Anything).Return(&api.CIPreviewResponse{Previews: []models.CIPreview{
		{Service: "api", FilePath: ".github/workflows/api.yml", Status: models.StatusNotFound, Content: "name: API"},
		{Service: "web", FilePath: ".github/workflows/web.yml", Status: models.StatusNotFound, Content: "name: WEB"},
	}}, nil)

	a := multi()
	a.DefaultBranch = "develop"
	s, err := New(backend, newState(t, a), &recorder{}, models.UpdateIfExists, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPreview(context.Background()))

	files, err := NewGitHubFiles(context.Background(), "", srv.URL)
	require.NoError(t, err)

	_, err = s.Verify(context.Background(), files, "acme", "")
	assert.ErrorIs(t, err, ErrInvalidRepository)

	changed, err := s.Verify(context.Background(), files, "acme/app", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, changed)
	assert.Equal(t, "develop", ref)

	statuses := map[string]string{}
	for _, p := range s.Previews() {
		statuses[p.Service] = p.Status
	}
	assert.Equal(t, map[string]string{"api": models.StatusIdentical, "web": models.StatusNotFound}, statuses)
}
