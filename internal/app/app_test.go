// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/core/config"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	var out, errOut bytes.Buffer
	opts = append([]Option{
		WithWriters(&out, &errOut),
		WithLogger(logging.Discard()),
		WithDataDir(t.TempDir()),
	}, opts...)
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, &out, &errOut
}

func TestNew_Defaults(t *testing.T) {
	a, _, _ := newApp(t, nil)
	assert.Equal(t, config.DefaultAPIURL, a.Client.BaseURL())
	assert.Equal(t, models.UpdateIfExists, a.Strategy())
	assert.Equal(t, "ghcr.io", a.Pipeline.DockerOptions().Registry)
	assert.False(t, a.Auth.IsAuthenticated())
	assert.ErrorIs(t, a.RequireAuth(), api.ErrNotAuthenticated)
}

func TestNew_ConfiguredRegistry(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.DefaultRegistry = "registry.example.com"
	a, _, _ := newApp(t, cfg)
	assert.Equal(t, "registry.example.com", a.Pipeline.DockerOptions().Registry)
}

func TestApp_UnauthorizedLogsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.APIURL = srv.URL
	a, _, _ := newApp(t, cfg)
	require.NoError(t, a.Auth.Login("tok", &models.User{Username: "octo"}))
	require.NoError(t, a.RequireAuth())

	_, err := a.Client.AvailableRepositories(context.Background())
	assert.True(t, errors.Is(err, api.ErrUnauthorized))
	assert.False(t, a.Auth.IsAuthenticated())
}

func TestApp_ToastsPrintToErr(t *testing.T) {
	a, _, errOut := newApp(t, nil)
	a.Toaster.Success("Saved")
	a.Toaster.Error("Nope")
	a.Toaster.Show(models.Toast{Message: "odd", Type: "custom"}, 0)
	assert.Equal(t, "✓ Saved\n✕ Nope\n• odd\n", errOut.String())
	require.NotNil(t, a.Pipeline.Toast())
	assert.Equal(t, "odd", a.Pipeline.Toast().Message)
}

func TestApp_Render(t *testing.T) {
	data := map[string]string{"name": "acme/api"}

	a, out, _ := newApp(t, nil)
	require.NoError(t, a.Render("repo", "repo: {{.name}}\n", data, nil))
	assert.Equal(t, "repo: acme/api\n", out.String())

	out.Reset()
	a.Output = "json"
	require.NoError(t, a.Render("repo", "ignored", data, nil))
	assert.JSONEq(t, `{"name":"acme/api"}`, out.String())

	out.Reset()
	a.Output = "yaml"
	require.NoError(t, a.Render("repo", "ignored", data, nil))
	assert.Equal(t, "name: acme/api\n", out.String())

	out.Reset()
	path := filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("<{{.name}}>"), 0644))
	a.Output = "text"
	a.Template = path
	require.NoError(t, a.Render("repo", "ignored", data, nil))
	assert.Equal(t, "<acme/api>", out.String())
}

func TestApp_Confirm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		yes     bool
		want    bool
		wantErr error
	}{
		{"assume yes", "", true, true, nil},
		{"y", "y\n", false, true, nil},
		{"YES", "YES\n", false, true, nil},
		{"no", "n\n", false, false, nil},
		{"empty line", "\n", false, false, nil},
		{"no trailing newline", "yes", false, true, nil},
		{"closed input", "", false, false, ErrNoAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, errOut := newApp(t, nil, WithInput(strings.NewReader(tt.input)))
			got, err := a.Confirm("Push?", tt.yes)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if !tt.yes {
				assert.Contains(t, errOut.String(), "Push? [y/N]")
			}
		})
	}
}

func TestApp_HistoryCache(t *testing.T) {
	a, _, _ := newApp(t, nil)
	c1, err := a.HistoryCache()
	require.NoError(t, err)
	c2, err := a.HistoryCache()
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	_, err = os.Stat(filepath.Join(a.DataDir, HistoryCacheDir))
	assert.NoError(t, err)
}
