// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/app"
	"github.com/kusari-oss/deploymate/internal/auth"
	"github.com/kusari-oss/deploymate/internal/core/config"
	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/history"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/kusari-oss/deploymate/internal/wizard/ci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	t    *testing.T
	home string
	url  string
}

// newEnv isolates the DeployMate home and starts a fake backend
func newEnv(t *testing.T, handler http.Handler) *env {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvGithubToken, "")
	t.Setenv(config.EnvRequestRate, "")

	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &env{t: t, home: home, url: srv.URL}
}

func (e *env) dataDir() string {
	return filepath.Join(e.home, config.DefaultConfigDir)
}

func (e *env) login() {
	e.t.Helper()
	local, err := localstore.Open(e.dataDir(), localstore.Local)
	require.NoError(e.t, err)
	session, err := localstore.Open(e.dataDir(), localstore.Session)
	require.NoError(e.t, err)
	require.NoError(e.t, auth.NewStore(local, session, nil).Login("tok-123", &models.User{ID: 7, Username: "octo"}))
}

func (e *env) pipeline(repoID int64, a *models.AnalysisResult) {
	e.t.Helper()
	local, err := localstore.Open(e.dataDir(), localstore.Local)
	require.NoError(e.t, err)
	state := pipeline.Load(local, nil)
	require.NoError(e.t, state.SetRepoID(repoID))
	if a != nil {
		require.NoError(e.t, state.SetAnalysis(a))
	}
}

func (e *env) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", e.url, "--log-level", "error"}, args...))
	err := run(root)
	return out.String(), errOut.String(), err
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

var singleNode = &models.AnalysisResult{
	Success: true,
	Mode:    models.ModeSingle,
	Analysis: &models.ServiceDescriptor{
		StackType:        "NODE_JS",
		BuildTool:        "npm",
		WorkingDirectory: ".",
	},
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	e := newEnv(t, nil)
	_, _, err := e.run("", "-o", "xml", "state", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestAuthStatus_LoggedOut(t *testing.T) {
	e := newEnv(t, nil)
	out, _, err := e.run("", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
	assert.Contains(t, out, "Backend: "+e.url)
}

func TestAuthStatus_LoggedIn(t *testing.T) {
	e := newEnv(t, nil)
	e.login()

	out, _, err := e.run("", "-o", "json", "auth", "status")
	require.NoError(t, err)

	var st struct {
		Authenticated bool        `json:"authenticated"`
		User          models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Authenticated)
	assert.Equal(t, "octo", st.User.Username)
}

func TestAuthLogin_WithToken(t *testing.T) {
	e := newEnv(t, nil)

	_, errOut, err := e.run("", "auth", "login", "--token", "tok-9", "--user", `{"id":9,"username":"hubot"}`)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Logged in as")

	out, _, err := e.run("", "-o", "json", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "hubot"`)
}

func TestAuthLogin_TokenWithoutUser(t *testing.T) {
	e := newEnv(t, nil)
	_, _, err := e.run("", "auth", "login", "--token", "tok-9")
	assert.Error(t, err)
}

func TestRepoList_RequiresLogin(t *testing.T) {
	e := newEnv(t, nil)
	_, _, err := e.run("", "repo", "list")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrNotAuthenticated))
}

func repoBackend(t *testing.T, selected *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathReposAvailable, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeJSON(w, `{"success":true,"repositories":[
			{"id":1,"name":"api","full_name":"acme/api","language":"Java","private":true},
			{"id":2,"name":"web","full_name":"acme/web","language":"TypeScript","description":"storefront"},
			{"id":3,"name":"docs","full_name":"acme/docs","language":"Markdown"}]}`)
	})
	mux.HandleFunc(api.PathReposSelect, func(w http.ResponseWriter, r *http.Request) {
		selected.Add(1)
		writeJSON(w, `{"success":true,"repository":{"repoId":42,"name":"web","fullName":"acme/web"}}`)
	})
	return mux
}

func TestRepoList_Filters(t *testing.T) {
	var selected atomic.Int32
	e := newEnv(t, repoBackend(t, &selected))
	e.login()

	out, _, err := e.run("", "repo", "list", "--query", "store")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/web")
	assert.NotContains(t, out, "acme/api")

	out, _, err = e.run("", "repo", "list", "--visibility", "private")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/api")
	assert.NotContains(t, out, "acme/docs")

	_, _, err = e.run("", "repo", "list", "--visibility", "internal")
	assert.Error(t, err)
}

func TestRepoSelect_StoresRepoID(t *testing.T) {
	var selected atomic.Int32
	e := newEnv(t, repoBackend(t, &selected))
	e.login()

	_, errOut, err := e.run("", "repo", "select", "acme/web")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Repository acme/web selected (id 42)")
	assert.Equal(t, int32(1), selected.Load())

	out, _, err := e.run("", "-o", "json", "state", "show")
	require.NoError(t, err)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, int64(42), snap.RepoID)

	_, _, err = e.run("", "repo", "select", "nope")
	assert.Error(t, err)
}

func ciBackend(t *testing.T, status string, generated *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathCIPreview, func(w http.ResponseWriter, r *http.Request) {
		var req api.StageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.RepoID)
		assert.NotNil(t, req.TechStackInfo)
		writeJSON(w, `{"success":true,"content":"name: CI\n","filePath":".github/workflows/ci.yml","status":"`+status+`"}`)
	})
	mux.HandleFunc(api.PathCIGenerate, func(w http.ResponseWriter, r *http.Request) {
		generated.Add(1)
		writeJSON(w, `{"success":true,"mode":"single","commitHash":"abc123","filePath":".github/workflows/ci.yml"}`)
	})
	return mux
}

func TestCIPush_Single(t *testing.T) {
	var generated atomic.Int32
	e := newEnv(t, ciBackend(t, models.StatusDifferent, &generated))
	e.login()
	e.pipeline(42, singleNode)

	out, errOut, err := e.run("", "ci", "push")
	require.NoError(t, err)
	assert.Equal(t, int32(1), generated.Load())
	assert.Contains(t, errOut, "Pushed. Check your repo.")
	assert.Contains(t, out, models.StatusIdentical)
	assert.Contains(t, out, "Every workflow matches the repository")
}

func TestCIPush_NothingToPush(t *testing.T) {
	var generated atomic.Int32
	e := newEnv(t, ciBackend(t, models.StatusIdentical, &generated))
	e.login()
	e.pipeline(42, singleNode)

	_, errOut, err := e.run("", "ci", "push")
	require.NoError(t, err)
	assert.Zero(t, generated.Load())
	assert.Contains(t, errOut, ci.MsgNothingToPush)
}

func TestCIPush_FailIfExistsBlocks(t *testing.T) {
	var generated atomic.Int32
	e := newEnv(t, ciBackend(t, models.StatusDifferent, &generated))
	e.login()
	e.pipeline(42, singleNode)

	_, errOut, err := e.run("", "ci", "push", "--strategy", "fail_if_exists")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ci.ErrBlocked))
	assert.Zero(t, generated.Load())
	assert.Contains(t, errOut, ci.MsgFileExists)
}

func TestCI_RequiresAnalysis(t *testing.T) {
	e := newEnv(t, nil)
	e.login()
	e.pipeline(42, nil)

	_, _, err := e.run("", "ci", "preview")
	assert.True(t, errors.Is(err, ci.ErrNoAnalysis))
}

func cdBackend(t *testing.T, applies *atomic.Int32, composed *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathCDApply, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("repoId"))
		if applies.Add(1) == 1 {
			w.WriteHeader(http.StatusPreconditionRequired)
			writeJSON(w, `{"message":"compose missing","missingCompose":true}`)
			return
		}
		writeJSON(w, `{"success":true,"workflowYaml":"name: CD\n","commitHash":"def456"}`)
	})
	mux.HandleFunc(api.PathComposeProdPreview, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"content":"services:\n  app: {}\n","filePath":"docker-compose.prod.yml"}`)
	})
	mux.HandleFunc(api.PathComposeProdApply, func(w http.ResponseWriter, r *http.Request) {
		composed.Add(1)
		writeJSON(w, `{"success":true,"commitHash":"c0mp05e"}`)
	})
	return mux
}

func TestCDPush_ComposeAccepted(t *testing.T) {
	var applies, composed atomic.Int32
	e := newEnv(t, cdBackend(t, &applies, &composed))
	e.login()
	e.pipeline(42, singleNode)

	out, errOut, err := e.run("y\n", "cd", "push")
	require.NoError(t, err)
	assert.Equal(t, int32(2), applies.Load())
	assert.Equal(t, int32(1), composed.Load())
	assert.Contains(t, out, "docker-compose.prod.yml")
	assert.Contains(t, out, "Commit: def456")
	assert.Contains(t, out, "name: CD")
	assert.Contains(t, errOut, api.MsgComposeMissing)
	assert.Contains(t, errOut, "Docker Compose pushed (commit c0mp05e).")
}

func TestCDPush_ComposeDeclined(t *testing.T) {
	var applies, composed atomic.Int32
	e := newEnv(t, cdBackend(t, &applies, &composed))
	e.login()
	e.pipeline(42, singleNode)

	out, errOut, err := e.run("n\n", "cd", "push")
	require.NoError(t, err)
	assert.Equal(t, int32(1), applies.Load())
	assert.Zero(t, composed.Load())
	assert.NotContains(t, out, "name: CD")
	assert.Contains(t, errOut, "cancelled")
}

func TestHistory_OfflineUsesCache(t *testing.T) {
	var down atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathUserActivity, func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, `{"success":true,"history":[{"id":"h1","repoName":"acme/web","operationCount":2,
			"lastActivity":"2020-01-01T00:00:00Z","operations":[
			{"type":"ci","action":"generate","status":"success","timestamp":"2020-01-01T00:00:00Z","workflowContent":"name: CI"},
			{"type":"connection","action":"select","status":"success","timestamp":"2019-12-31T00:00:00Z"}]}]}`)
	})
	e := newEnv(t, mux)
	e.login()

	out, _, err := e.run("", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/web  2 operations")
	assert.Contains(t, out, "⚡ generate")
	assert.Contains(t, out, "days ago")

	down.Store(true)
	_, _, err = e.run("", "history", "list")
	require.Error(t, err)

	out, _, err = e.run("", "history", "list", "--offline", "--workflows")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/web")
	assert.Contains(t, out, "name: CI")
	assert.Contains(t, out, "(cached")
}

func TestHistory_OnlineWhileCacheLocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathUserActivity, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"history":[{"id":"h1","repoName":"acme/web","operationCount":1,
			"lastActivity":"2020-01-01T00:00:00Z","operations":[
			{"type":"ci","action":"generate","status":"success","timestamp":"2020-01-01T00:00:00Z"}]}]}`)
	})
	e := newEnv(t, mux)
	e.login()

	// another process, such as history watch, holds the badger lock
	held, err := history.OpenCache(filepath.Join(e.dataDir(), app.HistoryCacheDir))
	require.NoError(t, err)
	defer held.Close()

	out, _, err := e.run("", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/web")

	_, _, err = e.run("", "history", "list", "--offline")
	assert.Error(t, err)
}

func TestConfigSet_WritesGlobalFile(t *testing.T) {
	e := newEnv(t, nil)

	_, _, err := e.run("", "config", "set", "default_registry", "docker.io")
	require.NoError(t, err)

	path, err := config.GlobalConfigFilePath()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_registry: docker.io")

	out, _, err := e.run("", "docker", "options")
	require.NoError(t, err)
	assert.Contains(t, out, "registry: docker.io")

	_, _, err = e.run("", "config", "set", "output", "xml")
	assert.Error(t, err)
}

func TestStateReset(t *testing.T) {
	e := newEnv(t, nil)
	e.pipeline(42, singleNode)

	_, _, err := e.run("", "state", "reset", "--yes")
	require.NoError(t, err)

	out, _, err := e.run("", "state", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Repository: none")
}

func analysisBackend(t *testing.T, saved *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stack-analysis/analyze/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"mode":"single","analysis":{"stackType":"SPRING_BOOT","buildTool":"maven","workingDirectory":".","javaVersion":"17"}}`)
	})
	mux.HandleFunc("/api/stack-analysis/repository/42/all-files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"files":["pom.xml","src/main/App.java","node_modules/x/index.js"]}`)
	})
	mux.HandleFunc("/api/stack-analysis/repository/42/update-parameters", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "21", params["analysis.javaVersion"])
		saved.Add(1)
		writeJSON(w, `{"success":true}`)
	})
	return mux
}

func TestAnalyze_EditAndConfirm(t *testing.T) {
	var saved atomic.Int32
	e := newEnv(t, analysisBackend(t, &saved))
	e.login()
	e.pipeline(42, nil)

	out, _, err := e.run("", "analyze", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "SPRING_BOOT")
	assert.Contains(t, out, "2 files in the repository tree")
	assert.Contains(t, out, "Not confirmed yet")

	_, _, err = e.run("", "analyze", "edit", "analysis.javaVersion", "21")
	require.NoError(t, err)

	_, _, err = e.run("", "analyze", "edit", "analysis.stackType", "GO")
	assert.Error(t, err)

	_, errOut, err := e.run("", "analyze", "confirm", "--yes")
	require.NoError(t, err)
	assert.Equal(t, int32(1), saved.Load())
	assert.Contains(t, errOut, "Analysis saved.")

	out, _, err = e.run("", "-o", "json", "state", "show")
	require.NoError(t, err)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, "21", snap.Analysis.PrimaryService().JavaVersion)

	_, errOut, err = e.run("", "analyze", "confirm")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Analysis already confirmed.")
	assert.Equal(t, int32(1), saved.Load())
}

func TestAnalyzeTree_HidesIgnoredFiles(t *testing.T) {
	var saved atomic.Int32
	e := newEnv(t, analysisBackend(t, &saved))
	e.login()
	e.pipeline(42, nil)

	out, _, err := e.run("", "analyze", "tree")
	require.NoError(t, err)
	assert.Equal(t, "src/\n  main/\n    App.java\npom.xml\n", out)
}
