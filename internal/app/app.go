// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration, storage, the session and the API client
// into the components every command shares.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/kusari-oss/deploymate/internal/api"
	"github.com/kusari-oss/deploymate/internal/auth"
	"github.com/kusari-oss/deploymate/internal/core/config"
	"github.com/kusari-oss/deploymate/internal/core/executor"
	"github.com/kusari-oss/deploymate/internal/core/format"
	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	views "github.com/kusari-oss/deploymate/internal/core/template"
	"github.com/kusari-oss/deploymate/internal/history"
	"github.com/kusari-oss/deploymate/internal/pipeline"
	"github.com/kusari-oss/deploymate/internal/wizard/analysis"
	"github.com/phuslu/log"
)

// HistoryCacheDir is the badger directory under the data dir
const HistoryCacheDir = "history"

// App holds the components shared by commands
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	DataDir string

	Local   *localstore.Store
	Session *localstore.Store
	Auth    *auth.Store
	Client  *api.Client

	Pipeline *pipeline.State
	Toaster  *pipeline.Toaster

	Out      io.Writer
	Err      io.Writer
	In       io.Reader
	Output   string
	Template string

	historyCache *history.Cache
}

// Option configures an App
type Option func(*App)

// WithWriters sets the output and error streams
func WithWriters(out, errOut io.Writer) Option {
	return func(a *App) {
		a.Out = out
		a.Err = errOut
	}
}

// WithInput sets where prompts read answers from
func WithInput(in io.Reader) Option {
	return func(a *App) { a.In = in }
}

// WithLogger replaces the logger built from the config
func WithLogger(l *log.Logger) Option {
	return func(a *App) { a.Logger = l }
}

// WithDataDir replaces the data directory
func WithDataDir(dir string) Option {
	return func(a *App) { a.DataDir = dir }
}

// WithTemplate renders text output through a user template file
func WithTemplate(path string) Option {
	return func(a *App) { a.Template = path }
}

// New builds the App from cfg
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		Out:    os.Stdout,
		Err:    os.Stderr,
		In:     os.Stdin,
		Output: cfg.Output,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Logger == nil {
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, fmt.Errorf("error creating logger: %w", err)
		}
		a.Logger = logger
	}

	if a.DataDir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		a.DataDir = dir
	}

	var err error
	if a.Local, err = localstore.Open(a.DataDir, localstore.Local); err != nil {
		return nil, err
	}
	if a.Session, err = localstore.Open(a.DataDir, localstore.Session); err != nil {
		return nil, err
	}

	a.Auth = auth.NewStore(a.Local, a.Session, a.Logger)
	a.Client = api.New(cfg.APIURL,
		api.WithTokenSource(a.Auth.Token),
		api.WithUnauthorizedHook(a.onUnauthorized),
		api.WithRateLimit(cfg.RequestRate),
		api.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second),
		api.WithLogger(a.Logger),
	)

	a.Pipeline = pipeline.Load(a.Local, a.Logger)
	// a configured registry replaces the built-in default, never a user choice
	if o := a.Pipeline.DockerOptions(); cfg.DefaultRegistry != "" &&
		o.Registry == models.DefaultDockerOptions().Registry && o.Registry != cfg.DefaultRegistry {
		o.Registry = cfg.DefaultRegistry
		if err := a.Pipeline.SetDockerOptions(o); err != nil {
			return nil, err
		}
	}
	a.Toaster = pipeline.NewToaster(a.Pipeline,
		pipeline.WithDefaultDuration(time.Duration(cfg.ToastDurationMS)*time.Millisecond),
		pipeline.WithListener(a.printToast),
	)
	return a, nil
}

func (a *App) onUnauthorized() {
	a.Logger.Warn().Msg("session rejected by the backend, logging out")
	a.Auth.Logout()
}

// toast marks
var toastMarks = map[string]string{
	models.ToastSuccess: "✓",
	models.ToastError:   "✕",
	models.ToastInfo:    "i",
}

func (a *App) printToast(t models.Toast) {
	mark, ok := toastMarks[t.Type]
	if !ok {
		mark = "•"
	}
	fmt.Fprintf(a.Err, "%s %s\n", mark, t.Message)
}

// RequireAuth fails when there is no usable session. An expired token is
// dropped first.
func (a *App) RequireAuth() error {
	if a.Auth.IsAuthenticated() && a.Auth.Expired(time.Now()) {
		a.Logger.Info().Msg("session token expired")
		a.Auth.Logout()
	}
	if !a.Auth.IsAuthenticated() {
		return api.ErrNotAuthenticated
	}
	return nil
}

// Strategy is the configured file handling strategy
func (a *App) Strategy() models.FileHandlingStrategy {
	s, _ := models.ParseStrategy(a.Config.DefaultStrategy)
	return s
}

// TreeFilter builds the file tree filter from the ignore patterns
func (a *App) TreeFilter() *analysis.Filter {
	return analysis.NewFilter(a.Config.IgnorePatterns)
}

// OpenBrowser launches the configured browser command on url
func (a *App) OpenBrowser(ctx context.Context, url string) error {
	exe, err := executor.BrowserCommand(a.Config.BrowserCommand, url)
	if err != nil {
		return err
	}
	name, args := exe.Command()
	a.Logger.Debug().Str("command", name).Strs("args", args).Msg("opening browser")
	return exe.Start(ctx)
}

// HistoryCache opens the history cache on first use
func (a *App) HistoryCache() (*history.Cache, error) {
	if a.historyCache != nil {
		return a.historyCache, nil
	}
	c, err := history.OpenCache(filepath.Join(a.DataDir, HistoryCacheDir))
	if err != nil {
		return nil, err
	}
	a.historyCache = c
	return c, nil
}

// Close releases what the App opened
func (a *App) Close() error {
	if a.historyCache == nil {
		return nil
	}
	err := a.historyCache.Close()
	a.historyCache = nil
	return err
}

// Render writes data as yaml or json when asked, otherwise through the user
// template or the command's text view
func (a *App) Render(name, view string, data interface{}, funcs template.FuncMap) error {
	switch {
	case a.Output == format.YAML || a.Output == format.JSON:
		return format.Write(a.Out, data, a.Output)
	case a.Template != "":
		return views.RenderFile(a.Out, a.Template, data, funcs)
	default:
		return views.Render(a.Out, name, view, data, funcs)
	}
}
