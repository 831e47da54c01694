// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kusari-oss/deploymate/internal/core/models"
)

// CallbackPath is where the backend redirects after OAuth
const CallbackPath = "/callback"

var (
	// ErrLoginFailed wraps an ?error= returned by the backend
	ErrLoginFailed = errors.New("login failed")
	// ErrMissingCredentials is returned when the callback lacks token or user
	ErrMissingCredentials = errors.New("callback is missing token or user")
	// ErrStateMismatch is returned when the callback state is missing or foreign
	ErrStateMismatch = errors.New("callback state does not match")
)

// Callback is the parsed result of the OAuth redirect
type Callback struct {
	Token string
	User  *models.User
}

// ParseCallback reads token, user and error from the redirect query. The
// user parameter is URL-encoded JSON.
func ParseCallback(q url.Values) (*Callback, error) {
	if msg := q.Get("error"); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	token := q.Get("token")
	raw := q.Get("user")
	if token == "" || raw == "" {
		return nil, ErrMissingCredentials
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("%w: invalid user data: %w", ErrLoginFailed, err)
	}
	return &Callback{Token: token, User: &user}, nil
}

// BuildLoginURL appends the loopback redirect and state to the backend login URL
func BuildLoginURL(loginURL, redirect, state string) (string, error) {
	u, err := url.Parse(loginURL)
	if err != nil {
		return "", fmt.Errorf("invalid login url: %w", err)
	}
	q := u.Query()
	q.Set("redirect_uri", redirect)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type outcome struct {
	cb  *Callback
	err error
}

// CallbackServer is a one-shot loopback listener for the OAuth redirect
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	state    string
	results  chan outcome
}

// ListenCallback binds 127.0.0.1:port; port 0 picks a free port
func ListenCallback(port int) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("error starting callback listener: %w", err)
	}

	s := &CallbackServer{
		listener: ln,
		state:    uuid.NewString(),
		results:  make(chan outcome, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handle)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() { _ = s.server.Serve(ln) }()
	return s, nil
}

// RedirectURL is the address the backend should send the browser back to
func (s *CallbackServer) RedirectURL() string {
	return "http://" + s.listener.Addr().String() + CallbackPath
}

// State is the nonce sent with the login URL
func (s *CallbackServer) State() string {
	return s.state
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var res outcome
	if q.Get("state") != s.state {
		res.err = ErrStateMismatch
	} else {
		res.cb, res.err = ParseCallback(q)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if res.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "DeployMate login failed: %v\n", res.err)
	} else {
		fmt.Fprintln(w, "DeployMate login complete. You can close this window.")
	}

	select {
	case s.results <- res:
	default:
	}
}

// Wait blocks until the first callback arrives or ctx is done
func (s *CallbackServer) Wait(ctx context.Context) (*Callback, error) {
	select {
	case res := <-s.results:
		return res.cb, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Opener sends the user's browser to url
type Opener func(ctx context.Context, url string) error

// LoginWithBrowser runs the loopback flow: listen, open the login page, wait
// for the redirect, then store the session.
func (s *Store) LoginWithBrowser(ctx context.Context, loginURL string, port int, open Opener) (*models.User, error) {
	srv, err := ListenCallback(port)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	target, err := BuildLoginURL(loginURL, srv.RedirectURL(), srv.State())
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("url", target).Msg("opening browser for GitHub login")
	if err := open(ctx, target); err != nil {
		return nil, fmt.Errorf("error opening browser: %w", err)
	}

	cb, err := srv.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Login(cb.Token, cb.User); err != nil {
		return nil, err
	}
	return s.User(), nil
}
