// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kusari-oss/deploymate/internal/core/clock"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/phuslu/log"
)

// ErrNoCache is returned by Cached when the service has no cache
var ErrNoCache = errors.New("history cache is not enabled")

// Backend is the part of the API the service calls
type Backend interface {
	UserActivity(ctx context.Context) ([]models.HistoryItem, error)
}

// Service fetches history and keeps the cache current
type Service struct {
	backend Backend
	cache   *Cache
	clock   clock.Clock
	logger  *log.Logger
}

// Option configures a Service
type Option func(*Service)

// WithCache stores each successful fetch in c
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{backend: backend, clock: clock.Real{}, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch loads the history from the backend. A cache write failure is logged
// and does not fail the fetch.
func (s *Service) Fetch(ctx context.Context) ([]models.HistoryItem, error) {
	items, err := s.backend.UserActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching history: %w", err)
	}
	now := s.clock.Now()
	for i := range items {
		items[i].FetchedAt = now
	}
	if s.cache != nil {
		if err := s.cache.Replace(items, now); err != nil {
			s.logger.Warn().Err(err).Msg("history cache not updated")
		}
	}
	s.logger.Debug().Int("repositories", len(items)).Msg("history fetched")
	return items, nil
}

// Cached returns the last fetched history without calling the backend
func (s *Service) Cached() ([]models.HistoryItem, error) {
	if s.cache == nil {
		return nil, ErrNoCache
	}
	return s.cache.All()
}

// Now is the service's clock time, used for relative timestamps
func (s *Service) Now() time.Time {
	return s.clock.Now()
}
