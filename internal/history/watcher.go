// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule refreshes every 30 seconds
const DefaultSchedule = "@every 30s"

// Update is delivered after each refresh
type Update struct {
	Items []models.HistoryItem
	Err   error
}

// Watcher refreshes the history on a cron schedule. Refreshes are skipped
// while the token source returns "".
type Watcher struct {
	service  *Service
	token    func() string
	onUpdate func(Update)
	timeout  time.Duration

	cron *cron.Cron
	mu   sync.Mutex
	runs int
}

// NewWatcher creates a watcher; onUpdate runs on the cron goroutine
func NewWatcher(service *Service, token func() string, onUpdate func(Update)) *Watcher {
	return &Watcher{
		service:  service,
		token:    token,
		onUpdate: onUpdate,
		timeout:  30 * time.Second,
		cron:     cron.New(),
	}
}

// Start schedules refreshes; an empty schedule uses DefaultSchedule
func (w *Watcher) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := w.cron.AddFunc(schedule, w.Refresh); err != nil {
		return fmt.Errorf("invalid history schedule %q: %w", schedule, err)
	}
	w.cron.Start()
	w.service.logger.Info().Str("schedule", schedule).Msg("history watcher started")
	return nil
}

// Stop halts the schedule and waits for a running refresh
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	w.service.logger.Info().Msg("history watcher stopped")
}

// Refresh fetches once, unless there is no session
func (w *Watcher) Refresh() {
	if w.token() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	items, err := w.service.Fetch(ctx)
	if err != nil {
		w.service.logger.Error().Err(err).Msg("history refresh failed")
	}

	w.mu.Lock()
	w.runs++
	w.mu.Unlock()

	if w.onUpdate != nil {
		w.onUpdate(Update{Items: items, Err: err})
	}
}

// Runs counts completed refreshes
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}
