// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync"
	"time"

	"github.com/kusari-oss/deploymate/internal/core/clock"
	"github.com/kusari-oss/deploymate/internal/core/models"
)

const (
	// DefaultToastDuration is how long a toast stays visible
	DefaultToastDuration = 3000 * time.Millisecond
	// ToastClearDelay is the gap between hiding a toast and dropping it
	ToastClearDelay = 300 * time.Millisecond
)

// Toaster shows one toast at a time. A new toast cancels the timers of the
// previous one.
type Toaster struct {
	state    *State
	clock    clock.Clock
	duration time.Duration
	listener func(models.Toast)

	mu      sync.Mutex
	visible bool
	gen     int
	hide    clock.Timer
	clear   clock.Timer
}

// ToasterOption configures a Toaster
type ToasterOption func(*Toaster)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) ToasterOption {
	return func(t *Toaster) { t.clock = c }
}

// WithDefaultDuration overrides the 3000 ms default
func WithDefaultDuration(d time.Duration) ToasterOption {
	return func(t *Toaster) {
		if d > 0 {
			t.duration = d
		}
	}
}

// WithListener is called on every Show, e.g. to print the toast
func WithListener(fn func(models.Toast)) ToasterOption {
	return func(t *Toaster) { t.listener = fn }
}

// NewToaster creates a toaster writing into state
func NewToaster(state *State, opts ...ToasterOption) *Toaster {
	t := &Toaster{
		state:    state,
		clock:    clock.Real{},
		duration: DefaultToastDuration,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Show displays toast for d, or the default duration when d <= 0
func (t *Toaster) Show(toast models.Toast, d time.Duration) {
	if d <= 0 {
		d = t.duration
	}

	t.mu.Lock()
	t.stopTimers()
	t.gen++
	gen := t.gen
	t.visible = true
	t.state.SetToast(&toast)
	t.hide = t.clock.AfterFunc(d, func() { t.expire(gen) })
	listener := t.listener
	t.mu.Unlock()

	if listener != nil {
		listener(toast)
	}
}

// Success, Error and Info are shorthands for Show with the default duration
func (t *Toaster) Success(msg string) {
	t.Show(models.Toast{Message: msg, Type: models.ToastSuccess}, 0)
}

func (t *Toaster) Error(msg string) {
	t.Show(models.Toast{Message: msg, Type: models.ToastError}, 0)
}

func (t *Toaster) Info(msg string) {
	t.Show(models.Toast{Message: msg, Type: models.ToastInfo}, 0)
}

func (t *Toaster) expire(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.visible = false
	t.clear = t.clock.AfterFunc(ToastClearDelay, func() { t.drop(gen) })
}

func (t *Toaster) drop(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.state.SetToast(nil)
}

// Visible reports whether the current toast is still on screen
func (t *Toaster) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Dismiss hides and clears the toast immediately
func (t *Toaster) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimers()
	t.gen++
	t.visible = false
	t.state.SetToast(nil)
}

// caller holds t.mu
func (t *Toaster) stopTimers() {
	if t.hide != nil {
		t.hide.Stop()
		t.hide = nil
	}
	if t.clear != nil {
		t.clear.Stop()
		t.clear = nil
	}
}
