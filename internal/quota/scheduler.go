// Package quota paces calls against a service that allows a fixed number of
// requests per window.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Defaults matching the public routing service's free tier.
const (
	DefaultWindow   = 40
	DefaultCooldown = 60 * time.Second
)

// Scheduler is a fixed-window call counter. Once Window calls have been
// acquired, the next Acquire pauses for Cooldown and opens a new window.
type Scheduler struct {
	window   int
	cooldown time.Duration
	clock    Clock

	mu        sync.Mutex
	used      int
	calls     int
	cooldowns int
	onPause   func(time.Duration)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPauseHook registers fn to observe every pause.
func WithPauseHook(fn func(time.Duration)) Option {
	return func(s *Scheduler) { s.onPause = fn }
}

// NewScheduler creates a scheduler allowing window calls per cooldown.
// Non-positive values fall back to the defaults.
func NewScheduler(window int, cooldown time.Duration, opts ...Option) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	s := &Scheduler{window: window, cooldown: cooldown, clock: RealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire reserves one call, pausing first when the current window is used
// up.
func (s *Scheduler) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used >= s.window {
		zap.L().Info("quota: window exhausted, cooling down",
			zap.Int("window", s.window),
			zap.Duration("cooldown", s.cooldown),
		)
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	s.used++
	s.calls++
	return nil
}

// Cooldown pauses for the cool-down period and opens a fresh window.
func (s *Scheduler) Cooldown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause(ctx)
}

func (s *Scheduler) pause(ctx context.Context) error {
	if s.onPause != nil {
		s.onPause(s.cooldown)
	}
	if err := Sleep(ctx, s.clock, s.cooldown); err != nil {
		return eris.Wrap(err, "quota: cooldown interrupted")
	}
	s.used = 0
	s.cooldowns++
	return nil
}

// Stats reports acquired calls and completed pauses.
func (s *Scheduler) Stats() (calls, cooldowns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.cooldowns
}
