// Package scheduler fires periodic background scans. It owns no scanning
// logic itself; the trigger callback decides what a scheduled scan means.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler triggers a callback on a configurable interval. Reconfiguration
// takes effect immediately, resetting the countdown.
type Scheduler struct {
	log     zerolog.Logger
	trigger func()

	mu       sync.Mutex
	enabled  bool
	interval time.Duration

	reload chan struct{}
	manual chan struct{}
}

// New creates a disabled scheduler. trigger runs on the scheduler's
// goroutine; long work belongs behind it, not in it.
func New(log zerolog.Logger, trigger func()) *Scheduler {
	return &Scheduler{
		log:     log,
		trigger: trigger,
		reload:  make(chan struct{}, 1),
		manual:  make(chan struct{}, 1),
	}
}

// Configure enables or disables scheduling and sets the interval. Safe to
// call while Run is active; the current countdown restarts.
func (s *Scheduler) Configure(enabled bool, interval time.Duration) {
	s.mu.Lock()
	s.enabled = enabled && interval > 0
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// TriggerNow requests an immediate run regardless of the schedule.
func (s *Scheduler) TriggerNow() {
	select {
	case s.manual <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing the trigger on schedule and on
// TriggerNow.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		enabled, interval := s.enabled, s.interval
		s.mu.Unlock()

		var tick <-chan time.Time
		var timer *time.Timer
		if enabled {
			timer = time.NewTimer(interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-tick:
			s.log.Info().Dur("interval", interval).Msg("scheduled scan due")
			s.trigger()

		case <-s.manual:
			if timer != nil {
				timer.Stop()
			}
			s.log.Info().Msg("manual scan trigger")
			s.trigger()

		case <-s.reload:
			if timer != nil {
				timer.Stop()
			}
		}
	}
}
