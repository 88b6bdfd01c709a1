// Package uiloop provides the single-goroutine dispatch loop both processes
// use as their UI thread. Background readers never touch UI state directly;
// they post closures here and the loop executes them one at a time, in order.
package uiloop

import (
	"sync"
)

// Dispatcher posts a closure to run on a UI loop. The supervisor and the
// tray service both accept this interface so tests can substitute a
// synchronous implementation.
type Dispatcher interface {
	Post(fn func())
}

// Loop is the default Dispatcher: a queue drained by exactly one goroutine.
type Loop struct {
	fns  chan func()
	quit chan struct{}
	once sync.Once
}

// New creates a loop with a bounded queue. Run must be called before posted
// closures execute.
func New() *Loop {
	return &Loop{
		fns:  make(chan func(), 128),
		quit: make(chan struct{}),
	}
}

// Run executes posted closures until Stop is called. It blocks the calling
// goroutine, which becomes the process's UI thread.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.fns:
			fn()
		case <-l.quit:
			// Drain whatever was already queued before stopping.
			for {
				select {
				case fn := <-l.fns:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post schedules fn to run on the loop. Safe from any goroutine. Posts after
// Stop are dropped rather than blocking the caller.
func (l *Loop) Post(fn func()) {
	select {
	case l.fns <- fn:
	case <-l.quit:
	}
}

// Stop terminates Run after draining queued closures. Idempotent.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
}
