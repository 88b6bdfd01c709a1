package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduledFiring(t *testing.T) {
	var fired atomic.Int32
	s := New(zerolog.Nop(), func() { fired.Add(1) })
	s.Configure(true, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for fired.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("fired %d times, want at least 2", fired.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestDisabledNeverFires(t *testing.T) {
	var fired atomic.Int32
	s := New(zerolog.Nop(), func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("fired %d times while disabled", n)
	}
}

func TestTriggerNow(t *testing.T) {
	var fired atomic.Int32
	s := New(zerolog.Nop(), func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.TriggerNow()

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("TriggerNow never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReconfigureDisables(t *testing.T) {
	var fired atomic.Int32
	s := New(zerolog.Nop(), func() { fired.Add(1) })
	s.Configure(true, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(120 * time.Millisecond)
	s.Configure(false, 0)
	base := fired.Load()

	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got > base+1 {
		t.Errorf("fired %d more times after disable", got-base)
	}
}
