// Package traysup runs the tray subprocess from the main application. The
// Supervisor spawns the tray binary, speaks the trayproto channel over its
// stdin/stdout, tracks its lifecycle state and delivers menu interactions to
// the application on its UI loop.
package traysup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/trayproto"
	"github.com/slaythrax/clamui-sub000/internal/uiloop"
)

const (
	// DefaultGracePeriod is how long Stop waits for the subprocess to exit
	// after the quit command before killing it.
	DefaultGracePeriod = 2 * time.Second

	// DefaultReadyTimeout bounds the Starting phase. A service that never
	// announces ready within this window is treated as a launch failure.
	DefaultReadyTimeout = 10 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("traysup: supervisor already started")
	ErrPingTimeout    = errors.New("traysup: no pong within timeout")
	ErrReadyTimeout   = errors.New("traysup: tray service did not announce ready")
	ErrCrashed        = errors.New("traysup: tray service terminated unexpectedly")
)

// Options configures a Supervisor. BinPath is required; zero durations fall
// back to the package defaults.
type Options struct {
	BinPath      string
	Args         []string
	Logger       zerolog.Logger
	Dispatcher   uiloop.Dispatcher
	GracePeriod  time.Duration
	ReadyTimeout time.Duration
}

// Supervisor owns one tray subprocess. All exported methods are safe for
// concurrent use. Callbacks registered before Start are invoked on the
// configured dispatcher, never on the supervisor's internal goroutines.
type Supervisor struct {
	log          zerolog.Logger
	dispatch     uiloop.Dispatcher
	binPath      string
	args         []string
	gracePeriod  time.Duration
	readyTimeout time.Duration

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	exited     chan struct{}
	readyTimer *time.Timer

	onMenuAction  func(action trayproto.MenuAction, profileID string)
	onUnavailable func(err error)
	onReady       func()

	// writeMu serializes writes to the subprocess stdin so concurrent
	// commands never interleave within a line.
	writeMu sync.Mutex

	pongMu      sync.Mutex
	pongWaiters []chan struct{}

	unavailableOnce sync.Once
	decodeFailures  atomic.Uint64
	readers         sync.WaitGroup
}

// New creates a supervisor in the NotStarted state.
func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	return &Supervisor{
		log:          opts.Logger,
		dispatch:     opts.Dispatcher,
		binPath:      opts.BinPath,
		args:         opts.Args,
		gracePeriod:  opts.GracePeriod,
		readyTimeout: opts.ReadyTimeout,
		state:        StateNotStarted,
	}
}

// OnMenuAction registers the handler for menu interactions relayed by the
// tray service. Must be called before Start.
func (s *Supervisor) OnMenuAction(fn func(action trayproto.MenuAction, profileID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMenuAction = fn
}

// OnUnavailable registers a handler invoked at most once if the tray service
// crashes or fails to launch. Must be called before Start.
func (s *Supervisor) OnUnavailable(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnavailable = fn
}

// OnReady registers a handler invoked when the service announces ready,
// typically to push the initial status and profiles. Must be called before
// Start.
func (s *Supervisor) OnReady(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// Start spawns the tray subprocess and begins reading its events. The
// supervisor enters Starting; it becomes Ready only when the service
// announces itself on stdout.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(s.binPath, s.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("tray service stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("tray service stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("tray service stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn tray service: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.state = StateStarting
	s.exited = make(chan struct{})

	s.readers.Add(2)
	go s.readEvents(stdout)
	go s.readDiagnostics(stderr)

	// Both pipe readers must finish before Wait releases the pipes.
	exited := s.exited
	go func() {
		s.readers.Wait()
		if err := cmd.Wait(); err != nil {
			s.log.Debug().Err(err).Msg("tray service exit status")
		}
		close(exited)
	}()

	s.readyTimer = time.AfterFunc(s.readyTimeout, s.readyTimedOut)

	s.log.Info().
		Str("bin", s.binPath).
		Int("pid", cmd.Process.Pid).
		Msg("tray service started")
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether the service has announced ready and is accepting
// commands.
func (s *Supervisor) IsReady() bool {
	return s.State() == StateReady
}

// DecodeFailures returns the number of event lines dropped because they could
// not be decoded. Exposed for diagnostics.
func (s *Supervisor) DecodeFailures() uint64 {
	return s.decodeFailures.Load()
}

// UpdateStatus changes the indicator's protection state.
func (s *Supervisor) UpdateStatus(status trayproto.Status) {
	s.send(&trayproto.Command{Action: trayproto.ActionUpdateStatus, Status: status})
}

// UpdateProgress reports scan progress as a percentage. Zero clears the
// progress display.
func (s *Supervisor) UpdateProgress(percentage int) {
	s.send(&trayproto.Command{Action: trayproto.ActionUpdateProgress, Percentage: percentage})
}

// UpdateWindowVisible tells the tray which label to show on the window
// toggle entry.
func (s *Supervisor) UpdateWindowVisible(visible bool) {
	s.send(&trayproto.Command{Action: trayproto.ActionUpdateWindowVisible, Visible: &visible})
}

// UpdateProfiles replaces the scan-profile submenu contents.
func (s *Supervisor) UpdateProfiles(profiles []trayproto.Profile, currentID string) {
	// Copy so a caller mutating its slice after the call cannot race the
	// encoder.
	cp := make([]trayproto.Profile, len(profiles))
	copy(cp, profiles)
	s.send(&trayproto.Command{
		Action:           trayproto.ActionUpdateProfiles,
		Profiles:         cp,
		CurrentProfileID: currentID,
	})
}

// Ping sends a liveness probe and waits up to timeout for the pong.
func (s *Supervisor) Ping(timeout time.Duration) error {
	ch := make(chan struct{})
	s.pongMu.Lock()
	s.pongWaiters = append(s.pongWaiters, ch)
	s.pongMu.Unlock()

	s.send(&trayproto.Command{Action: trayproto.ActionPing})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		s.removePongWaiter(ch)
		return ErrPingTimeout
	}
}

func (s *Supervisor) removePongWaiter(ch chan struct{}) {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	for i, w := range s.pongWaiters {
		if w == ch {
			s.pongWaiters = append(s.pongWaiters[:i], s.pongWaiters[i+1:]...)
			return
		}
	}
}

// Stop performs an orderly shutdown: send quit, close stdin, wait for the
// subprocess up to the grace period, then kill it. The supervisor always
// ends in Stopped. Safe to call from any state and more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
		s.state = StateStopped
		s.mu.Unlock()
		return
	case StateStopped, StateShuttingDown:
		s.mu.Unlock()
		return
	}
	crashed := s.state == StateCrashed
	s.state = StateShuttingDown
	if s.readyTimer != nil {
		s.readyTimer.Stop()
	}
	stdin := s.stdin
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if stdin != nil {
		if !crashed {
			// Best effort; the service may already be gone.
			if line, err := trayproto.EncodeCommand(&trayproto.Command{Action: trayproto.ActionQuit}); err == nil {
				s.writeMu.Lock()
				_, _ = stdin.Write(line)
				s.writeMu.Unlock()
			}
		}
		// Closing stdin doubles as the quit signal for a service stuck
		// before its command loop.
		_ = stdin.Close()
	}

	if exited != nil {
		select {
		case <-exited:
		case <-time.After(s.gracePeriod):
			s.log.Warn().
				Dur("grace", s.gracePeriod).
				Msg("tray service did not exit in time, killing")
			if cmd != nil && cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-exited
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.stdin = nil
	s.mu.Unlock()
	s.log.Info().Msg("tray service stopped")
}

// send encodes and writes one command, enforcing the lifecycle gate: most
// commands require Ready and are dropped (with a log line) otherwise, ping is
// allowed from Starting onward, quit goes through Stop instead.
func (s *Supervisor) send(cmd *trayproto.Command) {
	s.mu.Lock()
	state := s.state
	stdin := s.stdin
	s.mu.Unlock()

	switch cmd.Action {
	case trayproto.ActionPing:
		if state != StateStarting && state != StateReady {
			s.log.Warn().
				Str("state", state.String()).
				Msg("dropping ping, tray service not running")
			return
		}
	case trayproto.ActionQuit:
		// Stop owns quit delivery; accept it here for completeness.
	default:
		if state != StateReady {
			s.log.Warn().
				Str("action", string(cmd.Action)).
				Str("state", state.String()).
				Msg("dropping command, tray service not ready")
			return
		}
	}

	if stdin == nil {
		return
	}

	line, err := trayproto.EncodeCommand(cmd)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("action", string(cmd.Action)).
			Msg("failed to encode command")
		return
	}

	s.writeMu.Lock()
	_, werr := stdin.Write(line)
	s.writeMu.Unlock()
	if werr != nil {
		// The pipe reader will notice the dead process; just record it.
		s.log.Warn().
			Err(werr).
			Str("action", string(cmd.Action)).
			Msg("failed to write command")
	}
}

// readEvents consumes the service's stdout line by line until the pipe
// closes. Undecodable lines are counted and skipped; the channel survives
// them.
func (s *Supervisor) readEvents(r io.Reader) {
	defer s.readers.Done()

	lr := trayproto.NewLineReader(r)
	for {
		line, err := lr.Next()
		if err != nil {
			if errors.Is(err, trayproto.ErrMessageTooLarge) {
				s.decodeFailures.Add(1)
				s.log.Warn().Msg("dropping oversized event line")
				continue
			}
			break
		}
		if len(line) == 0 {
			continue
		}

		ev, err := trayproto.DecodeEvent(line)
		if err != nil {
			s.decodeFailures.Add(1)
			if errors.Is(err, trayproto.ErrUnknownKind) {
				s.log.Debug().Err(err).Msg("ignoring unknown event kind")
			} else {
				s.log.Warn().Err(err).Msg("dropping undecodable event line")
			}
			continue
		}
		s.handleEvent(ev)
	}
	s.eventPipeClosed()
}

// readDiagnostics forwards the service's stderr into the supervisor's log so
// subprocess failures are visible in one place.
func (s *Supervisor) readDiagnostics(r io.Reader) {
	defer s.readers.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), trayproto.MaxMessageSize)
	for sc.Scan() {
		s.log.Debug().Str("stderr", sc.Text()).Msg("tray service")
	}
}

func (s *Supervisor) handleEvent(ev *trayproto.Event) {
	switch ev.Event {
	case trayproto.EventReady:
		s.mu.Lock()
		if s.state != StateStarting {
			s.mu.Unlock()
			s.log.Debug().Str("state", s.state.String()).Msg("ignoring ready announcement")
			return
		}
		s.state = StateReady
		if s.readyTimer != nil {
			s.readyTimer.Stop()
		}
		handler := s.onReady
		s.mu.Unlock()
		s.log.Info().Msg("tray service ready")
		if handler != nil {
			s.post(handler)
		}

	case trayproto.EventPong:
		s.pongMu.Lock()
		waiters := s.pongWaiters
		s.pongWaiters = nil
		s.pongMu.Unlock()
		for _, ch := range waiters {
			close(ch)
		}

	case trayproto.EventMenuAction:
		s.mu.Lock()
		handler := s.onMenuAction
		s.mu.Unlock()
		if handler == nil {
			s.log.Debug().Str("action", string(ev.Action)).Msg("menu action with no handler")
			return
		}
		action, profileID := ev.Action, ev.ProfileID
		s.post(func() { handler(action, profileID) })

	case trayproto.EventError:
		s.log.Warn().Str("message", ev.Message).Msg("tray service reported an error")
	}
}

// eventPipeClosed runs when stdout reaches EOF. Outside an orderly shutdown
// that means the subprocess died under us.
func (s *Supervisor) eventPipeClosed() {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateReady:
		s.state = StateCrashed
		if s.readyTimer != nil {
			s.readyTimer.Stop()
		}
		s.mu.Unlock()
		s.log.Error().Msg("tray service terminated unexpectedly")
		s.notifyUnavailable(ErrCrashed)
	default:
		s.mu.Unlock()
	}
}

// readyTimedOut fires if the service never announces ready. The launch is
// treated as failed and the subprocess is torn down.
func (s *Supervisor) readyTimedOut() {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Error().
		Dur("timeout", s.readyTimeout).
		Msg("tray service never announced ready, treating launch as failed")
	s.notifyUnavailable(ErrReadyTimeout)
	go s.Stop()
}

// notifyUnavailable delivers the one-time unavailability callback on the
// dispatcher. Repeated failure signals collapse into the first.
func (s *Supervisor) notifyUnavailable(err error) {
	s.unavailableOnce.Do(func() {
		s.mu.Lock()
		handler := s.onUnavailable
		s.mu.Unlock()
		if handler == nil {
			return
		}
		s.post(func() { handler(err) })
	})
}

func (s *Supervisor) post(fn func()) {
	if s.dispatch != nil {
		s.dispatch.Post(fn)
		return
	}
	fn()
}
