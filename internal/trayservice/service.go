// Package trayservice implements the subprocess side of the tray channel. It
// reads commands from stdin, applies them to the indicator through the UI
// interface on the process's UI loop, and emits events on stdout. Stdout
// carries protocol lines only; everything else goes to the logger on stderr.
package trayservice

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/trayproto"
	"github.com/slaythrax/clamui-sub000/internal/uiloop"
)

// UI is the indicator surface the service drives. The systray menu in the
// tray binary implements it; tests substitute a recorder. All methods are
// called on the dispatcher.
type UI interface {
	SetStatus(status trayproto.Status)
	SetProgress(percentage int)
	SetWindowVisible(visible bool)
	SetProfiles(profiles []trayproto.Profile, currentID string)
	Quit()
}

// Config wires a Service to its pipes and indicator.
type Config struct {
	In         io.Reader
	Out        io.Writer
	Logger     zerolog.Logger
	Dispatcher uiloop.Dispatcher
	UI         UI
}

// Service runs the command loop for one tray process.
type Service struct {
	log      zerolog.Logger
	dispatch uiloop.Dispatcher
	ui       UI
	in       io.Reader

	writeMu sync.Mutex
	out     io.Writer

	stateMu sync.Mutex
	state   *MenuState

	decodeFailures atomic.Uint64
}

// New creates a service with the default menu state.
func New(cfg Config) *Service {
	return &Service{
		log:      cfg.Logger,
		dispatch: cfg.Dispatcher,
		ui:       cfg.UI,
		in:       cfg.In,
		out:      cfg.Out,
		state:    NewMenuState(),
	}
}

// Snapshot returns a copy of the current menu state.
func (s *Service) Snapshot() MenuState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := *s.state
	st.Profiles = make([]trayproto.Profile, len(s.state.Profiles))
	copy(st.Profiles, s.state.Profiles)
	return st
}

// DecodeFailures returns the number of command lines dropped as undecodable.
func (s *Service) DecodeFailures() uint64 {
	return s.decodeFailures.Load()
}

// Announce emits the ready event. It must be the first line the service
// writes; the supervisor holds all commands until it arrives.
func (s *Service) Announce() error {
	return s.emit(&trayproto.Event{Event: trayproto.EventReady})
}

// FailStartup reports an initialization failure to the supervisor. Used when
// the indicator cannot be created, before exiting nonzero.
func (s *Service) FailStartup(msg string) {
	if err := s.emit(&trayproto.Event{Event: trayproto.EventError, Message: msg}); err != nil {
		s.log.Error().Err(err).Msg("failed to report startup failure")
	}
}

// EmitMenuAction reports a user interaction to the supervisor. Called from
// the widget's click handlers.
func (s *Service) EmitMenuAction(action trayproto.MenuAction, profileID string) {
	ev := &trayproto.Event{Event: trayproto.EventMenuAction, Action: action, ProfileID: profileID}
	if err := s.emit(ev); err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("failed to emit menu action")
	}
}

// Run reads commands until quit or stdin EOF, then posts UI.Quit and
// returns. Undecodable lines are counted and skipped.
func (s *Service) Run() error {
	lr := trayproto.NewLineReader(s.in)
	for {
		line, err := lr.Next()
		if err != nil {
			if errors.Is(err, trayproto.ErrMessageTooLarge) {
				s.decodeFailures.Add(1)
				s.log.Warn().Msg("dropping oversized command line")
				continue
			}
			// EOF means the supervisor is gone; treat it like quit.
			s.log.Info().Msg("command pipe closed, shutting down")
			s.dispatch.Post(s.ui.Quit)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		cmd, err := trayproto.DecodeCommand(line)
		if err != nil {
			s.decodeFailures.Add(1)
			if errors.Is(err, trayproto.ErrUnknownKind) {
				s.log.Debug().Err(err).Msg("ignoring unknown command kind")
			} else {
				s.log.Warn().Err(err).Msg("dropping undecodable command line")
			}
			continue
		}

		if done := s.handleCommand(cmd); done {
			return nil
		}
	}
}

// handleCommand applies one command. Returns true when the loop should end.
func (s *Service) handleCommand(cmd *trayproto.Command) bool {
	switch cmd.Action {
	case trayproto.ActionPing:
		// Answered directly from the read loop so liveness probes succeed
		// even while the UI loop is busy.
		if err := s.emit(&trayproto.Event{Event: trayproto.EventPong}); err != nil {
			s.log.Warn().Err(err).Msg("failed to emit pong")
		}

	case trayproto.ActionQuit:
		s.dispatch.Post(s.ui.Quit)
		return true

	case trayproto.ActionUpdateStatus:
		status := cmd.Status
		s.dispatch.Post(func() {
			s.stateMu.Lock()
			changed := s.state.SetStatus(status)
			s.stateMu.Unlock()
			if changed {
				s.ui.SetStatus(status)
			}
		})

	case trayproto.ActionUpdateProgress:
		pct := cmd.Percentage
		s.dispatch.Post(func() {
			s.stateMu.Lock()
			changed := s.state.SetProgress(pct)
			applied := s.state.Percentage
			s.stateMu.Unlock()
			if changed {
				s.ui.SetProgress(applied)
			}
		})

	case trayproto.ActionUpdateWindowVisible:
		if cmd.Visible == nil {
			s.decodeFailures.Add(1)
			s.log.Warn().Msg("update_window_visible without visible field")
			break
		}
		visible := *cmd.Visible
		s.dispatch.Post(func() {
			s.stateMu.Lock()
			changed := s.state.SetWindowVisible(visible)
			s.stateMu.Unlock()
			if changed {
				s.ui.SetWindowVisible(visible)
			}
		})

	case trayproto.ActionUpdateProfiles:
		profiles, currentID := cmd.Profiles, cmd.CurrentProfileID
		s.dispatch.Post(func() {
			s.stateMu.Lock()
			changed := s.state.SetProfiles(profiles, currentID)
			s.stateMu.Unlock()
			if changed {
				s.ui.SetProfiles(profiles, currentID)
			}
		})
	}
	return false
}

func (s *Service) emit(ev *trayproto.Event) error {
	line, err := trayproto.EncodeEvent(ev)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.out.Write(line)
	return err
}
