// Package trayproto defines the line-delimited JSON protocol spoken between
// the main process (tray supervisor) and the tray subprocess (tray service).
//
// Every message is a single UTF-8 JSON object terminated by '\n'. Commands
// flow supervisor -> service and carry an "action" discriminant; events flow
// service -> supervisor and carry an "event" discriminant. Decode failures
// are recoverable by design: a bad line is skipped and reading continues.
package trayproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxMessageSize is the maximum serialized size of a single message,
	// excluding the trailing newline. Longer lines are rejected before any
	// semantic parsing.
	MaxMessageSize = 1 << 20

	// MaxPayloadDepth is the maximum JSON nesting depth of a message,
	// counting the top-level object as level one.
	MaxPayloadDepth = 10
)

// Decode failure sentinels. Callers skip the offending line and continue.
var (
	ErrMessageTooLarge = errors.New("trayproto: message exceeds size limit")
	ErrTooDeep         = errors.New("trayproto: message exceeds nesting depth limit")
	ErrMissingAction   = errors.New("trayproto: command missing action field")
	ErrMissingEvent    = errors.New("trayproto: event missing event field")
	ErrUnknownKind     = errors.New("trayproto: unrecognized message kind")
)

// Action identifies a command sent supervisor -> service.
type Action string

const (
	ActionUpdateStatus        Action = "update_status"
	ActionUpdateProgress      Action = "update_progress"
	ActionUpdateWindowVisible Action = "update_window_visible"
	ActionUpdateProfiles      Action = "update_profiles"
	ActionPing                Action = "ping"
	ActionQuit                Action = "quit"
)

// EventKind identifies an event sent service -> supervisor.
type EventKind string

const (
	EventReady      EventKind = "ready"
	EventMenuAction EventKind = "menu_action"
	EventPong       EventKind = "pong"
	EventError      EventKind = "error"
)

// Status is the protection state shown by the indicator. It is always
// defined; StatusProtected is the zero-configuration default.
type Status string

const (
	StatusProtected Status = "protected"
	StatusWarning   Status = "warning"
	StatusScanning  Status = "scanning"
	StatusThreat    Status = "threat"
)

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusProtected, StatusWarning, StatusScanning, StatusThreat:
		return true
	}
	return false
}

// MenuAction identifies a user interaction on the indicator menu.
type MenuAction string

const (
	MenuQuickScan     MenuAction = "quick_scan"
	MenuFullScan      MenuAction = "full_scan"
	MenuUpdate        MenuAction = "update"
	MenuQuit          MenuAction = "quit"
	MenuToggleWindow  MenuAction = "toggle_window"
	MenuSelectProfile MenuAction = "select_profile"
)

// Profile is one entry of the scan-profile submenu.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Command is a message sent from the supervisor to the tray service.
// Only the fields relevant to Action are populated.
type Command struct {
	Action Action `json:"action"`

	// ActionUpdateStatus
	Status Status `json:"status,omitempty"`

	// ActionUpdateProgress; 0 means "no active operation, clear indicator".
	Percentage int `json:"percentage,omitempty"`

	// ActionUpdateWindowVisible
	Visible *bool `json:"visible,omitempty"`

	// ActionUpdateProfiles
	Profiles         []Profile `json:"profiles,omitempty"`
	CurrentProfileID string    `json:"current_profile_id,omitempty"`
}

// Event is a message sent from the tray service to the supervisor.
type Event struct {
	Event EventKind `json:"event"`

	// EventMenuAction
	Action    MenuAction `json:"action,omitempty"`
	ProfileID string     `json:"profile_id,omitempty"`

	// EventError
	Message string `json:"message,omitempty"`
}

// EncodeCommand serializes a command to a single newline-terminated line.
func EncodeCommand(c *Command) ([]byte, error) {
	return encodeLine(c)
}

// EncodeEvent serializes an event to a single newline-terminated line.
func EncodeEvent(e *Event) ([]byte, error) {
	return encodeLine(e)
}

func encodeLine(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return append(data, '\n'), nil
}

// DecodeCommand parses one line (with or without its trailing newline) into a
// Command. Structure is validated before semantics: size limit, nesting depth
// and the "action" discriminant. An action outside the enumerated set yields
// ErrUnknownKind so the reader can skip it without tearing down the channel.
func DecodeCommand(line []byte) (*Command, error) {
	line, err := checkLine(line)
	if err != nil {
		return nil, err
	}

	var c Command
	if err := json.Unmarshal(line, &c); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if c.Action == "" {
		return nil, ErrMissingAction
	}

	switch c.Action {
	case ActionUpdateStatus, ActionUpdateProgress, ActionUpdateWindowVisible,
		ActionUpdateProfiles, ActionPing, ActionQuit:
		return &c, nil
	}
	return nil, fmt.Errorf("%w: action %q", ErrUnknownKind, c.Action)
}

// DecodeEvent parses one line into an Event, with the same structural
// validation as DecodeCommand.
func DecodeEvent(line []byte) (*Event, error) {
	line, err := checkLine(line)
	if err != nil {
		return nil, err
	}

	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.Event == "" {
		return nil, ErrMissingEvent
	}

	switch e.Event {
	case EventReady, EventMenuAction, EventPong, EventError:
		return &e, nil
	}
	return nil, fmt.Errorf("%w: event %q", ErrUnknownKind, e.Event)
}

// checkLine enforces the structural limits shared by both directions.
func checkLine(line []byte) ([]byte, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	depth, err := payloadDepth(line)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if depth > MaxPayloadDepth {
		return nil, ErrTooDeep
	}
	return line, nil
}

// payloadDepth walks the raw JSON tokens and returns the maximum nesting
// depth. Run before unmarshalling so pathologically nested payloads are
// rejected without building the full value tree.
func payloadDepth(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth, max := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return max, nil
		}
		if err != nil {
			return 0, err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > max {
					max = depth
				}
			case '}', ']':
				depth--
			}
		}
	}
}
