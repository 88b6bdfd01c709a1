package trayproto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestCommandRoundTrip(t *testing.T) {
	commands := []*Command{
		{Action: ActionUpdateStatus, Status: StatusProtected},
		{Action: ActionUpdateStatus, Status: StatusThreat},
		{Action: ActionUpdateProgress, Percentage: 45},
		{Action: ActionUpdateProgress, Percentage: 0},
		{Action: ActionUpdateWindowVisible, Visible: boolPtr(true)},
		{Action: ActionUpdateWindowVisible, Visible: boolPtr(false)},
		{
			Action: ActionUpdateProfiles,
			Profiles: []Profile{
				{ID: "quick", Name: "Quick Scan"},
				{ID: "full", Name: "Full Scan"},
			},
			CurrentProfileID: "quick",
		},
		{Action: ActionPing},
		{Action: ActionQuit},
	}

	for _, cmd := range commands {
		line, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("EncodeCommand(%v) error = %v", cmd.Action, err)
		}
		if line[len(line)-1] != '\n' {
			t.Errorf("encoded command %v not newline-terminated", cmd.Action)
		}
		if strings.Contains(strings.TrimSuffix(string(line), "\n"), "\n") {
			t.Errorf("encoded command %v contains embedded newline", cmd.Action)
		}

		decoded, err := DecodeCommand(line)
		if err != nil {
			t.Fatalf("DecodeCommand(%v) error = %v", cmd.Action, err)
		}
		if !reflect.DeepEqual(decoded, cmd) {
			t.Errorf("round trip mismatch: got %+v, want %+v", decoded, cmd)
		}
	}
}

func TestEventRoundTrip(t *testing.T) {
	events := []*Event{
		{Event: EventReady},
		{Event: EventMenuAction, Action: MenuQuickScan},
		{Event: EventMenuAction, Action: MenuSelectProfile, ProfileID: "p1"},
		{Event: EventPong},
		{Event: EventError, Message: "indicator initialization failed"},
	}

	for _, ev := range events {
		line, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent(%v) error = %v", ev.Event, err)
		}

		decoded, err := DecodeEvent(line)
		if err != nil {
			t.Fatalf("DecodeEvent(%v) error = %v", ev.Event, err)
		}
		if !reflect.DeepEqual(decoded, ev) {
			t.Errorf("round trip mismatch: got %+v, want %+v", decoded, ev)
		}
	}
}

// paddedEventLine builds a syntactically valid event line of exactly n bytes
// (excluding the newline) by padding the error message field.
func paddedEventLine(t *testing.T, n int) []byte {
	t.Helper()
	const overhead = len(`{"event":"error","message":""}`)
	if n < overhead {
		t.Fatalf("cannot build line of %d bytes", n)
	}
	line := `{"event":"error","message":"` + strings.Repeat("x", n-overhead) + `"}`
	if len(line) != n {
		t.Fatalf("built line of %d bytes, want %d", len(line), n)
	}
	return []byte(line)
}

func TestSizeLimitBoundary(t *testing.T) {
	// Exactly at the limit: accepted.
	if _, err := DecodeEvent(paddedEventLine(t, MaxMessageSize)); err != nil {
		t.Errorf("message of exactly %d bytes rejected: %v", MaxMessageSize, err)
	}

	// One byte over: rejected with the size sentinel.
	_, err := DecodeEvent(paddedEventLine(t, MaxMessageSize+1))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized message error = %v, want ErrMessageTooLarge", err)
	}

	_, err = DecodeCommand(paddedEventLine(t, MaxMessageSize+1))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized command error = %v, want ErrMessageTooLarge", err)
	}
}

// nestedEventLine builds an event line whose total nesting depth is depth
// (the top-level object counts as level one).
func nestedEventLine(depth int) []byte {
	inner := `0`
	for i := 0; i < depth-1; i++ {
		inner = `{"a":` + inner + `}`
	}
	return []byte(`{"event":"pong","x":` + inner + `}`)
}

func TestDepthLimitBoundary(t *testing.T) {
	if _, err := DecodeEvent(nestedEventLine(MaxPayloadDepth)); err != nil {
		t.Errorf("message nested %d deep rejected: %v", MaxPayloadDepth, err)
	}

	_, err := DecodeEvent(nestedEventLine(MaxPayloadDepth + 1))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("deeply nested message error = %v, want ErrTooDeep", err)
	}
}

func TestMissingDiscriminant(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"percentage":45}`))
	if !errors.Is(err, ErrMissingAction) {
		t.Errorf("command without action error = %v, want ErrMissingAction", err)
	}

	_, err = DecodeEvent([]byte(`{"message":"hello"}`))
	if !errors.Is(err, ErrMissingEvent) {
		t.Errorf("event without event error = %v, want ErrMissingEvent", err)
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"action":"reboot_universe"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown action error = %v, want ErrUnknownKind", err)
	}

	_, err = DecodeEvent([]byte(`{"event":"solar_flare"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown event error = %v, want ErrUnknownKind", err)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := DecodeCommand([]byte("not json at all")); err == nil {
		t.Error("expected error for invalid JSON command")
	}
	if _, err := DecodeEvent([]byte("{truncated")); err == nil {
		t.Error("expected error for invalid JSON event")
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusProtected, StatusWarning, StatusScanning, StatusThreat} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	if ValidStatus(Status("invincible")) {
		t.Error(`ValidStatus("invincible") = true`)
	}
}

func TestEncodeOversizedCommand(t *testing.T) {
	cmd := &Command{
		Action:           ActionUpdateProfiles,
		CurrentProfileID: strings.Repeat("p", MaxMessageSize),
	}
	_, err := EncodeCommand(cmd)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized encode error = %v, want ErrMessageTooLarge", err)
	}
}

func TestLineReaderSkipsOversizedLine(t *testing.T) {
	big := strings.Repeat("y", MaxMessageSize+100)
	input := big + "\n" + `{"event":"ready"}` + "\n"

	lr := NewLineReader(strings.NewReader(input))

	_, err := lr.Next()
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("first line error = %v, want ErrMessageTooLarge", err)
	}

	line, err := lr.Next()
	if err != nil {
		t.Fatalf("second line error = %v", err)
	}
	if string(line) != `{"event":"ready"}` {
		t.Errorf("second line = %q", line)
	}
}

func TestLineReaderSequence(t *testing.T) {
	input := "first\nsecond\r\nthird"
	lr := NewLineReader(strings.NewReader(input))

	for i, want := range []string{"first", "second", "third"} {
		line, err := lr.Next()
		if err != nil {
			t.Fatalf("line %d error = %v", i, err)
		}
		if string(line) != want {
			t.Errorf("line %d = %q, want %q", i, line, want)
		}
	}

	if _, err := lr.Next(); err == nil {
		t.Error("expected EOF after final line")
	}
}

func TestLineReaderExactLimit(t *testing.T) {
	exact := fmt.Sprintf("%s\n", strings.Repeat("z", MaxMessageSize))
	lr := NewLineReader(strings.NewReader(exact))

	line, err := lr.Next()
	if err != nil {
		t.Fatalf("maximum-size line error = %v", err)
	}
	if len(line) != MaxMessageSize {
		t.Errorf("line length = %d, want %d", len(line), MaxMessageSize)
	}
}
