package protocol_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voiceprint/internal/protocol"
)

// TestDecode_ValidRequest verifies a fully populated request round-trips
// through Decode.
func TestDecode_ValidRequest(t *testing.T) {
	input := `{
		"action": "identify",
		"audio_path": "call.wav",
		"segments": [{"start": 0, "end": 4.5, "speaker_id": "speaker_1", "text": "hello"}],
		"threshold": 0.8
	}`
	req, perr := protocol.Decode(strings.NewReader(input))
	if perr != nil {
		t.Fatalf("Decode: %v", perr)
	}
	if req.Action != protocol.ActionIdentify {
		t.Errorf("action: got %q, want identify", req.Action)
	}
	if req.AudioPath != "call.wav" {
		t.Errorf("audio_path: got %q", req.AudioPath)
	}
	if len(req.Segments) != 1 || req.Segments[0].End != 4.5 {
		t.Errorf("segments: got %+v", req.Segments)
	}
	if req.Threshold == nil || *req.Threshold != 0.8 {
		t.Errorf("threshold: got %v, want 0.8", req.Threshold)
	}
}

// TestDecode_EmptyInput verifies that empty or whitespace-only input is an
// input_error, not a JSON error.
func TestDecode_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   \n\t"} {
		_, perr := protocol.Decode(strings.NewReader(input))
		if perr == nil {
			t.Fatalf("Decode(%q): expected error", input)
		}
		if perr.Type != protocol.ErrInput {
			t.Errorf("Decode(%q): got type %q, want %q", input, perr.Type, protocol.ErrInput)
		}
	}
}

// TestDecode_MalformedJSON verifies the json_error classification.
func TestDecode_MalformedJSON(t *testing.T) {
	_, perr := protocol.Decode(strings.NewReader(`{"action": "check"`))
	if perr == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if perr.Type != protocol.ErrJSON {
		t.Errorf("got type %q, want %q", perr.Type, protocol.ErrJSON)
	}
}

// TestDecode_EmptyActionDefaultsToCheck verifies that an absent action runs
// the environment check.
func TestDecode_EmptyActionDefaultsToCheck(t *testing.T) {
	req, perr := protocol.Decode(strings.NewReader(`{}`))
	if perr != nil {
		t.Fatalf("Decode: %v", perr)
	}
	if req.Action != protocol.ActionCheck {
		t.Errorf("action: got %q, want check", req.Action)
	}
}

// TestDecode_UnknownAction verifies that actions outside the closed set are
// rejected with unknown_action.
func TestDecode_UnknownAction(t *testing.T) {
	_, perr := protocol.Decode(strings.NewReader(`{"action": "transcribe"}`))
	if perr == nil {
		t.Fatal("expected error for unknown action")
	}
	if perr.Type != protocol.ErrUnknownAction {
		t.Errorf("got type %q, want %q", perr.Type, protocol.ErrUnknownAction)
	}
	if !strings.Contains(perr.Message, "transcribe") {
		t.Errorf("message should name the rejected action, got %q", perr.Message)
	}
}

// TestError_Unwrap verifies that a wrapped cause stays reachable through
// errors.Is.
func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	perr := protocol.WrapError(protocol.ErrModel, cause, "embedding failed")

	if !errors.Is(perr, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if got := perr.Error(); got != "embedding failed: underlying" {
		t.Errorf("Error(): got %q", got)
	}
}

// TestExpandPath covers environment variable and home directory expansion.
func TestExpandPath(t *testing.T) {
	t.Setenv("VOICEPRINT_TEST_DIR", "/srv/audio")

	home, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/plain/path", "/plain/path"},
		{"$VOICEPRINT_TEST_DIR/calls", "/srv/audio/calls"},
		{"~", home},
		{"~/profiles", filepath.Join(home, "profiles")},
	}
	for _, tt := range tests {
		if got := protocol.ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestActionIsValid enumerates the closed action set.
func TestActionIsValid(t *testing.T) {
	valid := []protocol.Action{
		protocol.ActionCheck, protocol.ActionEnroll, protocol.ActionIdentify,
		protocol.ActionList, protocol.ActionDelete,
	}
	for _, a := range valid {
		if !a.IsValid() {
			t.Errorf("%q should be valid", a)
		}
	}
	for _, a := range []protocol.Action{"", "reset", "CHECK"} {
		if a.IsValid() {
			t.Errorf("%q should be invalid", a)
		}
	}
}
