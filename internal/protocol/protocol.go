// Package protocol defines the JSON request/response contract of the
// voiceprint binary.
//
// One process handles one request: a single JSON object read from stdin,
// answered by a single JSON object on stdout, with a non-zero exit status on
// failure. The action set is closed; anything outside it fails with
// [ErrUnknownAction] rather than silently doing nothing.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/voiceprint/pkg/types"
)

// Action selects the operation a request performs.
type Action string

const (
	// ActionCheck verifies the environment: embedding backend reachability
	// and credential presence.
	ActionCheck Action = "check"

	// ActionEnroll creates a voice profile from an audio sample.
	ActionEnroll Action = "enroll"

	// ActionIdentify matches diarized speakers against enrolled profiles.
	ActionIdentify Action = "identify"

	// ActionList enumerates enrolled profiles.
	ActionList Action = "list"

	// ActionDelete removes a profile.
	ActionDelete Action = "delete"
)

// IsValid reports whether a is a recognised action.
func (a Action) IsValid() bool {
	switch a {
	case ActionCheck, ActionEnroll, ActionIdentify, ActionList, ActionDelete:
		return true
	}
	return false
}

// ErrorType classifies a request failure. The values are part of the wire
// contract and mirror what callers branch on.
type ErrorType string

const (
	ErrValidation          ErrorType = "validation_error"
	ErrFileNotFound        ErrorType = "file_not_found"
	ErrProfileExists       ErrorType = "profile_exists"
	ErrProfileNotFound     ErrorType = "profile_not_found"
	ErrMissingDependencies ErrorType = "missing_dependencies"
	ErrModel               ErrorType = "model_error"
	ErrEnrollment          ErrorType = "enrollment_error"
	ErrDelete              ErrorType = "delete_error"
	ErrUnknownAction       ErrorType = "unknown_action"
	ErrJSON                ErrorType = "json_error"
	ErrInput               ErrorType = "input_error"
	ErrUnexpected          ErrorType = "unexpected_error"
)

// Error is a classified, request-fatal failure. It carries the taxonomy type
// reported on the wire and optionally wraps the underlying cause.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds an [Error] with a formatted message.
func NewError(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an [Error] around a cause.
func WrapError(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// Request is the single JSON object read from stdin.
type Request struct {
	// Action selects the operation. Empty defaults to [ActionCheck].
	Action Action `json:"action"`

	// Name is the identity name for enroll and delete.
	Name string `json:"name,omitempty"`

	// AudioPath references the recording for enroll and identify. Supports
	// ~ and environment variable expansion.
	AudioPath string `json:"audio_path,omitempty"`

	// Segments are the diarized transcript intervals for identify.
	Segments []types.Segment `json:"segments,omitempty"`

	// ProfilesDir overrides the profile store location. Supports ~ and
	// environment variable expansion. Empty means [DefaultProfilesDir].
	ProfilesDir string `json:"profiles_dir,omitempty"`

	// Threshold overrides the similarity acceptance threshold for identify.
	// Nil means the default (0.70).
	Threshold *float64 `json:"threshold,omitempty"`

	// HuggingFaceToken authenticates against the embedding backend. Falls
	// back to the configured token, then the HUGGINGFACE_TOKEN environment
	// variable.
	HuggingFaceToken string `json:"huggingface_token,omitempty"`
}

// Decode reads one JSON request from r. Empty input yields [ErrInput],
// malformed JSON yields [ErrJSON], and an unrecognised action yields
// [ErrUnknownAction]. An absent action defaults to check.
func Decode(r io.Reader) (Request, *Error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Request{}, WrapError(ErrInput, err, "failed to read input")
	}
	if strings.TrimSpace(string(data)) == "" {
		return Request{}, NewError(ErrInput, "no input data provided")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, WrapError(ErrJSON, err, "invalid JSON input")
	}

	if req.Action == "" {
		req.Action = ActionCheck
	}
	if !req.Action.IsValid() {
		return Request{}, NewError(ErrUnknownAction, "unknown action: %s", req.Action)
	}
	return req, nil
}

// ErrorResponse is the failure payload written for any classified error.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"error_type"`
}

// CheckResponse reports the environment status.
type CheckResponse struct {
	Success     bool   `json:"success"`
	ServerURL   string `json:"server_url"`
	Model       string `json:"model"`
	TokenStatus string `json:"huggingface_token_status"`
}

// EnrollResponse reports a completed enrollment.
type EnrollResponse struct {
	Success               bool     `json:"success"`
	ProfileID             string   `json:"profile_id"`
	Name                  string   `json:"name"`
	ProfilePath           string   `json:"profile_path,omitempty"`
	SampleDurationSeconds *float64 `json:"sample_duration_seconds"`
}

// IdentifyResponse reports a completed identification.
type IdentifyResponse struct {
	Success          bool               `json:"success"`
	SpeakerMapping   map[string]*string `json:"speaker_mapping"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Message          string             `json:"message,omitempty"`
}

// ProfileEntry is one element of a list response.
type ProfileEntry struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	DisplayName           string   `json:"display_name"`
	CreatedAt             string   `json:"created_at"`
	SampleDurationSeconds *float64 `json:"sample_duration_seconds"`
}

// ListResponse enumerates enrolled profiles.
type ListResponse struct {
	Success  bool           `json:"success"`
	Profiles []ProfileEntry `json:"profiles"`
	Count    int            `json:"count"`
}

// DeleteResponse reports a completed profile deletion.
type DeleteResponse struct {
	Success     bool   `json:"success"`
	Deleted     string `json:"deleted"`
	ProfilePath string `json:"profile_path,omitempty"`
}

// WriteJSON encodes v to w as a single JSON object followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// DefaultProfilesDir returns the per-user default profile store location,
// ~/.voiceprint/profiles.
func DefaultProfilesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".voiceprint", "profiles")
	}
	return filepath.Join(home, ".voiceprint", "profiles")
}

// ExpandPath expands a leading ~ and any environment variable references in
// path, mirroring shell conventions for paths supplied over the protocol.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
