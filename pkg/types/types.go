// Package types defines the shared types used across all voiceprint packages.
//
// These types form the lingua franca between the protocol layer, the speaker
// resolver, and the enrollment manager. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import "strings"

// Segment is one diarized interval of a transcript: a time range attributed
// to a local, session-scoped speaker label. Offsets are seconds from the
// start of the recording and End is always after Start in well-formed input.
type Segment struct {
	// Start is the segment's begin offset in seconds.
	Start float64 `json:"start"`

	// End is the segment's end offset in seconds.
	End float64 `json:"end"`

	// SpeakerID is the local diarization label (e.g., "speaker_1"). May be
	// empty when the upstream pipeline emitted only a human label.
	SpeakerID string `json:"speaker_id,omitempty"`

	// Speaker is a human-form label (e.g., "Speaker 1") used when SpeakerID
	// is absent. Normalized via [Segment.Label].
	Speaker string `json:"speaker,omitempty"`

	// Text is the transcript text of the segment. Unused by resolution.
	Text string `json:"text,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Label returns the local speaker label for the segment: SpeakerID when set,
// otherwise the Speaker field with "Speaker N" normalized to "speaker_N".
func (s Segment) Label() string {
	if s.SpeakerID != "" {
		return s.SpeakerID
	}
	return strings.ReplaceAll(s.Speaker, "Speaker ", "speaker_")
}

// Resolution is the outcome of one identification request: a mapping from
// local speaker label to resolved display name (nil = unresolved, keep the
// generic label upstream) and a parallel confidence table. It is returned to
// the caller and never persisted.
type Resolution struct {
	// SpeakerMapping maps each local speaker label to the enrolled display
	// name it resolved to, or nil when no profile scored at or above the
	// threshold.
	SpeakerMapping map[string]*string `json:"speaker_mapping"`

	// ConfidenceScores maps each local speaker label to the best similarity
	// score observed across its probes, rounded to three decimals. Zero when
	// no probe produced a score.
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}
