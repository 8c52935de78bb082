package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voiceprint/internal/resolver"
	"github.com/MrWong99/voiceprint/pkg/profile"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed/mock"
	"github.com/MrWong99/voiceprint/pkg/types"
)

func profileWith(id, name string, embedding []float32) profile.Profile {
	return profile.Profile{
		Metadata: profile.Metadata{
			Name:        name,
			DisplayName: name,
			ProfileID:   id,
		},
		Embedding: embedding,
	}
}

// TestIdentify_NoProfiles verifies that identification against an empty
// profile set returns empty maps and never touches the embedding provider.
func TestIdentify_NoProfiles(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 5, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, nil)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(res.SpeakerMapping) != 0 || len(res.ConfidenceScores) != 0 {
		t.Errorf("expected empty resolution, got %+v", res)
	}
	if len(p.Calls) != 0 {
		t.Errorf("provider invoked %d times despite empty profile set", len(p.Calls))
	}
}

// TestIdentify_ResolvesAboveThreshold verifies that a speaker whose best
// probe score reaches the threshold maps to that profile's display name with
// the score rounded to three decimals.
func TestIdentify_ResolvesAboveThreshold(t *testing.T) {
	p := &mock.Provider{
		// Probe embedding is closest to Alice's profile vector.
		EmbedResult: []float32{0.9, 0.1, 0},
	}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
		"bob":   profileWith("bob", "Bob", []float32{0, 1, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 4, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	got := res.SpeakerMapping["speaker_1"]
	if got == nil || *got != "Alice" {
		t.Fatalf("speaker_1 mapping: got %v, want Alice", got)
	}
	score := res.ConfidenceScores["speaker_1"]
	if score < 0.9 || score > 1 {
		t.Errorf("speaker_1 confidence: got %v, want ~0.99", score)
	}
}

// TestIdentify_BelowThresholdStaysUnresolved verifies that a sub-threshold
// best score produces a nil mapping while still reporting the score.
func TestIdentify_BelowThresholdStaysUnresolved(t *testing.T) {
	p := &mock.Provider{
		// cos(probe, alice) = 0.6, below the 0.70 default threshold.
		EmbedResult: []float32{0.6, 0.8, 0},
	}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 4, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if got := res.SpeakerMapping["speaker_1"]; got != nil {
		t.Errorf("speaker_1 mapping: got %q, want nil", *got)
	}
	if got := res.ConfidenceScores["speaker_1"]; got != 0.6 {
		t.Errorf("speaker_1 confidence: got %v, want 0.6", got)
	}
}

// TestIdentify_ThresholdInclusive verifies that a score exactly equal to the
// threshold resolves while one just below does not.
func TestIdentify_ThresholdInclusive(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	segments := []types.Segment{
		{Start: 0, End: 4, SpeakerID: "speaker_1"},
	}

	// Identical vectors score exactly 1.0, so a threshold of 1.0 probes the
	// inclusive boundary.
	r := resolver.New(p, resolver.WithThreshold(1.0))
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got := res.SpeakerMapping["speaker_1"]; got == nil || *got != "Alice" {
		t.Errorf("score == threshold should resolve, got %v", got)
	}

	p.Reset()
	r = resolver.New(p, resolver.WithThreshold(1.0000001))
	res, err = r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got := res.SpeakerMapping["speaker_1"]; got != nil {
		t.Errorf("score < threshold should stay unresolved, got %q", *got)
	}
}

// TestIdentify_ProbeLimitPicksLongestSegments verifies that only the longest
// segments up to the probe limit are submitted for embedding extraction.
func TestIdentify_ProbeLimitPicksLongestSegments(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 2, SpeakerID: "speaker_1"},   // 2s
		{Start: 10, End: 18, SpeakerID: "speaker_1"}, // 8s
		{Start: 20, End: 25, SpeakerID: "speaker_1"}, // 5s
		{Start: 30, End: 33, SpeakerID: "speaker_1"}, // 3s
		{Start: 40, End: 46, SpeakerID: "speaker_1"}, // 6s
	}
	if _, err := r.Identify(context.Background(), "call.wav", segments, profiles); err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if len(p.Calls) != 3 {
		t.Fatalf("probe count: got %d, want 3", len(p.Calls))
	}
	wantStarts := []float64{10, 40, 20} // 8s, 6s, 5s in descending duration
	for i, call := range p.Calls {
		if call.Start != wantStarts[i] {
			t.Errorf("probe %d start: got %v, want %v", i, call.Start, wantStarts[i])
		}
	}
}

// TestIdentify_SkipsShortSegments verifies that segments below the minimum
// probe duration are not embedded, and a speaker with only short segments
// stays unresolved with confidence 0.
func TestIdentify_SkipsShortSegments(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 0.4, SpeakerID: "speaker_1"},
		{Start: 1, End: 1.9, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if len(p.Calls) != 0 {
		t.Errorf("short segments were embedded: %d calls", len(p.Calls))
	}
	if got := res.SpeakerMapping["speaker_1"]; got != nil {
		t.Errorf("speaker_1 mapping: got %q, want nil", *got)
	}
	if got := res.ConfidenceScores["speaker_1"]; got != 0 {
		t.Errorf("speaker_1 confidence: got %v, want 0", got)
	}
}

// TestIdentify_ProbeFailureIsIsolated verifies that a failing probe is
// skipped and remaining probes still drive resolution.
func TestIdentify_ProbeFailureIsIsolated(t *testing.T) {
	p := &mock.Provider{
		RangeErrs: map[float64]error{
			10: errors.New("extraction failed"),
		},
		RangeResults: map[float64][]float32{
			20: {1, 0, 0},
		},
	}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 10, End: 18, SpeakerID: "speaker_1"}, // fails
		{Start: 20, End: 25, SpeakerID: "speaker_1"}, // matches Alice
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	got := res.SpeakerMapping["speaker_1"]
	if got == nil || *got != "Alice" {
		t.Fatalf("speaker_1 mapping after probe failure: got %v, want Alice", got)
	}
}

// TestIdentify_BestScoreAcrossProbes verifies that the maximum score is
// tracked across a speaker's probes, not just the last one.
func TestIdentify_BestScoreAcrossProbes(t *testing.T) {
	p := &mock.Provider{
		RangeResults: map[float64][]float32{
			10: {1, 0, 0},       // perfect match for Alice
			20: {0.1, 0.99, 0},  // matches nobody well
		},
	}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 10, End: 18, SpeakerID: "speaker_1"},
		{Start: 20, End: 26, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if got := res.ConfidenceScores["speaker_1"]; got != 1 {
		t.Errorf("speaker_1 confidence: got %v, want 1 (best across probes)", got)
	}
}

// TestIdentify_NormalizesDiarizationLabels verifies that legacy "Speaker N"
// labels resolve under the normalized "speaker_N" key.
func TestIdentify_NormalizesDiarizationLabels(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 4, Speaker: "Speaker 2"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if _, ok := res.SpeakerMapping["speaker_2"]; !ok {
		t.Errorf("expected normalized key speaker_2, have %v", res.SpeakerMapping)
	}
}

// TestIdentify_MultipleSpeakers verifies independent resolution of several
// speakers in one pass, each matched to its closest profile.
func TestIdentify_MultipleSpeakers(t *testing.T) {
	p := &mock.Provider{
		RangeResults: map[float64][]float32{
			0:  {1, 0, 0}, // speaker_1 probe → Alice
			10: {0, 1, 0}, // speaker_2 probe → Bob
		},
	}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
		"bob":   profileWith("bob", "Bob", []float32{0, 1, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 5, SpeakerID: "speaker_1"},
		{Start: 10, End: 15, SpeakerID: "speaker_2"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if got := res.SpeakerMapping["speaker_1"]; got == nil || *got != "Alice" {
		t.Errorf("speaker_1: got %v, want Alice", got)
	}
	if got := res.SpeakerMapping["speaker_2"]; got == nil || *got != "Bob" {
		t.Errorf("speaker_2: got %v, want Bob", got)
	}
}

// TestIdentify_NegativeScoresReportZero verifies that a speaker whose only
// scores are negative reports confidence 0 rather than a negative value.
func TestIdentify_NegativeScoresReportZero(t *testing.T) {
	p := &mock.Provider{EmbedResult: []float32{-1, 0, 0}}
	profiles := map[string]profile.Profile{
		"alice": profileWith("alice", "Alice", []float32{1, 0, 0}),
	}
	r := resolver.New(p)

	segments := []types.Segment{
		{Start: 0, End: 4, SpeakerID: "speaker_1"},
	}
	res, err := r.Identify(context.Background(), "call.wav", segments, profiles)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	if got := res.SpeakerMapping["speaker_1"]; got != nil {
		t.Errorf("speaker_1 mapping: got %q, want nil", *got)
	}
	if got := res.ConfidenceScores["speaker_1"]; got != 0 {
		t.Errorf("speaker_1 confidence: got %v, want 0", got)
	}
}
