package types_test

import (
	"testing"

	"github.com/MrWong99/voiceprint/pkg/types"
)

// TestSegment_Label verifies label precedence and normalization of legacy
// "Speaker N" diarization labels.
func TestSegment_Label(t *testing.T) {
	tests := []struct {
		name string
		seg  types.Segment
		want string
	}{
		{"speaker id wins", types.Segment{SpeakerID: "speaker_1", Speaker: "Speaker 2"}, "speaker_1"},
		{"legacy label normalized", types.Segment{Speaker: "Speaker 3"}, "speaker_3"},
		{"custom speaker kept", types.Segment{Speaker: "alice"}, "alice"},
		{"unlabeled", types.Segment{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.seg.Label(); got != tt.want {
				t.Errorf("Label(): got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSegment_Duration verifies the interval length.
func TestSegment_Duration(t *testing.T) {
	seg := types.Segment{Start: 2.5, End: 7}
	if got := seg.Duration(); got != 4.5 {
		t.Errorf("Duration(): got %v, want 4.5", got)
	}
}
