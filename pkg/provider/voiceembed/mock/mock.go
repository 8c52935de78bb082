// Package mock provides a test double for the voiceembed.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model
// and to verify which audio regions were submitted for extraction.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
//	vec, _ := p.EmbedRange(ctx, "call.wav", 0, 5)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
)

// EmbedCall records a single invocation of Embed or EmbedRange.
type EmbedCall struct {
	// AudioPath is the audio reference passed to the call.
	AudioPath string
	// Start and End bound the requested window. Both are zero and Whole is
	// true for whole-file Embed calls.
	Start, End float64
	// Whole marks a whole-file extraction (Embed rather than EmbedRange).
	Whole bool
}

// Provider is a mock implementation of voiceembed.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed and EmbedRange unless RangeResults
	// provides a more specific vector.
	EmbedResult []float32

	// RangeResults maps a probe start offset to the vector returned for any
	// EmbedRange call with that start. Lets a single mock return different
	// embeddings per segment.
	RangeResults map[float64][]float32

	// EmbedErr, if non-nil, is returned as the error from Embed and
	// EmbedRange.
	EmbedErr error

	// RangeErrs maps a probe start offset to an error returned for any
	// EmbedRange call with that start, overriding EmbedErr and results.
	RangeErrs map[float64]error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// Calls records every Embed and EmbedRange invocation in order.
	Calls []EmbedCall
}

// Ensure Provider implements voiceembed.Provider at compile time.
var _ voiceembed.Provider = (*Provider)(nil)

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, audioPath string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, EmbedCall{AudioPath: audioPath, Whole: true})
	return p.EmbedResult, p.EmbedErr
}

// EmbedRange records the call and returns the configured vector or error for
// the window's start offset, falling back to EmbedResult, EmbedErr.
func (p *Provider) EmbedRange(ctx context.Context, audioPath string, start, end float64) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, EmbedCall{AudioPath: audioPath, Start: start, End: end})
	if err, ok := p.RangeErrs[start]; ok {
		return nil, err
	}
	if vec, ok := p.RangeResults[start]; ok {
		return vec, nil
	}
	return p.EmbedResult, p.EmbedErr
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
