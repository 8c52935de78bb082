// Package voiceembed defines the Provider interface for speaker embedding
// backends.
//
// A voice embedding provider wraps a model that maps a region of an audio
// recording to a dense float32 vector summarizing the speaker's voice
// characteristics (e.g., pyannote/embedding). These vectors are compared by
// cosine similarity during enrollment and speaker resolution.
//
// Providers are expensive to initialize and cheap to reuse: construct one per
// invocation and share it across every embedding extraction in that request.
//
// Implementations must be safe for concurrent use.
package voiceembed

import "context"

// Provider is the abstraction over any speaker embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different providers,
// or from different model versions of the same provider, must not be mixed in
// one similarity computation without verifying compatibility.
type Provider interface {
	// Embed computes the embedding vector for the entire audio file at
	// audioPath. Returns a float32 slice of length Dimensions() or an error
	// if extraction fails or ctx is cancelled.
	Embed(ctx context.Context, audioPath string) ([]float32, error)

	// EmbedRange computes the embedding vector for the time window
	// [start, end] of the audio file at audioPath, both offsets in seconds
	// from the beginning of the recording.
	EmbedRange(ctx context.Context, audioPath string, start, end float64) ([]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the model identifier and version that produces the
	// vectors (e.g., "pyannote/embedding@3.1"). Recorded on every enrolled
	// profile as its embedding version.
	ModelID() string
}
