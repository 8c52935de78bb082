package resolver

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity between two embedding vectors,
// defined as 1 minus the cosine distance. The result lies in [-1, 1]; higher
// means more similar. The function is symmetric and Cosine(v, v) is 1 within
// floating-point tolerance.
//
// Vectors of different lengths cannot be compared and yield an error. A zero
// vector has no direction; comparisons against it score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("resolver: embedding dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// round3 rounds a score to three decimal places for reporting.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
