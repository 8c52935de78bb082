package resolver_test

import (
	"math"
	"testing"

	"github.com/MrWong99/voiceprint/internal/resolver"
)

// TestCosine_SelfSimilarity verifies that every vector is maximally similar
// to itself within floating-point tolerance.
func TestCosine_SelfSimilarity(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.3, -0.7, 2.5, 0.01},
		{-1, -1, -1},
	}
	for _, v := range vectors {
		got, err := resolver.Cosine(v, v)
		if err != nil {
			t.Fatalf("Cosine(%v, %v): %v", v, v, err)
		}
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("Cosine(v, v): got %v, want 1", got)
		}
	}
}

// TestCosine_Symmetry verifies Cosine(a, b) == Cosine(b, a).
func TestCosine_Symmetry(t *testing.T) {
	a := []float32{0.2, 0.8, -0.4}
	b := []float32{-0.5, 0.1, 0.9}

	ab, err := resolver.Cosine(a, b)
	if err != nil {
		t.Fatalf("Cosine(a, b): %v", err)
	}
	ba, err := resolver.Cosine(b, a)
	if err != nil {
		t.Fatalf("Cosine(b, a): %v", err)
	}
	if ab != ba {
		t.Errorf("asymmetric: Cosine(a,b)=%v, Cosine(b,a)=%v", ab, ba)
	}
}

// TestCosine_KnownValues checks orthogonal and opposite vectors.
func TestCosine_KnownValues(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{2, 0}, []float32{5, 0}, 1},
	}
	for _, tt := range tests {
		got, err := resolver.Cosine(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Cosine(%v, %v): %v", tt.a, tt.b, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v): got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// TestCosine_DimensionMismatch verifies that vectors of different lengths
// cannot be compared.
func TestCosine_DimensionMismatch(t *testing.T) {
	if _, err := resolver.Cosine([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}

// TestCosine_ZeroVector verifies that a zero vector scores 0 without error.
func TestCosine_ZeroVector(t *testing.T) {
	got, err := resolver.Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if got != 0 {
		t.Errorf("Cosine(zero, v): got %v, want 0", got)
	}
}
