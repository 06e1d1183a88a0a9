// Package embeddings provides helpers for embedding vectors: dimension checks and L2 normalization.
package embeddings

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a vector does not have the expected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNonFinite is returned when a vector contains NaN or Inf.
	ErrNonFinite = errors.New("embedding contains non-finite values")
)

// CheckDimensions verifies vector has exactly want elements, all finite.
func CheckDimensions(vector []float32, want int) error {
	if len(vector) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), want)
	}

	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d", ErrNonFinite, i)
		}
	}

	return nil
}

// NormalizeL2 scales vector in place to unit length. The zero vector is left unchanged.
func NormalizeL2(vector []float32) {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
