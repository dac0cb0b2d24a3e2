package database

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"identical scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 2},
		{"empty", nil, nil, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineDistance() = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{3, 2, 1}

	sim := CosineSimilarity(a, b)
	dist := CosineDistance(a, b)
	if math.Abs(sim+dist-1) > 1e-9 {
		t.Errorf("similarity %f and distance %f do not sum to 1", sim, dist)
	}

	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity(a, a) = %f, want 1", got)
	}
	if got := CosineSimilarity(nil, nil); math.Abs(got+1) > 1e-9 {
		t.Errorf("CosineSimilarity(nil, nil) = %f, want -1", got)
	}
}
