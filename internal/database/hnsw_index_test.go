package database

import "testing"

func indexDetections() []Detection {
	return []Detection{
		{ID: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "c", Embedding: []float32{0, 1, 0}},
		{ID: "d", Embedding: []float32{0, 0, 1}},
	}
}

func TestHNSWIndexSearch(t *testing.T) {
	index := NewHNSWIndex()
	if err := index.BuildFromDetections(indexDetections()); err != nil {
		t.Fatalf("BuildFromDetections() error: %v", err)
	}
	if index.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", index.Count())
	}

	ids, distances, err := index.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(ids))
	}
	if ids[0] != "a" {
		t.Errorf("nearest = %q, want %q", ids[0], "a")
	}
	if distances[0] > 1e-6 {
		t.Errorf("distance to identical vector = %f, want ~0", distances[0])
	}
	if ids[1] != "b" {
		t.Errorf("second nearest = %q, want %q", ids[1], "b")
	}
	if distances[1] <= distances[0] {
		t.Errorf("distances not increasing: %v", distances)
	}
}

func TestHNSWIndexAdd(t *testing.T) {
	index := NewHNSWIndex()

	if err := index.Add(&Detection{ID: "x"}); err == nil {
		t.Error("Add() with empty embedding should fail")
	}

	if err := index.Add(&Detection{ID: "x", Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if index.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", index.Count())
	}
	if det := index.GetDetection("x"); det == nil || det.ID != "x" {
		t.Errorf("GetDetection(x) = %v, want detection x", det)
	}
	if det := index.GetDetection("missing"); det != nil {
		t.Errorf("GetDetection(missing) = %v, want nil", det)
	}

	ids, _, err := index.Search([]float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "x" {
		t.Errorf("Search() = %v, want [x]", ids)
	}
}

func TestHNSWIndexEmpty(t *testing.T) {
	index := NewHNSWIndex()

	if _, _, err := index.Search([]float32{1, 0}, 1); err == nil {
		t.Error("Search() on empty index should fail")
	}

	if err := index.BuildFromDetections(nil); err != nil {
		t.Fatalf("BuildFromDetections(nil) error: %v", err)
	}
	if index.Count() != 0 {
		t.Errorf("Count() = %d, want 0", index.Count())
	}
}
