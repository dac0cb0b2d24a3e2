package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph tuning. M=16 is the usual sweet spot for 512-dim face embeddings.
const hnswMaxNeighbors = 16

// HNSWIndex wraps an in-memory HNSW graph over detection embeddings. It backs
// the similar-detections query; cluster assignment itself always goes through
// the transactional store.
type HNSWIndex struct {
	graph         *hnsw.Graph[string]
	idToDetection map[string]*Detection
	mu            sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToDetection: make(map[string]*Detection),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromDetections (re)builds the index from a slice of detections.
func (h *HNSWIndex) BuildFromDetections(detections []Detection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToDetection = make(map[string]*Detection, len(detections))
	if len(detections) == 0 {
		h.graph = nil
		return nil
	}

	g := newGraph()
	for i := range detections {
		det := &detections[i]
		if len(det.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(det.ID, det.Embedding))
		h.idToDetection[det.ID] = det
	}

	h.graph = g
	return nil
}

// Add inserts a single detection into the index.
func (h *HNSWIndex) Add(det *Detection) error {
	if len(det.Embedding) == 0 {
		return errors.New("detection has no embedding")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(det.ID, det.Embedding))
	h.idToDetection[det.ID] = det
	return nil
}

// Search finds the k nearest detections to the query embedding.
// Returns detection IDs and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	ids := make([]string, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		// Compute the exact cosine distance from the node's own embedding;
		// the graph search distance is approximate.
		if len(n.Value) > 0 {
			distances[i] = CosineDistance(query, n.Value)
		}
	}

	return ids, distances, nil
}

// GetDetection returns the indexed detection for a given ID, or nil.
func (h *HNSWIndex) GetDetection(id string) *Detection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToDetection[id]
}

// Count returns the number of indexed detections.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToDetection)
}
