package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/database"
)

// DetectionsHandler serves detection ingestion and queries.
type DetectionsHandler struct {
	clusters *clustering.Service
	index    *database.HNSWIndex // optional, nil disables /detections/similar
}

// NewDetectionsHandler creates a detections handler.
func NewDetectionsHandler(clusters *clustering.Service, index *database.HNSWIndex) *DetectionsHandler {
	return &DetectionsHandler{clusters: clusters, index: index}
}

// AssignRequest is the payload the external detector posts per detection.
type AssignRequest struct {
	Embedding         []float32    `json:"embedding"`
	BBox              BBoxResponse `json:"bbox"`
	ClassName         string       `json:"class_name"`
	Confidence        float64      `json:"confidence"`
	MediaID           string       `json:"media_id"`
	ThresholdOverride *float64     `json:"threshold,omitempty"`
}

// AssignResponse reports where the detection landed.
type AssignResponse struct {
	DetectionID    string  `json:"detection_id"`
	ClusterID      string  `json:"cluster_id"`
	CreatedCluster bool    `json:"created_cluster"`
	Similarity     float64 `json:"similarity"`
	OwnerUserID    *string `json:"owner_user_id,omitempty"`
	Name           *string `json:"name,omitempty"`
}

// Create assigns a new detection to a cluster.
func (h *DetectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.MediaID == "" {
		respondError(w, http.StatusBadRequest, "media_id is required")
		return
	}

	result, err := h.clusters.AssignDetection(r.Context(), clustering.AssignInput{
		Embedding:         req.Embedding,
		BBox:              database.BoundingBox{X1: req.BBox.X1, Y1: req.BBox.Y1, X2: req.BBox.X2, Y2: req.BBox.Y2},
		ClassName:         req.ClassName,
		Confidence:        req.Confidence,
		MediaID:           req.MediaID,
		ThresholdOverride: req.ThresholdOverride,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Keep the similarity index in sync, the detection is already committed.
	if h.index != nil {
		if det, err := h.clusters.GetDetection(r.Context(), result.DetectionID); err == nil {
			if err := h.index.Add(det); err != nil {
				log.Printf("index detection %s: %v", det.ID, err)
			}
		}
	}

	respondJSON(w, http.StatusCreated, AssignResponse{
		DetectionID:    result.DetectionID,
		ClusterID:      result.ClusterID,
		CreatedCluster: result.CreatedCluster,
		Similarity:     result.Similarity,
		OwnerUserID:    result.OwnerUserID,
		Name:           result.Name,
	})
}

// Get returns one detection.
func (h *DetectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	det, err := h.clusters.GetDetection(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDetectionResponse(*det))
}

// SimilarRequest queries the in-memory similarity index.
type SimilarRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
}

// SimilarResult is one neighbor with its cosine distance.
type SimilarResult struct {
	Detection DetectionResponse `json:"detection"`
	Distance  float64           `json:"distance"`
}

// Similar finds the nearest stored detections to the query embedding.
func (h *DetectionsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		respondError(w, http.StatusServiceUnavailable, "similarity index not available")
		return
	}

	var req SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	limit := req.Limit
	if limit < 1 || limit > 100 {
		limit = 10
	}

	ids, distances, err := h.index.Search(req.Embedding, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]SimilarResult, 0, len(ids))
	for i, id := range ids {
		det := h.index.GetDetection(id)
		if det == nil {
			continue
		}
		results = append(results, SimilarResult{
			Detection: toDetectionResponse(*det),
			Distance:  distances[i],
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}
