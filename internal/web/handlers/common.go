package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps domain errors onto HTTP status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, clustering.ErrInvalidEmbedding):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// BBoxResponse is the bounding box wire format.
type BBoxResponse struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectionResponse is a detection as returned by the API.
type DetectionResponse struct {
	ID          string       `json:"id"`
	BBox        BBoxResponse `json:"bbox"`
	ClassName   string       `json:"class_name"`
	Confidence  float64      `json:"confidence"`
	MediaID     string       `json:"media_id"`
	ClusterID   *string      `json:"cluster_id"`
	OwnerUserID *string      `json:"owner_user_id"`
	Name        *string      `json:"name"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ClusterResponse is a cluster with its members as returned by the API.
type ClusterResponse struct {
	ID          string              `json:"id"`
	Threshold   float64             `json:"threshold"`
	OwnerUserID *string             `json:"owner_user_id"`
	Name        *string             `json:"name"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Detections  []DetectionResponse `json:"detections"`
}

// PageMetaResponse is the pagination envelope metadata.
type PageMetaResponse struct {
	TotalItems  int `json:"totalItems"`
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
	TotalPages  int `json:"totalPages"`
}

func toDetectionResponse(d database.Detection) DetectionResponse {
	return DetectionResponse{
		ID:          d.ID,
		BBox:        BBoxResponse{X1: d.BBox.X1, Y1: d.BBox.Y1, X2: d.BBox.X2, Y2: d.BBox.Y2},
		ClassName:   d.ClassName,
		Confidence:  d.Confidence,
		MediaID:     d.MediaID,
		ClusterID:   d.ClusterID,
		OwnerUserID: d.OwnerUserID,
		Name:        d.Name,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toClusterResponse(c database.Cluster) ClusterResponse {
	resp := ClusterResponse{
		ID:          c.ID,
		Threshold:   c.Threshold,
		OwnerUserID: c.OwnerUserID,
		Name:        c.Name,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Detections:  make([]DetectionResponse, 0, len(c.Detections)),
	}
	for _, d := range c.Detections {
		resp.Detections = append(resp.Detections, toDetectionResponse(d))
	}
	return resp
}
