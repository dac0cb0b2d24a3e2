package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/ingest"
)

// MediaHandler registers media and triggers face detection runs.
type MediaHandler struct {
	store     database.MediaStore
	processor *ingest.Processor
}

// NewMediaHandler creates a media handler. The processor may be nil when the
// server runs without a detector configured.
func NewMediaHandler(store database.MediaStore, processor *ingest.Processor) *MediaHandler {
	return &MediaHandler{store: store, processor: processor}
}

// MediaRequest registers a media item for processing.
type MediaRequest struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	IsVideo bool   `json:"is_video"`
}

// MediaResponse mirrors a stored media row.
type MediaResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	IsVideo     bool   `json:"is_video"`
	IsProcessed bool   `json:"is_processed"`
}

// Create registers a media item. The id is optional and generated when empty.
func (h *MediaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req MediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, err := uuid.Parse(req.ID); err != nil {
		respondError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	media := database.Media{
		ID:      req.ID,
		URL:     req.URL,
		IsVideo: req.IsVideo,
	}
	if err := h.store.SaveMedia(r.Context(), media); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, MediaResponse{
		ID:      media.ID,
		URL:     media.URL,
		IsVideo: media.IsVideo,
	})
}

// Get returns one media row.
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	media, err := h.store.GetMedia(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MediaResponse{
		ID:          media.ID,
		URL:         media.URL,
		IsVideo:     media.IsVideo,
		IsProcessed: media.IsProcessed,
	})
}

// Process downloads the media, runs face detection and assigns every
// detected face to a cluster.
func (h *MediaHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		respondError(w, http.StatusServiceUnavailable, "detector is not configured")
		return
	}
	id := chi.URLParam(r, "id")

	media, err := h.store.GetMedia(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	assigned, err := h.processor.ProcessMedia(r.Context(), *media)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"media_id":   media.ID,
		"detections": assigned,
	})
}
