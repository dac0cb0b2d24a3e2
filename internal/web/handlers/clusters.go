package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/database"
)

// ClustersHandler serves cluster listing, labeling and membership edits.
type ClustersHandler struct {
	clusters *clustering.Service
}

// NewClustersHandler creates a clusters handler.
func NewClustersHandler(clusters *clustering.Service) *ClustersHandler {
	return &ClustersHandler{clusters: clusters}
}

// ClusterPageResponse is the listing envelope.
type ClusterPageResponse struct {
	Items []ClusterResponse `json:"items"`
	Meta  PageMetaResponse  `json:"meta"`
}

// List returns a filtered, paginated page of clusters.
// Query parameters: page, per_page, owner_user_id, already_labeled, name,
// order_by, order (asc|desc, default desc).
func (h *ClustersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := database.ListParams{
		OrderBy:   q.Get("order_by"),
		OrderDesc: true,
		Name:      q.Get("name"),
	}
	// Invalid page/per_page values fall back to defaults instead of erroring.
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	if order := strings.ToLower(q.Get("order")); order == "asc" {
		params.OrderDesc = false
	}
	if owner := q.Get("owner_user_id"); owner != "" {
		params.OwnerUserID = &owner
	}
	if v := strings.ToLower(q.Get("already_labeled")); v != "" {
		labeled := v == "true" || v == "1"
		params.AlreadyLabeled = &labeled
	}

	page, err := h.clusters.ListClusters(r.Context(), params)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := ClusterPageResponse{
		Items: make([]ClusterResponse, 0, len(page.Items)),
		Meta: PageMetaResponse{
			TotalItems:  page.Meta.TotalItems,
			CurrentPage: page.Meta.CurrentPage,
			PerPage:     page.Meta.PerPage,
			TotalPages:  page.Meta.TotalPages,
		},
	}
	for _, c := range page.Items {
		resp.Items = append(resp.Items, toClusterResponse(c))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one cluster with its members.
func (h *ClustersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cluster, err := h.clusters.GetCluster(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toClusterResponse(*cluster))
}

// LabelRequest assigns (or clears, when fields are null) owner and name.
type LabelRequest struct {
	OwnerUserID *string `json:"owner_user_id"`
	Name        *string `json:"name"`
}

// Label applies a manual identity assignment to a cluster. When the owner
// already owns another cluster, that cluster is merged into this one.
func (h *ClustersHandler) Label(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	cluster, err := h.clusters.LabelCluster(r.Context(), id, req.OwnerUserID, req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toClusterResponse(*cluster))
}

// AddDetection moves a detection into this cluster (manual correction).
func (h *ClustersHandler) AddDetection(w http.ResponseWriter, r *http.Request) {
	clusterID := chi.URLParam(r, "id")
	detectionID := chi.URLParam(r, "detectionId")

	if err := h.clusters.AddDetectionToCluster(r.Context(), detectionID, clusterID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"detection_id": detectionID,
		"cluster_id":   clusterID,
	})
}

// RemoveDetection orphans a detection (removes it from its cluster).
func (h *ClustersHandler) RemoveDetection(w http.ResponseWriter, r *http.Request) {
	detectionID := chi.URLParam(r, "id")

	if err := h.clusters.RemoveDetectionFromCluster(r.Context(), detectionID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"detection_id": detectionID,
	})
}
