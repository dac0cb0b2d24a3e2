package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/database/mock"
)

func labelCluster(t *testing.T, router chi.Router, clusterID string, owner, name *string) ClusterResponse {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/v1/clusters/"+clusterID+"/label", LabelRequest{
		OwnerUserID: owner,
		Name:        name,
	})
	requireStatus(t, rec, http.StatusOK)

	var resp ClusterResponse
	decodeBody(t, rec, &resp)
	return resp
}

func TestLabelCluster(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	created := assignDetection(t, router, []float32{1, 0, 0}, "m1")

	owner, name := "u1", "Jan Novák"
	labeled := labelCluster(t, router, created.ClusterID, &owner, &name)
	if labeled.OwnerUserID == nil || *labeled.OwnerUserID != "u1" {
		t.Errorf("owner = %v, want u1", labeled.OwnerUserID)
	}
	if labeled.Name == nil || *labeled.Name != "Jan Novák" {
		t.Errorf("name = %v, want Jan Novák", labeled.Name)
	}
	if len(labeled.Detections) != 1 {
		t.Fatalf("cluster has %d detections, want 1", len(labeled.Detections))
	}
	if labeled.Detections[0].OwnerUserID == nil || *labeled.Detections[0].OwnerUserID != "u1" {
		t.Error("member detection did not inherit the owner")
	}
}

func TestLabelClusterMerge(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	c1 := assignDetection(t, router, []float32{1, 0, 0}, "m1")
	c2 := assignDetection(t, router, []float32{0, 1, 0}, "m1")

	owner, name := "u1", "Jan"
	labelCluster(t, router, c1.ClusterID, &owner, &name)
	merged := labelCluster(t, router, c2.ClusterID, &owner, &name)

	if merged.ID != c2.ClusterID {
		t.Errorf("merge target = %s, want %s", merged.ID, c2.ClusterID)
	}
	if len(merged.Detections) != 2 {
		t.Errorf("merged cluster has %d detections, want 2", len(merged.Detections))
	}

	rec := doRequest(t, router, http.MethodGet, "/api/v1/clusters/"+c1.ClusterID, nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestLabelClusterErrors(t *testing.T) {
	store := mock.NewStore()
	router, _ := newTestRouter(store, nil, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/clusters/missing/label", LabelRequest{})
	requireStatus(t, rec, http.StatusNotFound)
}

func TestListClusters(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	c1 := assignDetection(t, router, []float32{1, 0, 0}, "m1")
	assignDetection(t, router, []float32{0, 1, 0}, "m1")
	assignDetection(t, router, []float32{0, 0, 1}, "m1")

	owner, name := "u1", "Jan Novák"
	labelCluster(t, router, c1.ClusterID, &owner, &name)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/clusters", nil)
	requireStatus(t, rec, http.StatusOK)

	var page ClusterPageResponse
	decodeBody(t, rec, &page)
	if page.Meta.TotalItems != 3 || page.Meta.CurrentPage != 1 || page.Meta.PerPage != 10 {
		t.Errorf("meta = %+v", page.Meta)
	}
	if len(page.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(page.Items))
	}
	// Default order is created_at descending, so the newest cluster is first.
	if page.Items[2].ID != c1.ClusterID {
		t.Errorf("oldest cluster should come last, got %s", page.Items[2].ID)
	}

	// Pagination.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/clusters?page=2&per_page=2", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &page)
	if len(page.Items) != 1 || page.Meta.TotalPages != 2 {
		t.Errorf("page 2 of 2: items=%d meta=%+v", len(page.Items), page.Meta)
	}

	// Owner filter.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/clusters?owner_user_id=u1", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ID != c1.ClusterID {
		t.Errorf("owner filter returned %d items", len(page.Items))
	}

	// Unlabeled filter.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/clusters?already_labeled=false", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &page)
	if len(page.Items) != 2 {
		t.Errorf("unlabeled filter returned %d items, want 2", len(page.Items))
	}

	// Name filter is diacritics insensitive and ascending order works.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/clusters?name=novak&order=asc", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ID != c1.ClusterID {
		t.Errorf("name filter returned %d items", len(page.Items))
	}
}

func TestMembershipEndpoints(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	c1 := assignDetection(t, router, []float32{1, 0, 0}, "m1")
	c2 := assignDetection(t, router, []float32{0, 1, 0}, "m1")

	rec := doRequest(t, router, http.MethodPost,
		"/api/v1/clusters/"+c1.ClusterID+"/detections/"+c2.DetectionID, nil)
	requireStatus(t, rec, http.StatusOK)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/clusters/"+c1.ClusterID, nil)
	requireStatus(t, rec, http.StatusOK)
	var cluster ClusterResponse
	decodeBody(t, rec, &cluster)
	if len(cluster.Detections) != 2 {
		t.Fatalf("cluster has %d detections, want 2", len(cluster.Detections))
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/detections/"+c2.DetectionID+"/cluster", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/detections/"+c2.DetectionID, nil)
	requireStatus(t, rec, http.StatusOK)
	var det DetectionResponse
	decodeBody(t, rec, &det)
	if det.ClusterID != nil {
		t.Errorf("detection still in cluster %s", *det.ClusterID)
	}

	// Unknown targets.
	rec = doRequest(t, router, http.MethodPost,
		"/api/v1/clusters/missing/detections/"+c1.DetectionID, nil)
	requireStatus(t, rec, http.StatusNotFound)
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/detections/missing/cluster", nil)
	requireStatus(t, rec, http.StatusNotFound)
}
