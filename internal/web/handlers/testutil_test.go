package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/config"
	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/database/mock"
	"github.com/kozaktomas/facegroup/internal/ingest"
)

// newTestRouter mounts the API handlers the same way the server does.
func newTestRouter(store *mock.Store, index *database.HNSWIndex, processor *ingest.Processor) (chi.Router, *clustering.Service) {
	svc := clustering.NewService(store, nil, 3, config.ThresholdsConfig{Default: 0.45})

	detectionsHandler := NewDetectionsHandler(svc, index)
	clustersHandler := NewClustersHandler(svc)
	mediaHandler := NewMediaHandler(store, processor)

	r := chi.NewRouter()
	r.Get("/api/v1/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detections", detectionsHandler.Create)
		r.Get("/detections/{id}", detectionsHandler.Get)
		r.Post("/detections/similar", detectionsHandler.Similar)
		r.Delete("/detections/{id}/cluster", clustersHandler.RemoveDetection)

		r.Get("/clusters", clustersHandler.List)
		r.Get("/clusters/{id}", clustersHandler.Get)
		r.Post("/clusters/{id}/label", clustersHandler.Label)
		r.Post("/clusters/{id}/detections/{detectionId}", clustersHandler.AddDetection)

		r.Post("/media", mediaHandler.Create)
		r.Get("/media/{id}", mediaHandler.Get)
		r.Post("/media/{id}/process", mediaHandler.Process)
	})
	return r, svc
}

// doRequest performs a request against the router and returns the recorder.
func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals a recorded JSON response.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// requireStatus fails the test when the response status differs.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

// assignDetection posts a detection and returns the response.
func assignDetection(t *testing.T, router chi.Router, embedding []float32, mediaID string) AssignResponse {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/v1/detections", AssignRequest{
		Embedding:  embedding,
		BBox:       BBoxResponse{X1: 1, Y1: 2, X2: 3, Y2: 4},
		ClassName:  "person",
		Confidence: 0.9,
		MediaID:    mediaID,
	})
	requireStatus(t, rec, http.StatusCreated)

	var resp AssignResponse
	decodeBody(t, rec, &resp)
	return resp
}
