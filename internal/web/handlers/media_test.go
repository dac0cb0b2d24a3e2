package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/config"
	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/database/mock"
	"github.com/kozaktomas/facegroup/internal/detector"
	"github.com/kozaktomas/facegroup/internal/ingest"
)

func TestCreateMedia(t *testing.T) {
	store := mock.NewStore()
	router, _ := newTestRouter(store, nil, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/media", MediaRequest{
		URL: "https://cdn.example.com/1.jpg",
	})
	requireStatus(t, rec, http.StatusCreated)

	var resp MediaResponse
	decodeBody(t, rec, &resp)
	if resp.ID == "" {
		t.Error("id should be generated when omitted")
	}
	if resp.URL != "https://cdn.example.com/1.jpg" {
		t.Errorf("url = %q", resp.URL)
	}

	// Explicit id is kept.
	id := "11111111-1111-1111-1111-111111111111"
	rec = doRequest(t, router, http.MethodPost, "/api/v1/media", MediaRequest{
		ID: id, URL: "https://cdn.example.com/2.jpg", IsVideo: true,
	})
	requireStatus(t, rec, http.StatusCreated)
	decodeBody(t, rec, &resp)
	if resp.ID != id || !resp.IsVideo {
		t.Errorf("resp = %+v", resp)
	}

	// Missing URL fails.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/media", MediaRequest{ID: id})
	requireStatus(t, rec, http.StatusBadRequest)

	// Malformed id fails.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/media", MediaRequest{
		ID: "not-a-uuid", URL: "https://cdn.example.com/3.jpg",
	})
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestGetMedia(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/media/m1", nil)
	requireStatus(t, rec, http.StatusOK)

	var resp MediaResponse
	decodeBody(t, rec, &resp)
	if resp.ID != "m1" || resp.IsProcessed {
		t.Errorf("resp = %+v", resp)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/media/missing", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestProcessMediaEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake image bytes"))
	})
	mux.HandleFunc("/detect-faces", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message":     "ok",
			"faces_count": 1,
			"faces": []map[string]any{
				{
					"bbox":       map[string]float64{"x1": 1, "y1": 2, "x2": 3, "y2": 4},
					"class_name": "person",
					"confidence": 0.9,
					"embedding":  []float32{1, 0, 0},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: server.URL + "/image.jpg"})

	svc := clustering.NewService(store, nil, 3, config.ThresholdsConfig{Default: 0.45})
	processor := ingest.NewProcessor(store, detector.NewClient(server.URL), svc)
	router, _ := newTestRouter(store, nil, processor)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/media/m1/process", nil)
	requireStatus(t, rec, http.StatusOK)

	var resp struct {
		MediaID    string `json:"media_id"`
		Detections int    `json:"detections"`
	}
	decodeBody(t, rec, &resp)
	if resp.MediaID != "m1" || resp.Detections != 1 {
		t.Errorf("resp = %+v", resp)
	}

	media, err := store.GetMedia(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMedia() error: %v", err)
	}
	if !media.IsProcessed {
		t.Error("media should be marked processed")
	}
}

func TestProcessMediaWithoutDetector(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{ID: "m1", URL: "https://cdn.example.com/1.jpg"})
	router, _ := newTestRouter(store, nil, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/media/m1/process", nil)
	requireStatus(t, rec, http.StatusServiceUnavailable)
}
