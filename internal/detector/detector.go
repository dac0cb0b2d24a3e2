// Package detector is the HTTP client for the external face detection and
// embedding service. The engine treats its embeddings as opaque fixed-length
// vectors; no model selection or image decoding happens on this side.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/facegroup/internal/database"
)

// Client talks to the detector service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a detector client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Face is one detected instance as reported by the detector.
type Face struct {
	BBox       boundingBox `json:"bbox"`
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	Embedding  []float32   `json:"embedding"`
}

type boundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Box converts the wire bounding box into the domain type.
func (f *Face) Box() database.BoundingBox {
	return database.BoundingBox{X1: f.BBox.X1, Y1: f.BBox.Y1, X2: f.BBox.X2, Y2: f.BBox.Y2}
}

type detectResponse struct {
	Message    string `json:"message"`
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
}

// DetectFaces uploads image bytes to the detector and returns the detected faces.
func (c *Client) DetectFaces(ctx context.Context, filename string, image []byte) ([]Face, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("could not write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close multipart writer: %w", err)
	}

	url := c.baseURL + "/detect-faces"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode detector response: %w", err)
	}

	return result.Faces, nil
}
