// Package ingest runs registered media through the external detector and
// feeds every detected face into the clustering engine.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/detector"
)

// maxImageBytes caps how much of a media file is downloaded.
const maxImageBytes = 64 << 20

// Processor wires media download, face detection and cluster assignment.
type Processor struct {
	store      database.Store
	detector   *detector.Client
	clusters   *clustering.Service
	httpClient *http.Client
}

// NewProcessor creates a media processor.
func NewProcessor(store database.Store, det *detector.Client, clusters *clustering.Service) *Processor {
	return &Processor{
		store:    store,
		detector: det,
		clusters: clusters,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ProcessMedia downloads one media item, detects faces and assigns each one
// to a cluster. Returns the number of detections stored. Videos are skipped
// and marked processed so the backlog doesn't pick them up again.
func (p *Processor) ProcessMedia(ctx context.Context, media database.Media) (int, error) {
	if media.IsVideo {
		if err := p.store.MarkMediaProcessed(ctx, media.ID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	image, err := p.fetchImage(ctx, media.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch media %s: %w", media.ID, err)
	}

	faces, err := p.detector.DetectFaces(ctx, path.Base(media.URL), image)
	if err != nil {
		return 0, fmt.Errorf("detect faces for media %s: %w", media.ID, err)
	}

	assigned := 0
	for _, face := range faces {
		if len(face.Embedding) == 0 {
			// The detector occasionally reports a face it could not embed.
			log.Printf("media %s: skipping face with empty embedding", media.ID)
			continue
		}

		_, err := p.clusters.AssignDetection(ctx, clustering.AssignInput{
			Embedding:  face.Embedding,
			BBox:       face.Box(),
			ClassName:  face.ClassName,
			Confidence: face.Confidence,
			MediaID:    media.ID,
		})
		if err != nil {
			return assigned, fmt.Errorf("assign detection for media %s: %w", media.ID, err)
		}
		assigned++
	}

	if err := p.store.MarkMediaProcessed(ctx, media.ID); err != nil {
		return assigned, err
	}
	return assigned, nil
}

// ProcessBacklog processes all unprocessed media. The progress callback (may
// be nil) is invoked after each item.
func (p *Processor) ProcessBacklog(ctx context.Context, progress func(done, total int)) (int, error) {
	backlog, err := p.store.ListUnprocessedMedia(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed media: %w", err)
	}

	total := 0
	for i, media := range backlog {
		n, err := p.ProcessMedia(ctx, media)
		total += n
		if err != nil {
			// Keep draining the backlog, one broken media item must not
			// block the rest.
			log.Printf("process media %s: %v", media.ID, err)
		}
		if progress != nil {
			progress(i+1, len(backlog))
		}
	}
	return total, nil
}

func (p *Processor) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read image body: %w", err)
	}
	return data, nil
}
