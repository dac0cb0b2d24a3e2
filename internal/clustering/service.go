// Package clustering implements the identity clustering engine: similarity
// based detection assignment, the merge-on-label protocol, manual membership
// edits and cluster listing. Persistence and atomicity live behind the
// database.Store interface; this layer validates input, picks thresholds,
// retries transient transaction failures and emits notification events.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/facegroup/internal/config"
	"github.com/kozaktomas/facegroup/internal/database"
)

// DefaultThreshold is the similarity cutoff used when neither a per-class
// threshold nor an explicit override is configured.
const DefaultThreshold = 0.45

// txRetries bounds how often a serialization/deadlock failure is retried
// before the call fails with ErrUnavailable.
const txRetries = 3

// ErrInvalidEmbedding means the supplied vector is empty or does not match
// the configured embedding dimension.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// Notification is the outbound event emitted when a detection lands in an
// already-labeled cluster: an identified person has a new photo.
type Notification struct {
	DetectionID string
	ClusterID   string
	OwnerUserID string
	Name        string
}

// Notifier delivers notifications. Delivery failures must not fail the
// assignment that triggered them.
type Notifier interface {
	FaceDetected(ctx context.Context, n Notification) error
}

// AssignInput carries one detection produced by the external detector.
type AssignInput struct {
	Embedding  []float32
	BBox       database.BoundingBox
	ClassName  string
	Confidence float64
	MediaID    string
	// ThresholdOverride replaces the configured threshold for this call only.
	ThresholdOverride *float64
}

// Service is the clustering engine.
type Service struct {
	store      database.Store
	notifier   Notifier
	dim        int
	thresholds config.ThresholdsConfig
}

// NewService creates the clustering engine. dim is the embedding dimension
// enforced on input (0 disables the dimension check, the length check stays).
func NewService(store database.Store, notifier Notifier, dim int, thresholds config.ThresholdsConfig) *Service {
	if thresholds.Default == 0 {
		thresholds.Default = DefaultThreshold
	}
	return &Service{
		store:      store,
		notifier:   notifier,
		dim:        dim,
		thresholds: thresholds,
	}
}

// retryTx runs op, retrying serialization/deadlock failures a bounded number
// of times. Exhaustion surfaces as ErrUnavailable.
func retryTx(op func() error) error {
	var err error
	for attempt := 0; attempt <= txRetries; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, database.ErrSerialization) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", database.ErrUnavailable)
}

// AssignDetection stores a detection, attaching it to the most similar
// existing cluster or founding a new one. When the chosen cluster is already
// labeled, a notification event is emitted for its owner.
func (s *Service) AssignDetection(ctx context.Context, in AssignInput) (*database.AssignResult, error) {
	if len(in.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding: %w", ErrInvalidEmbedding)
	}
	if s.dim > 0 && len(in.Embedding) != s.dim {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d: %w",
			len(in.Embedding), s.dim, ErrInvalidEmbedding)
	}

	exists, err := s.store.MediaExists(ctx, in.MediaID)
	if err != nil {
		return nil, fmt.Errorf("check media: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("media %s: %w", in.MediaID, database.ErrNotFound)
	}

	className := in.ClassName
	if className == "" {
		className = "person"
	}

	threshold := s.thresholds.ForClass(className)
	if in.ThresholdOverride != nil {
		threshold = *in.ThresholdOverride
	}

	det := database.NewDetection{
		Embedding:  in.Embedding,
		BBox:       in.BBox,
		ClassName:  className,
		Confidence: in.Confidence,
		MediaID:    in.MediaID,
	}

	var result *database.AssignResult
	err = retryTx(func() error {
		var txErr error
		result, txErr = s.store.AssignDetection(ctx, det, threshold)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if result.OwnerUserID != nil && s.notifier != nil {
		n := Notification{
			DetectionID: result.DetectionID,
			ClusterID:   result.ClusterID,
			OwnerUserID: *result.OwnerUserID,
		}
		if result.Name != nil {
			n.Name = *result.Name
		}
		// Notification delivery is best-effort, the assignment already committed.
		if err := s.notifier.FaceDetected(ctx, n); err != nil {
			log.Printf("notify owner %s about detection %s: %v", n.OwnerUserID, n.DetectionID, err)
		}
	}

	return result, nil
}

// LabelCluster assigns owner/name to a cluster. When the owner already owns a
// different cluster, that cluster is merged into the target so at most one
// cluster per owner survives. Passing nil owner and name unlabels the cluster.
func (s *Service) LabelCluster(ctx context.Context, clusterID string, ownerUserID, name *string) (*database.Cluster, error) {
	var cluster *database.Cluster
	err := retryTx(func() error {
		var txErr error
		cluster, txErr = s.store.LabelCluster(ctx, clusterID, ownerUserID, name)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// AddDetectionToCluster moves a detection into a cluster. This is a pure
// membership move: the denormalized owner/name stay as previously set, the
// caller labels afterwards if that is also desired.
func (s *Service) AddDetectionToCluster(ctx context.Context, detectionID, clusterID string) error {
	return retryTx(func() error {
		return s.store.SetDetectionCluster(ctx, detectionID, &clusterID)
	})
}

// RemoveDetectionFromCluster orphans a detection. The detection itself is
// kept; deletion is not the engine's concern.
func (s *Service) RemoveDetectionFromCluster(ctx context.Context, detectionID string) error {
	return retryTx(func() error {
		return s.store.SetDetectionCluster(ctx, detectionID, nil)
	})
}

// GetDetection retrieves a detection by ID.
func (s *Service) GetDetection(ctx context.Context, id string) (*database.Detection, error) {
	return s.store.GetDetection(ctx, id)
}

// GetCluster retrieves a cluster with its members.
func (s *Service) GetCluster(ctx context.Context, id string) (*database.Cluster, error) {
	return s.store.GetCluster(ctx, id)
}

// ListClusters returns a page of clusters. Invalid page/perPage values fall
// back to page 1 with 10 items instead of erroring.
func (s *Service) ListClusters(ctx context.Context, params database.ListParams) (*database.ClusterPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = 10
	}
	if params.OrderBy == "" {
		params.OrderBy = "created_at"
	}
	return s.store.ListClusters(ctx, params)
}
