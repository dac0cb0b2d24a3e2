package database

import (
	"context"
)

// ClusterReader provides read-only access to identity clusters.
type ClusterReader interface {
	// GetCluster retrieves a cluster with its member detections.
	// Returns ErrNotFound if the cluster does not exist.
	GetCluster(ctx context.Context, id string) (*Cluster, error)
	// ListClusters returns a filtered, ordered page of clusters with members.
	ListClusters(ctx context.Context, params ListParams) (*ClusterPage, error)
	// CountClusters returns the total number of clusters.
	CountClusters(ctx context.Context) (int, error)
}

// ClusterWriter provides the transactional cluster mutations. Both methods
// are single atomic transactions; a failure leaves the store untouched.
type ClusterWriter interface {
	ClusterReader

	// AssignDetection stores a new detection, attaching it to the most similar
	// existing cluster when that cluster's max member similarity reaches the
	// threshold (inclusive), or founding a new cluster carrying the threshold
	// otherwise. Ties break toward the earliest-created cluster.
	AssignDetection(ctx context.Context, det NewDetection, threshold float64) (*AssignResult, error)

	// LabelCluster assigns owner/name to a cluster and keeps the denormalized
	// copies on its detections in sync. If the owner already owns a different
	// cluster, that cluster is absorbed into the target: its detections are
	// re-pointed and it is deleted, so at most one cluster per owner survives.
	// Passing nil owner unlabels the cluster without a merge search.
	LabelCluster(ctx context.Context, clusterID string, ownerUserID, name *string) (*Cluster, error)
}

// DetectionReader provides read-only access to detections.
type DetectionReader interface {
	// GetDetection retrieves a detection by ID. Returns ErrNotFound if absent.
	GetDetection(ctx context.Context, id string) (*Detection, error)
	// AllDetections returns every stored detection, used to build the
	// in-memory similarity index on startup.
	AllDetections(ctx context.Context) ([]Detection, error)
	// CountDetections returns the total number of detections.
	CountDetections(ctx context.Context) (int, error)
}

// DetectionWriter provides manual membership edits.
type DetectionWriter interface {
	DetectionReader

	// SetDetectionCluster moves a detection into the given cluster, or orphans
	// it when clusterID is nil. Denormalized owner/name fields are left as-is;
	// this is a pure membership move. Returns ErrNotFound when the detection
	// (or a non-nil target cluster) does not exist.
	SetDetectionCluster(ctx context.Context, detectionID string, clusterID *string) error
}

// MediaStore manages the registry of media items detections reference.
type MediaStore interface {
	SaveMedia(ctx context.Context, media Media) error
	// GetMedia returns ErrNotFound if the media item does not exist.
	GetMedia(ctx context.Context, id string) (*Media, error)
	MediaExists(ctx context.Context, id string) (bool, error)
	// ListUnprocessedMedia returns non-video media not yet run through the detector.
	ListUnprocessedMedia(ctx context.Context) ([]Media, error)
	MarkMediaProcessed(ctx context.Context, id string) error
}

// Store is the full persistence capability the clustering engine depends on.
type Store interface {
	ClusterWriter
	DetectionWriter
	MediaStore
}
