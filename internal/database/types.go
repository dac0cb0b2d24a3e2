package database

import (
	"time"
)

// BoundingBox holds detection coordinates in source-image pixel space.
type BoundingBox struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Detection represents one detected instance (face or object) in one media item.
type Detection struct {
	ID          string
	Embedding   []float32
	BBox        BoundingBox
	ClassName   string
	Confidence  float64
	MediaID     string
	ClusterID   *string // nil when the detection is orphaned
	OwnerUserID *string // denormalized copy of the cluster's owner
	Name        *string // denormalized copy of the cluster's display name
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cluster is a set of detections hypothesized to share one identity.
// Threshold is the similarity cutoff that was in force when the cluster
// was founded, persisted per-cluster so later tuning doesn't invalidate
// old clusters.
type Cluster struct {
	ID          string
	Threshold   float64
	OwnerUserID *string
	Name        *string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Member detections, populated by listing/get queries.
	Detections []Detection
}

// Labeled reports whether the cluster has been assigned to a user.
func (c *Cluster) Labeled() bool {
	return c.OwnerUserID != nil
}

// NewDetection carries the fields of a detection before it is stored.
type NewDetection struct {
	Embedding  []float32
	BBox       BoundingBox
	ClassName  string
	Confidence float64
	MediaID    string
}

// AssignResult is the outcome of assigning a detection to a cluster.
type AssignResult struct {
	DetectionID string
	ClusterID   string
	// Owner/name of the chosen cluster at assignment time. A non-nil owner
	// means the detection landed in an already-labeled cluster.
	OwnerUserID *string
	Name        *string
	// CreatedCluster is true when no existing cluster qualified and a new
	// one was founded for this detection.
	CreatedCluster bool
	// Similarity to the best candidate cluster. Zero when no candidate existed.
	Similarity float64
}

// Media represents a registered media item that detections reference.
type Media struct {
	ID          string
	URL         string
	IsVideo     bool
	IsProcessed bool
	CreatedAt   time.Time
}

// ListParams control cluster listing filters and pagination.
type ListParams struct {
	Page    int
	PerPage int
	// OwnerUserID restricts to one owner. When nil, AlreadyLabeled (if set)
	// restricts to labeled (true) or unlabeled (false) clusters.
	OwnerUserID    *string
	AlreadyLabeled *bool
	// Name filters by display name (diacritics-insensitive).
	Name      string
	OrderBy   string
	OrderDesc bool
}

// PageMeta describes one page of results.
type PageMeta struct {
	TotalItems  int
	CurrentPage int
	PerPage     int
	TotalPages  int
}

// ClusterPage is one page of clusters with pagination metadata.
type ClusterPage struct {
	Items []Cluster
	Meta  PageMeta
}
