// Package mock provides an in-memory implementation of the database.Store
// interface for testing. It mirrors the transactional semantics of the
// PostgreSQL store: assignment, labeling with merge, membership edits and
// listing all behave as one atomic step under a single mutex.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facegroup/internal/database"
)

// Store is an in-memory database.Store.
type Store struct {
	mu sync.Mutex

	clusters   []*database.Cluster // insertion order = creation order
	detections map[string]*database.Detection
	media      map[string]*database.Media

	clock int64 // monotonic tick so created_at ordering is stable in tests

	// Error injection. When a *Failures counter is positive the matching
	// error is returned and the counter decremented, so retry paths can be
	// exercised. A zero counter with a non-nil error fails every call.
	AssignError    error
	AssignFailures int
	LabelError     error
	LabelFailures  int
	ListError      error
	GetError       error
	SetError       error
	MediaError     error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		detections: make(map[string]*database.Detection),
		media:      make(map[string]*database.Media),
	}
}

// tick returns a strictly increasing timestamp.
func (s *Store) tick() time.Time {
	s.clock++
	return time.Unix(0, s.clock*int64(time.Millisecond)).UTC()
}

func takeErr(err *error, failures *int) error {
	if *err == nil {
		return nil
	}
	if *failures > 0 {
		*failures--
		e := *err
		if *failures == 0 {
			*err = nil
		}
		return e
	}
	return *err
}

// AddMedia registers a media row directly, bypassing SaveMedia error injection.
func (s *Store) AddMedia(m database.Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.tick()
	}
	s.media[m.ID] = &m
}

func (s *Store) findCluster(id string) *database.Cluster {
	for _, c := range s.clusters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) membersOf(clusterID string) []database.Detection {
	var members []database.Detection
	for _, d := range s.detections {
		if d.ClusterID != nil && *d.ClusterID == clusterID {
			members = append(members, *d)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members
}

func (s *Store) projectCluster(c *database.Cluster) *database.Cluster {
	out := *c
	out.Detections = s.membersOf(c.ID)
	return &out
}

// AssignDetection implements the clustering decision and insert atomically.
func (s *Store) AssignDetection(
	ctx context.Context, det database.NewDetection, threshold float64,
) (*database.AssignResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := takeErr(&s.AssignError, &s.AssignFailures); err != nil {
		return nil, err
	}
	if _, ok := s.media[det.MediaID]; !ok {
		return nil, fmt.Errorf("media %s: %w", det.MediaID, database.ErrNotFound)
	}

	// Best cluster by max member similarity. Iterating in creation order and
	// requiring a strict improvement keeps ties on the earliest-created cluster.
	var best *database.Cluster
	bestSim := 0.0
	found := false
	for _, c := range s.clusters {
		members := s.membersOf(c.ID)
		if len(members) == 0 {
			continue // similarity undefined, excluded from candidacy
		}
		sim := -2.0
		for _, m := range members {
			if v := database.CosineSimilarity(det.Embedding, m.Embedding); v > sim {
				sim = v
			}
		}
		if !found || sim > bestSim {
			best, bestSim, found = c, sim, true
		}
	}

	var chosen *database.Cluster
	created := false
	if found && bestSim >= threshold {
		chosen = best
	} else {
		chosen = &database.Cluster{
			ID:        uuid.NewString(),
			Threshold: threshold,
			CreatedAt: s.tick(),
		}
		chosen.UpdatedAt = chosen.CreatedAt
		s.clusters = append(s.clusters, chosen)
		created = true
	}

	now := s.tick()
	d := &database.Detection{
		ID:          uuid.NewString(),
		Embedding:   append([]float32(nil), det.Embedding...),
		BBox:        det.BBox,
		ClassName:   det.ClassName,
		Confidence:  det.Confidence,
		MediaID:     det.MediaID,
		ClusterID:   &chosen.ID,
		OwnerUserID: chosen.OwnerUserID,
		Name:        chosen.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.detections[d.ID] = d

	res := &database.AssignResult{
		DetectionID:    d.ID,
		ClusterID:      chosen.ID,
		OwnerUserID:    chosen.OwnerUserID,
		Name:           chosen.Name,
		CreatedCluster: created,
	}
	if found {
		res.Similarity = bestSim
	}
	return res, nil
}

// LabelCluster implements the merge-on-label protocol.
func (s *Store) LabelCluster(
	ctx context.Context, clusterID string, ownerUserID, name *string,
) (*database.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := takeErr(&s.LabelError, &s.LabelFailures); err != nil {
		return nil, err
	}

	target := s.findCluster(clusterID)
	if target == nil {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}

	if ownerUserID != nil {
		// Absorb any other cluster already owned by this user.
		remaining := s.clusters[:0]
		for _, c := range s.clusters {
			if c.ID != clusterID && c.OwnerUserID != nil && *c.OwnerUserID == *ownerUserID {
				for _, d := range s.detections {
					if d.ClusterID != nil && *d.ClusterID == c.ID {
						d.ClusterID = &target.ID
						d.OwnerUserID = ownerUserID
						d.Name = name
						d.UpdatedAt = s.tick()
					}
				}
				continue // losing cluster deleted
			}
			remaining = append(remaining, c)
		}
		s.clusters = remaining
	}

	for _, d := range s.detections {
		if d.ClusterID != nil && *d.ClusterID == target.ID {
			d.OwnerUserID = ownerUserID
			d.Name = name
			d.UpdatedAt = s.tick()
		}
	}

	target.OwnerUserID = ownerUserID
	target.Name = name
	target.UpdatedAt = s.tick()

	return s.projectCluster(target), nil
}

// GetCluster retrieves a cluster with members.
func (s *Store) GetCluster(ctx context.Context, id string) (*database.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.GetError != nil {
		return nil, s.GetError
	}
	c := s.findCluster(id)
	if c == nil {
		return nil, fmt.Errorf("cluster %s: %w", id, database.ErrNotFound)
	}
	return s.projectCluster(c), nil
}

// CountClusters returns the number of clusters.
func (s *Store) CountClusters(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusters), nil
}

// ListClusters returns a filtered, ordered page of clusters.
func (s *Store) ListClusters(
	ctx context.Context, params database.ListParams,
) (*database.ClusterPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListError != nil {
		return nil, s.ListError
	}

	var filtered []*database.Cluster
	for _, c := range s.clusters {
		switch {
		case params.OwnerUserID != nil:
			if c.OwnerUserID == nil || *c.OwnerUserID != *params.OwnerUserID {
				continue
			}
		case params.AlreadyLabeled != nil:
			if *params.AlreadyLabeled != (c.OwnerUserID != nil) {
				continue
			}
		}
		if params.Name != "" {
			if c.Name == nil || !strings.Contains(
				database.NormalizeName(*c.Name), database.NormalizeName(params.Name),
			) {
				continue
			}
		}
		filtered = append(filtered, c)
	}

	less := func(a, b *database.Cluster) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch params.OrderBy {
	case "updated_at":
		less = func(a, b *database.Cluster) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "name":
		less = func(a, b *database.Cluster) bool { return strPtr(a.Name) < strPtr(b.Name) }
	case "owner_user_id":
		less = func(a, b *database.Cluster) bool { return strPtr(a.OwnerUserID) < strPtr(b.OwnerUserID) }
	case "threshold":
		less = func(a, b *database.Cluster) bool { return a.Threshold < b.Threshold }
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if params.OrderDesc {
			return less(filtered[j], filtered[i])
		}
		return less(filtered[i], filtered[j])
	})

	total := len(filtered)
	page, perPage := params.Page, params.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	items := make([]database.Cluster, 0, end-start)
	for _, c := range filtered[start:end] {
		items = append(items, *s.projectCluster(c))
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}

	return &database.ClusterPage{
		Items: items,
		Meta: database.PageMeta{
			TotalItems:  total,
			CurrentPage: page,
			PerPage:     perPage,
			TotalPages:  totalPages,
		},
	}, nil
}

// GetDetection retrieves a detection by ID.
func (s *Store) GetDetection(ctx context.Context, id string) (*database.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.GetError != nil {
		return nil, s.GetError
	}
	d, ok := s.detections[id]
	if !ok {
		return nil, fmt.Errorf("detection %s: %w", id, database.ErrNotFound)
	}
	out := *d
	return &out, nil
}

// AllDetections returns every stored detection.
func (s *Store) AllDetections(ctx context.Context) ([]database.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]database.Detection, 0, len(s.detections))
	for _, d := range s.detections {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountDetections returns the number of detections.
func (s *Store) CountDetections(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detections), nil
}

// SetDetectionCluster moves a detection between clusters or orphans it.
func (s *Store) SetDetectionCluster(ctx context.Context, detectionID string, clusterID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SetError != nil {
		return s.SetError
	}
	d, ok := s.detections[detectionID]
	if !ok {
		return fmt.Errorf("detection %s: %w", detectionID, database.ErrNotFound)
	}
	if clusterID != nil && s.findCluster(*clusterID) == nil {
		return fmt.Errorf("cluster %s: %w", *clusterID, database.ErrNotFound)
	}
	d.ClusterID = clusterID
	d.UpdatedAt = s.tick()
	return nil
}

// SaveMedia registers a media item.
func (s *Store) SaveMedia(ctx context.Context, media database.Media) error {
	if s.MediaError != nil {
		return s.MediaError
	}
	s.AddMedia(media)
	return nil
}

// GetMedia retrieves a media row by ID.
func (s *Store) GetMedia(ctx context.Context, id string) (*database.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MediaError != nil {
		return nil, s.MediaError
	}
	m, ok := s.media[id]
	if !ok {
		return nil, fmt.Errorf("media %s: %w", id, database.ErrNotFound)
	}
	out := *m
	return &out, nil
}

// MediaExists checks whether a media row exists.
func (s *Store) MediaExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MediaError != nil {
		return false, s.MediaError
	}
	_, ok := s.media[id]
	return ok, nil
}

// ListUnprocessedMedia returns non-video media not yet processed.
func (s *Store) ListUnprocessedMedia(ctx context.Context) ([]database.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MediaError != nil {
		return nil, s.MediaError
	}
	var out []database.Media
	for _, m := range s.media {
		if !m.IsProcessed && !m.IsVideo {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkMediaProcessed flags a media row as processed.
func (s *Store) MarkMediaProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MediaError != nil {
		return s.MediaError
	}
	m, ok := s.media[id]
	if !ok {
		return fmt.Errorf("media %s: %w", id, database.ErrNotFound)
	}
	m.IsProcessed = true
	return nil
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
