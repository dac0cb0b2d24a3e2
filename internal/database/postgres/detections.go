package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facegroup/internal/database"
)

const detectionColumns = `id, embedding, bbox, class_name, confidence, media_id,
	cluster_id, owner_user_id, name, created_at, updated_at`

// scanDetections reads detection rows into a slice.
func scanDetections(rows *sql.Rows) ([]database.Detection, error) {
	var dets []database.Detection
	for rows.Next() {
		var (
			d         database.Detection
			vec       pgvector.Vector
			bbox      []float64
			clusterID sql.NullString
			owner     sql.NullString
			name      sql.NullString
		)
		if err := rows.Scan(
			&d.ID, &vec, pq.Array(&bbox), &d.ClassName, &d.Confidence, &d.MediaID,
			&clusterID, &owner, &name, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.Embedding = vec.Slice()
		if len(bbox) == 4 {
			d.BBox = database.BoundingBox{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}
		}
		d.ClusterID = nullToPtr(clusterID)
		d.OwnerUserID = nullToPtr(owner)
		d.Name = nullToPtr(name)
		dets = append(dets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return dets, nil
}

// GetDetection retrieves a detection by ID.
func (r *Repository) GetDetection(ctx context.Context, id string) (*database.Detection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+detectionColumns+`
		FROM detections
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query detection: %w", err)
	}
	defer rows.Close()

	dets, err := scanDetections(rows)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, fmt.Errorf("detection %s: %w", id, database.ErrNotFound)
	}
	return &dets[0], nil
}

// AllDetections returns every stored detection, oldest first.
func (r *Repository) AllDetections(ctx context.Context) ([]database.Detection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+detectionColumns+`
		FROM detections
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

// CountDetections returns the total number of detections.
func (r *Repository) CountDetections(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM detections").Scan(&count); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return count, nil
}

// SetDetectionCluster moves a detection into the given cluster, or orphans it
// when clusterID is nil. The denormalized owner/name fields are intentionally
// left untouched; re-labeling is the labeling coordinator's job.
func (r *Repository) SetDetectionCluster(ctx context.Context, detectionID string, clusterID *string) error {
	if clusterID != nil {
		var exists bool
		err := r.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM clusters WHERE id = $1)", *clusterID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check cluster exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("cluster %s: %w", *clusterID, database.ErrNotFound)
		}
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE detections SET cluster_id = $1, updated_at = NOW() WHERE id = $2
	`, ptrToNull(clusterID), detectionID)
	if err != nil {
		return translateTxError(err, "update detection cluster")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("detection %s: %w", detectionID, database.ErrNotFound)
	}
	return nil
}

var _ database.Store = (*Repository)(nil)
