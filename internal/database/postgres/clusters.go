package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facegroup/internal/database"
)

// Advisory lock key serializing cluster assignment decisions. Without it two
// concurrent detections of a never-before-seen person can found two clusters.
const assignAdvisoryLockKey = 0x66616365 // "face"

// Repository provides PostgreSQL-backed storage for clusters, detections
// and media. It implements database.Store.
type Repository struct {
	pool *Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// AssignDetection runs the clustering decision and the detection insert as
// one transaction: the best cluster is the one with the highest max member
// similarity, ties broken toward the earliest-created cluster, inclusive
// threshold comparison. Clusters without members never qualify because the
// candidate query joins through detections.
func (r *Repository) AssignDetection(
	ctx context.Context, det database.NewDetection, threshold float64,
) (*database.AssignResult, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", assignAdvisoryLockKey); err != nil {
		return nil, translateTxError(err, "acquire assign lock")
	}

	vec := pgvector.NewVector(det.Embedding)

	var (
		clusterID   string
		ownerUserID sql.NullString
		name        sql.NullString
		similarity  float64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT c.id, c.owner_user_id, c.name,
		       MAX(1 - (d.embedding <=> $1)) AS similarity
		FROM clusters c
		JOIN detections d ON d.cluster_id = c.id
		GROUP BY c.id
		ORDER BY similarity DESC, c.created_at ASC, c.id ASC
		LIMIT 1
	`, vec).Scan(&clusterID, &ownerUserID, &name, &similarity)

	matched := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No clusters with members exist yet.
	case err != nil:
		return nil, translateTxError(err, "find best cluster")
	default:
		matched = similarity >= threshold
	}

	created := false
	if !matched {
		clusterID = uuid.NewString()
		ownerUserID, name = sql.NullString{}, sql.NullString{}
		created = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (id, threshold) VALUES ($1, $2)
		`, clusterID, threshold); err != nil {
			return nil, translateTxError(err, "insert cluster")
		}
	}

	// The detection inherits the cluster's owner/name so the denormalized
	// copies stay consistent from the moment of insertion.
	detectionID := uuid.NewString()
	bbox := []float64{det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO detections
			(id, embedding, bbox, class_name, confidence, media_id, cluster_id, owner_user_id, name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, detectionID, vec, pq.Array(bbox), det.ClassName, det.Confidence,
		det.MediaID, clusterID, ownerUserID, name); err != nil {
		return nil, translateTxError(err, "insert detection")
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err, "commit assignment")
	}

	res := &database.AssignResult{
		DetectionID:    detectionID,
		ClusterID:      clusterID,
		OwnerUserID:    nullToPtr(ownerUserID),
		Name:           nullToPtr(name),
		CreatedCluster: created,
		Similarity:     similarity,
	}
	return res, nil
}

// LabelCluster assigns owner/name to the target cluster in one transaction.
// When the owner already owns a different cluster, that cluster is absorbed
// into the target and deleted. An advisory lock keyed on the owner serializes
// concurrent labels for the same owner: row locks alone cannot, because two
// racing transactions labeling different targets for a not-yet-seen owner
// scan zero owned rows and would both commit, leaving that owner two
// clusters.
func (r *Repository) LabelCluster(
	ctx context.Context, clusterID string, ownerUserID, name *string,
) (*database.Cluster, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if ownerUserID != nil {
		if _, err := tx.ExecContext(ctx,
			"SELECT pg_advisory_xact_lock(hashtext($1))", *ownerUserID,
		); err != nil {
			return nil, translateTxError(err, "acquire owner lock")
		}
	}

	var targetID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM clusters WHERE id = $1 FOR UPDATE", clusterID,
	).Scan(&targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}
	if err != nil {
		return nil, translateTxError(err, "lock target cluster")
	}

	owner := ptrToNull(ownerUserID)
	displayName := ptrToNull(name)

	if ownerUserID != nil {
		absorbed, err := lockOwnedClusters(ctx, tx, *ownerUserID, clusterID)
		if err != nil {
			return nil, err
		}
		for _, loserID := range absorbed {
			// Re-point the loser's detections before deleting it so no
			// detection ever dangles.
			if _, err := tx.ExecContext(ctx, `
				UPDATE detections
				SET cluster_id = $1, owner_user_id = $2, name = $3, updated_at = NOW()
				WHERE cluster_id = $4
			`, clusterID, owner, displayName, loserID); err != nil {
				return nil, translateTxError(err, "move merged detections")
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM clusters WHERE id = $1", loserID,
			); err != nil {
				return nil, translateTxError(err, "delete merged cluster")
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE detections
		SET owner_user_id = $1, name = $2, updated_at = NOW()
		WHERE cluster_id = $3
	`, owner, displayName, clusterID); err != nil {
		return nil, translateTxError(err, "update member detections")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE clusters
		SET owner_user_id = $1, name = $2, updated_at = NOW()
		WHERE id = $3
	`, owner, displayName, clusterID); err != nil {
		return nil, translateTxError(err, "update cluster")
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err, "commit labeling")
	}

	return r.GetCluster(ctx, clusterID)
}

// lockOwnedClusters locks and returns the IDs of every other cluster owned
// by the given user.
func lockOwnedClusters(ctx context.Context, tx *sql.Tx, ownerUserID, excludeID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM clusters
		WHERE owner_user_id = $1 AND id <> $2
		ORDER BY created_at
		FOR UPDATE
	`, ownerUserID, excludeID)
	if err != nil {
		return nil, translateTxError(err, "lock owned clusters")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owned cluster: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateTxError(err, "iterate owned clusters")
	}
	return ids, nil
}

// GetCluster retrieves a cluster with its member detections.
func (r *Repository) GetCluster(ctx context.Context, id string) (*database.Cluster, error) {
	var (
		c     database.Cluster
		owner sql.NullString
		name  sql.NullString
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, threshold, owner_user_id, name, created_at, updated_at
		FROM clusters
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Threshold, &owner, &name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cluster: %w", err)
	}
	c.OwnerUserID = nullToPtr(owner)
	c.Name = nullToPtr(name)

	members, err := r.clusterMembers(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Detections = members[c.ID]
	return &c, nil
}

// CountClusters returns the total number of clusters.
func (r *Repository) CountClusters(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM clusters").Scan(&count); err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return count, nil
}

// Sortable cluster columns for listing. Anything else falls back to created_at.
var clusterOrderColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"name":          "name",
	"owner_user_id": "owner_user_id",
	"threshold":     "threshold",
}

// ListClusters returns a filtered, ordered page of clusters with members.
func (r *Repository) ListClusters(
	ctx context.Context, params database.ListParams,
) (*database.ClusterPage, error) {
	where := "TRUE"
	args := []any{}

	switch {
	case params.OwnerUserID != nil:
		args = append(args, *params.OwnerUserID)
		where = fmt.Sprintf("owner_user_id = $%d", len(args))
	case params.AlreadyLabeled != nil && *params.AlreadyLabeled:
		where = "owner_user_id IS NOT NULL"
	case params.AlreadyLabeled != nil:
		where = "owner_user_id IS NULL"
	}

	if params.Name != "" {
		args = append(args, database.NormalizeName(params.Name))
		where += fmt.Sprintf(
			" AND LOWER(REPLACE(unaccent(name), '-', ' ')) LIKE '%%' || $%d || '%%'", len(args),
		)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM clusters WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count clusters: %w", err)
	}

	orderCol, ok := clusterOrderColumns[params.OrderBy]
	if !ok {
		orderCol = "created_at"
	}
	dir := "ASC"
	if params.OrderDesc {
		dir = "DESC"
	}

	page, perPage := params.Page, params.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(`
		SELECT id, threshold, owner_user_id, name, created_at, updated_at
		FROM clusters
		WHERE %s
		ORDER BY %s %s, id ASC
		LIMIT $%d OFFSET $%d
	`, where, orderCol, dir, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var items []database.Cluster
	var ids []string
	for rows.Next() {
		var (
			c     database.Cluster
			owner sql.NullString
			name  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Threshold, &owner, &name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		c.OwnerUserID = nullToPtr(owner)
		c.Name = nullToPtr(name)
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}

	members, err := r.clusterMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Detections = members[items[i].ID]
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

// clusterMembers fetches member detections for a set of clusters in one query.
func (r *Repository) clusterMembers(
	ctx context.Context, clusterIDs []string,
) (map[string][]database.Detection, error) {
	members := make(map[string][]database.Detection, len(clusterIDs))
	if len(clusterIDs) == 0 {
		return members, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+detectionColumns+`
		FROM detections
		WHERE cluster_id = ANY($1)
		ORDER BY created_at, id
	`, pq.Array(clusterIDs))
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	dets, err := scanDetections(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range dets {
		members[*d.ClusterID] = append(members[*d.ClusterID], d)
	}
	return members, nil
}

func nullToPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func ptrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
