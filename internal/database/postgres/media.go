package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegroup/internal/database"
)

// SaveMedia registers a media item.
func (r *Repository) SaveMedia(ctx context.Context, media database.Media) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO media (id, url, is_video, is_processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, is_video = EXCLUDED.is_video
	`, media.ID, media.URL, media.IsVideo, media.IsProcessed)
	if err != nil {
		return translateTxError(err, "save media")
	}
	return nil
}

// GetMedia retrieves a media row by ID.
func (r *Repository) GetMedia(ctx context.Context, id string) (*database.Media, error) {
	var m database.Media
	err := r.pool.QueryRow(ctx, `
		SELECT id, url, is_video, is_processed, created_at
		FROM media
		WHERE id = $1
	`, id).Scan(&m.ID, &m.URL, &m.IsVideo, &m.IsProcessed, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	return &m, nil
}

// MediaExists checks whether a media row exists.
func (r *Repository) MediaExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM media WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check media exists: %w", err)
	}
	return exists, nil
}

// ListUnprocessedMedia returns non-video media not yet run through the detector.
func (r *Repository) ListUnprocessedMedia(ctx context.Context) ([]database.Media, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, url, is_video, is_processed, created_at
		FROM media
		WHERE NOT is_processed AND NOT is_video
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed media: %w", err)
	}
	defer rows.Close()

	var items []database.Media
	for rows.Next() {
		var m database.Media
		if err := rows.Scan(&m.ID, &m.URL, &m.IsVideo, &m.IsProcessed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return items, nil
}

// MarkMediaProcessed flags a media row as processed.
func (r *Repository) MarkMediaProcessed(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "UPDATE media SET is_processed = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark media processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("media %s: %w", id, database.ErrNotFound)
	}
	return nil
}
