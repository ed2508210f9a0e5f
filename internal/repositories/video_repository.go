package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, is_published, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		video.DurationSeconds, video.Views, video.IsPublished, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return storeError("insert video", err)
	}
	return nil
}

// FindByID fetches a video without side effects.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+columns("", videoFields)+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if err != nil {
		return models.Video{}, storeError("select video", err)
	}
	return video, nil
}

// RecordView atomically increments the view counter and returns the updated video.
func (r *PostgresVideoRepository) RecordView(ctx context.Context, id string) (models.Video, error) {
	return r.mutate(ctx, "increment video views", `
        UPDATE videos SET views = views + 1
        WHERE id = $1
        RETURNING `+columns("", videoFields), id)
}

// Update applies the non-nil fields of patch when ownerID owns the video.
func (r *PostgresVideoRepository) Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (models.Video, error) {
	return r.mutate(ctx, "update video", `
        UPDATE videos
        SET title = COALESCE($3, title),
            description = COALESCE($4, description),
            thumbnail_url = COALESCE($5, thumbnail_url),
            updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING `+columns("", videoFields), id, ownerID, patch.Title, patch.Description, patch.ThumbnailURL)
}

// TogglePublish flips the published flag when ownerID owns the video.
func (r *PostgresVideoRepository) TogglePublish(ctx context.Context, id, ownerID string) (models.Video, error) {
	return r.mutate(ctx, "toggle video publish status", `
        UPDATE videos
        SET is_published = NOT is_published, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING `+columns("", videoFields), id, ownerID)
}

func (r *PostgresVideoRepository) mutate(ctx context.Context, op, sql string, args ...any) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, sql, args...))
	if err != nil {
		return models.Video{}, storeError(op, err)
	}
	return video, nil
}

// Delete removes the video owned by ownerID together with likes on it and on its comments.
// Comments, playlist entries and watch history rows cascade.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id, ownerID string) (models.Video, error) {
	var deleted models.Video
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            DELETE FROM likes
            WHERE (target_type = 'video' AND target_id = $1)
               OR (target_type = 'comment' AND target_id IN (SELECT id FROM comments WHERE video_id = $1))
        `, id); err != nil {
			return fmt.Errorf("delete video likes: %w", err)
		}

		video, err := scanVideo(tx.QueryRow(ctx, `
            DELETE FROM videos
            WHERE id = $1 AND owner_id = $2
            RETURNING `+columns("", videoFields), id, ownerID))
		if err != nil {
			return storeError("delete video", err)
		}
		deleted = video
		return nil
	})
	if err != nil {
		return models.Video{}, err
	}
	return deleted, nil
}
