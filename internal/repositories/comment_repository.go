package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresCommentRepository provides PostgreSQL-backed persistence for video comments.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// Create stores a new comment. A missing video or owner yields ErrNotFound.
func (r *PostgresCommentRepository) Create(ctx context.Context, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, video_id, owner_id, content, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, comment.ID, comment.VideoID, comment.OwnerID, comment.Content, comment.CreatedAt, comment.UpdatedAt)
	if err != nil {
		return storeError("insert comment", err)
	}
	return nil
}

// FindByID fetches a comment.
func (r *PostgresCommentRepository) FindByID(ctx context.Context, id string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var comment models.Comment
	row := conn.QueryRow(ctx, `SELECT `+columns("", commentFields)+` FROM comments WHERE id = $1`, id)
	if err := row.Scan(commentDest(&comment)...); err != nil {
		return models.Comment{}, storeError("select comment", err)
	}
	return comment, nil
}

// Update rewrites the content when ownerID authored the comment.
func (r *PostgresCommentRepository) Update(ctx context.Context, id, ownerID, content string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var comment models.Comment
	row := conn.QueryRow(ctx, `
        UPDATE comments SET content = $3, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING `+columns("", commentFields), id, ownerID, content)
	if err := row.Scan(commentDest(&comment)...); err != nil {
		return models.Comment{}, storeError("update comment", err)
	}
	return comment, nil
}

// Delete removes the comment authored by ownerID and the likes pointing at it.
func (r *PostgresCommentRepository) Delete(ctx context.Context, id, ownerID string) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE id = $1 AND owner_id = $2`, id, ownerID)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE target_type = 'comment' AND target_id = $1`, id); err != nil {
			return fmt.Errorf("delete comment likes: %w", err)
		}
		return nil
	})
}
