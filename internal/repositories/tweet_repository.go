package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresTweetRepository provides PostgreSQL-backed persistence for tweets.
type PostgresTweetRepository struct {
	pool db.Pool
}

// NewPostgresTweetRepository constructs a tweet repository backed by PostgreSQL.
func NewPostgresTweetRepository(pool db.Pool) *PostgresTweetRepository {
	return &PostgresTweetRepository{pool: pool}
}

// Create stores a new tweet.
func (r *PostgresTweetRepository) Create(ctx context.Context, tweet models.Tweet) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO tweets (id, owner_id, content, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, tweet.ID, tweet.OwnerID, tweet.Content, tweet.CreatedAt, tweet.UpdatedAt)
	if err != nil {
		return storeError("insert tweet", err)
	}
	return nil
}

// FindByID fetches a tweet.
func (r *PostgresTweetRepository) FindByID(ctx context.Context, id string) (models.Tweet, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Tweet{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var tweet models.Tweet
	row := conn.QueryRow(ctx, `SELECT `+columns("", tweetFields)+` FROM tweets WHERE id = $1`, id)
	if err := row.Scan(tweetDest(&tweet)...); err != nil {
		return models.Tweet{}, storeError("select tweet", err)
	}
	return tweet, nil
}

// Update rewrites the content when ownerID posted the tweet.
func (r *PostgresTweetRepository) Update(ctx context.Context, id, ownerID, content string) (models.Tweet, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Tweet{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var tweet models.Tweet
	row := conn.QueryRow(ctx, `
        UPDATE tweets SET content = $3, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING `+columns("", tweetFields), id, ownerID, content)
	if err := row.Scan(tweetDest(&tweet)...); err != nil {
		return models.Tweet{}, storeError("update tweet", err)
	}
	return tweet, nil
}

// Delete removes the tweet posted by ownerID and the likes pointing at it.
func (r *PostgresTweetRepository) Delete(ctx context.Context, id, ownerID string) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tweets WHERE id = $1 AND owner_id = $2`, id, ownerID)
		if err != nil {
			return fmt.Errorf("delete tweet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE target_type = 'tweet' AND target_id = $1`, id); err != nil {
			return fmt.Errorf("delete tweet likes: %w", err)
		}
		return nil
	})
}
