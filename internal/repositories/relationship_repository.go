package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresLikeRepository stores user likes on videos, comments and tweets.
type PostgresLikeRepository struct {
	pool db.Pool
}

// NewPostgresLikeRepository constructs a like repository backed by PostgreSQL.
func NewPostgresLikeRepository(pool db.Pool) *PostgresLikeRepository {
	return &PostgresLikeRepository{pool: pool}
}

// Toggle creates the like when absent and removes it when present, reporting whether the
// target is liked afterwards. The unique (liked_by, target_type, target_id) constraint keeps
// concurrent toggles from creating duplicates.
func (r *PostgresLikeRepository) Toggle(ctx context.Context, userID string, target models.LikeTarget) (bool, error) {
	var liked bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO likes (id, liked_by, target_type, target_id, created_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (liked_by, target_type, target_id) DO NOTHING
        `, uuid.NewString(), userID, string(target.Kind), target.ID, time.Now().UTC())
		if err != nil {
			return storeError("insert like", err)
		}
		if tag.RowsAffected() == 1 {
			liked = true
			return nil
		}

		if _, err := tx.Exec(ctx, `
            DELETE FROM likes
            WHERE liked_by = $1 AND target_type = $2 AND target_id = $3
        `, userID, string(target.Kind), target.ID); err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		liked = false
		return nil
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}

// IsLiked reports whether userID currently likes target.
func (r *PostgresLikeRepository) IsLiked(ctx context.Context, userID string, target models.LikeTarget) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM likes
            WHERE liked_by = $1 AND target_type = $2 AND target_id = $3
        )
    `, userID, string(target.Kind), target.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select like: %w", err)
	}
	return exists, nil
}

// PostgresSubscriptionRepository stores subscriber to channel edges.
type PostgresSubscriptionRepository struct {
	pool db.Pool
}

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Toggle subscribes when absent and unsubscribes when present, reporting whether the
// subscriber follows the channel afterwards. An unknown channel yields ErrNotFound.
func (r *PostgresSubscriptionRepository) Toggle(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var subscribed bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (subscriber_id, channel_id) DO NOTHING
        `, uuid.NewString(), subscriberID, channelID, time.Now().UTC())
		if err != nil {
			return storeError("insert subscription", err)
		}
		if tag.RowsAffected() == 1 {
			subscribed = true
			return nil
		}

		if _, err := tx.Exec(ctx, `
            DELETE FROM subscriptions
            WHERE subscriber_id = $1 AND channel_id = $2
        `, subscriberID, channelID); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		subscribed = false
		return nil
	})
	if err != nil {
		return false, err
	}
	return subscribed, nil
}

// IsSubscribed reports whether subscriberID follows channelID.
func (r *PostgresSubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM subscriptions
            WHERE subscriber_id = $1 AND channel_id = $2
        )
    `, subscriberID, channelID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select subscription: %w", err)
	}
	return exists, nil
}
