package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/db"
)

// PostgresSessionStore keeps each user's single active refresh token hash on the users row.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// SaveRefreshToken replaces the stored refresh token hash for the user.
func (s *PostgresSessionStore) SaveRefreshToken(ctx context.Context, userID, tokenHash string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET refresh_token_hash = $2
        WHERE id = $1
    `, userID, tokenHash)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// RotateRefreshToken swaps the stored hash only while it still equals oldHash, so concurrent
// refreshes of one token cannot both succeed.
func (s *PostgresSessionStore) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET refresh_token_hash = $3
        WHERE id = $1 AND refresh_token_hash = $2 AND refresh_token_hash <> ''
    `, userID, oldHash, newHash)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RefreshTokenHash returns the stored hash, or auth.ErrSessionNotFound when none is active.
func (s *PostgresSessionStore) RefreshTokenHash(ctx context.Context, userID string) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var hash string
	err = conn.QueryRow(ctx, `SELECT refresh_token_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrSessionNotFound
		}
		return "", fmt.Errorf("select refresh token: %w", err)
	}
	if hash == "" {
		return "", auth.ErrSessionNotFound
	}
	return hash, nil
}

// ClearRefreshToken removes the active refresh token. Clearing an absent token is not an error.
func (s *PostgresSessionStore) ClearRefreshToken(ctx context.Context, userID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `UPDATE users SET refresh_token_hash = '' WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}
