package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresOTPStore persists hashed one-time codes.
type PostgresOTPStore struct {
	pool db.Pool
}

// NewPostgresOTPStore constructs an OTP store backed by PostgreSQL.
func NewPostgresOTPStore(pool db.Pool) *PostgresOTPStore {
	return &PostgresOTPStore{pool: pool}
}

// Replace stores a freshly issued code and drops older codes for the same email and purpose
// in one transaction.
func (s *PostgresOTPStore) Replace(ctx context.Context, otp models.OTP) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            DELETE FROM otps WHERE email = $1 AND purpose = $2
        `, otp.Email, otp.Purpose); err != nil {
			return fmt.Errorf("delete previous otps: %w", err)
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO otps (id, email, purpose, code_hash, expires_at, attempts, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, otp.ID, otp.Email, otp.Purpose, otp.CodeHash, otp.ExpiresAt.UTC(), otp.Attempts, otp.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert otp: %w", err)
		}
		return nil
	})
}

// Latest returns the most recently issued code for (email, purpose).
func (s *PostgresOTPStore) Latest(ctx context.Context, email, purpose string) (models.OTP, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.OTP{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var otp models.OTP
	err = conn.QueryRow(ctx, `
        SELECT id, email, purpose, code_hash, expires_at, attempts, created_at
        FROM otps
        WHERE email = $1 AND purpose = $2
        ORDER BY created_at DESC
        LIMIT 1
    `, email, purpose).Scan(&otp.ID, &otp.Email, &otp.Purpose, &otp.CodeHash, &otp.ExpiresAt, &otp.Attempts, &otp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OTP{}, auth.ErrOTPNotFound
		}
		return models.OTP{}, fmt.Errorf("select otp: %w", err)
	}
	otp.ExpiresAt = otp.ExpiresAt.UTC()
	otp.CreatedAt = otp.CreatedAt.UTC()
	return otp, nil
}

// IncrementAttempts atomically bumps the attempt counter and returns the new value.
func (s *PostgresOTPStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var attempts int
	err = conn.QueryRow(ctx, `
        UPDATE otps SET attempts = attempts + 1
        WHERE id = $1
        RETURNING attempts
    `, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, auth.ErrOTPNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return attempts, nil
}

// Delete removes a code. Deleting an absent code is not an error.
func (s *PostgresOTPStore) Delete(ctx context.Context, id string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM otps WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// DeleteExpired purges codes that expired before the cutoff.
func (s *PostgresOTPStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM otps WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired otps: %w", err)
	}
	return tag.RowsAffected(), nil
}
