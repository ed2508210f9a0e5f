package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record. Username and email are stored lowercased.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, full_name, username, email, password_hash, avatar_url, cover_image_url, email_verified, google_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, user.ID, user.FullName, normalize(user.Username), normalize(user.Email), user.PasswordHash,
		user.AvatarURL, user.CoverImageURL, user.EmailVerified, nullable(user.GoogleID), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return storeError("insert user", err)
	}

	return nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "select user by id", `WHERE id = $1`, id)
}

// FindByIdentifier fetches the user whose username or email matches. Empty inputs never match.
func (r *PostgresUserRepository) FindByIdentifier(ctx context.Context, username, email string) (models.User, error) {
	return r.findOne(ctx, "select user by identifier", `
        WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
        ORDER BY created_at
        LIMIT 1
    `, normalize(username), normalize(email))
}

// FindByGoogleIDOrEmail prefers a match on the external identity over a match on email.
func (r *PostgresUserRepository) FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (models.User, error) {
	return r.findOne(ctx, "select user by google identity", `
        WHERE ($1 <> '' AND google_id = $1) OR ($2 <> '' AND email = $2)
        ORDER BY CASE WHEN google_id = $1 THEN 0 ELSE 1 END
        LIMIT 1
    `, googleID, normalize(email))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, op, where string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+columns("", userFields)+` FROM users `+where, args...)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, storeError(op, err)
	}
	return user, nil
}

// UpdateAccount changes the display name and email. A changed email is no longer verified.
func (r *PostgresUserRepository) UpdateAccount(ctx context.Context, id, fullName, email string) (models.User, error) {
	return r.updateOne(ctx, "update account", `
        SET full_name = $2,
            email_verified = CASE WHEN email = $3 THEN email_verified ELSE FALSE END,
            email = $3,
            updated_at = NOW()
    `, id, fullName, normalize(email))
}

// UpdatePassword stores a new password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.updateOne(ctx, "update password", `SET password_hash = $2, updated_at = NOW()`, id, passwordHash)
	return err
}

// UpdateAvatar replaces the avatar reference and returns the updated user.
func (r *PostgresUserRepository) UpdateAvatar(ctx context.Context, id, url string) (models.User, error) {
	return r.updateOne(ctx, "update avatar", `SET avatar_url = $2, updated_at = NOW()`, id, url)
}

// UpdateCoverImage replaces the cover image reference and returns the updated user.
func (r *PostgresUserRepository) UpdateCoverImage(ctx context.Context, id, url string) (models.User, error) {
	return r.updateOne(ctx, "update cover image", `SET cover_image_url = $2, updated_at = NOW()`, id, url)
}

// LinkGoogle backfills the external identity and avatar when they are missing.
// A verified identity provider email also marks the account verified.
func (r *PostgresUserRepository) LinkGoogle(ctx context.Context, id, googleID, avatarURL string) (models.User, error) {
	return r.updateOne(ctx, "link google identity", `
        SET google_id = COALESCE(google_id, $2),
            avatar_url = CASE WHEN avatar_url = '' THEN $3 ELSE avatar_url END,
            email_verified = TRUE,
            updated_at = NOW()
    `, id, googleID, avatarURL)
}

func (r *PostgresUserRepository) updateOne(ctx context.Context, op, set string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `UPDATE users `+set+` WHERE id = $1 RETURNING `+columns("", userFields), args...)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, storeError(op, err)
	}
	return user, nil
}

// MarkEmailVerified flags the account registered under email as verified.
func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, email string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET email_verified = TRUE, updated_at = NOW()
        WHERE email = $1
    `, normalize(email))
	if err != nil {
		return storeError("mark email verified", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddToWatchHistory records that the user watched the video. Re-watching moves it to the front.
func (r *PostgresUserRepository) AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (user_id, video_id, watched_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, video_id)
        DO UPDATE SET watched_at = EXCLUDED.watched_at
    `, userID, videoID, watchedAt.UTC())
	if err != nil {
		return storeError("upsert watch history", err)
	}
	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
