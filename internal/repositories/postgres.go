package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

var (
	userFields     = []string{"id", "full_name", "username", "email", "password_hash", "avatar_url", "cover_image_url", "email_verified", "google_id", "created_at", "updated_at"}
	summaryFields  = []string{"id", "username", "full_name", "avatar_url"}
	videoFields    = []string{"id", "owner_id", "title", "description", "video_url", "thumbnail_url", "duration_seconds", "views", "is_published", "created_at", "updated_at"}
	commentFields  = []string{"id", "video_id", "owner_id", "content", "created_at", "updated_at"}
	tweetFields    = []string{"id", "owner_id", "content", "created_at", "updated_at"}
	playlistFields = []string{"id", "owner_id", "name", "description", "created_at", "updated_at"}
)

// columns renders a select list, optionally qualified with a table alias.
// google_id is nullable and is coalesced so it scans into a string.
func columns(alias string, fields []string) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		name := field
		if alias != "" {
			name = alias + "." + field
		}
		if field == "google_id" {
			name = "COALESCE(" + name + ", '')"
		}
		parts[i] = name
	}
	return strings.Join(parts, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func userDest(u *models.User) []any {
	return []any{&u.ID, &u.FullName, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarURL, &u.CoverImageURL, &u.EmailVerified, &u.GoogleID, &u.CreatedAt, &u.UpdatedAt}
}

func summaryDest(s *models.UserSummary) []any {
	return []any{&s.ID, &s.Username, &s.FullName, &s.AvatarURL}
}

func videoDest(v *models.Video) []any {
	return []any{&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL, &v.DurationSeconds, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt}
}

func commentDest(c *models.Comment) []any {
	return []any{&c.ID, &c.VideoID, &c.OwnerID, &c.Content, &c.CreatedAt, &c.UpdatedAt}
}

func tweetDest(t *models.Tweet) []any {
	return []any{&t.ID, &t.OwnerID, &t.Content, &t.CreatedAt, &t.UpdatedAt}
}

func playlistDest(p *models.Playlist) []any {
	return []any{&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt}
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	if err := row.Scan(userDest(&user)...); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func scanVideo(row scanner) (models.Video, error) {
	var video models.Video
	if err := row.Scan(videoDest(&video)...); err != nil {
		return models.Video{}, err
	}
	return video, nil
}

func scanVideoWithOwner(row scanner) (models.VideoWithOwner, error) {
	var item models.VideoWithOwner
	dest := append(videoDest(&item.Video), summaryDest(&item.Owner)...)
	if err := row.Scan(dest...); err != nil {
		return models.VideoWithOwner{}, err
	}
	return item, nil
}

// nullable converts an empty string into SQL NULL.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// withTx runs fn inside a transaction on a pooled connection, committing when fn succeeds.
func withTx(ctx context.Context, pool db.Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError("commit transaction", err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so user input is matched literally.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
