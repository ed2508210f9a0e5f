package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/models"
)

// PostgresPlaylistRepository provides PostgreSQL-backed persistence for playlists and their videos.
type PostgresPlaylistRepository struct {
	pool db.Pool
}

// NewPostgresPlaylistRepository constructs a playlist repository backed by PostgreSQL.
func NewPostgresPlaylistRepository(pool db.Pool) *PostgresPlaylistRepository {
	return &PostgresPlaylistRepository{pool: pool}
}

// Create stores a new, empty playlist.
func (r *PostgresPlaylistRepository) Create(ctx context.Context, playlist models.Playlist) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO playlists (id, owner_id, name, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, playlist.ID, playlist.OwnerID, playlist.Name, playlist.Description, playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return storeError("insert playlist", err)
	}
	return nil
}

// FindByID fetches a playlist with its video ids in insertion order.
func (r *PostgresPlaylistRepository) FindByID(ctx context.Context, id string) (models.Playlist, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return loadPlaylist(ctx, conn, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadPlaylist(ctx context.Context, q querier, id string) (models.Playlist, error) {
	var playlist models.Playlist
	row := q.QueryRow(ctx, `SELECT `+columns("", playlistFields)+` FROM playlists WHERE id = $1`, id)
	if err := row.Scan(playlistDest(&playlist)...); err != nil {
		return models.Playlist{}, storeError("select playlist", err)
	}

	rows, err := q.Query(ctx, `
        SELECT video_id FROM playlist_videos
        WHERE playlist_id = $1
        ORDER BY added_at, video_id
    `, id)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("query playlist videos: %w", err)
	}
	defer rows.Close()

	playlist.VideoIDs = []string{}
	for rows.Next() {
		var videoID string
		if err := rows.Scan(&videoID); err != nil {
			return models.Playlist{}, fmt.Errorf("scan playlist video: %w", err)
		}
		playlist.VideoIDs = append(playlist.VideoIDs, videoID)
	}
	if err := rows.Err(); err != nil {
		return models.Playlist{}, fmt.Errorf("iterate playlist videos: %w", err)
	}
	return playlist, nil
}

// Update applies the non-nil fields of patch when ownerID owns the playlist.
func (r *PostgresPlaylistRepository) Update(ctx context.Context, id, ownerID string, patch models.PlaylistPatch) (models.Playlist, error) {
	var updated models.Playlist
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE playlists
            SET name = COALESCE($3, name),
                description = COALESCE($4, description),
                updated_at = NOW()
            WHERE id = $1 AND owner_id = $2
        `, id, ownerID, patch.Name, patch.Description)
		if err != nil {
			return fmt.Errorf("update playlist: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		updated, err = loadPlaylist(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Playlist{}, err
	}
	return updated, nil
}

// Delete removes the playlist owned by ownerID.
func (r *PostgresPlaylistRepository) Delete(ctx context.Context, id, ownerID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM playlists WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddVideo appends videoID to the playlist owned by ownerID. The primary key on
// (playlist_id, video_id) rejects duplicates with ErrConflict.
func (r *PostgresPlaylistRepository) AddVideo(ctx context.Context, playlistID, ownerID, videoID string) (models.Playlist, error) {
	var updated models.Playlist
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockOwnedPlaylist(ctx, tx, playlistID, ownerID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            INSERT INTO playlist_videos (playlist_id, video_id, added_at)
            VALUES ($1, $2, NOW())
            ON CONFLICT (playlist_id, video_id) DO NOTHING
        `, playlistID, videoID)
		if err != nil {
			return storeError("insert playlist video", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		if _, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = NOW() WHERE id = $1`, playlistID); err != nil {
			return fmt.Errorf("touch playlist: %w", err)
		}

		updated, err = loadPlaylist(ctx, tx, playlistID)
		return err
	})
	if err != nil {
		return models.Playlist{}, err
	}
	return updated, nil
}

// RemoveVideo drops videoID from the playlist owned by ownerID. A video that is not in the
// playlist yields ErrNotFound.
func (r *PostgresPlaylistRepository) RemoveVideo(ctx context.Context, playlistID, ownerID, videoID string) (models.Playlist, error) {
	var updated models.Playlist
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockOwnedPlaylist(ctx, tx, playlistID, ownerID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            DELETE FROM playlist_videos
            WHERE playlist_id = $1 AND video_id = $2
        `, playlistID, videoID)
		if err != nil {
			return fmt.Errorf("delete playlist video: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = NOW() WHERE id = $1`, playlistID); err != nil {
			return fmt.Errorf("touch playlist: %w", err)
		}

		updated, err = loadPlaylist(ctx, tx, playlistID)
		return err
	})
	if err != nil {
		return models.Playlist{}, err
	}
	return updated, nil
}

func lockOwnedPlaylist(ctx context.Context, tx pgx.Tx, playlistID, ownerID string) error {
	var id string
	err := tx.QueryRow(ctx, `
        SELECT id FROM playlists
        WHERE id = $1 AND owner_id = $2
        FOR UPDATE
    `, playlistID, ownerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock playlist: %w", err)
	}
	return nil
}
