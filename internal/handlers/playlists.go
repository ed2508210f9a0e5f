package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/repositories"
)

// PlaylistHandler implements playlist CRUD and membership changes.
type PlaylistHandler struct {
	Playlists PlaylistStore
	Videos    VideoStore
	Catalog   Catalog
	NowFunc   func() time.Time
}

type createPlaylistRequest struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=2000"`
}

type updatePlaylistRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=150"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// Create handles POST /playlist.
func (h PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createPlaylistRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	name := sanitizeText(req.Name)
	if name == "" {
		respondError(ctx, w, badRequest("name is required"))
		return
	}

	now := time.Now()
	if h.NowFunc != nil {
		now = h.NowFunc()
	}
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		Name:        name,
		Description: sanitizeText(req.Description),
		OwnerID:     viewerID(ctx),
		VideoIDs:    []string{},
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := h.Playlists.Create(ctx, playlist); err != nil {
		respondError(ctx, w, storeError(err, "Playlist"))
		return
	}
	h.respondDetail(ctx, w, http.StatusCreated, playlist.ID, "Playlist created successfully")
}

// Mine handles GET /playlist.
func (h PlaylistHandler) Mine(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, viewerID(r.Context()))
}

// ByUser handles GET /playlist/user/{userID}.
func (h PlaylistHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	h.listFor(w, r, userID)
}

func (h PlaylistHandler) listFor(w http.ResponseWriter, r *http.Request, ownerID string) {
	ctx := r.Context()
	playlists, err := h.Catalog.UserPlaylists(ctx, ownerID)
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	if playlists == nil {
		playlists = []models.PlaylistDetail{}
	}
	respondSuccess(ctx, w, http.StatusOK, playlists, "Playlists fetched successfully")
}

// Get handles GET /playlist/{playlistID}.
func (h PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID, err := pathID(r, "playlistID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	h.respondDetail(ctx, w, http.StatusOK, playlistID, "Playlist fetched successfully")
}

// Update handles PATCH /playlist/{playlistID}.
func (h PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, err := pathID(r, "playlistID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req updatePlaylistRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	var patch models.PlaylistPatch
	if req.Name != nil {
		name := sanitizeText(*req.Name)
		if name == "" {
			respondError(ctx, w, badRequest("name cannot be empty"))
			return
		}
		patch.Name = &name
	}
	if req.Description != nil {
		description := sanitizeText(*req.Description)
		patch.Description = &description
	}
	if patch.Empty() {
		respondError(ctx, w, badRequest("nothing to update"))
		return
	}

	if err := h.authorize(ctx, playlistID); err != nil {
		respondError(ctx, w, err)
		return
	}
	if _, err := h.Playlists.Update(ctx, playlistID, viewerID(ctx), patch); err != nil {
		respondError(ctx, w, storeError(err, "Playlist"))
		return
	}
	h.respondDetail(ctx, w, http.StatusOK, playlistID, "Playlist updated successfully")
}

// Delete handles DELETE /playlist/{playlistID}.
func (h PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, err := pathID(r, "playlistID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(ctx, playlistID); err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.Playlists.Delete(ctx, playlistID, viewerID(ctx)); err != nil {
		respondError(ctx, w, storeError(err, "Playlist"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, nil, "Playlist deleted successfully")
}

// AddVideo handles PATCH /playlist/add/{videoID}/{playlistID}. Only published videos can be
// added, and a video appears in a playlist at most once.
func (h PlaylistHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, playlistID, err := membershipIDs(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(ctx, playlistID); err != nil {
		respondError(ctx, w, err)
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	if !video.IsPublished {
		respondError(ctx, w, badRequest("Only published videos can be added to a playlist"))
		return
	}

	if _, err := h.Playlists.AddVideo(ctx, playlistID, viewerID(ctx), videoID); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, conflict("Video already exists in playlist"))
			return
		}
		respondError(ctx, w, storeError(err, "Playlist"))
		return
	}
	h.respondDetail(ctx, w, http.StatusOK, playlistID, "Video added to playlist successfully")
}

// RemoveVideo handles PATCH /playlist/remove/{videoID}/{playlistID}.
func (h PlaylistHandler) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, playlistID, err := membershipIDs(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(ctx, playlistID); err != nil {
		respondError(ctx, w, err)
		return
	}

	if _, err := h.Playlists.RemoveVideo(ctx, playlistID, viewerID(ctx), videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, notFound("Video not found in playlist"))
			return
		}
		respondError(ctx, w, err)
		return
	}
	h.respondDetail(ctx, w, http.StatusOK, playlistID, "Video removed from playlist successfully")
}

func membershipIDs(r *http.Request) (string, string, error) {
	videoID, err := pathID(r, "videoID")
	if err != nil {
		return "", "", err
	}
	playlistID, err := pathID(r, "playlistID")
	if err != nil {
		return "", "", err
	}
	return videoID, playlistID, nil
}

func (h PlaylistHandler) authorize(ctx context.Context, playlistID string) error {
	playlist, err := h.Playlists.FindByID(ctx, playlistID)
	if err != nil {
		return storeError(err, "Playlist")
	}
	if playlist.OwnerID != viewerID(ctx) {
		logging.FromContext(ctx).Warn("playlist mutation by non-owner", "playlistId", playlistID)
		return forbidden("You are not allowed to modify this playlist")
	}
	return nil
}

func (h PlaylistHandler) respondDetail(ctx context.Context, w http.ResponseWriter, status int, playlistID, message string) {
	detail, err := h.Catalog.PlaylistDetail(ctx, playlistID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Playlist"))
		return
	}
	respondSuccess(ctx, w, status, detail, message)
}
