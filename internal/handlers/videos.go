package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/media"
	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

// VideoHandler implements the video catalogue endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Users          UserStore
	Catalog        Catalog
	Storage        MediaStorage
	Probe          DurationProbe
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type publishVideoForm struct {
	Title       string `form:"title" validate:"required,max=200"`
	Description string `form:"description" validate:"required,max=5000"`
}

type updateVideoRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now()
}

// List handles GET /video. Only published videos are listed.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	values := r.URL.Query()
	params, err := query.Parse(values, query.VideoSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	filter := models.VideoFilter{Query: strings.TrimSpace(values.Get("query"))}
	if owner := strings.TrimSpace(values.Get("userId")); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			respondError(ctx, w, badRequest("invalid userId"))
			return
		}
		filter.OwnerID = id.String()
	}

	page, err := h.Catalog.ListVideos(ctx, filter, params)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Videos fetched successfully")
}

// Publish handles POST /video/publish. Both the video file and the thumbnail are required.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err)
		return
	}

	form := publishVideoForm{
		Title:       sanitizeText(formValue(r, "title")),
		Description: sanitizeText(formValue(r, "description")),
	}
	if err := validate(&form); err != nil {
		respondError(ctx, w, err)
		return
	}

	videoFile := formFile(r, "videoFile")
	if videoFile == nil {
		respondError(ctx, w, badRequest("videoFile is required"))
		return
	}
	thumbnailFile := formFile(r, "thumbnail")
	if thumbnailFile == nil {
		respondError(ctx, w, badRequest("thumbnail is required"))
		return
	}

	staged, err := stageFile(videoFile)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	defer staged.remove()

	duration, err := h.Probe.Duration(ctx, staged.path)
	if err != nil {
		if errors.Is(err, media.ErrProbeUnavailable) {
			respondError(ctx, w, err)
			return
		}
		logger.Warn("video probe failed", "filename", videoFile.Filename, "error", err)
		respondError(ctx, w, badRequest("videoFile is not a readable video"))
		return
	}

	videoURL, err := staged.upload(ctx, h.Storage, "videos")
	if err != nil {
		logger.Error("video upload failed", "error", err)
		respondError(ctx, w, internalError("failed to upload video"))
		return
	}
	thumbnailURL, err := uploadFile(ctx, h.Storage, "thumbnails", thumbnailFile)
	if err != nil {
		logger.Error("thumbnail upload failed", "error", err)
		releaseUploads(ctx, h.Storage, videoURL)
		respondError(ctx, w, internalError("failed to upload thumbnail"))
		return
	}

	now := h.now().UTC()
	video := models.Video{
		ID:              uuid.NewString(),
		Title:           form.Title,
		Description:     form.Description,
		VideoURL:        videoURL,
		ThumbnailURL:    thumbnailURL,
		DurationSeconds: duration,
		IsPublished:     true,
		OwnerID:         viewerID(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.Videos.Create(ctx, video); err != nil {
		releaseUploads(ctx, h.Storage, videoURL, thumbnailURL)
		respondError(ctx, w, storeError(err, "Video"))
		return
	}

	logger.Info("video published", "videoId", video.ID, "duration", duration)
	respondSuccess(ctx, w, http.StatusCreated, video, "Video published successfully")
}

// Get handles GET /video/{videoID}. Every successful fetch counts as a view; authenticated
// viewers also get the video added to their watch history.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	viewer := viewerID(ctx)

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	if !video.IsPublished && video.OwnerID != viewer {
		respondError(ctx, w, notFound("Video not found"))
		return
	}

	if _, err := h.Videos.RecordView(ctx, videoID); err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	metrics.ObserveVideoView()

	if viewer != "" {
		if err := h.Users.AddToWatchHistory(ctx, viewer, videoID, h.now()); err != nil {
			respondError(ctx, w, storeError(err, "Video"))
			return
		}
	}

	detail, err := h.Catalog.VideoDetail(ctx, videoID, viewer)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, detail, "Video fetched successfully")
}

// Update handles PATCH /video/{videoID}. It accepts either JSON or a multipart form carrying
// a replacement thumbnail. Only supplied fields change.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req updateVideoRequest
	var thumbnail *multipart.FileHeader
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
			respondError(ctx, w, err)
			return
		}
		req.Title = optionalFormValue(r, "title")
		req.Description = optionalFormValue(r, "description")
		thumbnail = formFile(r, "thumbnail")
		if err := validate(&req); err != nil {
			respondError(ctx, w, err)
			return
		}
	} else if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	var patch models.VideoPatch
	if req.Title != nil {
		title := sanitizeText(*req.Title)
		if title == "" {
			respondError(ctx, w, badRequest("title cannot be empty"))
			return
		}
		patch.Title = &title
	}
	if req.Description != nil {
		description := sanitizeText(*req.Description)
		patch.Description = &description
	}
	if patch.Empty() && thumbnail == nil {
		respondError(ctx, w, badRequest("nothing to update"))
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	if video.OwnerID != viewerID(ctx) {
		logger.Warn("video update by non-owner", "videoId", videoID)
		respondError(ctx, w, forbidden("You are not allowed to edit this video"))
		return
	}

	if thumbnail != nil {
		location, err := uploadFile(ctx, h.Storage, "thumbnails", thumbnail)
		if err != nil {
			logger.Error("thumbnail upload failed", "error", err)
			respondError(ctx, w, internalError("failed to upload thumbnail"))
			return
		}
		patch.ThumbnailURL = &location
	}

	updated, err := h.Videos.Update(ctx, videoID, video.OwnerID, patch)
	if err != nil {
		if patch.ThumbnailURL != nil {
			releaseUploads(ctx, h.Storage, *patch.ThumbnailURL)
		}
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, "Video updated successfully")
}

// Delete handles DELETE /video/{videoID}. The backing files are released after the row is gone.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	if video.OwnerID != viewerID(ctx) {
		logger.Warn("video delete by non-owner", "videoId", videoID)
		respondError(ctx, w, forbidden("You are not allowed to delete this video"))
		return
	}

	deleted, err := h.Videos.Delete(ctx, videoID, video.OwnerID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}

	for _, location := range []string{deleted.VideoURL, deleted.ThumbnailURL} {
		if err := h.Storage.Delete(ctx, location); err != nil {
			logger.Error("failed to release video asset", "videoId", videoID, "location", location, "error", err)
			respondError(ctx, w, internalError("failed to delete video files"))
			return
		}
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Video deleted successfully")
}

// TogglePublish handles PATCH /video/toggle/publish/{videoID}.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	if video.OwnerID != viewerID(ctx) {
		respondError(ctx, w, forbidden("You are not allowed to modify this video"))
		return
	}

	updated, err := h.Videos.TogglePublish(ctx, videoID, video.OwnerID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, "Video publish status toggled")
}
