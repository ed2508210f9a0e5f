package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

// CommentHandler implements comment listing and owner-scoped comment mutations.
type CommentHandler struct {
	Comments CommentStore
	Videos   VideoStore
	Catalog  Catalog
	NowFunc  func() time.Time
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// List handles GET /comment/{videoID}.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	params, err := query.Parse(r.URL.Query(), query.CommentSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if _, err := h.Videos.FindByID(ctx, videoID); err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}

	page, err := h.Catalog.ListComments(ctx, videoID, params)
	if err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Comments fetched successfully")
}

// Create handles POST /comment/{videoID}.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	content, err := decodeContent(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if _, err := h.Videos.FindByID(ctx, videoID); err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}

	now := time.Now()
	if h.NowFunc != nil {
		now = h.NowFunc()
	}
	comment := models.Comment{
		ID:        uuid.NewString(),
		Content:   content,
		VideoID:   videoID,
		OwnerID:   viewerID(ctx),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := h.Comments.Create(ctx, comment); err != nil {
		respondError(ctx, w, storeError(err, "Video"))
		return
	}
	respondSuccess(ctx, w, http.StatusCreated, comment, "Comment added successfully")
}

// Update handles PATCH /comment/c/{commentID}.
func (h CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commentID, err := pathID(r, "commentID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	content, err := decodeContent(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.authorize(r, commentID); err != nil {
		respondError(ctx, w, err)
		return
	}

	updated, err := h.Comments.Update(ctx, commentID, viewerID(ctx), content)
	if err != nil {
		respondError(ctx, w, storeError(err, "Comment"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, "Comment updated successfully")
}

// Delete handles DELETE /comment/c/{commentID}.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commentID, err := pathID(r, "commentID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(r, commentID); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Comments.Delete(ctx, commentID, viewerID(ctx)); err != nil {
		respondError(ctx, w, storeError(err, "Comment"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, nil, "Comment deleted successfully")
}

func (h CommentHandler) authorize(r *http.Request, commentID string) error {
	ctx := r.Context()
	comment, err := h.Comments.FindByID(ctx, commentID)
	if err != nil {
		return storeError(err, "Comment")
	}
	if comment.OwnerID != viewerID(ctx) {
		logging.FromContext(ctx).Warn("comment mutation by non-owner", "commentId", commentID)
		return forbidden("You are not allowed to modify this comment")
	}
	return nil
}

// decodeContent reads a {"content": "..."} body and returns the sanitized text.
func decodeContent(r *http.Request) (string, error) {
	var req commentRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return "", err
	}
	content := sanitizeText(req.Content)
	if content == "" {
		return "", badRequest("content is required")
	}
	return content, nil
}
