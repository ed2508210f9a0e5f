package handlers

import (
	"context"
	"net/http"

	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

// LikeHandler toggles likes on videos, comments and tweets.
type LikeHandler struct {
	Likes    LikeStore
	Videos   VideoStore
	Comments CommentStore
	Tweets   TweetStore
	Catalog  Catalog
}

type likeResponse struct {
	IsLiked bool `json:"isLiked"`
}

// ToggleVideo handles POST /like/toggle/v/{videoID}.
func (h LikeHandler) ToggleVideo(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, models.LikeVideo, "videoID", func(ctx context.Context, id string) error {
		_, err := h.Videos.FindByID(ctx, id)
		return storeError(err, "Video")
	})
}

// ToggleComment handles POST /like/toggle/c/{commentID}.
func (h LikeHandler) ToggleComment(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, models.LikeComment, "commentID", func(ctx context.Context, id string) error {
		_, err := h.Comments.FindByID(ctx, id)
		return storeError(err, "Comment")
	})
}

// ToggleTweet handles POST /like/toggle/t/{tweetID}.
func (h LikeHandler) ToggleTweet(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, models.LikeTweet, "tweetID", func(ctx context.Context, id string) error {
		_, err := h.Tweets.FindByID(ctx, id)
		return storeError(err, "Tweet")
	})
}

func (h LikeHandler) toggle(w http.ResponseWriter, r *http.Request, kind models.LikeKind, param string, exists func(context.Context, string) error) {
	ctx := r.Context()

	id, err := pathID(r, param)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := exists(ctx, id); err != nil {
		respondError(ctx, w, err)
		return
	}

	liked, err := h.Likes.Toggle(ctx, viewerID(ctx), models.LikeTarget{Kind: kind, ID: id})
	if err != nil {
		respondError(ctx, w, storeError(err, "Like target"))
		return
	}
	metrics.ObserveToggle("like_"+string(kind), liked)

	message := "Unliked successfully"
	if liked {
		message = "Liked successfully"
	}
	respondSuccess(ctx, w, http.StatusOK, likeResponse{IsLiked: liked}, message)
}

// LikedVideos handles GET /like/videos. Only currently published videos are listed and the
// total counts that subset.
func (h LikeHandler) LikedVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := query.Parse(r.URL.Query(), query.VideoSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	page, err := h.Catalog.LikedVideos(ctx, viewerID(ctx), params)
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Liked videos fetched successfully")
}
