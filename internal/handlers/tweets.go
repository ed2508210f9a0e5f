package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
)

// TweetHandler implements channel tweets.
type TweetHandler struct {
	Tweets  TweetStore
	Catalog Catalog
	NowFunc func() time.Time
}

// List handles GET /tweet.
func (h TweetHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

// ListByUser handles GET /tweet/user/{userID}.
func (h TweetHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	h.list(w, r, userID)
}

func (h TweetHandler) list(w http.ResponseWriter, r *http.Request, ownerID string) {
	ctx := r.Context()
	tweets, err := h.Catalog.ListTweets(ctx, ownerID)
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	if tweets == nil {
		tweets = []models.TweetWithOwner{}
	}
	respondSuccess(ctx, w, http.StatusOK, tweets, "Tweets fetched successfully")
}

// Create handles POST /tweet.
func (h TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	content, err := decodeContent(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	now := time.Now()
	if h.NowFunc != nil {
		now = h.NowFunc()
	}
	tweet := models.Tweet{
		ID:        uuid.NewString(),
		Content:   content,
		OwnerID:   viewerID(ctx),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := h.Tweets.Create(ctx, tweet); err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	respondSuccess(ctx, w, http.StatusCreated, tweet, "Tweet created successfully")
}

// Update handles PATCH /tweet/{tweetID}.
func (h TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweetID, err := pathID(r, "tweetID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	content, err := decodeContent(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(r, tweetID); err != nil {
		respondError(ctx, w, err)
		return
	}

	updated, err := h.Tweets.Update(ctx, tweetID, viewerID(ctx), content)
	if err != nil {
		respondError(ctx, w, storeError(err, "Tweet"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, "Tweet updated successfully")
}

// Delete handles DELETE /tweet/{tweetID}.
func (h TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweetID, err := pathID(r, "tweetID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.authorize(r, tweetID); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Tweets.Delete(ctx, tweetID, viewerID(ctx)); err != nil {
		respondError(ctx, w, storeError(err, "Tweet"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, nil, "Tweet deleted successfully")
}

func (h TweetHandler) authorize(r *http.Request, tweetID string) error {
	ctx := r.Context()
	tweet, err := h.Tweets.FindByID(ctx, tweetID)
	if err != nil {
		return storeError(err, "Tweet")
	}
	if tweet.OwnerID != viewerID(ctx) {
		logging.FromContext(ctx).Warn("tweet mutation by non-owner", "tweetId", tweetID)
		return forbidden("You are not allowed to modify this tweet")
	}
	return nil
}
