package models

import "time"

// User represents an account within the VideoStream platform.
type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	EmailVerified bool      `json:"emailVerified"`
	GoogleID      string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserSummary is the public projection of a user embedded into other read models.
type UserSummary struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"fullName"`
	AvatarURL     string `json:"avatar"`
	CoverImageURL string `json:"coverImage,omitempty"`
}

// Video is an uploaded video owned by a user.
type Video struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	VideoURL        string    `json:"videoFile"`
	ThumbnailURL    string    `json:"thumbnail"`
	DurationSeconds float64   `json:"duration"`
	Views           int64     `json:"views"`
	IsPublished     bool      `json:"isPublished"`
	OwnerID         string    `json:"ownerId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// VideoPatch carries the fields of a partial video update. Nil fields are left unchanged.
type VideoPatch struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

// Empty reports whether the patch changes nothing.
func (p VideoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ThumbnailURL == nil
}

// VideoFilter narrows a video listing.
type VideoFilter struct {
	// Query is matched case-insensitively against the title.
	Query   string
	OwnerID string
	// IncludeUnpublished lifts the default published-only restriction.
	IncludeUnpublished bool
}

// VideoWithOwner is a video joined with its owner's summary.
type VideoWithOwner struct {
	Video
	Owner UserSummary `json:"owner"`
}

// VideoDetail is the single-video read model, optionally annotated for a viewer.
type VideoDetail struct {
	VideoWithOwner
	LikesCount       int64 `json:"likesCount"`
	SubscribersCount int64 `json:"subscribersCount"`
	IsLiked          bool  `json:"isLiked"`
	IsSubscribed     bool  `json:"isSubscribed"`
}

// Comment is a text comment attached to a video.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	VideoID   string    `json:"videoId"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommentWithOwner is a comment joined with its author and like count.
type CommentWithOwner struct {
	Comment
	Owner      UserSummary `json:"owner"`
	LikesCount int64       `json:"likesCount"`
}

// Tweet is a short text post on a user's channel.
type Tweet struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TweetWithOwner is a tweet joined with its author and like count.
type TweetWithOwner struct {
	Tweet
	Owner      UserSummary `json:"owner"`
	LikesCount int64       `json:"likesCount"`
}

// LikeKind identifies the entity type a like points at.
type LikeKind string

const (
	LikeVideo   LikeKind = "video"
	LikeComment LikeKind = "comment"
	LikeTweet   LikeKind = "tweet"
)

// Valid reports whether k is a known like target type.
func (k LikeKind) Valid() bool {
	switch k {
	case LikeVideo, LikeComment, LikeTweet:
		return true
	}
	return false
}

// LikeTarget points a like at exactly one video, comment or tweet.
type LikeTarget struct {
	Kind LikeKind
	ID   string
}

// Like records that a user liked a target.
type Like struct {
	ID        string     `json:"id"`
	LikedBy   string     `json:"likedBy"`
	Target    LikeTarget `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Subscription is a subscriber to channel edge.
type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber"`
	ChannelID    string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Playlist is an owned, ordered collection of videos.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	VideoIDs    []string  `json:"videos"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlaylistPatch carries the fields of a partial playlist update.
type PlaylistPatch struct {
	Name        *string
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p PlaylistPatch) Empty() bool {
	return p.Name == nil && p.Description == nil
}

// PlaylistDetail is a playlist joined with its owner and video summaries.
type PlaylistDetail struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Owner       UserSummary      `json:"owner"`
	Videos      []VideoWithOwner `json:"videos"`
	TotalVideos int              `json:"totalVideos"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// OTP is a one-time code issued for email verification or similar purposes.
// Only a hash of the code is stored.
type OTP struct {
	ID        string
	Email     string
	Purpose   string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// ChannelProfile is the flattened channel view returned by the profile aggregation.
type ChannelProfile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	FullName          string    `json:"fullName"`
	Email             string    `json:"email"`
	AvatarURL         string    `json:"avatar"`
	CoverImageURL     string    `json:"coverImage"`
	SubscribersCount  int64     `json:"subscribersCount"`
	SubscribedToCount int64     `json:"channelsSubscribedToCount"`
	IsSubscribed      bool      `json:"isSubscribed"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ChannelStats aggregates a creator's totals for the dashboard.
type ChannelStats struct {
	TotalVideos      int64 `json:"totalVideos"`
	TotalViews       int64 `json:"totalViews"`
	TotalSubscribers int64 `json:"totalSubscribers"`
	TotalLikes       int64 `json:"totalLikes"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}
