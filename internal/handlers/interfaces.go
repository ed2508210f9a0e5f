package handlers

import (
	"context"
	"io"
	"time"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

// UserStore captures the persistence operations required by the account handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIdentifier(ctx context.Context, username, email string) (models.User, error)
	FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (models.User, error)
	UpdateAccount(ctx context.Context, id, fullName, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAvatar(ctx context.Context, id, url string) (models.User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (models.User, error)
	LinkGoogle(ctx context.Context, id, googleID, avatarURL string) (models.User, error)
	MarkEmailVerified(ctx context.Context, email string) error
	AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error
}

// SessionManager issues, rotates and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID string) error
}

// TokenVerifier resolves an access token to the user it was issued for.
type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// OTPService issues and checks one-time email codes.
type OTPService interface {
	Send(ctx context.Context, email, purpose string) error
	Verify(ctx context.Context, email, code, purpose string) error
}

// IdentityVerifier validates an external identity provider's id token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (auth.Identity, error)
}

// VideoStore captures video persistence. Mutations are scoped to the owner.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	RecordView(ctx context.Context, id string) (models.Video, error)
	Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (models.Video, error)
	TogglePublish(ctx context.Context, id, ownerID string) (models.Video, error)
	Delete(ctx context.Context, id, ownerID string) (models.Video, error)
}

// CommentStore captures comment persistence. Mutations are scoped to the owner.
type CommentStore interface {
	Create(ctx context.Context, comment models.Comment) error
	FindByID(ctx context.Context, id string) (models.Comment, error)
	Update(ctx context.Context, id, ownerID, content string) (models.Comment, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// TweetStore captures tweet persistence. Mutations are scoped to the owner.
type TweetStore interface {
	Create(ctx context.Context, tweet models.Tweet) error
	FindByID(ctx context.Context, id string) (models.Tweet, error)
	Update(ctx context.Context, id, ownerID, content string) (models.Tweet, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// PlaylistStore captures playlist persistence. Mutations are scoped to the owner.
type PlaylistStore interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindByID(ctx context.Context, id string) (models.Playlist, error)
	Update(ctx context.Context, id, ownerID string, patch models.PlaylistPatch) (models.Playlist, error)
	Delete(ctx context.Context, id, ownerID string) error
	AddVideo(ctx context.Context, playlistID, ownerID, videoID string) (models.Playlist, error)
	RemoveVideo(ctx context.Context, playlistID, ownerID, videoID string) (models.Playlist, error)
}

// LikeStore toggles likes and reports whether the target is liked afterwards.
type LikeStore interface {
	Toggle(ctx context.Context, userID string, target models.LikeTarget) (bool, error)
}

// SubscriptionStore toggles subscriptions and reports whether the edge exists afterwards.
type SubscriptionStore interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
}

// Catalog is the read side: listings and aggregates joined with owner summaries.
type Catalog interface {
	ListVideos(ctx context.Context, filter models.VideoFilter, p query.Params) (query.Page[models.VideoWithOwner], error)
	ChannelVideos(ctx context.Context, channelID string, p query.Params) (query.Page[models.VideoWithOwner], error)
	VideoDetail(ctx context.Context, videoID, viewerID string) (models.VideoDetail, error)
	LikedVideos(ctx context.Context, userID string, p query.Params) (query.Page[models.VideoWithOwner], error)
	WatchHistory(ctx context.Context, userID string) ([]models.VideoWithOwner, error)
	ListComments(ctx context.Context, videoID string, p query.Params) (query.Page[models.CommentWithOwner], error)
	ListTweets(ctx context.Context, ownerID string) ([]models.TweetWithOwner, error)
	ChannelSubscribers(ctx context.Context, channelID string, p query.Params) (query.Page[models.UserSummary], error)
	SubscribedChannels(ctx context.Context, subscriberID string, p query.Params) (query.Page[models.UserSummary], error)
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
	ChannelStats(ctx context.Context, ownerID string) (models.ChannelStats, error)
	PlaylistDetail(ctx context.Context, playlistID string) (models.PlaylistDetail, error)
	UserPlaylists(ctx context.Context, ownerID string) ([]models.PlaylistDetail, error)
}

// MediaStorage persists uploaded files and releases them by the location it returned.
type MediaStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, location string) error
}

// DurationProbe reports the playback length of a local media file in seconds.
type DurationProbe interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
