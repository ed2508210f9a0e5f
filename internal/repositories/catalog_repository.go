package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

// PostgresCatalog is the read side: listings, joins with owner summaries and aggregate counts.
// It never mutates.
type PostgresCatalog struct {
	pool db.Pool
}

// NewPostgresCatalog constructs the read-side query layer backed by PostgreSQL.
func NewPostgresCatalog(pool db.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

const videoFilterClause = `
    WHERE ($1 = '' OR v.title ILIKE '%' || $1 || '%')
      AND ($2 = '' OR v.owner_id = $2)
      AND ($3::BOOL OR v.is_published)`

// ListVideos returns a page of videos with owner summaries. Unpublished videos are
// excluded unless the filter asks for them.
func (c *PostgresCatalog) ListVideos(ctx context.Context, filter models.VideoFilter, p query.Params) (query.Page[models.VideoWithOwner], error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	args := []any{escapeLike(filter.Query), filter.OwnerID, filter.IncludeUnpublished}

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM videos v`+videoFilterClause, args...).Scan(&total); err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("count videos: %w", err)
	}

	items, err := queryVideosWithOwner(ctx, conn, `
        SELECT `+columns("v", videoFields)+`, `+columns("u", summaryFields)+`
        FROM videos v
        JOIN users u ON u.id = v.owner_id`+videoFilterClause+`
        ORDER BY `+p.OrderBy("v.id")+`
        LIMIT $4 OFFSET $5`, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return query.Page[models.VideoWithOwner]{}, err
	}

	return query.NewPage(items, p, total), nil
}

// ChannelVideos lists the published videos of a channel, failing with ErrNotFound for an unknown channel.
func (c *PostgresCatalog) ChannelVideos(ctx context.Context, channelID string, p query.Params) (query.Page[models.VideoWithOwner], error) {
	if err := c.requireUser(ctx, channelID); err != nil {
		return query.Page[models.VideoWithOwner]{}, err
	}
	return c.ListVideos(ctx, models.VideoFilter{OwnerID: channelID}, p)
}

// VideoDetail joins a video with its owner and like and subscriber counts. When viewerID is
// set the result says whether the viewer likes the video and follows its owner.
func (c *PostgresCatalog) VideoDetail(ctx context.Context, videoID, viewerID string) (models.VideoDetail, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var detail models.VideoDetail
	dest := append(videoDest(&detail.Video), summaryDest(&detail.Owner)...)
	dest = append(dest, &detail.LikesCount, &detail.SubscribersCount, &detail.IsLiked, &detail.IsSubscribed)

	err = conn.QueryRow(ctx, `
        SELECT `+columns("v", videoFields)+`, `+columns("u", summaryFields)+`,
            (SELECT COUNT(*) FROM likes l WHERE l.target_type = 'video' AND l.target_id = v.id),
            (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = v.owner_id),
            EXISTS (SELECT 1 FROM likes l WHERE l.target_type = 'video' AND l.target_id = v.id AND l.liked_by = $2),
            EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = v.owner_id AND s.subscriber_id = $2)
        FROM videos v
        JOIN users u ON u.id = v.owner_id
        WHERE v.id = $1
    `, videoID, viewerID).Scan(dest...)
	if err != nil {
		return models.VideoDetail{}, storeError("select video detail", err)
	}
	return detail, nil
}

// LikedVideos collects the videos a user liked, then pages through the published subset.
// The total counts only published videos.
func (c *PostgresCatalog) LikedVideos(ctx context.Context, userID string, p query.Params) (query.Page[models.VideoWithOwner], error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT target_id FROM likes
        WHERE liked_by = $1 AND target_type = 'video'
    `, userID)
	if err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("query liked video ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return query.Page[models.VideoWithOwner]{}, fmt.Errorf("scan liked video id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("iterate liked video ids: %w", err)
	}
	if len(ids) == 0 {
		return query.NewPage[models.VideoWithOwner](nil, p, 0), nil
	}

	var total int64
	if err := conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM videos v
        WHERE v.id = ANY($1) AND v.is_published
    `, ids).Scan(&total); err != nil {
		return query.Page[models.VideoWithOwner]{}, fmt.Errorf("count liked videos: %w", err)
	}

	items, err := queryVideosWithOwner(ctx, conn, `
        SELECT `+columns("v", videoFields)+`, `+columns("u", summaryFields)+`
        FROM videos v
        JOIN users u ON u.id = v.owner_id
        WHERE v.id = ANY($1) AND v.is_published
        ORDER BY `+p.OrderBy("v.id")+`
        LIMIT $2 OFFSET $3`, ids, p.Limit, p.Offset())
	if err != nil {
		return query.Page[models.VideoWithOwner]{}, err
	}
	return query.NewPage(items, p, total), nil
}

// WatchHistory returns the videos a user watched, most recent first. Videos that have since
// been unpublished are hidden unless the user owns them.
func (c *PostgresCatalog) WatchHistory(ctx context.Context, userID string) ([]models.VideoWithOwner, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	items, err := queryVideosWithOwner(ctx, conn, `
        SELECT `+columns("v", videoFields)+`, `+columns("u", summaryFields)+`
        FROM watch_history h
        JOIN videos v ON v.id = h.video_id
        JOIN users u ON u.id = v.owner_id
        WHERE h.user_id = $1 AND (v.is_published OR v.owner_id = $1)
        ORDER BY h.watched_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.VideoWithOwner{}
	}
	return items, nil
}

// ListComments pages through a video's comments with authors and like counts.
func (c *PostgresCatalog) ListComments(ctx context.Context, videoID string, p query.Params) (query.Page[models.CommentWithOwner], error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return query.Page[models.CommentWithOwner]{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, videoID).Scan(&exists); err != nil {
		return query.Page[models.CommentWithOwner]{}, fmt.Errorf("select video: %w", err)
	}
	if !exists {
		return query.Page[models.CommentWithOwner]{}, ErrNotFound
	}

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM comments WHERE video_id = $1`, videoID).Scan(&total); err != nil {
		return query.Page[models.CommentWithOwner]{}, fmt.Errorf("count comments: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT `+columns("c", commentFields)+`, `+columns("u", summaryFields)+`,
            (SELECT COUNT(*) FROM likes l WHERE l.target_type = 'comment' AND l.target_id = c.id)
        FROM comments c
        JOIN users u ON u.id = c.owner_id
        WHERE c.video_id = $1
        ORDER BY `+p.OrderBy("c.id")+`
        LIMIT $2 OFFSET $3
    `, videoID, p.Limit, p.Offset())
	if err != nil {
		return query.Page[models.CommentWithOwner]{}, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var items []models.CommentWithOwner
	for rows.Next() {
		var item models.CommentWithOwner
		dest := append(commentDest(&item.Comment), summaryDest(&item.Owner)...)
		if err := rows.Scan(append(dest, &item.LikesCount)...); err != nil {
			return query.Page[models.CommentWithOwner]{}, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return query.Page[models.CommentWithOwner]{}, fmt.Errorf("iterate comments: %w", err)
	}
	return query.NewPage(items, p, total), nil
}

// ListTweets returns tweets newest first with authors and like counts. An empty ownerID lists
// every tweet; an unknown owner yields ErrNotFound.
func (c *PostgresCatalog) ListTweets(ctx context.Context, ownerID string) ([]models.TweetWithOwner, error) {
	if ownerID != "" {
		if err := c.requireUser(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+columns("t", tweetFields)+`, `+columns("u", summaryFields)+`,
            (SELECT COUNT(*) FROM likes l WHERE l.target_type = 'tweet' AND l.target_id = t.id)
        FROM tweets t
        JOIN users u ON u.id = t.owner_id
        WHERE $1 = '' OR t.owner_id = $1
        ORDER BY t.created_at DESC, t.id DESC
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query tweets: %w", err)
	}
	defer rows.Close()

	items := []models.TweetWithOwner{}
	for rows.Next() {
		var item models.TweetWithOwner
		dest := append(tweetDest(&item.Tweet), summaryDest(&item.Owner)...)
		if err := rows.Scan(append(dest, &item.LikesCount)...); err != nil {
			return nil, fmt.Errorf("scan tweet: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tweets: %w", err)
	}
	return items, nil
}

// ChannelSubscribers pages through the users subscribed to channelID.
func (c *PostgresCatalog) ChannelSubscribers(ctx context.Context, channelID string, p query.Params) (query.Page[models.UserSummary], error) {
	return c.subscriptionPage(ctx, channelID, p, "s.channel_id", "s.subscriber_id")
}

// SubscribedChannels pages through the channels subscriberID follows.
func (c *PostgresCatalog) SubscribedChannels(ctx context.Context, subscriberID string, p query.Params) (query.Page[models.UserSummary], error) {
	return c.subscriptionPage(ctx, subscriberID, p, "s.subscriber_id", "s.channel_id")
}

// subscriptionPage lists the counterpart users of the subscription edges where filterColumn = userID.
func (c *PostgresCatalog) subscriptionPage(ctx context.Context, userID string, p query.Params, filterColumn, joinColumn string) (query.Page[models.UserSummary], error) {
	if err := c.requireUser(ctx, userID); err != nil {
		return query.Page[models.UserSummary]{}, err
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return query.Page[models.UserSummary]{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions s WHERE `+filterColumn+` = $1`, userID).Scan(&total); err != nil {
		return query.Page[models.UserSummary]{}, fmt.Errorf("count subscriptions: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT `+columns("u", summaryFields)+`, u.cover_image_url
        FROM subscriptions s
        JOIN users u ON u.id = `+joinColumn+`
        WHERE `+filterColumn+` = $1
        ORDER BY `+p.OrderBy("s.id")+`
        LIMIT $2 OFFSET $3
    `, userID, p.Limit, p.Offset())
	if err != nil {
		return query.Page[models.UserSummary]{}, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var items []models.UserSummary
	for rows.Next() {
		var item models.UserSummary
		if err := rows.Scan(append(summaryDest(&item), &item.CoverImageURL)...); err != nil {
			return query.Page[models.UserSummary]{}, fmt.Errorf("scan subscription user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return query.Page[models.UserSummary]{}, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return query.NewPage(items, p, total), nil
}

// ChannelProfile resolves a username and counts the channel's subscribers and subscriptions.
func (c *PostgresCatalog) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	ctx, op := logging.StartOperation(ctx, "channel_profile")
	defer op.End()

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var profile models.ChannelProfile
	err = conn.QueryRow(ctx, `
        SELECT u.id, u.username, u.full_name, u.email, u.avatar_url, u.cover_image_url, u.created_at,
            (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
            (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
            EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
        FROM users u
        WHERE u.username = $1
    `, normalize(username), viewerID).Scan(
		&profile.ID, &profile.Username, &profile.FullName, &profile.Email, &profile.AvatarURL,
		&profile.CoverImageURL, &profile.CreatedAt, &profile.SubscribersCount,
		&profile.SubscribedToCount, &profile.IsSubscribed,
	)
	if err != nil {
		return models.ChannelProfile{}, storeError("select channel profile", err)
	}
	return profile, nil
}

// ChannelStats totals an owner's videos, views, subscribers and likes received on videos.
func (c *PostgresCatalog) ChannelStats(ctx context.Context, ownerID string) (models.ChannelStats, error) {
	ctx, op := logging.StartOperation(ctx, "channel_stats")
	defer op.End()

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return models.ChannelStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var stats models.ChannelStats
	err = conn.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM videos WHERE owner_id = $1),
            (SELECT COALESCE(SUM(views), 0)::BIGINT FROM videos WHERE owner_id = $1),
            (SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1),
            (SELECT COUNT(*) FROM likes l JOIN videos v ON l.target_type = 'video' AND l.target_id = v.id WHERE v.owner_id = $1)
    `, ownerID).Scan(&stats.TotalVideos, &stats.TotalViews, &stats.TotalSubscribers, &stats.TotalLikes)
	if err != nil {
		return models.ChannelStats{}, fmt.Errorf("select channel stats: %w", err)
	}
	return stats, nil
}

// PlaylistDetail joins a playlist with its owner and the published videos it contains.
func (c *PostgresCatalog) PlaylistDetail(ctx context.Context, playlistID string) (models.PlaylistDetail, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return models.PlaylistDetail{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	details, err := c.playlistDetails(ctx, conn, `WHERE p.id = $1`, playlistID)
	if err != nil {
		return models.PlaylistDetail{}, err
	}
	if len(details) == 0 {
		return models.PlaylistDetail{}, ErrNotFound
	}
	return details[0], nil
}

// UserPlaylists lists a user's playlists newest first, failing with ErrNotFound for an unknown user.
func (c *PostgresCatalog) UserPlaylists(ctx context.Context, ownerID string) ([]models.PlaylistDetail, error) {
	if err := c.requireUser(ctx, ownerID); err != nil {
		return nil, err
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return c.playlistDetails(ctx, conn, `WHERE p.owner_id = $1`, ownerID)
}

func (c *PostgresCatalog) playlistDetails(ctx context.Context, conn *pgxpool.Conn, where string, arg string) ([]models.PlaylistDetail, error) {
	rows, err := conn.Query(ctx, `
        SELECT p.id, p.name, p.description, p.created_at, p.updated_at, `+columns("u", summaryFields)+`
        FROM playlists p
        JOIN users u ON u.id = p.owner_id
        `+where+`
        ORDER BY p.created_at DESC, p.id DESC
    `, arg)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}

	details := []models.PlaylistDetail{}
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var d models.PlaylistDetail
		dest := append([]any{&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt}, summaryDest(&d.Owner)...)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		d.Videos = []models.VideoWithOwner{}
		index[d.ID] = len(details)
		ids = append(ids, d.ID)
		details = append(details, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlists: %w", err)
	}
	if len(ids) == 0 {
		return details, nil
	}

	videoRows, err := conn.Query(ctx, `
        SELECT pv.playlist_id, `+columns("v", videoFields)+`, `+columns("u", summaryFields)+`
        FROM playlist_videos pv
        JOIN videos v ON v.id = pv.video_id
        JOIN users u ON u.id = v.owner_id
        WHERE pv.playlist_id = ANY($1) AND v.is_published
        ORDER BY pv.added_at, pv.video_id
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query playlist videos: %w", err)
	}
	defer videoRows.Close()

	for videoRows.Next() {
		var (
			playlistID string
			item       models.VideoWithOwner
		)
		dest := append([]any{&playlistID}, videoDest(&item.Video)...)
		if err := videoRows.Scan(append(dest, summaryDest(&item.Owner)...)...); err != nil {
			return nil, fmt.Errorf("scan playlist video: %w", err)
		}
		i := index[playlistID]
		details[i].Videos = append(details[i].Videos, item)
	}
	if err := videoRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlist videos: %w", err)
	}

	for i := range details {
		details[i].TotalVideos = len(details[i].Videos)
	}
	return details, nil
}

func (c *PostgresCatalog) requireUser(ctx context.Context, userID string) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("select user: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func queryVideosWithOwner(ctx context.Context, conn *pgxpool.Conn, sql string, args ...any) ([]models.VideoWithOwner, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var items []models.VideoWithOwner
	for rows.Next() {
		item, err := scanVideoWithOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return items, nil
}
