package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
	"github.com/videostream/backend/internal/repositories"
)

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]models.User
	history map[string][]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]models.User), history: make(map[string][]string)}
}

func (s *fakeUsers) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUsers) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *fakeUsers) FindByIdentifier(_ context.Context, username, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *fakeUsers) FindByGoogleIDOrEmail(_ context.Context, googleID, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if googleID != "" && user.GoogleID == googleID {
			return user, nil
		}
	}
	for _, user := range s.users {
		if email != "" && user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *fakeUsers) update(id string, fn func(*models.User) error) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	if err := fn(&user); err != nil {
		return models.User{}, err
	}
	s.users[id] = user
	return user, nil
}

func (s *fakeUsers) UpdateAccount(_ context.Context, id, fullName, email string) (models.User, error) {
	return s.update(id, func(u *models.User) error {
		for _, other := range s.users {
			if other.ID != id && other.Email == email {
				return repositories.ErrConflict
			}
		}
		if u.Email != email {
			u.EmailVerified = false
		}
		u.FullName, u.Email = fullName, email
		return nil
	})
}

func (s *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	_, err := s.update(id, func(u *models.User) error { u.PasswordHash = hash; return nil })
	return err
}

func (s *fakeUsers) UpdateAvatar(_ context.Context, id, url string) (models.User, error) {
	return s.update(id, func(u *models.User) error { u.AvatarURL = url; return nil })
}

func (s *fakeUsers) UpdateCoverImage(_ context.Context, id, url string) (models.User, error) {
	return s.update(id, func(u *models.User) error { u.CoverImageURL = url; return nil })
}

func (s *fakeUsers) LinkGoogle(_ context.Context, id, googleID, avatarURL string) (models.User, error) {
	return s.update(id, func(u *models.User) error {
		if u.GoogleID == "" {
			u.GoogleID = googleID
		}
		if u.AvatarURL == "" {
			u.AvatarURL = avatarURL
		}
		u.EmailVerified = true
		return nil
	})
}

func (s *fakeUsers) MarkEmailVerified(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, user := range s.users {
		if user.Email == email {
			user.EmailVerified = true
			s.users[id] = user
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *fakeUsers) AddToWatchHistory(_ context.Context, userID, videoID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := []string{videoID}
	for _, id := range s.history[userID] {
		if id != videoID {
			history = append(history, id)
		}
	}
	s.history[userID] = history
	return nil
}

type fakeVideos struct {
	mu     sync.Mutex
	videos map[string]models.Video
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{videos: make(map[string]models.Video)}
}

func (s *fakeVideos) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
	return nil
}

func (s *fakeVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *fakeVideos) mutate(id, ownerID string, fn func(*models.Video)) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok || (ownerID != "" && video.OwnerID != ownerID) {
		return models.Video{}, repositories.ErrNotFound
	}
	fn(&video)
	s.videos[id] = video
	return video, nil
}

func (s *fakeVideos) RecordView(_ context.Context, id string) (models.Video, error) {
	return s.mutate(id, "", func(v *models.Video) { v.Views++ })
}

func (s *fakeVideos) Update(_ context.Context, id, ownerID string, patch models.VideoPatch) (models.Video, error) {
	return s.mutate(id, ownerID, func(v *models.Video) {
		if patch.Title != nil {
			v.Title = *patch.Title
		}
		if patch.Description != nil {
			v.Description = *patch.Description
		}
		if patch.ThumbnailURL != nil {
			v.ThumbnailURL = *patch.ThumbnailURL
		}
	})
}

func (s *fakeVideos) TogglePublish(_ context.Context, id, ownerID string) (models.Video, error) {
	return s.mutate(id, ownerID, func(v *models.Video) { v.IsPublished = !v.IsPublished })
}

func (s *fakeVideos) Delete(_ context.Context, id, ownerID string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, repositories.ErrNotFound
	}
	delete(s.videos, id)
	return video, nil
}

type fakeComments struct {
	mu       sync.Mutex
	comments map[string]models.Comment
}

func (s *fakeComments) Create(_ context.Context, comment models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.ID] = comment
	return nil
}

func (s *fakeComments) FindByID(_ context.Context, id string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[id]
	if !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	return comment, nil
}

func (s *fakeComments) Update(_ context.Context, id, ownerID, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[id]
	if !ok || comment.OwnerID != ownerID {
		return models.Comment{}, repositories.ErrNotFound
	}
	comment.Content = content
	s.comments[id] = comment
	return comment, nil
}

func (s *fakeComments) Delete(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[id]
	if !ok || comment.OwnerID != ownerID {
		return repositories.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

type fakeTweets struct {
	mu     sync.Mutex
	tweets map[string]models.Tweet
}

func (s *fakeTweets) Create(_ context.Context, tweet models.Tweet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tweets[tweet.ID] = tweet
	return nil
}

func (s *fakeTweets) FindByID(_ context.Context, id string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, ok := s.tweets[id]
	if !ok {
		return models.Tweet{}, repositories.ErrNotFound
	}
	return tweet, nil
}

func (s *fakeTweets) Update(_ context.Context, id, ownerID, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, ok := s.tweets[id]
	if !ok || tweet.OwnerID != ownerID {
		return models.Tweet{}, repositories.ErrNotFound
	}
	tweet.Content = content
	s.tweets[id] = tweet
	return tweet, nil
}

func (s *fakeTweets) Delete(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweet, ok := s.tweets[id]
	if !ok || tweet.OwnerID != ownerID {
		return repositories.ErrNotFound
	}
	delete(s.tweets, id)
	return nil
}

type fakePlaylists struct {
	mu        sync.Mutex
	playlists map[string]models.Playlist
}

func (s *fakePlaylists) Create(_ context.Context, playlist models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[playlist.ID] = playlist
	return nil
}

func (s *fakePlaylists) FindByID(_ context.Context, id string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist, ok := s.playlists[id]
	if !ok {
		return models.Playlist{}, repositories.ErrNotFound
	}
	return playlist, nil
}

func (s *fakePlaylists) owned(id, ownerID string) (models.Playlist, error) {
	playlist, ok := s.playlists[id]
	if !ok || playlist.OwnerID != ownerID {
		return models.Playlist{}, repositories.ErrNotFound
	}
	return playlist, nil
}

func (s *fakePlaylists) Update(_ context.Context, id, ownerID string, patch models.PlaylistPatch) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist, err := s.owned(id, ownerID)
	if err != nil {
		return models.Playlist{}, err
	}
	if patch.Name != nil {
		playlist.Name = *patch.Name
	}
	if patch.Description != nil {
		playlist.Description = *patch.Description
	}
	s.playlists[id] = playlist
	return playlist, nil
}

func (s *fakePlaylists) Delete(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(id, ownerID); err != nil {
		return err
	}
	delete(s.playlists, id)
	return nil
}

func (s *fakePlaylists) AddVideo(_ context.Context, playlistID, ownerID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist, err := s.owned(playlistID, ownerID)
	if err != nil {
		return models.Playlist{}, err
	}
	for _, id := range playlist.VideoIDs {
		if id == videoID {
			return models.Playlist{}, repositories.ErrConflict
		}
	}
	playlist.VideoIDs = append(playlist.VideoIDs, videoID)
	s.playlists[playlistID] = playlist
	return playlist, nil
}

func (s *fakePlaylists) RemoveVideo(_ context.Context, playlistID, ownerID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist, err := s.owned(playlistID, ownerID)
	if err != nil {
		return models.Playlist{}, err
	}
	for i, id := range playlist.VideoIDs {
		if id == videoID {
			playlist.VideoIDs = append(playlist.VideoIDs[:i:i], playlist.VideoIDs[i+1:]...)
			s.playlists[playlistID] = playlist
			return playlist, nil
		}
	}
	return models.Playlist{}, repositories.ErrNotFound
}

type fakeLikes struct {
	mu    sync.Mutex
	liked map[models.LikeTarget]map[string]bool
}

func (s *fakeLikes) Toggle(_ context.Context, userID string, target models.LikeTarget) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liked[target] == nil {
		s.liked[target] = make(map[string]bool)
	}
	if s.liked[target][userID] {
		delete(s.liked[target], userID)
		return false, nil
	}
	s.liked[target][userID] = true
	return true, nil
}

type fakeSubscriptions struct {
	mu   sync.Mutex
	subs map[string]map[string]bool
}

func (s *fakeSubscriptions) Toggle(_ context.Context, subscriberID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[channelID] == nil {
		s.subs[channelID] = make(map[string]bool)
	}
	if s.subs[channelID][subscriberID] {
		delete(s.subs[channelID], subscriberID)
		return false, nil
	}
	s.subs[channelID][subscriberID] = true
	return true, nil
}

// fakeCatalog derives read models from the other fakes.
type fakeCatalog struct {
	users     *fakeUsers
	videos    *fakeVideos
	comments  *fakeComments
	playlists *fakePlaylists
	likes     *fakeLikes
	subs      *fakeSubscriptions
}

func (c *fakeCatalog) summary(id string) models.UserSummary {
	user, _ := c.users.FindByID(context.Background(), id)
	return models.UserSummary{ID: user.ID, Username: user.Username, FullName: user.FullName, AvatarURL: user.AvatarURL}
}

func (c *fakeCatalog) withOwner(v models.Video) models.VideoWithOwner {
	return models.VideoWithOwner{Video: v, Owner: c.summary(v.OwnerID)}
}

func (c *fakeCatalog) ListVideos(_ context.Context, filter models.VideoFilter, p query.Params) (query.Page[models.VideoWithOwner], error) {
	c.videos.mu.Lock()
	var matched []models.Video
	for _, v := range c.videos.videos {
		if !v.IsPublished && !filter.IncludeUnpublished {
			continue
		}
		if filter.OwnerID != "" && v.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(v.Title), strings.ToLower(filter.Query)) {
			continue
		}
		matched = append(matched, v)
	}
	c.videos.mu.Unlock()
	return c.pageVideos(matched, p), nil
}

func (c *fakeCatalog) pageVideos(matched []models.Video, p query.Params) query.Page[models.VideoWithOwner] {
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	var items []models.VideoWithOwner
	for _, v := range matched[start:end] {
		items = append(items, c.withOwner(v))
	}
	return query.NewPage(items, p, int64(len(matched)))
}

func (c *fakeCatalog) ChannelVideos(ctx context.Context, channelID string, p query.Params) (query.Page[models.VideoWithOwner], error) {
	if _, err := c.users.FindByID(ctx, channelID); err != nil {
		return query.Page[models.VideoWithOwner]{}, err
	}
	return c.ListVideos(ctx, models.VideoFilter{OwnerID: channelID}, p)
}

func (c *fakeCatalog) VideoDetail(ctx context.Context, videoID, viewerID string) (models.VideoDetail, error) {
	video, err := c.videos.FindByID(ctx, videoID)
	if err != nil {
		return models.VideoDetail{}, err
	}
	c.likes.mu.Lock()
	likers := c.likes.liked[models.LikeTarget{Kind: models.LikeVideo, ID: videoID}]
	detail := models.VideoDetail{
		VideoWithOwner: c.withOwner(video),
		LikesCount:     int64(len(likers)),
		IsLiked:        likers[viewerID],
	}
	c.likes.mu.Unlock()

	c.subs.mu.Lock()
	detail.SubscribersCount = int64(len(c.subs.subs[video.OwnerID]))
	detail.IsSubscribed = c.subs.subs[video.OwnerID][viewerID]
	c.subs.mu.Unlock()
	return detail, nil
}

func (c *fakeCatalog) LikedVideos(_ context.Context, userID string, p query.Params) (query.Page[models.VideoWithOwner], error) {
	c.likes.mu.Lock()
	var ids []string
	for target, likers := range c.likes.liked {
		if target.Kind == models.LikeVideo && likers[userID] {
			ids = append(ids, target.ID)
		}
	}
	c.likes.mu.Unlock()

	c.videos.mu.Lock()
	var matched []models.Video
	for _, id := range ids {
		if v, ok := c.videos.videos[id]; ok && v.IsPublished {
			matched = append(matched, v)
		}
	}
	c.videos.mu.Unlock()
	return c.pageVideos(matched, p), nil
}

func (c *fakeCatalog) WatchHistory(ctx context.Context, userID string) ([]models.VideoWithOwner, error) {
	c.users.mu.Lock()
	ids := append([]string(nil), c.users.history[userID]...)
	c.users.mu.Unlock()
	var out []models.VideoWithOwner
	for _, id := range ids {
		if video, err := c.videos.FindByID(ctx, id); err == nil {
			out = append(out, c.withOwner(video))
		}
	}
	return out, nil
}

func (c *fakeCatalog) ListComments(_ context.Context, videoID string, p query.Params) (query.Page[models.CommentWithOwner], error) {
	c.comments.mu.Lock()
	defer c.comments.mu.Unlock()
	var items []models.CommentWithOwner
	for _, comment := range c.comments.comments {
		if comment.VideoID == videoID {
			items = append(items, models.CommentWithOwner{Comment: comment})
		}
	}
	return query.NewPage(items, p, int64(len(items))), nil
}

func (c *fakeCatalog) ListTweets(context.Context, string) ([]models.TweetWithOwner, error) {
	return nil, nil
}

func (c *fakeCatalog) ChannelSubscribers(ctx context.Context, channelID string, p query.Params) (query.Page[models.UserSummary], error) {
	if _, err := c.users.FindByID(ctx, channelID); err != nil {
		return query.Page[models.UserSummary]{}, err
	}
	c.subs.mu.Lock()
	var ids []string
	for id := range c.subs.subs[channelID] {
		ids = append(ids, id)
	}
	c.subs.mu.Unlock()
	sort.Strings(ids)

	var items []models.UserSummary
	for _, id := range ids {
		items = append(items, c.summary(id))
	}
	return query.NewPage(items, p, int64(len(items))), nil
}

func (c *fakeCatalog) SubscribedChannels(ctx context.Context, subscriberID string, p query.Params) (query.Page[models.UserSummary], error) {
	if _, err := c.users.FindByID(ctx, subscriberID); err != nil {
		return query.Page[models.UserSummary]{}, err
	}
	return query.NewPage[models.UserSummary](nil, p, 0), nil
}

func (c *fakeCatalog) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	user, err := c.users.FindByIdentifier(ctx, username, "")
	if err != nil {
		return models.ChannelProfile{}, err
	}
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()
	var subscribedTo int64
	for _, subscribers := range c.subs.subs {
		if subscribers[user.ID] {
			subscribedTo++
		}
	}
	return models.ChannelProfile{
		ID:                user.ID,
		Username:          user.Username,
		FullName:          user.FullName,
		Email:             user.Email,
		SubscribersCount:  int64(len(c.subs.subs[user.ID])),
		SubscribedToCount: subscribedTo,
		IsSubscribed:      c.subs.subs[user.ID][viewerID],
	}, nil
}

func (c *fakeCatalog) ChannelStats(_ context.Context, ownerID string) (models.ChannelStats, error) {
	c.videos.mu.Lock()
	defer c.videos.mu.Unlock()
	var stats models.ChannelStats
	for _, v := range c.videos.videos {
		if v.OwnerID == ownerID {
			stats.TotalVideos++
			stats.TotalViews += v.Views
		}
	}
	return stats, nil
}

func (c *fakeCatalog) PlaylistDetail(ctx context.Context, playlistID string) (models.PlaylistDetail, error) {
	playlist, err := c.playlists.FindByID(ctx, playlistID)
	if err != nil {
		return models.PlaylistDetail{}, err
	}
	detail := models.PlaylistDetail{
		ID:          playlist.ID,
		Name:        playlist.Name,
		Description: playlist.Description,
		Owner:       c.summary(playlist.OwnerID),
		Videos:      []models.VideoWithOwner{},
	}
	for _, id := range playlist.VideoIDs {
		if video, err := c.videos.FindByID(ctx, id); err == nil {
			detail.Videos = append(detail.Videos, c.withOwner(video))
		}
	}
	detail.TotalVideos = len(detail.Videos)
	return detail, nil
}

func (c *fakeCatalog) UserPlaylists(ctx context.Context, ownerID string) ([]models.PlaylistDetail, error) {
	if _, err := c.users.FindByID(ctx, ownerID); err != nil {
		return nil, err
	}
	c.playlists.mu.Lock()
	var ids []string
	for id, p := range c.playlists.playlists {
		if p.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	c.playlists.mu.Unlock()

	var out []models.PlaylistDetail
	for _, id := range ids {
		detail, err := c.PlaylistDetail(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, detail)
	}
	return out, nil
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	saveErr   error
	deleteErr error
}

func (s *fakeStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := "https://cdn.test/" + name
	s.objects[location] = data
	return location, nil
}

func (s *fakeStorage) Delete(_ context.Context, location string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, location)
	s.deleted = append(s.deleted, location)
	return nil
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeProbe struct {
	duration float64
	err      error
	path     string
}

func (p *fakeProbe) Duration(_ context.Context, path string) (float64, error) {
	p.path = path
	return p.duration, p.err
}

type stubOTP struct {
	sendErr   error
	verifyErr error
	sent      []string
}

func (s *stubOTP) Send(_ context.Context, email, _ string) error {
	s.sent = append(s.sent, email)
	return s.sendErr
}

func (s *stubOTP) Verify(context.Context, string, string, string) error {
	return s.verifyErr
}

type stubIdentity struct {
	identity auth.Identity
	err      error
}

func (s stubIdentity) Verify(context.Context, string) (auth.Identity, error) {
	return s.identity, s.err
}

// testEnv is a router wired to in-memory collaborators.
type testEnv struct {
	t         *testing.T
	router    http.Handler
	deps      Dependencies
	users     *fakeUsers
	videos    *fakeVideos
	comments  *fakeComments
	tweets    *fakeTweets
	playlists *fakePlaylists
	likes     *fakeLikes
	subs      *fakeSubscriptions
	storage   *fakeStorage
	probe     *fakeProbe
	otp       *stubOTP
	sessions  *auth.InMemorySessionStore
	manager   *auth.Manager
}

func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()

	env := &testEnv{
		t:         t,
		users:     newFakeUsers(),
		videos:    newFakeVideos(),
		comments:  &fakeComments{comments: make(map[string]models.Comment)},
		tweets:    &fakeTweets{tweets: make(map[string]models.Tweet)},
		playlists: &fakePlaylists{playlists: make(map[string]models.Playlist)},
		likes:     &fakeLikes{liked: make(map[models.LikeTarget]map[string]bool)},
		subs:      &fakeSubscriptions{subs: make(map[string]map[string]bool)},
		storage:   &fakeStorage{objects: make(map[string][]byte)},
		probe:     &fakeProbe{duration: 12.5},
		otp:       &stubOTP{},
		sessions:  auth.NewInMemorySessionStore(),
	}
	env.manager = auth.NewManager(auth.ManagerConfig{
		AccessSecret:  "handler-access-secret-handler-access-secret",
		RefreshSecret: "handler-refresh-secret-handler-refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}, env.sessions)

	catalog := &fakeCatalog{
		users:     env.users,
		videos:    env.videos,
		comments:  env.comments,
		playlists: env.playlists,
		likes:     env.likes,
		subs:      env.subs,
	}

	env.deps = Dependencies{
		Users:         env.users,
		Sessions:      env.manager,
		Tokens:        env.manager,
		OTP:           env.otp,
		Videos:        env.videos,
		Comments:      env.comments,
		Tweets:        env.tweets,
		Playlists:     env.playlists,
		Likes:         env.likes,
		Subscriptions: env.subs,
		Catalog:       catalog,
		Storage:       env.storage,
		Probe:         env.probe,
		NowFunc:       func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&env.deps)
	}
	env.router = NewRouter(env.deps)
	return env
}

func (e *testEnv) seedUser(username, password string) models.User {
	e.t.Helper()
	var hash string
	if password != "" {
		var err error
		if hash, err = auth.HashPassword(password); err != nil {
			e.t.Fatalf("hash password: %v", err)
		}
	}
	user := models.User{
		ID:           uuid.NewString(),
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		AvatarURL:    "https://cdn.test/avatars/" + username + ".png",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		e.t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedVideo(owner models.User, published bool) models.Video {
	e.t.Helper()
	video := models.Video{
		ID:           uuid.NewString(),
		Title:        "Video by " + owner.Username,
		VideoURL:     "https://cdn.test/videos/" + uuid.NewString() + ".mp4",
		ThumbnailURL: "https://cdn.test/thumbnails/" + uuid.NewString() + ".png",
		IsPublished:  published,
		OwnerID:      owner.ID,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := e.videos.Create(context.Background(), video); err != nil {
		e.t.Fatalf("seed video: %v", err)
	}
	return video
}

func (e *testEnv) token(user models.User) string {
	e.t.Helper()
	tokens, err := e.manager.Issue(context.Background(), user.ID)
	if err != nil {
		e.t.Fatalf("issue tokens: %v", err)
	}
	return tokens.AccessToken
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) send(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

type formFileSpec struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, method, path, token string, fields map[string]string, files ...formFileSpec) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(file.content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type decodedEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) decodedEnvelope {
	t.Helper()
	var env decodedEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.StatusCode != rec.Code {
		t.Fatalf("expected envelope status %d to match response %d", env.StatusCode, rec.Code)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v (%s)", err, env.Data)
		}
	}
	return env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d got %d: %s", status, rec.Code, rec.Body.String())
	}
}

var errBoom = errors.New("boom")
