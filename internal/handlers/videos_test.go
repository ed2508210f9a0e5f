package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/videostream/backend/internal/media"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/query"
)

func publishRequest(t *testing.T, token string, files ...formFileSpec) *http.Request {
	t.Helper()
	if files == nil {
		files = []formFileSpec{
			{field: "videoFile", filename: "clip.MP4", content: "video-bytes"},
			{field: "thumbnail", filename: "thumb.png", content: "thumb-bytes"},
		}
	}
	return multipartRequest(t, http.MethodPost, "/video/publish", token,
		map[string]string{"title": "My <b>first</b> video", "description": "Hello & welcome"}, files...)
}

func TestVideoPublish(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("alice", "password123")

	rec := env.do(publishRequest(t, env.token(owner)))
	expectStatus(t, rec, http.StatusCreated)

	var video models.Video
	decodeResponse(t, rec, &video)
	if video.Title != "My first video" || video.Description != "Hello & welcome" {
		t.Fatalf("expected sanitized text got %q / %q", video.Title, video.Description)
	}
	if video.DurationSeconds != 12.5 || !video.IsPublished || video.OwnerID != owner.ID {
		t.Fatalf("unexpected video %+v", video)
	}
	if !strings.HasPrefix(video.VideoURL, "https://cdn.test/videos/") || !strings.HasSuffix(video.VideoURL, ".mp4") {
		t.Fatalf("unexpected video location %q", video.VideoURL)
	}
	if !strings.HasPrefix(video.ThumbnailURL, "https://cdn.test/thumbnails/") {
		t.Fatalf("unexpected thumbnail location %q", video.ThumbnailURL)
	}
	if _, err := os.Stat(env.probe.path); !os.IsNotExist(err) {
		t.Fatalf("expected staged file to be removed, stat err %v", err)
	}
	if _, err := env.videos.FindByID(context.Background(), video.ID); err != nil {
		t.Fatalf("expected stored video: %v", err)
	}
}

func TestVideoPublishFailures(t *testing.T) {
	tests := []struct {
		name    string
		files   []formFileSpec
		probe   error
		token   bool
		status  int
		uploads int
	}{
		{name: "unauthenticated", status: http.StatusUnauthorized},
		{
			name:   "missing thumbnail",
			token:  true,
			files:  []formFileSpec{{field: "videoFile", filename: "a.mp4", content: "v"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing video",
			token:  true,
			files:  []formFileSpec{{field: "thumbnail", filename: "a.png", content: "t"}},
			status: http.StatusBadRequest,
		},
		{name: "unreadable video", token: true, probe: errors.New("invalid data"), status: http.StatusBadRequest},
		{name: "probe unavailable", token: true, probe: media.ErrProbeUnavailable, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.probe.err = tt.probe
			owner := env.seedUser("bob", "password123")

			token := ""
			if tt.token {
				token = env.token(owner)
			}
			rec := env.do(publishRequest(t, token, tt.files...))
			expectStatus(t, rec, tt.status)
			if env.storage.count() != tt.uploads {
				t.Fatalf("expected %d uploads got %d", tt.uploads, env.storage.count())
			}
		})
	}
}

func TestVideoPublishReleasesVideoWhenThumbnailUploadFails(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("cara", "password123")
	env.deps.Storage = &failingThumbnailStorage{fakeStorage: env.storage}
	env.router = NewRouter(env.deps)

	rec := env.do(publishRequest(t, env.token(owner)))
	expectStatus(t, rec, http.StatusInternalServerError)
	if env.storage.count() != 0 || len(env.storage.deleted) != 1 {
		t.Fatalf("expected video upload to be released got objects=%d deleted=%v", env.storage.count(), env.storage.deleted)
	}
}

type failingThumbnailStorage struct {
	*fakeStorage
}

func (s *failingThumbnailStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if strings.HasPrefix(name, "thumbnails/") {
		return "", errBoom
	}
	return s.fakeStorage.Save(ctx, name, r)
}

func TestVideoGetCountsEveryView(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("dan", "password123")
	video := env.seedVideo(owner, true)
	token := env.token(owner)

	for i := 1; i <= 3; i++ {
		rec := env.send(http.MethodGet, "/video/"+video.ID, token, nil)
		expectStatus(t, rec, http.StatusOK)
		var detail models.VideoDetail
		decodeResponse(t, rec, &detail)
		if detail.Views != int64(i) {
			t.Fatalf("expected %d views got %d", i, detail.Views)
		}
		if detail.Owner.Username != "dan" {
			t.Fatalf("expected owner summary got %+v", detail.Owner)
		}
	}

	rec := env.send(http.MethodGet, "/video/"+video.ID, "", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestVideoGetVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("eve", "password123")
	other := env.seedUser("fin", "password123")
	draft := env.seedVideo(owner, false)

	expectStatus(t, env.send(http.MethodGet, "/video/"+draft.ID, "", nil), http.StatusNotFound)
	expectStatus(t, env.send(http.MethodGet, "/video/"+draft.ID, env.token(other), nil), http.StatusNotFound)
	expectStatus(t, env.send(http.MethodGet, "/video/"+draft.ID, env.token(owner), nil), http.StatusOK)
	expectStatus(t, env.send(http.MethodGet, "/video/not-a-uuid", "", nil), http.StatusBadRequest)
	expectStatus(t, env.send(http.MethodGet, "/video/8a6e0804-2bd0-4672-b79d-d97027f9071a", "", nil), http.StatusNotFound)

	stored, _ := env.videos.FindByID(context.Background(), draft.ID)
	if stored.Views != 1 {
		t.Fatalf("expected hidden fetches not to count got %d views", stored.Views)
	}
}

func TestVideoGetAnnotatesViewer(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("gia", "password123")
	viewer := env.seedUser("hugo", "password123")
	video := env.seedVideo(owner, true)
	token := env.token(viewer)

	expectStatus(t, env.send(http.MethodPost, "/like/toggle/v/"+video.ID, token, nil), http.StatusOK)
	expectStatus(t, env.send(http.MethodPost, "/subscription/c/"+owner.ID, token, nil), http.StatusOK)

	rec := env.send(http.MethodGet, "/video/"+video.ID, token, nil)
	expectStatus(t, rec, http.StatusOK)
	var detail models.VideoDetail
	decodeResponse(t, rec, &detail)
	if !detail.IsLiked || !detail.IsSubscribed || detail.LikesCount != 1 || detail.SubscribersCount != 1 {
		t.Fatalf("unexpected viewer annotations %+v", detail)
	}
}

func TestVideoListPublishedOnly(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("ian", "password123")
	published := env.seedVideo(owner, true)
	env.seedVideo(owner, false)

	rec := env.send(http.MethodGet, "/video?limit=5", "", nil)
	expectStatus(t, rec, http.StatusOK)
	var page query.Page[models.VideoWithOwner]
	decodeResponse(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != published.ID {
		t.Fatalf("expected only the published video got %+v", page)
	}
	if page.Limit != 5 || page.TotalPages != 1 {
		t.Fatalf("unexpected pagination %+v", page)
	}

	expectStatus(t, env.send(http.MethodGet, "/video?sortBy=password", "", nil), http.StatusBadRequest)
	expectStatus(t, env.send(http.MethodGet, "/video?page=0", "", nil), http.StatusBadRequest)
	expectStatus(t, env.send(http.MethodGet, "/video?userId=nope", "", nil), http.StatusBadRequest)
}

func TestVideoTogglePublishTwice(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("jo", "password123")
	video := env.seedVideo(owner, true)
	token := env.token(owner)

	var toggled models.Video
	rec := env.send(http.MethodPatch, "/video/toggle/publish/"+video.ID, token, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeResponse(t, rec, &toggled)
	if toggled.IsPublished {
		t.Fatal("expected video to be unpublished")
	}

	rec = env.send(http.MethodGet, "/video", "", nil)
	var page query.Page[models.VideoWithOwner]
	decodeResponse(t, rec, &page)
	if page.Total != 0 {
		t.Fatalf("expected unpublished video to be excluded got %d", page.Total)
	}

	rec = env.send(http.MethodPatch, "/video/toggle/publish/"+video.ID, token, nil)
	decodeResponse(t, rec, &toggled)
	if !toggled.IsPublished {
		t.Fatal("expected video to be published again")
	}
}

func TestVideoOwnerScopedMutations(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("kai", "password123")
	intruder := env.seedUser("lou", "password123")
	video := env.seedVideo(owner, true)
	token := env.token(intruder)

	expectStatus(t, env.send(http.MethodPatch, "/video/"+video.ID, token, map[string]string{"title": "pwned"}), http.StatusForbidden)
	expectStatus(t, env.send(http.MethodDelete, "/video/"+video.ID, token, nil), http.StatusForbidden)
	expectStatus(t, env.send(http.MethodPatch, "/video/toggle/publish/"+video.ID, token, nil), http.StatusForbidden)

	stored, err := env.videos.FindByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("expected video to survive: %v", err)
	}
	if stored.Title != video.Title || !stored.IsPublished {
		t.Fatalf("expected no mutation got %+v", stored)
	}
	if len(env.storage.deleted) != 0 {
		t.Fatal("expected no assets to be released")
	}
}

func TestVideoUpdate(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("mia", "password123")
	video := env.seedVideo(owner, true)
	token := env.token(owner)

	rec := env.send(http.MethodPatch, "/video/"+video.ID, token, map[string]string{"description": "new <i>words</i>"})
	expectStatus(t, rec, http.StatusOK)
	var updated models.Video
	decodeResponse(t, rec, &updated)
	if updated.Description != "new words" || updated.Title != video.Title {
		t.Fatalf("expected partial update got %+v", updated)
	}

	expectStatus(t, env.send(http.MethodPatch, "/video/"+video.ID, token, map[string]string{}), http.StatusBadRequest)
	expectStatus(t, env.send(http.MethodPatch, "/video/"+video.ID, token, map[string]string{"title": "  "}), http.StatusBadRequest)

	req := multipartRequest(t, http.MethodPatch, "/video/"+video.ID, token, nil,
		formFileSpec{field: "thumbnail", filename: "new.jpg", content: "jpg"})
	rec = env.do(req)
	expectStatus(t, rec, http.StatusOK)
	decodeResponse(t, rec, &updated)
	if updated.ThumbnailURL == video.ThumbnailURL {
		t.Fatal("expected thumbnail to change")
	}
	if len(env.storage.deleted) != 0 {
		t.Fatalf("expected old thumbnail to be kept got %v", env.storage.deleted)
	}
}

func TestVideoDeleteReleasesAssets(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("ned", "password123")
	video := env.seedVideo(owner, true)

	rec := env.send(http.MethodDelete, "/video/"+video.ID, env.token(owner), nil)
	expectStatus(t, rec, http.StatusOK)

	if _, err := env.videos.FindByID(context.Background(), video.ID); err == nil {
		t.Fatal("expected video to be deleted")
	}
	if len(env.storage.deleted) != 2 || env.storage.deleted[0] != video.VideoURL || env.storage.deleted[1] != video.ThumbnailURL {
		t.Fatalf("expected both assets to be released got %v", env.storage.deleted)
	}
}

func TestVideoDeleteStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("oli", "password123")
	video := env.seedVideo(owner, true)
	env.storage.deleteErr = errBoom

	expectStatus(t, env.send(http.MethodDelete, "/video/"+video.ID, env.token(owner), nil), http.StatusInternalServerError)
}
