package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *InMemorySessionStore, *time.Time) {
	t.Helper()

	store := NewInMemorySessionStore()
	manager := NewManager(ManagerConfig{
		AccessSecret:  "access-secret-access-secret-access-secret",
		RefreshSecret: "refresh-secret-refresh-secret-refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, store)

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	manager.WithNowFunc(func() time.Time { return now })
	return manager, store, &now
}

func TestManagerIssueAndRefresh(t *testing.T) {
	manager, store, _ := newTestManager(t)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}
	if !store.Has("user-1") {
		t.Fatal("expected refresh token to be stored")
	}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected new refresh token")
	}

	stored, err := store.RefreshTokenHash(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("stored hash: %v", err)
	}
	if stored != HashToken(refreshed.RefreshToken) {
		t.Fatal("expected rotated token hash to be stored")
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager, _, _ := newTestManager(t)
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerRefreshStaleTokenRevokesSession(t *testing.T) {
	manager, store, _ := newTestManager(t)

	first, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := manager.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := manager.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected reuse error got %v", err)
	}
	if store.Has("user-1") {
		t.Fatal("expected session to be cleared after reuse")
	}
	if _, err := manager.Refresh(context.Background(), second.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}
}

// interleavingStore runs onRead once, after the stored hash has been read, so a second
// refresh can land between another refresh's check and its rotation.
type interleavingStore struct {
	*InMemorySessionStore
	onRead func()
}

func (s *interleavingStore) RefreshTokenHash(ctx context.Context, userID string) (string, error) {
	hash, err := s.InMemorySessionStore.RefreshTokenHash(ctx, userID)
	if s.onRead != nil {
		run := s.onRead
		s.onRead = nil
		run()
	}
	return hash, err
}

func TestManagerConcurrentRefreshRotatesOnce(t *testing.T) {
	store := &interleavingStore{InMemorySessionStore: NewInMemorySessionStore()}
	manager := NewManager(ManagerConfig{
		AccessSecret:  "access-secret-access-secret-access-secret",
		RefreshSecret: "refresh-secret-refresh-secret-refresh-secret",
	}, store)
	ctx := context.Background()

	tokens, err := manager.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var winnerErr error
	store.onRead = func() {
		_, winnerErr = manager.Refresh(ctx, tokens.RefreshToken)
	}

	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected losing refresh to be rejected got %v", err)
	}
	if winnerErr != nil {
		t.Fatalf("expected first refresh to succeed got %v", winnerErr)
	}
	if store.Has("user-1") {
		t.Fatal("expected session to be revoked after the race")
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	manager, store, now := newTestManager(t)

	if _, err := manager.Refresh(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}
	if _, err := manager.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := manager.Refresh(context.Background(), tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token to be rejected for refresh got %v", err)
	}

	*now = now.Add(2 * time.Hour)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected refresh expired got %v", err)
	}
	if store.Has("user-1") {
		t.Fatal("expected expired refresh to clear the session")
	}

	tokens, err = manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := manager.Revoke(context.Background(), "user-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := manager.Revoke(context.Background(), "user-1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}

func TestManagerVerifyAccessToken(t *testing.T) {
	manager, _, now := newTestManager(t)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := manager.VerifyAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %q", userID)
	}

	if _, err := manager.VerifyAccessToken(tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected as access token got %v", err)
	}

	other := NewManager(ManagerConfig{
		AccessSecret:  "a-completely-different-access-secret-value",
		RefreshSecret: "a-completely-different-refresh-secret-value",
	}, NewInMemorySessionStore())
	if _, err := other.VerifyAccessToken(tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign signature to be rejected got %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := manager.VerifyAccessToken(tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired access token got %v", err)
	}
}
