package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/repositories"
)

const (
	maxUsernameAttempts = 5
	maxUsernameBase     = 20
)

type googleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// GoogleLogin handles POST /user/google-login, creating the account on first use.
func (h UserHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Identity == nil {
		respondError(ctx, w, apiError{Status: http.StatusServiceUnavailable, Message: "Google login is not configured"})
		return
	}

	var req googleLoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	identity, err := h.Identity.Verify(ctx, req.IDToken)
	switch {
	case errors.Is(err, auth.ErrIdentityEmailUnverified):
		respondError(ctx, w, badRequest("Google account email is not verified"))
		return
	case errors.Is(err, auth.ErrInvalidIdentityToken):
		logger.Warn("google id token rejected", "error", err)
		respondError(ctx, w, badRequest("Invalid Google token"))
		return
	case err != nil:
		logger.Error("google id token verification failed", "error", err)
		respondError(ctx, w, internalError("failed to verify Google token"))
		return
	}

	user, err := h.findOrCreate(ctx, identity)
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}

	h.startSession(ctx, w, user, http.StatusOK, "User logged in with Google successfully")
}

func (h UserHandler) findOrCreate(ctx context.Context, identity auth.Identity) (models.User, error) {
	existing, err := h.Users.FindByGoogleIDOrEmail(ctx, identity.Subject, identity.Email)
	switch {
	case err == nil:
		return h.Users.LinkGoogle(ctx, existing.ID, identity.Subject, identity.Picture)
	case !errors.Is(err, repositories.ErrNotFound):
		return models.User{}, err
	}

	base := usernameBase(identity.Email)
	fullName := identity.Name
	if fullName == "" {
		fullName = base
	}

	now := h.now().UTC()
	user := models.User{
		ID:            uuid.NewString(),
		FullName:      fullName,
		Email:         identity.Email,
		AvatarURL:     identity.Picture,
		EmailVerified: true,
		GoogleID:      identity.Subject,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		user.Username = base
		if attempt > 0 {
			user.Username = base + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		}
		err = h.Users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return models.User{}, err
		}
		logging.FromContext(ctx).Debug("generated username taken", "username", user.Username)
	}
	return models.User{}, err
}

// usernameBase derives a username from the local part of an email, keeping letters and digits.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if b.Len() >= maxUsernameBase {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return "user" + b.String()
	}
	return b.String()
}
