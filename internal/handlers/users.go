package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
	"github.com/videostream/backend/internal/repositories"
)

// UserHandler implements the account, session and channel profile endpoints.
type UserHandler struct {
	Users          UserStore
	Sessions       SessionManager
	Catalog        Catalog
	Storage        MediaStorage
	Identity       IdentityVerifier
	Cookies        CookieOptions
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type registerForm struct {
	FullName string `form:"fullName" validate:"required,max=100"`
	Username string `form:"username" validate:"required,min=3,max=30,alphanum"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
}

type sessionResponse struct {
	User models.User `json:"user"`
	models.SessionTokens
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now()
}

// Register handles POST /user/register.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err)
		return
	}

	form := registerForm{
		FullName: formValue(r, "fullName"),
		Username: strings.ToLower(formValue(r, "username")),
		Email:    auth.NormalizeEmail(formValue(r, "email")),
		Password: formValue(r, "password"),
	}
	if err := validate(&form); err != nil {
		logger.Warn("invalid registration", "error", err)
		respondError(ctx, w, err)
		return
	}

	avatarFile := formFile(r, "avatar")
	if avatarFile == nil {
		respondError(ctx, w, badRequest("avatar is required"))
		return
	}

	_, err := h.Users.FindByIdentifier(ctx, form.Username, form.Email)
	switch {
	case err == nil:
		logger.Warn("registration collides with existing user", "username", form.Username, "email", form.Email)
		respondError(ctx, w, conflict("User with email or username already exists"))
		return
	case !errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, err)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	avatarURL, err := uploadFile(ctx, h.Storage, "avatars", avatarFile)
	if err != nil {
		logger.Error("avatar upload failed", "error", err)
		respondError(ctx, w, internalError("failed to upload avatar"))
		return
	}
	uploaded := []string{avatarURL}

	var coverURL string
	if coverFile := formFile(r, "coverImage"); coverFile != nil {
		coverURL, err = uploadFile(ctx, h.Storage, "covers", coverFile)
		if err != nil {
			logger.Error("cover image upload failed", "error", err)
			h.release(ctx, uploaded...)
			respondError(ctx, w, internalError("failed to upload cover image"))
			return
		}
		uploaded = append(uploaded, coverURL)
	}

	now := h.now().UTC()
	user := models.User{
		ID:            uuid.NewString(),
		FullName:      form.FullName,
		Username:      form.Username,
		Email:         form.Email,
		PasswordHash:  hash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.Users.Create(ctx, user); err != nil {
		h.release(ctx, uploaded...)
		respondError(ctx, w, storeError(err, "User with email or username"))
		return
	}

	h.startSession(ctx, w, user, http.StatusCreated, "User registered successfully")
}

// Login handles POST /user/login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" && strings.TrimSpace(req.Email) == "" {
		respondError(ctx, w, badRequest("username or email is required"))
		return
	}

	user, err := h.Users.FindByIdentifier(ctx, req.Username, req.Email)
	if err != nil {
		logger.Warn("login user lookup failed", "username", req.Username, "email", req.Email, "error", err)
		respondError(ctx, w, storeError(err, "User"))
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, unauthorized("Invalid user credentials"))
		return
	}

	h.startSession(ctx, w, user, http.StatusOK, "User logged in successfully")
}

func (h UserHandler) startSession(ctx context.Context, w http.ResponseWriter, user models.User, status int, message string) {
	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, internalError("failed to create session"))
		return
	}
	h.Cookies.setTokens(w, tokens)
	respondSuccess(ctx, w, status, sessionResponse{User: user, SessionTokens: tokens}, message)
}

// Logout handles POST /user/logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Sessions.Revoke(ctx, viewerID(ctx)); err != nil {
		respondError(ctx, w, err)
		return
	}
	h.Cookies.clearTokens(w)
	respondSuccess(ctx, w, http.StatusOK, nil, "User logged out")
}

// RefreshToken handles POST /user/refresh-token. The refresh token is read from the cookie,
// falling back to the JSON body.
func (h UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var token string
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = strings.TrimSpace(cookie.Value)
	}
	if token == "" {
		var req refreshRequest
		if err := decodeAndValidate(r.Body, &req); err != nil {
			respondError(ctx, w, unauthorized("Unauthorized request"))
			return
		}
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		respondError(ctx, w, unauthorized("Unauthorized request"))
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, token)
	if err != nil {
		logger.Warn("refresh rejected", "error", err)
		h.Cookies.clearTokens(w)
		respondError(ctx, w, unauthorized("Refresh token is expired or used"))
		return
	}

	h.Cookies.setTokens(w, tokens)
	respondSuccess(ctx, w, http.StatusOK, tokens, "Access token refreshed")
}

// ChangePassword handles POST /user/change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req changePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	user, err := h.Users.FindByID(ctx, viewerID(ctx))
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.OldPassword); err != nil {
		logging.FromContext(ctx).Warn("change password rejected", "error", err)
		respondError(ctx, w, unauthorized("Invalid old password"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Password changed successfully")
}

// CurrentUser handles GET /user/current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Users.FindByID(ctx, viewerID(ctx))
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, user, "Current user fetched successfully")
}

// UpdateAccount handles PATCH /user/update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateAccountRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	user, err := h.Users.UpdateAccount(ctx, viewerID(ctx), strings.TrimSpace(req.FullName), auth.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, conflict("Email is already in use"))
			return
		}
		respondError(ctx, w, storeError(err, "User"))
		return
	}

	respondSuccess(ctx, w, http.StatusOK, user, "Account details updated successfully")
}

// UpdateAvatar handles PATCH /user/avatar.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, imageReplacement{
		field:   "avatar",
		prefix:  "avatars",
		current: func(u models.User) string { return u.AvatarURL },
		update:  h.Users.UpdateAvatar,
		message: "Avatar updated successfully",
	})
}

// UpdateCoverImage handles PATCH /user/cover-image.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, imageReplacement{
		field:   "coverImage",
		prefix:  "covers",
		current: func(u models.User) string { return u.CoverImageURL },
		update:  h.Users.UpdateCoverImage,
		message: "Cover image updated successfully",
	})
}

type imageReplacement struct {
	field   string
	prefix  string
	current func(models.User) string
	update  func(ctx context.Context, id, url string) (models.User, error)
	message string
}

// replaceImage uploads the new asset, points the user at it and then releases the old asset.
func (h UserHandler) replaceImage(w http.ResponseWriter, r *http.Request, op imageReplacement) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err)
		return
	}
	file := formFile(r, op.field)
	if file == nil {
		respondError(ctx, w, badRequest(op.field+" is required"))
		return
	}

	user, err := h.Users.FindByID(ctx, viewerID(ctx))
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	previous := op.current(user)

	location, err := uploadFile(ctx, h.Storage, op.prefix, file)
	if err != nil {
		logger.Error("image upload failed", "field", op.field, "error", err)
		respondError(ctx, w, internalError("failed to upload "+op.field))
		return
	}

	updated, err := op.update(ctx, user.ID, location)
	if err != nil {
		h.release(ctx, location)
		respondError(ctx, w, storeError(err, "User"))
		return
	}

	if previous != "" && previous != location {
		if err := h.Storage.Delete(ctx, previous); err != nil {
			logger.Error("failed to release previous image", "field", op.field, "location", previous, "error", err)
			respondError(ctx, w, internalError("failed to delete old "+op.field))
			return
		}
	}

	respondSuccess(ctx, w, http.StatusOK, updated, op.message)
}

// ChannelProfile handles GET /user/c/{username}.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "username")))
	if username == "" {
		respondError(ctx, w, badRequest("username is missing"))
		return
	}

	profile, err := h.Catalog.ChannelProfile(ctx, username, viewerID(ctx))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, notFound("Channel does not exist"))
			return
		}
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, profile, "User channel fetched successfully")
}

// WatchHistory handles GET /user/history.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	history, err := h.Catalog.WatchHistory(ctx, viewerID(ctx))
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	if history == nil {
		history = []models.VideoWithOwner{}
	}
	respondSuccess(ctx, w, http.StatusOK, history, "Watch history fetched successfully")
}

// release deletes uploaded assets that did not end up referenced by a record.
func (h UserHandler) release(ctx context.Context, locations ...string) {
	releaseUploads(ctx, h.Storage, locations...)
}

func releaseUploads(ctx context.Context, store MediaStorage, locations ...string) {
	for _, location := range locations {
		if location == "" {
			continue
		}
		if err := store.Delete(ctx, location); err != nil {
			logging.FromContext(ctx).Warn("failed to release orphaned upload", "location", location, "error", err)
		}
	}
}
