package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// Authenticator resolves request credentials into an auth.Principal on the context.
type Authenticator struct {
	Tokens TokenVerifier
}

// RequireAuth rejects requests without a valid access token.
func (a Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := accessToken(r)
		if token == "" {
			respondError(ctx, w, unauthorized("Unauthorized request"))
			return
		}
		if a.Tokens == nil {
			logging.FromContext(ctx).Error("token verifier unavailable")
			respondError(ctx, w, internalError("authentication services unavailable"))
			return
		}

		userID, err := a.Tokens.VerifyAccessToken(token)
		if err != nil {
			logging.FromContext(ctx).Warn("access token rejected", "error", err)
			respondError(ctx, w, unauthorized("Invalid access token"))
			return
		}

		ctx = auth.WithPrincipal(ctx, auth.Principal{UserID: userID})
		ctx = logging.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches a principal when a valid access token is present and otherwise
// serves the request anonymously.
func (a Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" || a.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := a.Tokens.VerifyAccessToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: userID})
		ctx = logging.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// CookieOptions controls how session tokens are written as cookies.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) setTokens(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, o.cookie(accessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt))
	http.SetCookie(w, o.cookie(refreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt))
}

func (o CookieOptions) clearTokens(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		cookie := o.cookie(name, "", time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (o CookieOptions) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
