package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/videostream/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the user has no active refresh token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenReused indicates a validly signed refresh token that is no longer the
	// active one. The session is revoked when this happens.
	ErrRefreshTokenReused = errors.New("refresh token is no longer active")
	// ErrTokenExpired indicates an expired access token.
	ErrTokenExpired = errors.New("access token expired")
	// ErrInvalidToken indicates a token that is malformed, wrongly signed, or of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// SessionStore persists the single active refresh token of each user, as a hash.
type SessionStore interface {
	SaveRefreshToken(ctx context.Context, userID, tokenHash string) error
	// RotateRefreshToken swaps oldHash for newHash only while oldHash is still stored and
	// reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string) (bool, error)
	RefreshTokenHash(ctx context.Context, userID string) (string, error)
	ClearRefreshToken(ctx context.Context, userID string) error
}

// Claims are carried by both access and refresh tokens. Type keeps one from standing in for the other.
type Claims struct {
	UserID string `json:"userId"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// ManagerConfig configures token signing.
type ManagerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Manager issues signed access and refresh tokens and rotates refresh tokens against a store.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string

	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager. Access and refresh tokens are signed with separate secrets.
func NewManager(cfg ManagerConfig, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 10 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "videostream"
	}
	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		store:         store,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc allows tests to override the time source.
func (m *Manager) WithNowFunc(now func() time.Time) {
	m.now = now
}

// Issue signs a new token pair for the user and makes its refresh token the only active one.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	tokens, err := m.signPair(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := m.store.SaveRefreshToken(ctx, userID, HashToken(tokens.RefreshToken)); err != nil {
		return models.SessionTokens{}, err
	}
	return tokens, nil
}

func (m *Manager) signPair(userID string) (models.SessionTokens, error) {
	now := m.now()
	accessExpires := now.Add(m.accessTTL)
	refreshExpires := now.Add(m.refreshTTL)

	accessToken, err := m.sign(userID, tokenTypeAccess, now, accessExpires, m.accessSecret)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := m.sign(userID, tokenTypeRefresh, now, refreshExpires, m.refreshSecret)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// Refresh exchanges the active refresh token for a new pair. A token that verifies but is not
// the stored one, or that has expired, revokes the session.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	claims, err := m.parse(refreshToken, m.refreshSecret, tokenTypeRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			if claims != nil && claims.UserID != "" {
				_ = m.store.ClearRefreshToken(ctx, claims.UserID)
			}
			return models.SessionTokens{}, ErrRefreshTokenExpired
		}
		return models.SessionTokens{}, ErrInvalidToken
	}

	stored, err := m.store.RefreshTokenHash(ctx, claims.UserID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	presented := HashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return models.SessionTokens{}, m.revokeReused(ctx, claims.UserID)
	}

	tokens, err := m.signPair(claims.UserID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	rotated, err := m.store.RotateRefreshToken(ctx, claims.UserID, presented, HashToken(tokens.RefreshToken))
	if err != nil {
		return models.SessionTokens{}, err
	}
	if !rotated {
		// Another refresh consumed the same token first.
		return models.SessionTokens{}, m.revokeReused(ctx, claims.UserID)
	}
	return tokens, nil
}

func (m *Manager) revokeReused(ctx context.Context, userID string) error {
	if err := m.store.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	return ErrRefreshTokenReused
}

// Revoke clears the user's active refresh token. Revoking twice is not an error.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return m.store.ClearRefreshToken(ctx, userID)
}

// VerifyAccessToken returns the user id carried by a valid access token.
func (m *Manager) VerifyAccessToken(token string) (string, error) {
	claims, err := m.parse(token, m.accessSecret, tokenTypeAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

func (m *Manager) sign(userID, kind string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	claims := Claims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parse verifies the signature and claims. On expiry the authentic claims are still returned
// alongside the error.
func (m *Manager) parse(token string, secret []byte, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return claims, err
		}
		return nil, err
	}
	if claims.Type != kind || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashToken returns the hex SHA-256 digest under which refresh tokens are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
