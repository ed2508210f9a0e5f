package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/config"
	"github.com/videostream/backend/internal/db"
	"github.com/videostream/backend/internal/email"
	"github.com/videostream/backend/internal/handlers"
	"github.com/videostream/backend/internal/media"
	"github.com/videostream/backend/internal/middleware"
	"github.com/videostream/backend/internal/repositories"
	"github.com/videostream/backend/internal/storage"
)

var (
	_ handlers.UserStore         = (*repositories.PostgresUserRepository)(nil)
	_ handlers.VideoStore        = (*repositories.PostgresVideoRepository)(nil)
	_ handlers.CommentStore      = (*repositories.PostgresCommentRepository)(nil)
	_ handlers.TweetStore        = (*repositories.PostgresTweetRepository)(nil)
	_ handlers.PlaylistStore     = (*repositories.PostgresPlaylistRepository)(nil)
	_ handlers.LikeStore         = (*repositories.PostgresLikeRepository)(nil)
	_ handlers.SubscriptionStore = (*repositories.PostgresSubscriptionRepository)(nil)
	_ handlers.Catalog           = (*repositories.PostgresCatalog)(nil)
	_ handlers.SessionManager    = (*auth.Manager)(nil)
	_ handlers.TokenVerifier     = (*auth.Manager)(nil)
	_ handlers.OTPService        = (*auth.OTPService)(nil)
	_ handlers.IdentityVerifier  = (*auth.GoogleVerifier)(nil)
	_ handlers.MediaStorage      = (*storage.S3Storage)(nil)
	_ handlers.DurationProbe     = (*media.FFProbe)(nil)
	_ handlers.HealthChecker     = db.Checker{}
	_ auth.SessionStore          = (*repositories.PostgresSessionStore)(nil)
	_ auth.OTPStore              = (*repositories.PostgresOTPStore)(nil)
	_ auth.ExpiredOTPPurger      = (*repositories.PostgresOTPStore)(nil)
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases clients opened here.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for _, closer := range closers {
			errs = append(errs, closer())
		}
		return errors.Join(errs...)
	}

	sessions := auth.NewManager(auth.ManagerConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		Issuer:        "videostream",
	}, repositories.NewPostgresSessionStore(pool))

	var mailer auth.OTPMailer = email.LogMailer{}
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPMailer(cfg.SMTP)
	}
	otp := auth.NewOTPService(repositories.NewPostgresOTPStore(pool), mailer, auth.OTPConfig{
		TTL:         cfg.OTP.TTL,
		Cooldown:    cfg.OTP.Cooldown,
		MaxAttempts: cfg.OTP.MaxAttempts,
	})

	objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure object storage: %w", err)
	}

	authLimiter, err := buildAuthLimiter(cfg.RateLimit, &closers)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	deps := handlers.Dependencies{
		Users:         repositories.NewPostgresUserRepository(pool),
		Sessions:      sessions,
		Tokens:        sessions,
		OTP:           otp,
		Videos:        repositories.NewPostgresVideoRepository(pool),
		Comments:      repositories.NewPostgresCommentRepository(pool),
		Tweets:        repositories.NewPostgresTweetRepository(pool),
		Playlists:     repositories.NewPostgresPlaylistRepository(pool),
		Likes:         repositories.NewPostgresLikeRepository(pool),
		Subscriptions: repositories.NewPostgresSubscriptionRepository(pool),
		Catalog:       repositories.NewPostgresCatalog(pool),
		Storage:       objects,
		Probe:         media.NewFFProbe(cfg.Media.FFProbePath, cfg.Media.ProbeTimeout),
		Database:      db.Checker{Pool: pool},

		AuthLimiter:    authLimiter,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestLimit:   cfg.RateLimit.Requests,
		RequestWindow:  cfg.RateLimit.Window,
		Cookies:        handlers.CookieOptions{Secure: cfg.Auth.SecureCookies},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}
	if cfg.Google.ClientID != "" {
		deps.Identity = auth.NewGoogleVerifier(cfg.Google.ClientID, &http.Client{Timeout: 10 * time.Second})
	}

	return deps, cleanup, nil
}

// buildAuthLimiter prefers a shared Redis counter and falls back to in-process buckets.
func buildAuthLimiter(cfg config.RateLimitConfig, closers *[]func() error) (middleware.RateLimiter, error) {
	if cfg.AuthRequests <= 0 {
		return nil, nil
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		*closers = append(*closers, client.Close)
		return middleware.NewRedisRateLimiter(client, "videostream:auth", cfg.AuthRequests, cfg.AuthWindow), nil
	}
	return middleware.NewIPRateLimiter(cfg.AuthRequests, cfg.AuthWindow, cfg.AuthBurst, 10*cfg.AuthWindow), nil
}
