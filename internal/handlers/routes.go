package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Tokens        TokenVerifier
	OTP           OTPService
	Identity      IdentityVerifier
	Videos        VideoStore
	Comments      CommentStore
	Tweets        TweetStore
	Playlists     PlaylistStore
	Likes         LikeStore
	Subscriptions SubscriptionStore
	Catalog       Catalog
	Storage       MediaStorage
	Probe         DurationProbe
	Database      HealthChecker

	// AuthLimiter guards the credential endpoints. Nil disables the check.
	AuthLimiter middleware.RateLimiter

	Logger         *slog.Logger
	CORSOrigins    []string
	RequestLimit   int
	RequestWindow  time.Duration
	Cookies        CookieOptions
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

// NewRouter wires every endpoint behind the shared middleware stack.
func NewRouter(deps Dependencies) http.Handler {
	authn := Authenticator{Tokens: deps.Tokens}

	users := UserHandler{
		Users:          deps.Users,
		Sessions:       deps.Sessions,
		Catalog:        deps.Catalog,
		Storage:        deps.Storage,
		Identity:       deps.Identity,
		Cookies:        deps.Cookies,
		MaxUploadBytes: deps.MaxUploadBytes,
		NowFunc:        deps.NowFunc,
	}
	otp := OTPHandler{OTP: deps.OTP, Users: deps.Users}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Users:          deps.Users,
		Catalog:        deps.Catalog,
		Storage:        deps.Storage,
		Probe:          deps.Probe,
		MaxUploadBytes: deps.MaxUploadBytes,
		NowFunc:        deps.NowFunc,
	}
	comments := CommentHandler{Comments: deps.Comments, Videos: deps.Videos, Catalog: deps.Catalog, NowFunc: deps.NowFunc}
	tweets := TweetHandler{Tweets: deps.Tweets, Catalog: deps.Catalog, NowFunc: deps.NowFunc}
	likes := LikeHandler{Likes: deps.Likes, Videos: deps.Videos, Comments: deps.Comments, Tweets: deps.Tweets, Catalog: deps.Catalog}
	subscriptions := SubscriptionHandler{Subscriptions: deps.Subscriptions, Users: deps.Users, Catalog: deps.Catalog}
	playlists := PlaylistHandler{Playlists: deps.Playlists, Videos: deps.Videos, Catalog: deps.Catalog, NowFunc: deps.NowFunc}
	dashboard := DashboardHandler{Catalog: deps.Catalog}
	health := HealthHandler{Database: deps.Database}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.CleanPath)
	r.Use(metrics.HTTPMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.RequestLimit > 0 && deps.RequestWindow > 0 {
		r.Use(httprate.Limit(deps.RequestLimit, deps.RequestWindow,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return middleware.ClientIP(r), nil }),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				respondError(r.Context(), w, tooManyRequests("Too many requests"))
			}),
		))
	}

	r.Get("/healthz", health.Handle)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.Limit(deps.AuthLimiter, scope)
	}

	r.Route("/user", func(r chi.Router) {
		r.With(limited("register")).Post("/register", users.Register)
		r.With(limited("login")).Post("/login", users.Login)
		r.With(limited("refresh")).Post("/refresh-token", users.RefreshToken)
		r.With(limited("google")).Post("/google-login", users.GoogleLogin)
		r.With(limited("otp")).Post("/send-otp", otp.Send)
		r.With(limited("otp")).Post("/verify-otp", otp.Verify)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/logout", users.Logout)
			r.Post("/change-password", users.ChangePassword)
			r.Get("/current-user", users.CurrentUser)
			r.Patch("/update-account", users.UpdateAccount)
			r.Patch("/avatar", users.UpdateAvatar)
			r.Patch("/cover-image", users.UpdateCoverImage)
			r.Get("/c/{username}", users.ChannelProfile)
			r.Get("/history", users.WatchHistory)
		})
	})

	r.Route("/video", func(r chi.Router) {
		r.Get("/", videos.List)
		r.With(authn.OptionalAuth).Get("/{videoID}", videos.Get)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/publish", videos.Publish)
			r.Patch("/{videoID}", videos.Update)
			r.Delete("/{videoID}", videos.Delete)
			r.Patch("/toggle/publish/{videoID}", videos.TogglePublish)
		})
	})

	r.Route("/comment", func(r chi.Router) {
		r.Get("/{videoID}", comments.List)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/{videoID}", comments.Create)
			r.Patch("/c/{commentID}", comments.Update)
			r.Delete("/c/{commentID}", comments.Delete)
		})
	})

	r.Route("/like", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Post("/toggle/v/{videoID}", likes.ToggleVideo)
		r.Post("/toggle/c/{commentID}", likes.ToggleComment)
		r.Post("/toggle/t/{tweetID}", likes.ToggleTweet)
		r.Get("/videos", likes.LikedVideos)
	})

	r.Route("/subscription", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Post("/c/{channelID}", subscriptions.Toggle)
		r.Get("/u/{channelID}", subscriptions.Subscribers)
		r.Get("/subscribed-channels/{subscriberID}", subscriptions.SubscribedChannels)
	})

	r.Route("/tweet", func(r chi.Router) {
		r.Get("/", tweets.List)
		r.Get("/user/{userID}", tweets.ListByUser)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/", tweets.Create)
			r.Patch("/{tweetID}", tweets.Update)
			r.Delete("/{tweetID}", tweets.Delete)
		})
	})

	r.Route("/playlist", func(r chi.Router) {
		r.Get("/user/{userID}", playlists.ByUser)
		r.Get("/{playlistID}", playlists.Get)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/", playlists.Create)
			r.Get("/", playlists.Mine)
			r.Patch("/{playlistID}", playlists.Update)
			r.Delete("/{playlistID}", playlists.Delete)
			r.Patch("/add/{videoID}/{playlistID}", playlists.AddVideo)
			r.Patch("/remove/{videoID}/{playlistID}", playlists.RemoveVideo)
		})
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Get("/stats", dashboard.Stats)
		r.Get("/videos/{channelID}", dashboard.Videos)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), w, notFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), w, apiError{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"})
	})

	return r
}
