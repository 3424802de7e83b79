package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/estatehub/internal/metrics"
	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Guard             *middleware.Guard
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// アップロード・ページング
	Upload          UploadConfig
	DefaultPageSize int

	// サービス
	AuthService     AuthServiceInterface
	UserService     UserServiceInterface
	ListingService  ListingServiceInterface
	CategoryService CategoryServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → Metrics → SecurityHeaders → CORS → (ルートごと) Guard → RateLimit
//
// アクセス要件の定義が不正な場合は構築時にpanicする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "ROUTE_NOT_FOUND",
			Message:  "The requested resource does not exist",
			Category: "system",
			Action:   "Check the request path.",
			Kind:     model.KindNotFound,
		})
	})

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	guard := deps.Guard
	general := deps.RateLimiter.GeneralMiddleware()
	authLimit := deps.RateLimiter.AuthMiddleware()

	// access はアクセス要件とAPI全般のレート制限を組み合わせる。
	access := func(a middleware.Access) chi.Middlewares {
		return chi.Middlewares{guard.Require(a), general}
	}
	var (
		public      = middleware.Public
		anyUser     = middleware.Authenticated()
		userOnly    = middleware.Roles(model.RoleUser)
		adminOnly   = middleware.Roles(model.RoleAdmin)
		userOrAdmin = middleware.Roles(model.RoleUser, model.RoleAdmin)
	)

	authHandler := NewAuthHandler(deps.AuthService, deps.Upload)
	userHandler := NewUserHandler(deps.UserService, deps.Upload, deps.DefaultPageSize)
	listingHandler := NewListingHandler(deps.ListingService, deps.Upload, deps.DefaultPageSize)
	categoryHandler := NewCategoryHandler(deps.CategoryService, deps.Upload, deps.DefaultPageSize)

	r.Route("/api/users", func(r chi.Router) {
		// 認証エンドポイント（IP単位のレート制限）
		r.With(authLimit).Post("/auth/signup", authHandler.SignUp)
		r.With(authLimit).Post("/auth/login", authHandler.Login)
		r.With(authLimit).Post("/auth/resend-otp", authHandler.ResendOTP)
		r.With(access(public)...).Put("/confirmEmail", authHandler.ConfirmEmail)

		r.With(access(anyUser)...).Get("/current-user", userHandler.CurrentUser)
		r.With(access(userOrAdmin)...).Post("/logout", authHandler.Logout)
		r.With(access(adminOnly)...).Get("/refresh/{id}", authHandler.RefreshToken)
		r.With(access(anyUser)...).Put("/change-password", authHandler.ChangePassword)
		r.With(access(userOnly)...).Put("/update-profile", userHandler.UpdateProfile)
		r.With(access(userOnly)...).Get("/listings", userHandler.Listings)
		r.With(access(userOrAdmin)...).Delete("/deleteProfile/{id}", userHandler.DeleteProfile)

		r.Route("/favorites", func(r chi.Router) {
			r.Use(access(userOnly)...)
			r.Get("/", userHandler.Favorites)
			r.Post("/{listingId}", userHandler.AddFavorite)
			r.Delete("/{listingId}", userHandler.RemoveFavorite)
		})
	})

	r.Route("/api/listing", func(r chi.Router) {
		r.With(access(anyUser)...).Get("/", listingHandler.List)
		r.With(access(anyUser)...).Get("/{id}", listingHandler.Get)
		r.With(access(userOnly)...).Post("/", listingHandler.Create)
		r.With(access(userOrAdmin)...).Put("/{id}", listingHandler.Update)
		r.With(access(userOrAdmin)...).Delete("/{id}", listingHandler.Delete)
	})

	r.Route("/api/category", func(r chi.Router) {
		r.With(access(public)...).Get("/", categoryHandler.List)
		r.With(access(userOnly)...).Get("/{id}", categoryHandler.Get)
		r.With(access(userOnly)...).Post("/", categoryHandler.Create)
		r.With(access(userOnly)...).Put("/{id}", categoryHandler.Update)
		r.With(access(userOnly)...).Delete("/{id}", categoryHandler.Delete)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
