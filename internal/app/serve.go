package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/estatehub/internal/auth"
	"github.com/hitoshi/estatehub/internal/cache"
	"github.com/hitoshi/estatehub/internal/category"
	"github.com/hitoshi/estatehub/internal/config"
	"github.com/hitoshi/estatehub/internal/database"
	"github.com/hitoshi/estatehub/internal/handler"
	"github.com/hitoshi/estatehub/internal/listing"
	"github.com/hitoshi/estatehub/internal/mail"
	"github.com/hitoshi/estatehub/internal/metrics"
	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/otp"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/security"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/token"
	"github.com/hitoshi/estatehub/internal/user"
)

// mailTimeout はメール送信APIへのリクエストのタイムアウト。
const mailTimeout = 10 * time.Second

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := buildServer(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type server struct {
	Handler http.Handler
	closers []func()
}

// Close は確保したリソースを逆順に解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServer はリポジトリ、ドメインサービス、ミドルウェアを組み立ててルーターを構築する。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB) (*server, error) {
	srv := &server{}

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteRepo(db)

	// 2. トークン台帳（Redisは任意）
	var ledgerCache token.Cache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, ledger cache disabled",
				slog.String("error", err.Error()),
			)
		} else {
			srv.closers = append(srv.closers, func() { client.Close() })
			ledgerCache = cache.NewTokenCache(client, cfg.LedgerCacheTTL, cfg.JWTTTL)
		}
	}
	ledger := token.NewLedger(tokenRepo, ledgerCache)

	// 3. 資格情報と署名
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	cipher, err := security.NewFieldCipher(security.FieldCipherConfig{Key: cfg.FieldCipherKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create field cipher: %w", err)
	}
	issuer, err := token.NewIssuer(token.IssuerConfig{Secret: cfg.JWTSecret, TTL: cfg.JWTTTL})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	otps := otp.NewGenerator(otp.Config{Length: cfg.OTPLength, TTL: cfg.OTPTTL})

	// 4. 画像ストレージ
	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	limits := storage.ImageLimits{
		MaxBytes:     cfg.ImageMaxBytes,
		MaxDimension: cfg.ImageMaxDimension,
		MaxPixels:    cfg.ImageMaxPixels,
	}

	// 5. メール送信
	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.MailAPIURL); err != nil {
		return nil, fmt.Errorf("invalid MAIL_API_URL: %w", err)
	}
	if cfg.MailAPIKey == "" {
		slog.Warn("MAIL_API_KEY is not set, OTP emails will fail")
	}
	mailer := mail.NewClient(guard.NewSafeClient(mailTimeout), slog.Default(), mail.Config{
		Endpoint:  cfg.MailAPIURL,
		APIKey:    cfg.MailAPIKey,
		FromEmail: cfg.MailFromEmail,
		FromName:  cfg.MailFromName,
	})

	// 6. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 7. ドメインサービスの初期化
	authService := auth.NewService(auth.Deps{
		Users:   userRepo,
		Hasher:  hasher,
		Cipher:  cipher,
		OTPs:    otps,
		Issuer:  issuer,
		Ledger:  ledger,
		Images:  images,
		Mailer:  mailer,
		Metrics: collector,
	}, auth.ServiceConfig{ImageLimits: limits})
	userService := user.NewService(
		userRepo, listingRepo, favoriteRepo, cipher, images, ledger,
		user.ServiceConfig{ImageLimits: limits},
	)
	listingService := listing.NewService(listingRepo, images, security.NewContentSanitizer(), limits)
	categoryService := category.NewService(categoryRepo, images, limits)

	// 8. ミドルウェアとルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	srv.closers = append(srv.closers, rateLimiter.Stop)

	srv.Handler = handler.NewRouter(&handler.RouterDeps{
		Guard:             middleware.NewGuard(issuer, ledger, collector, middleware.GuardConfig{LedgerCheck: cfg.LedgerCheck}),
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.SetupMetricsRoute(reg),
		HealthChecker:     db,

		Upload:          handler.UploadConfig{MaxImageBytes: cfg.ImageMaxBytes},
		DefaultPageSize: cfg.DefaultPageSize,

		AuthService:     authService,
		UserService:     userService,
		ListingService:  listingService,
		CategoryService: categoryService,
	})

	return srv, nil
}

// newImageStore はS3_BUCKETが設定されていればS3Storeを、なければアップロードを拒否するストアを返す。
func newImageStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET is not set, image uploads are disabled")
		return storage.DisabledStore{}, nil
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		PublicBaseURL:   cfg.S3PublicBaseURL,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}
	return store, nil
}
