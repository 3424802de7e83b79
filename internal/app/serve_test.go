package app

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/estatehub/internal/config"
	"github.com/hitoshi/estatehub/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := hex.DecodeString(testCipherKey)
	if err != nil {
		t.Fatalf("failed to decode key: %v", err)
	}
	return &config.Config{
		DatabaseURL:       testDatabaseURL,
		JWTSecret:         "test-jwt-secret",
		JWTTTL:            2 * time.Hour,
		LedgerCheck:       true,
		BcryptCost:        4,
		FieldCipherKey:    key,
		OTPTTL:            10 * time.Minute,
		OTPLength:         10,
		ImageMaxBytes:     1 << 20,
		ImageMaxDimension: 800,
		MailAPIURL:        "https://mail.example.com/v3/smtp/email",
		RateLimitGeneral:  120,
		RateLimitAuth:     10,
		DefaultPageSize:   2,
		LogLevel:          "info",
		ServerPort:        "8080",
		CORSAllowedOrigin: "http://localhost:3000",
	}
}

func newBuiltServer(t *testing.T, cfg *config.Config) (*server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := buildServer(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("buildServer failed: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, mock
}

func TestBuildServer_HealthAndMetrics(t *testing.T) {
	srv, mock := newBuiltServer(t, testConfig(t))
	mock.ExpectPing()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "estatehub_http_status_total") {
		t.Error("/metrics should expose estatehub_http_status_total")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("/metrics should expose go runtime metrics")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBuildServer_ProtectedRouteRequiresToken(t *testing.T) {
	srv, _ := newBuiltServer(t, testConfig(t))

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/current-user", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBuildServer_RejectsInternalMailEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.MailAPIURL = "http://127.0.0.1/send"

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	if _, err := buildServer(context.Background(), cfg, db); err == nil {
		t.Fatal("buildServer should reject a non-https internal mail endpoint")
	}
}

func TestBuildServer_RedisUnavailable_ContinuesWithoutCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	srv, _ := newBuiltServer(t, cfg)
	if srv.Handler == nil {
		t.Fatal("handler should be built even when redis is unavailable")
	}
}

func TestNewImageStore_WithoutBucket_ReturnsDisabledStore(t *testing.T) {
	store, err := newImageStore(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(storage.DisabledStore); !ok {
		t.Errorf("store = %T, want storage.DisabledStore", store)
	}
}

func TestNewCleanupJob_UsesConfiguredRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenRetentionDays = 30

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	job := newCleanupJob(cfg, db, nil)
	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}

	cfg.TokenRetentionDays = 0
	job = newCleanupJob(cfg, db, nil)
	if job.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want default 7", job.RetentionDays)
	}
}
