package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/token"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		AuthRate:        1,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	}
}

func requestAsUser(userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	return req.WithContext(ContextWithClaims(req.Context(), &token.Claims{UserID: userID}, "tok"))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_バースト内のリクエストは通過する(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAsUser(1))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_超過時は429とRetryAfterを返す(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAsUser(1))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAsUser(1))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimitExceeded)
	}
}

func TestRateLimitMiddleware_ユーザーごとに独立して制限する(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAsUser(1))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAsUser(2))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("limiter count = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_未認証はIP単位で制限する(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	newReq := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
		req.RemoteAddr = addr
		return req
	}

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newReq("10.0.0.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newReq("10.0.0.1:5678"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same ip status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newReq("10.0.0.2:1234"))
	if w.Code != http.StatusOK {
		t.Errorf("other ip status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthRateLimit_API全般の制限とは独立している(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	general := rl.GeneralMiddleware()(okHandler())
	auth := rl.AuthMiddleware()(okHandler())

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		return req
	}

	w := httptest.NewRecorder()
	auth.ServeHTTP(w, newReq())
	if w.Code != http.StatusOK {
		t.Fatalf("first auth status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	auth.ServeHTTP(w, newReq())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second auth status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, newReq())
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestClientIP_XForwardedForの先頭を採用する(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.5" {
		t.Errorf("clientIP = %q, want %q", got, "203.0.113.5")
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q, want %q", got, "10.0.0.1")
	}
}

func TestRateLimiter_期限切れエントリを削除する(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = time.Hour
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAsUser(1))

	rl.general.mu.Lock()
	for _, cl := range rl.general.limiters {
		cl.lastAccess = time.Now().Add(-3 * time.Hour)
	}
	rl.general.mu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("limiter count after cleanup = %d, want 0", got)
	}
}

func TestRateLimiter_Stopは複数回呼んでもpanicしない(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(120, 10)

	if cfg.GeneralRate != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthBurst != 10 {
		t.Errorf("AuthBurst = %d, want 10", cfg.AuthBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("DefaultRateLimiterConfig should equal PerMinuteRateLimiterConfig(120, 10)")
	}
}
