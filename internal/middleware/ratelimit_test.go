package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testLimiterConfig(generalBurst, recordBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		RecordRate:      1,
		RecordBurst:     recordBurst,
		CleanupInterval: time.Minute,
	}
}

// serve はIdentity付きのリクエストを1件処理してステータスを返す。
func serve(h http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cocktail/history", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	for i := 0; i < 5; i++ {
		if w := serve(handler, "user-1"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	serve(handler, "user-rate")
	serve(handler, "user-rate")
	w := serve(handler, "user-rate")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesIdentities(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	if w := serve(handler, "user-a"); w.Code != http.StatusOK {
		t.Fatalf("user-a first: status = %d", w.Code)
	}
	if w := serve(handler, "user-a"); w.Code != http.StatusTooManyRequests {
		t.Errorf("user-a second: status = %d, want 429", w.Code)
	}
	if w := serve(handler, "user-b"); w.Code != http.StatusOK {
		t.Errorf("user-b first: status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5))
	defer rl.Stop()

	for _, mw := range []func(http.Handler) http.Handler{rl.GeneralMiddleware(), rl.RecordMiddleware()} {
		if w := serve(mw(okHandler), ""); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRecordRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(10, 1))
	defer rl.Stop()
	// General -> Record -> Handler
	handler := rl.GeneralMiddleware()(rl.RecordMiddleware()(okHandler))
	general := rl.GeneralMiddleware()(okHandler)

	if w := serve(handler, "user-rec"); w.Code != http.StatusOK {
		t.Fatalf("first record: status = %d", w.Code)
	}
	if w := serve(handler, "user-rec"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second record: status = %d, want 429", w.Code)
	}
	if w := serve(general, "user-rec"); w.Code != http.StatusOK {
		t.Errorf("general after record limit: status = %d, want 200", w.Code)
	}
	if rl.RecordLimiterCount() != 1 {
		t.Errorf("RecordLimiterCount = %d, want 1", rl.RecordLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testLimiterConfig(5, 5)
	cfg.CleanupInterval = 50 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	serve(rl.GeneralMiddleware()(okHandler), "user-cleanup")
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("expected one limiter entry")
	}

	// TTLは50ms * 2 = 100ms
	time.Sleep(250 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.RecordRate != 1.0 { // 60/60
		t.Errorf("RecordRate = %f, want 1.0", cfg.RecordRate)
	}
	if cfg.RecordBurst != 60 {
		t.Errorf("RecordBurst = %d, want 60", cfg.RecordBurst)
	}
}

func TestNewRateLimiterConfig_ClampsNonPositive(t *testing.T) {
	cfg := NewRateLimiterConfig(0, -5)
	if cfg.GeneralBurst != 1 || cfg.RecordBurst != 1 {
		t.Errorf("bursts = %d/%d, want 1/1", cfg.GeneralBurst, cfg.RecordBurst)
	}
}
