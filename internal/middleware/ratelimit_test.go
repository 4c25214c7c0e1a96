package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

func newRequestFrom(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testRateLimiterConfig(generalBurst, subscribeBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		SubscribeRate:   1.0 / 60.0,
		SubscribeBurst:  subscribeBurst,
		CleanupInterval: time.Minute,
	}
}

// --- GeneralMiddleware ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(5, 10))
	defer rl.Stop()

	calls := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "203.0.113.5:40000"))

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if calls != 5 {
		t.Errorf("handler call count = %d, want 5", calls)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(2, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "203.0.113.5:40000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "203.0.113.5:40000"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429 response should be JSON: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimitExceeded)
	}
	if body.Category != model.CategorySystem {
		t.Errorf("category = %q, want %q", body.Category, model.CategorySystem)
	}
}

func TestRateLimitMiddleware_IsolatesClientIPs(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// 同じIPでもポートが違えば同一クライアント
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "198.51.100.1:1111"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "198.51.100.1:2222"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 別IPは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", "198.51.100.2:1111"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

// --- SubscribeMiddleware ---

func TestSubscribeRateLimit_Returns429WithLongRetryAfter(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(100, 3))
	defer rl.Stop()

	handler := rl.SubscribeMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequestFrom(http.MethodPost, "/api/subscribers", "203.0.113.9:5000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestFrom(http.MethodPost, "/api/subscribers", "203.0.113.9:5000"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %v", err)
	}
	if retryAfter != 60 {
		t.Errorf("Retry-After = %d, want 60", retryAfter)
	}
}

func TestSubscribeRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(100, 1))
	defer rl.Stop()

	subscribe := rl.GeneralMiddleware()(rl.SubscribeMiddleware()(okHandler()))
	general := rl.GeneralMiddleware()(okHandler())
	const addr = "203.0.113.20:1000"

	w := httptest.NewRecorder()
	subscribe.ServeHTTP(w, newRequestFrom(http.MethodPost, "/api/subscribers", addr))
	if w.Code != http.StatusOK {
		t.Fatalf("first subscribe: status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	subscribe.ServeHTTP(w, newRequestFrom(http.MethodPost, "/api/subscribers", addr))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second subscribe: status = %d, want 429", w.Code)
	}

	// 購読登録の制限中でも一般APIは利用できる
	w = httptest.NewRecorder()
	general.ServeHTTP(w, newRequestFrom(http.MethodGet, "/api/posts", addr))
	if w.Code != http.StatusOK {
		t.Errorf("general request: status = %d, want 200", w.Code)
	}
	if got := rl.SubscribeLimiterCount(); got != 1 {
		t.Errorf("SubscribeLimiterCount = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_ConcurrentClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(1000, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := "10.0.0." + strconv.Itoa(i%5) + ":80"
			handler.ServeHTTP(httptest.NewRecorder(), newRequestFrom(http.MethodGet, "/api/tools", addr))
		}(i)
	}
	wg.Wait()

	if got := rl.GeneralLimiterCount(); got != 5 {
		t.Errorf("GeneralLimiterCount = %d, want 5", got)
	}
}

// --- クリーンアップ ---

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(10, 10))
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(),
		newRequestFrom(http.MethodGet, "/api/posts", "192.0.2.1:1"))
	rl.SubscribeMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(),
		newRequestFrom(http.MethodPost, "/api/subscribers", "192.0.2.1:1"))

	// 最終アクセスをTTL以前に戻す
	past := time.Now().Add(-3 * rl.config.CleanupInterval)
	for _, set := range []*limiterSet{rl.general, rl.subscribe} {
		set.mu.Lock()
		for _, cl := range set.limiters {
			cl.lastAccess = past
		}
		set.mu.Unlock()
	}

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", got)
	}
	if got := rl.SubscribeLimiterCount(); got != 0 {
		t.Errorf("SubscribeLimiterCount = %d, want 0", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

// --- 設定 ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.SubscribeBurst != 10 {
		t.Errorf("SubscribeBurst = %d, want 10", cfg.SubscribeBurst)
	}
	if float64(cfg.GeneralRate) != 2.0 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{remoteAddr: "203.0.113.5:40000", want: "203.0.113.5"},
		{remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remoteAddr: "203.0.113.5", want: "203.0.113.5"},
	}

	for _, tt := range tests {
		req := newRequestFrom(http.MethodGet, "/", tt.remoteAddr)
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
