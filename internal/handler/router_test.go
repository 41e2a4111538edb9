package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mixmatch/internal/metrics"
	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/session"
)

// pingFunc はHealthCheckerを関数で実装する。
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type gatewayFixture struct {
	router  http.Handler
	backend *mockBackend
	sampler *mockRecommender
	facets  *mockFacetLoader
}

func newGatewayFixture(t *testing.T, common CommonDeps) *gatewayFixture {
	t.Helper()
	if common.Logger == nil {
		common.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if common.CORSAllowedOrigin == "" {
		common.CORSAllowedOrigin = "http://localhost:3000"
	}
	f := &gatewayFixture{backend: &mockBackend{}, sampler: &mockRecommender{}, facets: &mockFacetLoader{}}
	f.router = NewGatewayRouter(&GatewayDeps{
		CommonDeps:     common,
		AllowedOrigins: []string{"http://localhost:3000"},
		Tokens:         &mockTokenManager{},
		Cookies:        session.NewWriter(session.CookieConfig{}),
		Backend:        f.backend,
		Sampler:        f.sampler,
		Facets:         f.facets,
	})
	return f
}

func TestGatewayRouter_Routes(t *testing.T) {
	f := newGatewayFixture(t, CommonDeps{})

	tests := []struct {
		method string
		target string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/cocktails", "", http.StatusOK},
		{http.MethodPost, "/api/cocktails", `{"cocktailId":"1","action":"like"}`, http.StatusCreated},
		{http.MethodGet, "/api/cocktails/search?value=gin", "", http.StatusOK},
		{http.MethodGet, "/api/cocktails/lookup?id=1", "", http.StatusOK},
		{http.MethodGet, "/api/cocktails/categories", "", http.StatusOK},
		{http.MethodGet, "/api/cocktails/history", "", http.StatusOK},
		{http.MethodPost, "/api/auth-login", `{"username":"a","password":"b"}`, http.StatusOK},
		{http.MethodPost, "/api/refresh", "", http.StatusOK},
		{http.MethodPost, "/api/logout", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := withAccessCookie(httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
			w := serve(f.router, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGatewayRouter_NoCookieShortCircuits(t *testing.T) {
	f := newGatewayFixture(t, CommonDeps{})

	for _, target := range []string{"/api/cocktails", "/api/cocktails/search", "/api/cocktails/categories", "/api/cocktails/history"} {
		w := serve(f.router, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", target, w.Code)
		}
	}
	if f.backend.calls+f.sampler.calls+f.facets.calls != 0 {
		t.Error("no upstream call may happen without an access cookie")
	}
}

func TestGatewayRouter_RejectsCrossOriginPost(t *testing.T) {
	f := newGatewayFixture(t, CommonDeps{})

	req := withAccessCookie(httptest.NewRequest(http.MethodPost, "/api/cocktails", strings.NewReader(`{"cocktailId":"1","action":"like"}`)))
	req.Header.Set("Origin", "https://evil.example.com")
	w := serve(f.router, req)

	assertError(t, w, http.StatusForbidden, "origin not allowed")
	if f.backend.calls != 0 {
		t.Errorf("backend calls = %d, want 0", f.backend.calls)
	}

	req = withAccessCookie(httptest.NewRequest(http.MethodPost, "/api/cocktails", strings.NewReader(`{"cocktailId":"1","action":"like"}`)))
	req.Header.Set("Origin", "http://localhost:3000")
	if w := serve(f.router, req); w.Code != http.StatusCreated {
		t.Errorf("same-origin POST: status = %d, want 201", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	t.Run("no checker", func(t *testing.T) {
		f := newGatewayFixture(t, CommonDeps{})
		w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
			t.Errorf("response = %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("failing checker", func(t *testing.T) {
		f := newGatewayFixture(t, CommonDeps{HealthChecker: pingFunc(func(context.Context) error {
			return errors.New("connection refused")
		})})
		w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if strings.Contains(w.Body.String(), "connection refused") {
			t.Error("health response must not leak the cause")
		}
	})
}

func TestRouter_MetricsEndpointCountsStatuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	f := newGatewayFixture(t, CommonDeps{Metrics: collector, MetricsHandler: metrics.Handler(reg)})

	serve(f.router, httptest.NewRequest(http.MethodGet, "/api/cocktails", nil))

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `mixmatch_http_status_total{status_code="401"} 1`) {
		t.Errorf("metrics output does not contain the 401 count:\n%s", w.Body.String())
	}
}

func TestRouter_SecurityHeadersAndCORS(t *testing.T) {
	f := newGatewayFixture(t, CommonDeps{})

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodOptions, "/api/cocktails", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"UNAUTHORIZED", http.StatusUnauthorized},
		{"INVALID_REQUEST", http.StatusBadRequest},
		{"INVALID_JUDGMENT", http.StatusBadRequest},
		{"INVALID_FILTER", http.StatusBadRequest},
		{"FORBIDDEN", http.StatusForbidden},
		{"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests},
		{"SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"BAD_GATEWAY", http.StatusBadGateway},
		{"STORAGE_ERROR", http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.code, got, tt.want)
		}
	}
}
