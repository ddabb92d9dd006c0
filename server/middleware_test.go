package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://matsuri.icu", "*.example.com"}

	cases := []struct {
		origin string
		want   bool
	}{
		{"https://matsuri.icu", true},
		{"https://evil.com", false},
		{"https://app.example.com", true},
		{"https://deep.app.example.com", true},
		{"https://example.com", true},
		{"http://example.com", true},
		{"https://notexample.com", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isOriginAllowed(c.origin, allowed); got != c.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", c.origin, got, c.want)
		}
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthDisabled(t *testing.T) {
	cfg := &authConfig{enabled: false}
	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/x", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unconfigured auth should pass through, got %d", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := &authConfig{adminToken: "secret", enabled: true}

	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token should 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("401 should carry WWW-Authenticate")
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token should pass, got %d", rec.Code)
	}

	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token should 401, got %d", rec.Code)
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := &authConfig{adminUsername: "admin", adminPassword: "hunter2", enabled: true}

	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid basic auth should pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password should 401, got %d", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        time.Minute,
	})

	for i := range 3 {
		if !limiter.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.allow("1.2.3.4") {
		t.Errorf("request over the limit should be denied")
	}
	if !limiter.allow("5.6.7.8") {
		t.Errorf("a different ip has its own window")
	}
}

func TestRateLimitMiddlewareForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 1,
		window:        time.Minute,
	})
	handler := rateLimitMiddleware(okHandler(), limiter)

	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request from the same client ip should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("429 should carry Retry-After")
	}
}

func TestCORSPermissive(t *testing.T) {
	cfg := &corsConfig{permissive: true}
	handler := withCORSConfig(okHandler(), cfg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clip/x", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("permissive mode should allow all origins")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/clip/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight should short-circuit with 204, got %d", rec.Code)
	}
}

func TestCORSRestricted(t *testing.T) {
	cfg := &corsConfig{permissive: false, allowedOrigins: []string{"https://matsuri.icu"}}
	handler := withCORSConfig(okHandler(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/clip/x", nil)
	req.Header.Set("Origin", "https://matsuri.icu")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://matsuri.icu" {
		t.Errorf("allowed origin should be echoed back")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("restricted mode should allow credentials for allowed origins")
	}

	req.Header.Set("Origin", "https://evil.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("disallowed origin must get no CORS headers")
	}
}
