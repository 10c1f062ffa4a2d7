// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestTokenAuthAcceptsValidToken(t *testing.T) {
	handler := TokenAuth("secret-token", 100, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if rec.Header().Get(headerRateLimitRemaining) == "" {
		t.Fatal("expected rate limit headers to be set")
	}
}

func TestTokenAuthRejectsBadOrMissingToken(t *testing.T) {
	handler := TokenAuth("secret-token", 100, discardLogger())(okHandler())

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong token", "Bearer other-token"},
		{"wrong scheme", "Basic secret-token"},
		{"empty token", "Bearer "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/documents", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401 got %d", rec.Code)
			}
		})
	}
}

func TestTokenAuthExemptsOperationalEndpoints(t *testing.T) {
	handler := TokenAuth("secret-token", 100, discardLogger())(okHandler())

	for _, path := range []string{healthzPath, metricsPath, versionPath} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200 got %d", path, rec.Code)
		}
	}
}

func TestTokenAuthWithoutConfiguredToken(t *testing.T) {
	handler := TokenAuth("  ", 100, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestTokenAuthRateLimitsPerHost(t *testing.T) {
	handler := TokenAuth("secret-token", 2, discardLogger())(okHandler())

	var lastCode int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.RemoteAddr = "10.0.0.1:4567"
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 got %d", lastCode)
	}

	// Another host has an independent budget.
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.RemoteAddr = "10.0.0.2:4567"
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for fresh host got %d", rec.Code)
	}
}

func TestHostRateLimiterRefills(t *testing.T) {
	limiter := newHostRateLimiter()
	now := time.Now()

	first := limiter.Allow("10.0.0.1", 60, now)
	if !first.Allowed {
		t.Fatal("expected first request to pass")
	}

	// Drain the bucket.
	for i := 0; i < 59; i++ {
		limiter.Allow("10.0.0.1", 60, now)
	}
	blocked := limiter.Allow("10.0.0.1", 60, now)
	if blocked.Allowed {
		t.Fatal("expected empty bucket to block")
	}
	if blocked.RetryAfterSeconds < 1 {
		t.Fatalf("expected retry-after hint got %d", blocked.RetryAfterSeconds)
	}

	refilled := limiter.Allow("10.0.0.1", 60, now.Add(2*time.Second))
	if !refilled.Allowed {
		t.Fatal("expected refill after waiting")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
