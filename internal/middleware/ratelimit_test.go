package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"cors-relay/internal/middleware"
)

func TestRateLimiter_RejectedResponsesKeepCORS(t *testing.T) {
	e := echo.New()

	// 1 request per second, burst of 1; later requests should be rejected.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(middleware.CORS())
	e.Use(echomw.RateLimiter(store))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	var limited *httptest.ResponseRecorder
	for range 10 {
		req = httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = rec
			break
		}
	}
	if limited == nil {
		t.Fatal("expected at least one 429 response after burst, got none")
	}
	if got := limited.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("429 Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}

func TestRateLimiter_PreflightNotLimited(t *testing.T) {
	e := echo.New()

	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(middleware.CORS())
	e.Use(echomw.RateLimiter(store))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := range 5 {
		req := httptest.NewRequest(http.MethodOptions, "/test", http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("preflight %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
}
