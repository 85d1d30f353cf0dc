package server

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestNewRelay_OptionsAsteriskGetsCORS(t *testing.T) {
	e := NewRelay(&config.Config{}, discardLogger(), metrics.New())
	e.Any("/*", func(c echo.Context) error {
		t.Error("OPTIONS * reached a route handler")
		return nil
	})

	// Serve with the relay's own http.Server so its settings apply.
	srv := httptest.NewUnstartedServer(e)
	srv.Config = e.Server
	srv.Start()
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, "OPTIONS * HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}
	for k, want := range map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, x-api-version",
		"Access-Control-Max-Age":       "86400",
	} {
		if got := resp.Header.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestNewRelay_RejectionsKeepCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ServerConfig
		body       string
		requests   int
		wantStatus int
	}{
		{
			name:       "body limit",
			cfg:        config.ServerConfig{BodyMaxBytes: 4},
			body:       "0123456789",
			requests:   1,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "rate limit",
			cfg:        config.ServerConfig{RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1}},
			requests:   10,
			wantStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewRelay(&config.Config{Server: tt.cfg}, discardLogger(), metrics.New())
			e.Any("/*", okHandler)

			var rec *httptest.ResponseRecorder
			for range tt.requests {
				req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(tt.body))
				rec = httptest.NewRecorder()
				e.ServeHTTP(rec, req)
				if rec.Code == tt.wantStatus {
					break
				}
			}

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
			}
		})
	}
}

func TestNewRelay_SetsRequestID(t *testing.T) {
	e := NewRelay(&config.Config{}, discardLogger(), metrics.New())
	e.Any("/*", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected X-Request-Id on the response")
	}
}

func TestServerTimeouts(t *testing.T) {
	for name, e := range map[string]*echo.Echo{
		"relay": NewRelay(&config.Config{}, discardLogger(), metrics.New()),
		"admin": NewAdmin(),
	} {
		t.Run(name, func(t *testing.T) {
			if e.Server.ReadTimeout != 0 || e.Server.WriteTimeout != 0 {
				t.Errorf("ReadTimeout/WriteTimeout = %v/%v, want 0/0", e.Server.ReadTimeout, e.Server.WriteTimeout)
			}
			if e.Server.ReadHeaderTimeout != 10*time.Second {
				t.Errorf("ReadHeaderTimeout = %v, want 10s", e.Server.ReadHeaderTimeout)
			}
		})
	}
}
