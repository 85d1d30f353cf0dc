// Package client provides the HTTPS client for the fixed upstream backend.
package client

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
)

// UpstreamClient sends requests to the upstream HTTPS backend.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and
// connect-phase timeouts. There is no overall request timeout, so long
// streamed bodies are never cut off.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Compression is negotiated end to end; the relay must not decode bodies.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Upstream.SkipVerify(), //nolint:gosec // upstream uses a self-signed certificate
		},
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the browser untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.RelayResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"uri", req.URL.RequestURI(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via RelayResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
			c.metrics.UpstreamErrors.WithLabelValues(method).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.RelayResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Trailer:    resp.Trailer,
		Body:       resp.Body,
	}, nil
}

// DoStream sends pr's method, body, content length and trailers to target
// with the given header, and returns the response body as a stream. The
// caller is responsible for closing the returned ReadCloser.
// The request context controls the lifetime of the upstream request:
// when it is canceled (e.g. client disconnects), the upstream request is
// also canceled. A ContentLength of -1 sends the body chunked.
func (c *UpstreamClient) DoStream(target string, header http.Header, pr *model.RelayRequest) (*model.RelayResponse, error) {
	var body io.Reader = http.NoBody
	if pr.Body != nil && pr.ContentLength != 0 {
		body = pr.Body
	}
	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	setRawRequestURI(req.URL, target)

	if header == nil {
		header = make(http.Header)
	}
	// An empty value keeps the transport from adding its own User-Agent.
	if _, ok := header["User-Agent"]; !ok {
		header["User-Agent"] = []string{""}
	}
	req.Header = header
	if body != http.NoBody {
		req.ContentLength = pr.ContentLength
		req.Trailer = pr.Trailer
	}

	return c.Do(req)
}

// setRawRequestURI makes the request line carry target's path and query
// byte for byte, rather than the form url.URL re-escapes them to.
func setRawRequestURI(u *url.URL, target string) {
	rest := strings.TrimPrefix(target, u.Scheme+"://")
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return
	}
	path, query, hasQuery := strings.Cut(rest[i:], "?")
	// An Opaque starting with "//" is written in absolute form, so such
	// paths keep the parsed URL.
	if strings.HasPrefix(path, "//") {
		return
	}
	u.Opaque = path
	u.RawQuery = query
	u.ForceQuery = hasQuery && query == ""
}
