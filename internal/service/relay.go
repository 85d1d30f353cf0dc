// Package service implements the core relay forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/model"
)

// strippedRequestHeaders are removed before a request is sent upstream.
// Host must name the upstream, and Origin would leak browser context.
var strippedRequestHeaders = []string{
	"Host",
	"Origin",
}

// corsHeaderPrefix marks upstream response headers that are dropped so the
// relay's own CORS headers stay authoritative.
const corsHeaderPrefix = "access-control-"

// RelayService rewrites inbound requests for the fixed upstream and forwards them.
type RelayService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	baseURL string
}

// NewRelayService creates a RelayService targeting cfg.Upstream.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *RelayService {
	return &RelayService{
		client:  c,
		logger:  logger.With("component", "relay_service"),
		baseURL: cfg.Upstream.BaseURL(),
	}
}

// Forward sends a RelayRequest to the upstream and returns the response with
// upstream CORS headers removed. The caller is responsible for closing the
// response body.
func (s *RelayService) Forward(pr *model.RelayRequest) (*model.RelayResponse, error) {
	target := s.TargetURL(pr.RequestURI)
	header := filterRequestHeaders(pr.Header)

	s.logger.Info("relaying",
		"method", pr.Method,
		"path", pr.RequestURI,
		"target", target,
	)

	resp, err := s.client.DoStream(target, header, pr)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = filterResponseHeaders(resp.Header)
	resp.Trailer = filterResponseHeaders(resp.Trailer)
	return resp, nil
}

// TargetURL joins the upstream origin and the request-URI exactly as received.
func (s *RelayService) TargetURL(requestURI string) string {
	if requestURI == "" {
		requestURI = "/"
	}
	return s.baseURL + requestURI
}

// filterRequestHeaders copies src except the stripped headers. Multi-valued
// headers keep every value in order.
func filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, key := range strippedRequestHeaders {
		for k := range dst {
			if strings.EqualFold(k, key) {
				delete(dst, k)
			}
		}
	}
	return dst
}

// filterResponseHeaders copies src except headers starting with access-control-.
func filterResponseHeaders(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if strings.HasPrefix(strings.ToLower(key), corsHeaderPrefix) {
			continue
		}
		dst[key] = vals
	}
	return dst
}
