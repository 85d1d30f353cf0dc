package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/model"
	"cors-relay/internal/service"
)

// copyBufferSize bounds how much of a response body is held per request.
const copyBufferSize = 32 * 1024

// RelayHandler forwards every non-preflight request to the upstream.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle relays the request to the upstream and streams the response back.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.RelayRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		RequestURI:    requestURI(req),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Trailer:       req.Trailer,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		h.logger.Error("relay error",
			"err", err,
			"uri", pr.RequestURI,
		)
		return c.String(http.StatusInternalServerError, "Proxy Error: "+errorMessage(err))
	}
	defer func() { _ = resp.Body.Close() }()

	// Upstream headers replace any the relay set under the same name, except
	// the CORS headers, which the service has already removed.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Status is already sent, so a failure here leaves the caller with a
	// truncated body; it can only be logged.
	if err := streamBody(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"uri", pr.RequestURI,
		)
		return nil
	}

	for key, vals := range resp.Trailer {
		dst[http.TrailerPrefix+key] = vals
	}

	return nil
}

// requestURI returns the path and query exactly as the client sent them.
// Absolute-form targets (proxy-style requests) are reduced to path and query.
func requestURI(req *http.Request) string {
	if strings.HasPrefix(req.RequestURI, "/") {
		return req.RequestURI
	}
	return req.URL.RequestURI()
}

// streamBody copies src to the response, flushing after every chunk so the
// caller sees data as soon as the upstream sends it.
func streamBody(w *echo.Response, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}

// errorMessage describes a forwarding failure the way the transport reports
// it ("dial tcp 10.0.0.5:9419: connect: connection refused"), without the
// relay's own wrapping.
func errorMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
