// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// RelayRequest represents an inbound request to be forwarded upstream.
type RelayRequest struct {
	Ctx    context.Context
	Method string
	// RequestURI is the path and query exactly as received on the wire.
	RequestURI    string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 means unknown (chunked)
	Trailer       http.Header
}

// RelayResponse represents the upstream response to be streamed back.
type RelayResponse struct {
	StatusCode int
	Header     http.Header
	Trailer    http.Header
	Body       io.ReadCloser
}
