package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport logs outbound requests. It never logs headers, so bearer tokens
// stay out of the logs.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger
	if logger == nil {
		logger = FromContext(req.Context())
	}

	start := time.Now()
	resp, err := t.base().RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	attrs := []any{
		"req_id", req.Header.Get(RequestIDHeader),
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"duration_ms", duration,
	}

	if err != nil {
		logger.DebugContext(req.Context(), "http_client_request_failed", append(attrs, "error", err)...)
		return nil, err
	}

	logger.DebugContext(req.Context(), "http_client_request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
