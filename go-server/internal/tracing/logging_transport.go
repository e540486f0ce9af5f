package tracing

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// loggingTransport logs every OTLP export request and its outcome
type loggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

// NewLoggingTransport wraps http.DefaultTransport
func NewLoggingTransport(logger *zap.Logger) http.RoundTripper {
	return &loggingTransport{
		base:   http.DefaultTransport,
		logger: logger.With(zap.String("component", "otlp-exporter")),
	}
}

// RoundTrip implements http.RoundTripper
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	t.logger.Debug("Sending OTLP request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int64("content_length", req.ContentLength),
		zap.String("content_encoding", req.Header.Get("Content-Encoding")),
		zap.Any("headers", formatHeaders(req.Header)),
	)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.logger.Error("OTLP request failed",
			zap.String("url", req.URL.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	switch {
	case resp.StatusCode >= 400:
		t.logger.Error("OTLP request failed with error status",
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
			zap.String("body_preview", t.readPreview(resp)),
		)
	case resp.StatusCode >= 300:
		t.logger.Warn("OTLP request received redirect",
			zap.Int("status_code", resp.StatusCode),
			zap.String("location", resp.Header.Get("Location")),
		)
	default:
		t.logger.Debug("OTLP request succeeded",
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
	}

	return resp, nil
}

// readPreview reads the body for logging and restores it for the caller
func (t *loggingTransport) readPreview(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return formatBodyPreview(bodyBytes)
}

func formatBodyPreview(bodyBytes []byte) string {
	if len(bodyBytes) == 0 {
		return "(empty)"
	}

	const maxPreview = 500
	preview := string(bodyBytes)
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}

	if !isPrintable(preview) {
		return "(binary protobuf data)"
	}
	return strings.Join(strings.Fields(preview), " ")
}

// isPrintable reports whether most of s is printable ASCII
func isPrintable(s string) bool {
	printableCount := 0
	for _, r := range s {
		if r >= 32 && r <= 126 || r == '\n' || r == '\t' {
			printableCount++
		}
	}
	return len(s) > 0 && float64(printableCount)/float64(len(s)) > 0.7
}

// formatHeaders flattens headers, hiding credentials
func formatHeaders(headers http.Header) map[string]string {
	formatted := make(map[string]string, len(headers))
	for key, values := range headers {
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "authorization") ||
			strings.Contains(lowerKey, "token") ||
			strings.Contains(lowerKey, "secret") {
			formatted[key] = "***REDACTED***"
		} else {
			formatted[key] = strings.Join(values, ", ")
		}
	}
	return formatted
}
