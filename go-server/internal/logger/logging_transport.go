package logger

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// lokiLoggingTransport reports failed Loki pushes. It writes to stderr
// directly since logging through zap would feed the Loki core again.
type lokiLoggingTransport struct {
	base http.RoundTripper
}

// NewLokiLoggingTransport wraps http.DefaultTransport
func NewLokiLoggingTransport() http.RoundTripper {
	return &lokiLoggingTransport{
		base: http.DefaultTransport,
	}
}

// RoundTrip implements http.RoundTripper
func (t *lokiLoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		fmt.Fprintf(os.Stderr, "[LOKI] push failed: url=%s duration=%v error=%v\n",
			req.URL.String(), duration, err)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var preview string
		if resp.Body != nil {
			if bodyBytes, err := io.ReadAll(resp.Body); err == nil {
				resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
				preview = formatBodyPreviewSimple(bodyBytes, 200)
			}
		}
		fmt.Fprintf(os.Stderr, "[LOKI] push rejected: status=%d duration=%v body=%s\n",
			resp.StatusCode, duration, preview)
	}

	return resp, nil
}

// formatBodyPreviewSimple collapses whitespace and truncates to maxLen
func formatBodyPreviewSimple(bodyBytes []byte, maxLen int) string {
	if len(bodyBytes) == 0 {
		return "(empty)"
	}

	preview := strings.Join(strings.Fields(string(bodyBytes)), " ")
	if len(preview) > maxLen {
		preview = preview[:maxLen] + "..."
	}

	return preview
}
