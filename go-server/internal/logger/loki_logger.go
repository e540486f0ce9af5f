package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const lokiBatchSize = 100

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiEntry struct {
	level string
	ts    string
	line  string
}

// lokiWriter implements zapcore.WriteSyncer. Entries are buffered and pushed
// in batches, grouped into one stream per level.
type lokiWriter struct {
	url    string
	labels map[string]string
	client *http.Client

	mu      sync.Mutex
	pending []lokiEntry

	// serializes pushes so a flush returns only after earlier batches landed
	flushMu sync.Mutex
}

func newLokiWriter(url string, labels map[string]string, client *http.Client) *lokiWriter {
	return &lokiWriter{url: url, labels: labels, client: client}
}

// Write implements io.Writer. p is reused by zap after Write returns.
func (w *lokiWriter) Write(p []byte) (int, error) {
	entry := lokiEntry{
		ts:   fmt.Sprintf("%d", time.Now().UnixNano()),
		line: string(bytes.TrimRight(p, "\n")),
	}

	var parsed struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(p, &parsed); err == nil {
		entry.level = parsed.Level
	}

	w.mu.Lock()
	w.pending = append(w.pending, entry)
	full := len(w.pending) >= lokiBatchSize
	w.mu.Unlock()

	if full {
		go w.flush(context.Background())
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer
func (w *lokiWriter) Sync() error {
	return w.flush(context.Background())
}

func (w *lokiWriter) startFlusher(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = w.flush(context.Background())
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (w *lokiWriter) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(w.buildPush(batch))
	if err != nil {
		return fmt.Errorf("failed to marshal loki request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create loki request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send logs to loki: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *lokiWriter) buildPush(batch []lokiEntry) lokiPushRequest {
	byLevel := make(map[string]*lokiStream)
	var order []string

	for _, e := range batch {
		stream, ok := byLevel[e.level]
		if !ok {
			labels := make(map[string]string, len(w.labels)+1)
			for k, v := range w.labels {
				labels[k] = v
			}
			if e.level != "" {
				labels["level"] = e.level
			}
			stream = &lokiStream{Stream: labels}
			byLevel[e.level] = stream
			order = append(order, e.level)
		}
		stream.Values = append(stream.Values, []string{e.ts, e.line})
	}

	push := lokiPushRequest{Streams: make([]lokiStream, 0, len(order))}
	for _, level := range order {
		push.Streams = append(push.Streams, *byLevel[level])
	}
	return push
}
