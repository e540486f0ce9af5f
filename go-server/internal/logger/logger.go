package logger

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoders, level and optional Loki sink
type Options struct {
	Level       string
	Environment string
	ServiceName string
	// LokiURL is the push endpoint, e.g. http://localhost:3100/loki/api/v1/push.
	// Empty disables the Loki sink.
	LokiURL string
}

// New builds the process logger. Console output is JSON in production and
// human readable otherwise; when LokiURL is set every entry is also teed
// into a batched Loki push. The returned shutdown flushes pending entries.
func New(opts Options) (*zap.Logger, func(context.Context) error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var consoleEncoder zapcore.Encoder
	if opts.Environment == "production" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	shutdown := func(context.Context) error { return nil }

	if opts.LokiURL != "" {
		writer := newLokiWriter(opts.LokiURL, map[string]string{
			"service_name": opts.ServiceName,
			"environment":  opts.Environment,
			"job":          "shortlink-api",
		}, &http.Client{
			Timeout:   10 * time.Second,
			Transport: NewLokiLoggingTransport(),
		})

		lokiConfig := zap.NewProductionEncoderConfig()
		lokiConfig.TimeKey = "ts"
		lokiConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(lokiConfig), writer, level))

		stop := writer.startFlusher(2 * time.Second)
		shutdown = func(ctx context.Context) error {
			stop()
			return writer.flush(ctx)
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, shutdown, nil
}
