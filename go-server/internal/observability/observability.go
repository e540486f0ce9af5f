package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/logger"
	"github.com/fonsecaaso/shortlink/go-server/internal/tracing"
)

// Observability holds the process logger and the tracer provider
type Observability struct {
	Logger         *zap.Logger
	tracerShutdown func(ctx context.Context) error
	loggerShutdown func(ctx context.Context) error
	initialized    ObservabilityStatus
}

// ObservabilityStatus tracks which components are initialized
type ObservabilityStatus struct {
	TracingEnabled bool
	LokiEnabled    bool
}

// Setup builds the logger (installed as the zap global) and, when an OTLP
// endpoint is configured, the trace exporter.
func Setup(ctx context.Context, cfg *config.Config) (*Observability, error) {
	obs := &Observability{}

	log, loggerShutdown, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
		LokiURL:     cfg.LokiURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	obs.Logger = log
	obs.loggerShutdown = loggerShutdown
	obs.initialized.LokiEnabled = cfg.LokiURL != ""
	zap.ReplaceGlobals(log)

	if cfg.OTLPEndpoint == "" {
		log.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return obs, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp, err := tracing.NewTracerProvider(ctx, cfg.OTLPEndpoint, res, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	obs.tracerShutdown = tp.Shutdown
	obs.initialized.TracingEnabled = true

	return obs, nil
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	}
	if clusterName := os.Getenv("AWS_ECS_CLUSTER_NAME"); clusterName != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.AWSECSClusterARN(clusterName)))
	}
	if taskARN := os.Getenv("TASK_ARN"); taskARN != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.AWSECSTaskARN(taskARN)))
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// GetStatus returns which components were initialized
func (o *Observability) GetStatus() ObservabilityStatus {
	return o.initialized
}

// Shutdown flushes spans first, then log entries
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error

	if o.tracerShutdown != nil {
		if err := o.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if o.loggerShutdown != nil {
		_ = o.Logger.Sync()
		if err := o.loggerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}
