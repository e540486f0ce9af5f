package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/handler"
	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/observability"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	route "github.com/fonsecaaso/shortlink/go-server/internal/routes"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
	"github.com/fonsecaaso/shortlink/go-server/internal/shortcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so the deferred observability shutdown
// flushes buffered log entries on every path.
func run(ctx context.Context) error {
	bootLogger := zap.Must(zap.NewProduction())

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger.Error("error loading configuration", zap.Error(err))
		return err
	}

	obs, err := observability.Setup(ctx, cfg)
	if err != nil {
		bootLogger.Error("observability failed to initialize", zap.Error(err))
		return err
	}
	logger := obs.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			bootLogger.Error("observability shutdown failed", zap.Error(err))
		}
	}()

	repo, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error("store failed to initialize", zap.Error(err), zap.String("backend", cfg.StoreBackend))
		return err
	}
	defer closeStore()

	gen, err := shortcode.New(cfg.ShortCodeStrategy, nil)
	if err != nil {
		logger.Error("invalid short code strategy", zap.Error(err))
		return err
	}

	urlService := service.NewURLService(repo, gen,
		service.WithCodeLength(cfg.ShortCodeLength),
		service.WithMaxAttempts(cfg.MaxGenerationAttempts),
	)

	metricsStop := make(chan struct{})
	metrics.StartSystemMetricsCollection(15*time.Second, metricsStop)
	defer close(metricsStop)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := route.SetupRouter(handler.NewURLHandler(urlService))

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.ServerAddr),
			zap.String("backend", cfg.StoreBackend),
			zap.String("strategy", cfg.ShortCodeStrategy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
	return runErr
}
