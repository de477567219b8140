package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/app"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/config"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/httpapi"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/tracing"
	"github.com/Balaji-Ram-R/Squats-Analyzer/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("squats-analyzer server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	stopTracing := tracing.Start(ctx, cfg.JaegerEndpoint, "server", log)
	defer stopTracing(context.Background())

	analyzer, err := app.NewAnalyzer(cfg, log)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(analyzer, httpapi.Config{
			TempDir:        cfg.TempDir,
			MaxUploadBytes: cfg.HTTPMaxUploadMB << 20,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("http server starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("pose_provider", cfg.PoseProvider),
	)
	return serve(ctx, srv, log)
}

// serve runs srv until ctx is cancelled or the listener fails, then drains
// in-flight requests.
func serve(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
