package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codex-celida/guideline-interface/internal/config"
	logpkg "github.com/codex-celida/guideline-interface/internal/logger"
	"github.com/codex-celida/guideline-interface/internal/metrics"
	chiTransport "github.com/codex-celida/guideline-interface/internal/transport/chi"
	healthuc "github.com/codex-celida/guideline-interface/internal/usecase/health"
	resourceuc "github.com/codex-celida/guideline-interface/internal/usecase/resource"
	"github.com/codex-celida/guideline-interface/internal/version"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Fetch and index releases, then serve resources over HTTP",
		Long: `Start the HTTP API immediately and build the resource store in the background.
Releases already present in the storage root are reused; when it is empty and
repository.fetch_on_start is set, releases are downloaded first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting guideline interface",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", opts.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("repository", cfg.Repository.URL),
		zap.String("storage", cfg.Storage.Path),
	)

	// Register metrics explicitly (no init())
	metrics.Register()

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	resources := resourceuc.New()
	healthSvc := healthuc.New(resources, p.storage)
	server := chiTransport.NewServer(resources, healthSvc, logpkg.Component(logger, "http"))

	srv := newHTTPServer(cfg.HTTP, server.Handler())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		start := time.Now()
		st, err := p.run(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errCh <- fmt.Errorf("release pipeline: %w", err)
			}
			return
		}
		resources.Publish(st)
		logger.Info("Resource store ready",
			zap.Strings("versions", st.Versions()),
			zap.Duration("took", time.Since(start)),
		)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		resources.Fail(runErr)
		logger.Error("Fatal error, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return runErr
}

func newHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}
}
