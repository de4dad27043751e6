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

	"github.com/wolfman30/clinic-concierge/cmd/mainconfig"
	"github.com/wolfman30/clinic-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"queue", cfg.QueueBackend,
		"store", cfg.StoreBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger, bootstrap.Overrides{})
	if err != nil {
		return err
	}
	defer app.Close()

	worker := setupInlineWorker(ctx, app)
	srv := newServer(cfg.Port, app.Router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	waitForInlineWorker(worker, logger, shutdownTimeout)
	return nil
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupInlineWorker starts in-process consumers when the queue lives in this
// process. SQS deployments run cmd/conversation-worker instead.
func setupInlineWorker(ctx context.Context, app *bootstrap.App) *conversation.Worker {
	if _, ok := app.Queue.(*conversation.MemoryQueue); !ok {
		app.Logger.Info("inline conversation workers disabled", "queue", app.QueueKind)
		return nil
	}
	worker := app.NewWorker()
	worker.Start(ctx)
	app.Logger.Info("inline conversation workers started", "workers", app.Config.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *conversation.Worker, logger *logging.Logger, timeout time.Duration) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation workers stopped")
	case <-time.After(timeout):
		logger.Error("inline conversation worker shutdown timed out", "timeout", timeout.String())
	}
}
