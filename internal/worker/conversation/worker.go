package conversationworker

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-concierge/cmd/mainconfig"
	"github.com/wolfman30/clinic-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// Run starts the SQS conversation worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.QueueBackend != bootstrap.QueueSQS {
		return fmt.Errorf("conversation worker requires QUEUE_BACKEND=sqs (got %q); the API runs inline workers for the memory queue", cfg.QueueBackend)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger, bootstrap.Overrides{})
	if err != nil {
		return fmt.Errorf("failed to wire conversation worker: %w", err)
	}
	defer app.Close()

	return Serve(ctx, app.NewWorker(), logger, shutdownTimeout)
}

// Serve runs worker until ctx is canceled, then waits up to timeout for
// in-flight jobs.
func Serve(ctx context.Context, worker *conversation.Worker, logger *logging.Logger, timeout time.Duration) error {
	worker.Start(ctx)
	logger.Info("conversation worker started")

	<-ctx.Done()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
		return nil
	case <-time.After(timeout):
		logger.Error("conversation worker shutdown timed out", "timeout", timeout.String())
		return fmt.Errorf("conversation worker shutdown timed out after %s", timeout)
	}
}
