package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	defaultWorkerCount   = 4
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultJobTimeout    = 90 * time.Second
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// JobProcessor handles one decoded inbound message. *Pipeline implements it.
type JobProcessor interface {
	Process(ctx context.Context, msg events.WhatsAppMessageReceivedV1) (Outcome, error)
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
	metrics          *metrics.PipelineMetrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds the processing time of a single message.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// WithWorkerMetrics records job latency.
func WithWorkerMetrics(m *metrics.PipelineMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// Worker consumes conversation jobs from the queue with a fixed pool of
// goroutines. No ordering is guaranteed between jobs.
type Worker struct {
	processor JobProcessor
	queue     Queue
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

func NewWorker(processor JobProcessor, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	defer w.deleteMessage(context.Background(), msg.ReceiptHandle)

	job, env, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode conversation job", "error", err, "msg_id", msg.ID, "instance", msg.Attributes.Instance)
		return
	}
	if msg.ReceiveCount > 1 {
		w.logger.Warn("conversation job redelivered",
			"msg_id", msg.ID,
			"receive_count", msg.ReceiveCount,
			"queued_for", time.Since(env.OccurredAt()).Round(time.Millisecond).String(),
			"instance", job.Instance,
			"external_message_id", job.ExternalMessageID,
		)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()

	started := time.Now()
	outcome, err := w.process(jobCtx, job)
	label := string(outcome)
	if err != nil {
		label = "error"
		w.logger.Error("conversation job failed",
			"error", err,
			"instance", job.Instance,
			"external_message_id", job.ExternalMessageID,
		)
	}
	w.cfg.metrics.ObserveJobLatency(label, time.Since(started).Seconds())
}

// process shields the pool from a panicking job.
func (w *Worker) process(ctx context.Context, job events.WhatsAppMessageReceivedV1) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversation: job panicked: %v", r)
		}
	}()
	return w.processor.Process(ctx, job)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
