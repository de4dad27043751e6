package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound schedules one inbound message. Queue errors are wrapped, so
// errors.Is(err, ErrQueueFull) detects shed load.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg events.WhatsAppMessageReceivedV1) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, body, err := encodeJob(msg)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body, jobAttributes(msg)); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}
	p.logger.Debug("conversation job enqueued",
		"event_id", env.EventID.String(),
		"instance", msg.Instance,
		"external_message_id", msg.ExternalMessageID,
	)
	return nil
}
