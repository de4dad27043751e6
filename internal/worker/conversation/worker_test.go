package conversationworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type processorFunc func(ctx context.Context, msg events.WhatsAppMessageReceivedV1) (conversation.Outcome, error)

func (f processorFunc) Process(ctx context.Context, msg events.WhatsAppMessageReceivedV1) (conversation.Outcome, error) {
	return f(ctx, msg)
}

func TestRunRejectsMemoryQueue(t *testing.T) {
	err := Run(context.Background(), &appconfig.Config{QueueBackend: "memory"}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_BACKEND=sqs")

	require.Error(t, Run(context.Background(), nil, nil))
}

func TestServeDrainsOnCancel(t *testing.T) {
	queue := conversation.NewMemoryQueue(4)
	processed := make(chan string, 1)
	worker := conversation.NewWorker(processorFunc(func(_ context.Context, msg events.WhatsAppMessageReceivedV1) (conversation.Outcome, error) {
		processed <- msg.ExternalMessageID
		return conversation.OutcomeReplied, nil
	}), queue, logging.Discard(), conversation.WithWorkerCount(1))

	publisher := conversation.NewPublisher(queue, logging.Discard())
	require.NoError(t, publisher.EnqueueInbound(context.Background(), events.WhatsAppMessageReceivedV1{
		EventID:           "evt-1",
		Instance:          "clinic-a",
		Phone:             "5511999990001",
		Text:              "oi",
		ExternalMessageID: "w-1",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, worker, logging.Discard(), time.Second) }()

	select {
	case id := <-processed:
		assert.Equal(t, "w-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestServeReportsShutdownTimeout(t *testing.T) {
	queue := conversation.NewMemoryQueue(1)
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	worker := conversation.NewWorker(processorFunc(func(context.Context, events.WhatsAppMessageReceivedV1) (conversation.Outcome, error) {
		close(started)
		<-release
		return conversation.OutcomeReplied, nil
	}), queue, logging.Discard(), conversation.WithWorkerCount(1))

	require.NoError(t, conversation.NewPublisher(queue, logging.Discard()).EnqueueInbound(context.Background(),
		events.WhatsAppMessageReceivedV1{EventID: "evt-2", Instance: "clinic-a", Phone: "5511", Text: "oi"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, worker, logging.Discard(), 50*time.Millisecond) }()
	<-started
	cancel()
	require.Error(t, <-done)
}
