package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type recordingProcessor struct {
	mu      sync.Mutex
	seen    []string
	panicOn string
	done    chan struct{}
}

func (p *recordingProcessor) Process(_ context.Context, msg events.WhatsAppMessageReceivedV1) (Outcome, error) {
	defer func() { p.done <- struct{}{} }()
	if msg.ExternalMessageID == p.panicOn {
		panic("boom")
	}
	p.mu.Lock()
	p.seen = append(p.seen, msg.ExternalMessageID)
	p.mu.Unlock()
	return OutcomeReplied, nil
}

func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d jobs", i, n)
		}
	}
}

func TestWorkerProcessesQueuedJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	pub := NewPublisher(queue, logging.Discard())
	proc := &recordingProcessor{done: make(chan struct{}, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := NewWorker(proc, queue, logging.Discard(), WithWorkerCount(2), WithReceiveWaitSeconds(1))
	worker.Start(ctx)

	for _, id := range []string{"w-1", "w-2", "w-3"} {
		msg := googleAdsMessage()
		msg.ExternalMessageID = id
		require.NoError(t, pub.EnqueueInbound(ctx, msg))
	}
	waitFor(t, proc.done, 3)

	cancel()
	worker.Wait()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.ElementsMatch(t, []string{"w-1", "w-2", "w-3"}, proc.seen)
}

func TestWorkerSurvivesPanickingJob(t *testing.T) {
	queue := NewMemoryQueue(8)
	pub := NewPublisher(queue, logging.Discard())
	proc := &recordingProcessor{done: make(chan struct{}, 8), panicOn: "bad"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := NewWorker(proc, queue, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(1))
	worker.Start(ctx)

	bad := googleAdsMessage()
	bad.ExternalMessageID = "bad"
	good := googleAdsMessage()
	good.ExternalMessageID = "good"
	require.NoError(t, pub.EnqueueInbound(ctx, bad))
	require.NoError(t, pub.EnqueueInbound(ctx, good))
	waitFor(t, proc.done, 2)

	cancel()
	worker.Wait()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []string{"good"}, proc.seen)
}

func TestWorkerOptionsClamp(t *testing.T) {
	w := NewWorker(&recordingProcessor{}, NewMemoryQueue(1), nil,
		WithReceiveWaitSeconds(60),
		WithReceiveBatchSize(50),
		WithWorkerCount(0),
		WithJobTimeout(0),
	)
	assert.Equal(t, maxWaitSeconds, w.cfg.receiveWaitSecs)
	assert.Equal(t, maxReceiveBatchSize, w.cfg.receiveBatchSize)
	assert.Equal(t, defaultWorkerCount, w.cfg.workers)
	assert.Equal(t, defaultJobTimeout, w.cfg.jobTimeout)
}
