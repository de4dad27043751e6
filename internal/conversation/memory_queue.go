package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a Queue backed by a bounded in-memory channel. Send
// never blocks: a full buffer is reported as ErrQueueFull so a burst of
// historical sync messages sheds load instead of piling up goroutines.
type MemoryQueue struct {
	ch chan QueueMessage
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{
		ch: make(chan QueueMessage, buffer),
	}
}

// Send enqueues a payload if there is room.
func (q *MemoryQueue) Send(ctx context.Context, body string, attrs JobAttributes) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	msg := QueueMessage{
		ID:           uuid.NewString(),
		Body:         body,
		Attributes:   attrs,
		ReceiveCount: 1,
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports the number of buffered jobs.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Cap reports the queue depth limit.
func (q *MemoryQueue) Cap() int { return cap(q.ch) }

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

func (q *MemoryQueue) collect(first QueueMessage, max int) []QueueMessage {
	messages := make([]QueueMessage, 0, max)
	messages = append(messages, first)
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
