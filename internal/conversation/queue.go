package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-concierge/internal/events"
)

// ErrQueueFull is returned by a bounded queue that cannot accept more work.
var ErrQueueFull = errors.New("conversation: queue is full")

// Queue carries encoded jobs between the webhook and the workers.
type Queue interface {
	Send(ctx context.Context, body string, attrs JobAttributes) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// JobAttributes travel next to the encoded body so a broker can route and
// dedupe without decoding it.
type JobAttributes struct {
	Instance          string
	Phone             string
	ExternalMessageID string
	Origin            string
}

// ConversationKey groups jobs that must be handled in arrival order: one
// contact on one gateway instance.
func (a JobAttributes) ConversationKey() string {
	return a.Instance + "|" + a.Phone
}

// QueueMessage is one received job and the handle used to acknowledge it.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attributes    JobAttributes
	// ReceiveCount is 1 on first delivery; 0 when the queue cannot tell.
	ReceiveCount int
}

// encodeJob wraps an inbound message in the event envelope used as the
// queue body.
func encodeJob(msg events.WhatsAppMessageReceivedV1) (events.Envelope, string, error) {
	env, err := events.NewEnvelope(msg.Instance, msg.ExternalMessageID, msg, events.WithSource(ProcessedProvider))
	if err != nil {
		return events.Envelope{}, "", fmt.Errorf("conversation: failed to build envelope: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return events.Envelope{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return env, string(body), nil
}

func jobAttributes(msg events.WhatsAppMessageReceivedV1) JobAttributes {
	return JobAttributes{
		Instance:          msg.Instance,
		Phone:             msg.Phone,
		ExternalMessageID: msg.ExternalMessageID,
		Origin:            msg.Origin,
	}
}

func decodeJob(body string) (events.WhatsAppMessageReceivedV1, events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return events.WhatsAppMessageReceivedV1{}, env, fmt.Errorf("conversation: failed to decode envelope: %w", err)
	}
	var msg events.WhatsAppMessageReceivedV1
	if err := env.DecodePayload(&msg); err != nil {
		return events.WhatsAppMessageReceivedV1{}, env, err
	}
	return msg, env, nil
}
