package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalEvent is a versioned domain event. Event types are spelled
// "<family>.v<N>", for example "whatsapp.message.received.v1".
type CanonicalEvent interface {
	EventType() string
}

// Envelope is the queued form of a CanonicalEvent. Aggregate is the gateway
// instance for WhatsApp traffic and CorrelationID the gateway message id.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Version         int             `json:"version"`
	Source          string          `json:"source,omitempty"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// ErrVersionMismatch is returned when an envelope carries another version of
// the requested event family; a worker older than the producer sees it
// during a rolling deploy.
var ErrVersionMismatch = errors.New("events: event version mismatch")

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")
	nowFunc             = time.Now
)

// EnvelopeOption adjusts a new envelope.
type EnvelopeOption func(*Envelope)

func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.TimestampMicros = ts.UTC().UnixMicro()
		}
	}
}

// WithSource names the system that produced the event, e.g. "uazapi".
func WithSource(source string) EnvelopeOption {
	return func(e *Envelope) {
		e.Source = strings.TrimSpace(source)
	}
}

// ParseEventType splits "whatsapp.message.received.v1" into its family and
// version.
func ParseEventType(eventType string) (family string, version int, err error) {
	eventType = strings.TrimSpace(eventType)
	i := strings.LastIndex(eventType, ".v")
	if i <= 0 {
		return "", 0, fmt.Errorf("events: event type %q has no version suffix", eventType)
	}
	version, err = strconv.Atoi(eventType[i+2:])
	if err != nil || version < 1 {
		return "", 0, fmt.Errorf("events: event type %q has a bad version", eventType)
	}
	return eventType[:i], version, nil
}

func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	_, version, err := ParseEventType(eventType)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Version:         version,
		Aggregate:       aggregate,
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		CorrelationID:   strings.TrimSpace(correlationID),
		Payload:         payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// OccurredAt is the envelope timestamp.
func (e Envelope) OccurredAt() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}

// DecodePayload unmarshals the payload into dst. Another family is an
// error; another version of the same family wraps ErrVersionMismatch.
func (e Envelope) DecodePayload(dst CanonicalEvent) error {
	if dst == nil {
		return errNilEvent
	}
	want := dst.EventType()
	if e.EventType != want {
		gotFamily, _, gotErr := ParseEventType(e.EventType)
		wantFamily, _, wantErr := ParseEventType(want)
		if gotErr == nil && wantErr == nil && gotFamily == wantFamily {
			return fmt.Errorf("%w: got %q, want %q", ErrVersionMismatch, e.EventType, want)
		}
		return fmt.Errorf("events: unexpected event type %q (want %q)", e.EventType, want)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", want, err)
	}
	return nil
}
