package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnvelopeRoundTripsPayload(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.New()
	evt := WhatsAppMessageReceivedV1{
		EventID:           "evt-1",
		Instance:          "clinic-a",
		Phone:             "5511999990000",
		Text:              "oi",
		ExternalMessageID: "wamid-1",
		Origin:            OriginRealtime,
	}

	env, err := NewEnvelope("clinic-a", "req-1", evt, WithEventID(id), WithTimestamp(fixed))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.EventID != id || env.TimestampMicros != fixed.UnixMicro() {
		t.Fatalf("options not applied: %+v", env)
	}
	if env.EventType != "whatsapp.message.received.v1" || env.Version != 1 {
		t.Fatalf("unexpected event type %s v%d", env.EventType, env.Version)
	}
	if !env.OccurredAt().Equal(fixed) {
		t.Fatalf("occurred at %v, want %v", env.OccurredAt(), fixed)
	}

	var decoded WhatsAppMessageReceivedV1
	if err := env.DecodePayload(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ExternalMessageID != "wamid-1" || decoded.Instance != "clinic-a" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope(" ", "", WhatsAppMessageReceivedV1{}); err != errMissingAggregate {
		t.Fatalf("expected missing aggregate error, got %v", err)
	}
	if _, err := NewEnvelope("agg", "", nil); err != errNilEvent {
		t.Fatalf("expected nil event error, got %v", err)
	}
	if _, err := NewEnvelope("agg", "", unversionedEvent{}); err == nil {
		t.Fatalf("expected an event type without version to be rejected")
	}
}

func TestParseEventType(t *testing.T) {
	family, version, err := ParseEventType("whatsapp.message.received.v12")
	if err != nil || family != "whatsapp.message.received" || version != 12 {
		t.Fatalf("got %q %d %v", family, version, err)
	}
	for _, bad := range []string{"", "v1", "whatsapp.message", "whatsapp.message.vx", "whatsapp.message.v0"} {
		if _, _, err := ParseEventType(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestWithSource(t *testing.T) {
	env, err := NewEnvelope("clinic-a", "", WhatsAppMessageReceivedV1{}, WithSource(" uazapi "))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.Source != "uazapi" {
		t.Fatalf("source = %q", env.Source)
	}
}

func TestDecodePayloadReportsVersionMismatch(t *testing.T) {
	env, err := NewEnvelope("clinic-a", "", receivedV2{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	var dst WhatsAppMessageReceivedV1
	if err := env.DecodePayload(&dst); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodePayloadRejectsWrongType(t *testing.T) {
	env, err := NewEnvelope("agg", "", otherEvent{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	var dst WhatsAppMessageReceivedV1
	if err := env.DecodePayload(&dst); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if errors.Is(env.DecodePayload(&dst), ErrVersionMismatch) {
		t.Fatalf("a different family is not a version mismatch")
	}
}

type otherEvent struct{}

func (otherEvent) EventType() string { return "test.other.v1" }

type unversionedEvent struct{}

func (unversionedEvent) EventType() string { return "test.unversioned" }

type receivedV2 struct{}

func (receivedV2) EventType() string { return "whatsapp.message.received.v2" }
