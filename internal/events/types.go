package events

import "time"

// Where an inbound message came from on the gateway side.
const (
	OriginRealtime = "realtime"
	OriginHistory  = "history"
)

// WhatsAppMessageReceivedV1 is one inbound WhatsApp message accepted by the
// webhook and scheduled for background processing. Tenant resolution happens
// in the worker, so only the gateway instance is carried here.
type WhatsAppMessageReceivedV1 struct {
	EventID           string    `json:"event_id"`
	Instance          string    `json:"instance"`
	Phone             string    `json:"phone"`
	DisplayName       string    `json:"display_name,omitempty"`
	Text              string    `json:"text"`
	MessageType       string    `json:"message_type"`
	MediaURL          string    `json:"media_url,omitempty"`
	ExternalMessageID string    `json:"external_message_id"`
	Origin            string    `json:"origin"`
	ReceivedAt        time.Time `json:"received_at"`
}

func (WhatsAppMessageReceivedV1) EventType() string {
	return "whatsapp.message.received.v1"
}
