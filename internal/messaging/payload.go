package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
)

// Gateway event names.
const (
	EventMessagesUpsert = "messages.upsert"
	EventHistorySet     = "messaging-history.set"
)

// Reasons an element of a webhook is not scheduled.
const (
	SkipFromMe    = "from_me"
	SkipGroup     = "group_or_broadcast"
	SkipNoContent = "no_content"
	SkipMalformed = "malformed"
)

// WebhookEnvelope is the top-level body posted by the gateway.
type WebhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// ParseWebhookEnvelope decodes the body. Only a malformed top-level
// document is an error.
func ParseWebhookEnvelope(body []byte) (WebhookEnvelope, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEnvelope{}, fmt.Errorf("messaging: decode webhook: %w", err)
	}
	env.Event = strings.ToLower(strings.TrimSpace(env.Event))
	if env.Event == "" {
		env.Event = EventMessagesUpsert
	}
	env.Instance = strings.TrimSpace(env.Instance)
	return env, nil
}

type waKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type waMedia struct {
	Caption string `json:"caption"`
	URL     string `json:"url"`
}

type waContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage *waMedia `json:"imageMessage"`
	VideoMessage *waMedia `json:"videoMessage"`
}

type waMessage struct {
	Key              waKey           `json:"key"`
	PushName         string          `json:"pushName"`
	Message          *waContent      `json:"message"`
	MessageTimestamp json.RawMessage `json:"messageTimestamp"`
}

// splitMessages returns the raw message elements of data. data may be a
// single message, an array, or an object carrying a messages array.
func splitMessages(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("messaging: decode data array: %w", err)
		}
		return list, nil
	}
	var wrapper struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("messaging: decode data: %w", err)
	}
	if wrapper.Messages != nil {
		return wrapper.Messages, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// toInbound converts one gateway message into the scheduled event. The
// second return value names why the element was skipped.
func toInbound(instance, origin string, raw json.RawMessage, now time.Time) (events.WhatsAppMessageReceivedV1, string) {
	var msg waMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return events.WhatsAppMessageReceivedV1{}, SkipMalformed
	}
	if msg.Key.FromMe {
		return events.WhatsAppMessageReceivedV1{}, SkipFromMe
	}
	phone, ok := PhoneFromJID(msg.Key.RemoteJID)
	if !ok {
		return events.WhatsAppMessageReceivedV1{}, SkipGroup
	}
	text, msgType, mediaURL := extractContent(msg.Message)
	if text == "" && mediaURL == "" {
		return events.WhatsAppMessageReceivedV1{}, SkipNoContent
	}
	return events.WhatsAppMessageReceivedV1{
		EventID:           uuid.NewString(),
		Instance:          instance,
		Phone:             phone,
		DisplayName:       strings.TrimSpace(msg.PushName),
		Text:              text,
		MessageType:       msgType,
		MediaURL:          mediaURL,
		ExternalMessageID: strings.TrimSpace(msg.Key.ID),
		Origin:            origin,
		ReceivedAt:        parseTimestamp(msg.MessageTimestamp, now),
	}, ""
}

func extractContent(c *waContent) (text, msgType, mediaURL string) {
	if c == nil {
		return "", inbox.TypeText, ""
	}
	switch {
	case strings.TrimSpace(c.Conversation) != "":
		return strings.TrimSpace(c.Conversation), inbox.TypeText, ""
	case c.ExtendedTextMessage != nil && strings.TrimSpace(c.ExtendedTextMessage.Text) != "":
		return strings.TrimSpace(c.ExtendedTextMessage.Text), inbox.TypeText, ""
	case c.ImageMessage != nil:
		return strings.TrimSpace(c.ImageMessage.Caption), inbox.TypeImage, strings.TrimSpace(c.ImageMessage.URL)
	case c.VideoMessage != nil:
		return strings.TrimSpace(c.VideoMessage.Caption), inbox.TypeVideo, strings.TrimSpace(c.VideoMessage.URL)
	}
	return "", inbox.TypeText, ""
}

var errNoTimestamp = errors.New("no timestamp")

// parseTimestamp accepts unix seconds (or milliseconds) as a number or a
// quoted string.
func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	secs, err := timestampValue(raw)
	if err != nil || secs <= 0 {
		return fallback.UTC()
	}
	if secs > 1e12 {
		return time.UnixMilli(secs).UTC()
	}
	return time.Unix(secs, 0).UTC()
}

func timestampValue(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, errNoTimestamp
	}
	return strconv.ParseInt(s, 10, 64)
}
