package inbox

import (
	"errors"
	"strings"
	"time"
)

// Conversation statuses. Archived conversations are only reopened outside
// this service.
const (
	StatusOpen         = "open"
	StatusWaitingHuman = "waiting_human"
	StatusArchived     = "archived"
)

// IntentQualifying is the intent tag of a freshly opened conversation.
const IntentQualifying = "qualifying"

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
)

var (
	ErrConversationNotFound = errors.New("inbox: conversation not found")
	ErrInvalidMessage       = errors.New("inbox: invalid message")
	ErrInvalidTransition    = errors.New("inbox: invalid status transition")
)

// Conversation is the thread between a tenant and one phone number.
type Conversation struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ContactID       string    `json:"contact_id"`
	Phone           string    `json:"phone"`
	DisplayName     string    `json:"display_name"`
	Status          string    `json:"status"`
	IntentTag       string    `json:"intent_tag"`
	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is an append-only entry in a conversation.
type Message struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	ConversationID    string    `json:"conversation_id"`
	Direction         string    `json:"direction"`
	Content           string    `json:"content"`
	MessageType       string    `json:"message_type"`
	MediaURL          string    `json:"media_url,omitempty"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// MessageInput is what callers hand to RecordMessage.
type MessageInput struct {
	TenantID          string
	ConversationID    string
	Direction         string
	Content           string
	MessageType       string
	MediaURL          string
	ExternalMessageID string
}

func (in MessageInput) validate() error {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.ConversationID) == "" {
		return ErrInvalidMessage
	}
	switch in.Direction {
	case DirectionInbound, DirectionOutbound:
	default:
		return ErrInvalidMessage
	}
	switch in.MessageType {
	case "", TypeText, TypeImage, TypeVideo:
	default:
		return ErrInvalidMessage
	}
	return nil
}

// Preview is the denormalized text kept on the conversation row.
func (m *Message) Preview() string {
	if strings.TrimSpace(m.Content) != "" {
		return m.Content
	}
	switch m.MessageType {
	case TypeImage:
		return "[imagem]"
	case TypeVideo:
		return "[vídeo]"
	}
	return ""
}
