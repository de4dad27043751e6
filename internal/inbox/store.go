package inbox

import (
	"context"
	"time"
)

// Store is the persistence capability the Engine needs. Implementations
// must make AppendMessage idempotent per (conversation, external id) and
// must allow at most one open conversation per (tenant, phone).
type Store interface {
	// FindOpenConversation returns the most recently updated open
	// conversation, ties broken by newest creation time.
	FindOpenConversation(ctx context.Context, tenantID, phone string) (*Conversation, error)
	// CreateConversation inserts an open conversation. When a concurrent
	// caller already opened one, that row is returned with created=false.
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, bool, error)
	TouchConversation(ctx context.Context, conversationID string, at time.Time) error
	GetConversation(ctx context.Context, tenantID, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, tenantID, status string, limit int) ([]*Conversation, error)
	UpdateStatus(ctx context.Context, conversationID, from, to string) (bool, error)

	MessageExists(ctx context.Context, conversationID, externalID string) (bool, error)
	// AppendMessage stores msg and refreshes the conversation's
	// last-message fields and unread count. Returns false for a duplicate.
	AppendMessage(ctx context.Context, msg *Message) (bool, error)
	// RecentMessages returns the last limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*Message, error)
}
