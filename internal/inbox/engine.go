package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-concierge/internal/leads"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var inboxTracer = otel.Tracer("clinic-concierge.inbox")

// Engine applies the idempotent upserts that keep contacts, conversations
// and messages consistent under at-least-once webhook delivery.
type Engine struct {
	store    Store
	contacts leads.Repository
	logger   *logging.Logger
	now      func() time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store Store, contacts leads.Repository, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("inbox: store required")
	}
	if contacts == nil {
		panic("inbox: contacts repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:    store,
		contacts: contacts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureContact returns the tenant's contact for phone, creating it (with the
// acquisition source classified from firstText) on first sight.
func (e *Engine) EnsureContact(ctx context.Context, tenantID, phone, displayName, firstText string) (*leads.Contact, error) {
	contact, created, err := e.contacts.GetOrCreateByPhone(ctx, &leads.CreateContactRequest{
		TenantID:     tenantID,
		Phone:        phone,
		Name:         displayName,
		FirstMessage: firstText,
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: ensure contact: %w", err)
	}
	if created {
		e.logger.Info("contact created",
			"tenant_id", tenantID,
			"contact_id", contact.ID,
			"acquisition_source", contact.AcquisitionSource,
		)
	}
	return contact, nil
}

// EnsureOpenConversation returns the single open conversation for the
// contact's phone, opening one when none exists.
func (e *Engine) EnsureOpenConversation(ctx context.Context, tenantID string, contact *leads.Contact) (*Conversation, error) {
	if contact == nil {
		return nil, errors.New("inbox: contact required")
	}
	ctx, span := inboxTracer.Start(ctx, "inbox.ensure_open_conversation")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	now := e.now()
	conv, err := e.store.FindOpenConversation(ctx, tenantID, contact.Phone)
	switch {
	case err == nil:
		if err := e.store.TouchConversation(ctx, conv.ID, now); err != nil {
			return nil, fmt.Errorf("inbox: touch conversation: %w", err)
		}
		conv.LastMessageAt = now
		conv.UpdatedAt = now
		return conv, nil
	case !errors.Is(err, ErrConversationNotFound):
		return nil, fmt.Errorf("inbox: ensure open conversation: %w", err)
	}

	conv, created, err := e.store.CreateConversation(ctx, &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ContactID:     contact.ID,
		Phone:         contact.Phone,
		DisplayName:   contact.Name,
		Status:        StatusOpen,
		IntentTag:     IntentQualifying,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: open conversation: %w", err)
	}
	if created {
		e.logger.Info("conversation opened", "tenant_id", tenantID, "conversation_id", conv.ID)
	}
	return conv, nil
}

// RecordMessage appends a message. Replaying an external message id for the
// same conversation returns the call as a no-op with created=false.
func (e *Engine) RecordMessage(ctx context.Context, in MessageInput) (*Message, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}
	in.ExternalMessageID = strings.TrimSpace(in.ExternalMessageID)
	if in.MessageType == "" {
		in.MessageType = TypeText
	}

	if in.ExternalMessageID != "" {
		exists, err := e.store.MessageExists(ctx, in.ConversationID, in.ExternalMessageID)
		if err != nil {
			return nil, false, fmt.Errorf("inbox: record message: %w", err)
		}
		if exists {
			return nil, false, nil
		}
	}

	msg := &Message{
		ID:                uuid.New().String(),
		TenantID:          in.TenantID,
		ConversationID:    in.ConversationID,
		Direction:         in.Direction,
		Content:           in.Content,
		MessageType:       in.MessageType,
		MediaURL:          in.MediaURL,
		ExternalMessageID: in.ExternalMessageID,
		CreatedAt:         e.now(),
	}
	created, err := e.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, false, fmt.Errorf("inbox: record message: %w", err)
	}
	if !created {
		return nil, false, nil
	}
	return msg, true, nil
}

// RecentHistory returns up to n of the latest messages, oldest first.
func (e *Engine) RecentHistory(ctx context.Context, conversationID string, n int) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := e.store.RecentMessages(ctx, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("inbox: recent history: %w", err)
	}
	return msgs, nil
}

// EscalateToHuman moves an open conversation to waiting_human. Conversations
// already waiting are left alone; archived ones are rejected.
func (e *Engine) EscalateToHuman(ctx context.Context, tenantID, conversationID string) error {
	changed, err := e.store.UpdateStatus(ctx, conversationID, StatusOpen, StatusWaitingHuman)
	if err != nil {
		return fmt.Errorf("inbox: escalate: %w", err)
	}
	if changed {
		e.logger.Info("conversation escalated to human", "tenant_id", tenantID, "conversation_id", conversationID)
		return nil
	}
	conv, err := e.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("inbox: escalate: %w", err)
	}
	if conv.Status == StatusWaitingHuman {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conv.Status, StatusWaitingHuman)
}

// Conversation fetches a tenant-scoped conversation.
func (e *Engine) Conversation(ctx context.Context, tenantID, conversationID string) (*Conversation, error) {
	return e.store.GetConversation(ctx, tenantID, conversationID)
}
