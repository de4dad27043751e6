package inbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // conversation id -> messages in insert order
	external      map[string]struct{}   // conversation id|external id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		external:      make(map[string]struct{}),
	}
}

func (s *MemoryStore) findOpenLocked(tenantID, phone string) *Conversation {
	var best *Conversation
	for _, c := range s.conversations {
		if c.TenantID != tenantID || c.Phone != phone || c.Status != StatusOpen {
			continue
		}
		if best == nil ||
			c.UpdatedAt.After(best.UpdatedAt) ||
			(c.UpdatedAt.Equal(best.UpdatedAt) && c.CreatedAt.After(best.CreatedAt)) {
			best = c
		}
	}
	return best
}

func (s *MemoryStore) FindOpenConversation(ctx context.Context, tenantID, phone string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findOpenLocked(tenantID, phone)
	if c == nil {
		return nil, ErrConversationNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findOpenLocked(conv.TenantID, conv.Phone); existing != nil {
		copied := *existing
		return &copied, false, nil
	}
	stored := *conv
	s.conversations[stored.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (s *MemoryStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	c.LastMessageAt = at
	c.UpdatedAt = at
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, ErrConversationNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, tenantID, status string, limit int) ([]*Conversation, error) {
	s.mu.Lock()
	out := []*Conversation{}
	for _, c := range s.conversations {
		if c.TenantID != tenantID || (status != "" && c.Status != status) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, conversationID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return false, ErrConversationNotFound
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) MessageExists(ctx context.Context, conversationID, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.external[conversationID+"|"+externalID]
	return ok, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return false, ErrConversationNotFound
	}
	if msg.ExternalMessageID != "" {
		key := msg.ConversationID + "|" + msg.ExternalMessageID
		if _, dup := s.external[key]; dup {
			return false, nil
		}
		s.external[key] = struct{}{}
	}
	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)

	c.LastMessageText = stored.Preview()
	c.LastMessageAt = stored.CreatedAt
	c.UpdatedAt = stored.CreatedAt
	if stored.Direction == DirectionInbound {
		c.UnreadCount++
	} else {
		c.UnreadCount = 0
	}
	return true, nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]*Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*Message, error) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	s.mu.Unlock()
	if !ok || c.TenantID != tenantID {
		return nil, ErrConversationNotFound
	}
	msgs, _ := s.RecentMessages(ctx, conversationID, 0)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}
