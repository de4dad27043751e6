package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations and messages. The schema carries a
// partial unique index on conversations(tenant_id, phone) WHERE status='open'
// and a unique index on messages(conversation_id, external_message_id).
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("inbox: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const conversationColumns = `id, tenant_id, contact_id, phone, display_name, status, intent_tag,
	last_message_text, last_message_at, unread_count, created_at, updated_at`

const messageColumns = `id, tenant_id, conversation_id, direction, content, message_type,
	COALESCE(media_url, ''), COALESCE(external_message_id, ''), created_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.ContactID, &c.Phone, &c.DisplayName, &c.Status, &c.IntentTag,
		&c.LastMessageText, &c.LastMessageAt, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(
		&m.ID, &m.TenantID, &m.ConversationID, &m.Direction, &m.Content, &m.MessageType,
		&m.MediaURL, &m.ExternalMessageID, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) FindOpenConversation(ctx context.Context, tenantID, phone string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND phone = $2 AND status = 'open'
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1`
	c, err := scanConversation(s.pool.QueryRow(ctx, query, tenantID, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("inbox: find open conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, bool, error) {
	query := `
		INSERT INTO conversations (id, tenant_id, contact_id, phone, display_name, status, intent_tag,
			last_message_text, last_message_at, unread_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'open', $6, '', $7, 0, $7, $7)
		ON CONFLICT (tenant_id, phone) WHERE status = 'open' DO NOTHING
		RETURNING ` + conversationColumns
	created, err := scanConversation(s.pool.QueryRow(ctx, query,
		conv.ID, conv.TenantID, conv.ContactID, conv.Phone, conv.DisplayName, conv.IntentTag, conv.CreatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inbox: create conversation: %w", err)
	}
	winner, err := s.FindOpenConversation(ctx, conv.TenantID, conv.Phone)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

func (s *PostgresStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	ct, err := s.pool.Exec(ctx, `UPDATE conversations SET last_message_at = $2, updated_at = $2 WHERE id = $1`, conversationID, at)
	if err != nil {
		return fmt.Errorf("inbox: touch conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND tenant_id = $2`
	c, err := scanConversation(s.pool.QueryRow(ctx, query, conversationID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("inbox: get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, tenantID, status string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY last_message_at DESC
		LIMIT $3`
	rows, err := s.pool.Query(ctx, query, tenantID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("inbox: list conversations: %w", err)
	}
	defer rows.Close()
	out := []*Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("inbox: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, conversationID, from, to string) (bool, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		conversationID, from, to)
	if err != nil {
		return false, fmt.Errorf("inbox: update status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PostgresStore) MessageExists(ctx context.Context, conversationID, externalID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM messages WHERE conversation_id = $1 AND external_message_id = $2`,
		conversationID, externalID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inbox: check message: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("inbox: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	insert := `
		INSERT INTO messages (id, tenant_id, conversation_id, direction, content, message_type,
			media_url, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		ON CONFLICT (conversation_id, external_message_id) DO NOTHING
		RETURNING id`
	var id string
	err = tx.QueryRow(ctx, insert,
		msg.ID, msg.TenantID, msg.ConversationID, msg.Direction, msg.Content, msg.MessageType,
		msg.MediaURL, msg.ExternalMessageID, msg.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inbox: insert message: %w", err)
	}

	update := `
		UPDATE conversations
		SET last_message_text = $2,
			last_message_at = $3,
			updated_at = $3,
			unread_count = CASE WHEN $4 = 'inbound' THEN unread_count + 1 ELSE 0 END
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, msg.ConversationID, msg.Preview(), msg.CreatedAt, msg.Direction); err != nil {
		return false, fmt.Errorf("inbox: update conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("inbox: commit: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	msgs, err := s.queryMessages(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY created_at ASC
		LIMIT $3`
	return s.queryMessages(ctx, query, tenantID, conversationID, limit)
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: query messages: %w", err)
	}
	defer rows.Close()
	out := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("inbox: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inbox: query messages: %w", err)
	}
	return out, nil
}
