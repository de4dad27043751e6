package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// ProcessedStore records provider events that were already claimed by a
// worker so the same gateway message is never handled twice.
type ProcessedStore interface {
	// Claim marks the event as taken. It returns false when another caller
	// claimed it first.
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	// Release drops a claim whose work failed so a redelivery can retry it.
	Release(ctx context.Context, provider, eventID string) error
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProcessedStore keeps claims in the processed_events table.
type PostgresProcessedStore struct {
	pool rowQuerier
}

func NewPostgresProcessedStore(pool rowQuerier) *PostgresProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresProcessedStore{pool: pool}
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *PostgresProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, provider, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// Claim inserts an event id for the provider, returning false if it already exists.
func (s *PostgresProcessedStore) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Release deletes the claim row.
func (s *PostgresProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	query := `DELETE FROM processed_events WHERE provider = $1 AND event_id = $2`
	if _, err := s.pool.Exec(ctx, query, provider, eventID); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

// RedisProcessedStore claims events with SET NX and lets them expire.
type RedisProcessedStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisProcessedStore(client redis.Cmdable, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisProcessedStore{client: client, ttl: ttl, prefix: "processed"}
}

func (s *RedisProcessedStore) key(provider, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, provider, eventID)
}

func (s *RedisProcessedStore) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(provider, eventID), time.Now().UTC().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis claim: %w", err)
	}
	return ok, nil
}

func (s *RedisProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	if err := s.client.Del(ctx, s.key(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: redis release: %w", err)
	}
	return nil
}

func (s *RedisProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis exists: %w", err)
	}
	return n > 0, nil
}

// MemoryProcessedStore is a process-local claim set.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]struct{})}
}

func (s *MemoryProcessedStore) Claim(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + ":" + eventID
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

func (s *MemoryProcessedStore) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[provider+":"+eventID]
	return ok, nil
}

func (s *MemoryProcessedStore) Release(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, provider+":"+eventID)
	return nil
}
