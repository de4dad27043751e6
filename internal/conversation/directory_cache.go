package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const defaultDirectoryTTL = 10 * time.Minute

// DirectoryLoader fetches the professional directory from the upstream API.
type DirectoryLoader func(ctx context.Context) ([]clinicorp.Professional, error)

// DirectoryCache keeps each tenant's professional directory so slot
// enrichment does not hit the scheduling API on every tool call.
type DirectoryCache interface {
	Professionals(ctx context.Context, tenantID string, load DirectoryLoader) ([]clinicorp.Professional, error)
}

type directoryEntry struct {
	professionals []clinicorp.Professional
	expires       time.Time
}

// MemoryDirectoryCache is a per-process TTL cache.
type MemoryDirectoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]directoryEntry
}

func NewMemoryDirectoryCache(ttl time.Duration) *MemoryDirectoryCache {
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	return &MemoryDirectoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]directoryEntry),
	}
}

func (c *MemoryDirectoryCache) Professionals(ctx context.Context, tenantID string, load DirectoryLoader) ([]clinicorp.Professional, error) {
	c.mu.Lock()
	entry, ok := c.entries[tenantID]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.professionals, nil
	}

	profs, err := load(ctx)
	if err != nil {
		return nil, err
	}
	// Empty directories are not cached; they usually mean a transient upstream problem.
	if len(profs) > 0 {
		c.mu.Lock()
		c.entries[tenantID] = directoryEntry{professionals: profs, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return profs, nil
}

// Invalidate drops a tenant's cached directory.
func (c *MemoryDirectoryCache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

// RedisDirectoryCache shares the directory between API and worker processes.
type RedisDirectoryCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *logging.Logger
}

func NewRedisDirectoryCache(client redis.Cmdable, ttl time.Duration, logger *logging.Logger) *RedisDirectoryCache {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisDirectoryCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisDirectoryCache) key(tenantID string) string {
	return fmt.Sprintf("directory:professionals:%s", tenantID)
}

func (c *RedisDirectoryCache) Professionals(ctx context.Context, tenantID string, load DirectoryLoader) ([]clinicorp.Professional, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	switch {
	case err == nil:
		var profs []clinicorp.Professional
		if jsonErr := json.Unmarshal(raw, &profs); jsonErr == nil {
			return profs, nil
		}
		c.logger.Warn("discarding corrupt directory cache entry", "tenant_id", tenantID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("directory cache read failed", "tenant_id", tenantID, "error", err)
	}

	profs, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if len(profs) == 0 {
		return profs, nil
	}
	payload, err := json.Marshal(profs)
	if err != nil {
		return profs, nil
	}
	if err := c.client.Set(ctx, c.key(tenantID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", "tenant_id", tenantID, "error", err)
	}
	return profs, nil
}
