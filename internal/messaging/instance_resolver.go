package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/tenancy"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// StaticInstanceResolver maps instance names to tenant ids from config.
type StaticInstanceResolver struct {
	mapping map[string]string
}

// NewStaticInstanceResolver constructs a resolver backed by an in-memory map.
func NewStaticInstanceResolver(mapping map[string]string) *StaticInstanceResolver {
	normalized := make(map[string]string, len(mapping))
	for instance, tenant := range mapping {
		instance = tenancy.NormalizeInstance(instance)
		tenant = strings.TrimSpace(tenant)
		if instance == "" || tenant == "" {
			continue
		}
		normalized[instance] = tenant
	}
	return &StaticInstanceResolver{mapping: normalized}
}

// ParseInstanceMap decodes INSTANCE_MAP_JSON ({"instance":"tenant"}).
func ParseInstanceMap(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, nil
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("messaging: parse instance map: %w", err)
	}
	return mapping, nil
}

// ResolveTenant implements tenancy.InstanceResolver.
func (r *StaticInstanceResolver) ResolveTenant(_ context.Context, instance string) (string, error) {
	if r != nil {
		if tenant, ok := r.mapping[tenancy.NormalizeInstance(instance)]; ok {
			return tenant, nil
		}
	}
	return "", &tenancy.UnmappedInstanceError{Instance: instance}
}

// Len reports how many bindings are configured.
func (r *StaticInstanceResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.mapping)
}

const instanceCachePrefix = "instance:tenant:"

// unmappedMarker is cached for unknown instances so a misconfigured gateway
// does not hit the database on every webhook.
const unmappedMarker = "-"

// CachedInstanceResolver is a Redis read-through cache in front of another
// resolver.
type CachedInstanceResolver struct {
	next   tenancy.InstanceResolver
	client redis.Cmdable
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedInstanceResolver(next tenancy.InstanceResolver, client redis.Cmdable, ttl time.Duration, logger *logging.Logger) *CachedInstanceResolver {
	if next == nil {
		panic("messaging: cached resolver requires a backing resolver")
	}
	if client == nil {
		panic("messaging: cached resolver requires a redis client")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedInstanceResolver{next: next, client: client, ttl: ttl, logger: logger}
}

// ResolveTenant implements tenancy.InstanceResolver. Redis failures fall
// through to the backing resolver.
func (r *CachedInstanceResolver) ResolveTenant(ctx context.Context, instance string) (string, error) {
	key := instanceCachePrefix + tenancy.NormalizeInstance(instance)
	cached, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil && cached == unmappedMarker:
		return "", &tenancy.UnmappedInstanceError{Instance: instance}
	case err == nil && cached != "":
		return cached, nil
	case err != nil && !errors.Is(err, redis.Nil):
		r.logger.Warn("instance cache read failed", "instance", instance, "error", err)
	}

	tenant, err := r.next.ResolveTenant(ctx, instance)
	if err != nil {
		var unmapped *tenancy.UnmappedInstanceError
		if errors.As(err, &unmapped) {
			r.store(ctx, key, unmappedMarker, r.ttl/5)
		}
		return "", err
	}
	r.store(ctx, key, tenant, r.ttl)
	return tenant, nil
}

func (r *CachedInstanceResolver) store(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("instance cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the cached binding of instance.
func (r *CachedInstanceResolver) Invalidate(ctx context.Context, instance string) error {
	return r.client.Del(ctx, instanceCachePrefix+tenancy.NormalizeInstance(instance)).Err()
}
