package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/tenancy"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// BuildOutboundMessenger creates the reply messenger. The second value names
// the provider; the third explains a fallback to log-only replies.
func BuildOutboundMessenger(cfg *appconfig.Config, logger *logging.Logger) (conversation.ReplyMessenger, string, string) {
	if cfg == nil {
		return nil, "", "missing config"
	}
	return messaging.BuildReplyMessenger(messaging.ProviderSelectionConfig{
		BaseURL:            cfg.UazapiBaseURL,
		Token:              cfg.UazapiToken,
		InstanceTokensJSON: cfg.UazapiInstanceTokensJSON,
		Timeout:            cfg.UazapiTimeout,
	}, logger)
}

// BuildInstanceResolver maps gateway instances to tenants. With Postgres the
// instance_bindings table is authoritative and INSTANCE_MAP_JSON entries are
// upserted into it at startup; otherwise the static map is used directly.
// Redis, when present, caches lookups.
func BuildInstanceResolver(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (tenancy.InstanceResolver, error) {
	if logger == nil {
		logger = logging.Default()
	}
	mapping, err := messaging.ParseInstanceMap(cfg.InstanceMapJSON)
	if err != nil {
		return nil, err
	}

	var resolver tenancy.InstanceResolver
	if pool != nil {
		pg := messaging.NewPostgresInstanceResolver(pool)
		for instance, tenantID := range mapping {
			if err := pg.Bind(ctx, instance, tenantID); err != nil {
				return nil, fmt.Errorf("bootstrap: seed instance binding %s: %w", instance, err)
			}
		}
		resolver = pg
	} else {
		static := messaging.NewStaticInstanceResolver(mapping)
		if static.Len() == 0 {
			logger.Warn("no instance bindings configured; every webhook will be dropped as unmapped")
		}
		resolver = static
	}

	if redisClient != nil {
		resolver = messaging.NewCachedInstanceResolver(resolver, redisClient, cfg.InstanceCacheTTL, logger)
	}
	return resolver, nil
}
