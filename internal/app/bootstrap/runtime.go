package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
	"github.com/wolfman30/clinic-concierge/internal/leads"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgres opens a pool when the postgres backend is selected and
// returns nil otherwise.
func ConnectPostgres(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if !cfg.UsePostgres() {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// Stores groups the persistence seams of the pipeline.
type Stores struct {
	Contacts  leads.Repository
	Inbox     inbox.Store
	Processed events.ProcessedStore
	Clinics   *clinic.Store
	Directory conversation.DirectoryCache
	Backend   string
}

// BuildStores selects Postgres or in-memory persistence; Redis, when present,
// backs clinic configs, processed-event claims without Postgres, and the
// professional directory cache. pool and redisClient may be nil.
func BuildStores(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if logger == nil {
		logger = logging.Default()
	}
	staticClinics, err := clinic.ParseStaticConfigs(cfg.ClinicConfigJSON)
	if err != nil {
		return nil, err
	}

	stores := &Stores{}
	if pool != nil {
		stores.Backend = "postgres"
		stores.Contacts = leads.NewPostgresRepository(pool)
		stores.Inbox = inbox.NewPostgresStore(pool)
		stores.Processed = events.NewPostgresProcessedStore(pool)
	} else {
		stores.Backend = "memory"
		stores.Contacts = leads.NewInMemoryRepository()
		stores.Inbox = inbox.NewMemoryStore()
		stores.Processed = events.NewMemoryProcessedStore()
	}

	if redisClient != nil {
		if pool == nil {
			stores.Processed = events.NewRedisProcessedStore(redisClient, cfg.ProcessedEventTTL)
		}
		stores.Clinics = clinic.NewStore(redisClient, staticClinics)
		stores.Directory = conversation.NewRedisDirectoryCache(redisClient, cfg.DirectoryCacheTTL, logger)
	} else {
		// A typed nil client must not reach the redis.Cmdable parameter.
		stores.Clinics = clinic.NewStore(nil, staticClinics)
		stores.Directory = conversation.NewMemoryDirectoryCache(cfg.DirectoryCacheTTL)
	}

	logger.Info("stores configured",
		"backend", stores.Backend,
		"redis", redisClient != nil,
		"static_clinics", len(staticClinics),
	)
	return stores, nil
}
