package clinicorp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ConfigStore is the slice of the clinic config store the registry needs.
type ConfigStore interface {
	Get(ctx context.Context, tenantID string) (*clinic.Config, error)
	Set(ctx context.Context, cfg *clinic.Config) error
}

// RegistryOptions carries process-wide client defaults.
type RegistryOptions struct {
	BaseURL    string
	AuthURL    string
	Timeout    time.Duration
	ForceMock  bool
	HTTPClient *http.Client
}

// Registry lazily builds one Client per tenant and keeps it for the process
// lifetime, so token refreshes stay serialized per tenant.
type Registry struct {
	configs ConfigStore
	opts    RegistryOptions
	logger  *logging.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(configs ConfigStore, opts RegistryOptions, logger *logging.Logger) *Registry {
	if configs == nil {
		panic("clinicorp: config store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		configs: configs,
		opts:    opts,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// ClientFor returns the tenant's client, building it on first use.
func (r *Registry) ClientFor(ctx context.Context, tenantID string) (*Client, error) {
	r.mu.Lock()
	if c, ok := r.clients[tenantID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	cfg, err := r.configs.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("clinicorp: load clinic config: %w", err)
	}
	client, err := New(Config{
		TenantID:       tenantID,
		BaseURL:        r.opts.BaseURL,
		AuthURL:        r.opts.AuthURL,
		Credentials:    cfg.Clinicorp,
		ForceMock:      r.opts.ForceMock,
		Timeout:        r.opts.Timeout,
		HTTPClient:     r.opts.HTTPClient,
		Logger:         r.logger,
		OnTokenRefresh: r.persistTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("clinicorp: build client for %s: %w", tenantID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[tenantID]; ok {
		return existing, nil
	}
	r.clients[tenantID] = client
	r.logger.Info("clinicorp client ready", "tenant_id", tenantID, "state", client.State())
	return client, nil
}

// Evict drops a cached client, e.g. after credentials change.
func (r *Registry) Evict(tenantID string) {
	r.mu.Lock()
	delete(r.clients, tenantID)
	r.mu.Unlock()
}

func (r *Registry) persistTokens(ctx context.Context, tenantID string, tokens TokenSet) {
	cfg, err := r.configs.Get(ctx, tenantID)
	if err != nil {
		r.logger.Warn("failed to load clinic config for token persistence", "tenant_id", tenantID, "error", err)
		return
	}
	cfg.Clinicorp.AccessToken = tokens.AccessToken
	cfg.Clinicorp.RefreshToken = tokens.RefreshToken
	cfg.Clinicorp.ExpiresAt = time.Unix(tokens.ExpiresAt, 0).UTC()
	if err := r.configs.Set(ctx, cfg); err != nil {
		r.logger.Warn("failed to persist refreshed clinicorp tokens", "tenant_id", tenantID, "error", err)
	}
}
