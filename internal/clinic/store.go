package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store provides persistence for clinic configurations. Redis is the source
// of truth when configured; static configs loaded from the environment act
// as a fallback so a single-clinic deployment needs no Redis at all.
type Store struct {
	redis  redis.Cmdable
	static map[string]*Config
}

// NewStore creates a new clinic config store. redisClient may be nil.
func NewStore(redisClient redis.Cmdable, static map[string]*Config) *Store {
	if static == nil {
		static = map[string]*Config{}
	}
	return &Store{redis: redisClient, static: static}
}

// ParseStaticConfigs decodes CLINIC_CONFIG_JSON: an object keyed by tenant id.
func ParseStaticConfigs(raw string) (map[string]*Config, error) {
	out := map[string]*Config{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	var decoded map[string]*Config
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("clinic: parse static configs: %w", err)
	}
	for tenantID, cfg := range decoded {
		if cfg == nil {
			continue
		}
		merged := DefaultConfig(tenantID)
		if cfg.Name != "" {
			merged.Name = cfg.Name
		}
		if cfg.Timezone != "" {
			merged.Timezone = cfg.Timezone
		}
		if cfg.Persona.AssistantName != "" {
			merged.Persona = cfg.Persona
		}
		merged.Clinicorp = cfg.Clinicorp
		merged.EscalationEmails = cfg.EscalationEmails
		out[tenantID] = merged
	}
	return out, nil
}

func (s *Store) key(tenantID string) string {
	return fmt.Sprintf("clinic:config:%s", tenantID)
}

// Get retrieves clinic config, returning the static or default config if
// nothing is stored.
func (s *Store) Get(ctx context.Context, tenantID string) (*Config, error) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
		switch {
		case err == nil:
			var cfg Config
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
			}
			return &cfg, nil
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("clinic: get config: %w", err)
		}
	}
	if cfg, ok := s.static[tenantID]; ok {
		copied := *cfg
		return &copied, nil
	}
	return DefaultConfig(tenantID), nil
}

// Set saves clinic config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.TenantID) == "" {
		return errors.New("clinic: tenant id required")
	}
	if s.redis == nil {
		return errors.New("clinic: config store is read-only without redis")
	}
	cfg.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(cfg.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}

	return nil
}
