package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("QUEUE_DEPTH", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("WIDEN_STRATEGY", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreBackend)
	}
	if cfg.QueueDepth != 256 {
		t.Fatalf("expected default queue depth 256, got %d", cfg.QueueDepth)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected openai provider, got %s", cfg.LLMProvider)
	}
	if cfg.WidenStrategy != "none" {
		t.Fatalf("expected widen strategy none, got %s", cfg.WidenStrategy)
	}
	if cfg.UazapiTimeout != 15*time.Second {
		t.Fatalf("expected 15s uazapi timeout, got %s", cfg.UazapiTimeout)
	}
	if cfg.UsePostgres() {
		t.Fatalf("postgres should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("QUEUE_DEPTH", "32")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("JOB_TIMEOUT", "45s")
	t.Setenv("INSTANCE_MAP_JSON", `{"clinic-a":"tenant-1"}`)
	t.Setenv("CLINICORP_FORCE_MOCK", "true")
	t.Setenv("WIDEN_STRATEGY", "NEXT_DAY")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.UsePostgres() {
		t.Fatalf("expected postgres backend")
	}
	if cfg.QueueDepth != 32 || cfg.WorkerCount != 8 {
		t.Fatalf("unexpected worker settings: depth=%d workers=%d", cfg.QueueDepth, cfg.WorkerCount)
	}
	if cfg.JobTimeout != 45*time.Second {
		t.Fatalf("expected 45s job timeout, got %s", cfg.JobTimeout)
	}
	if cfg.InstanceMapJSON != `{"clinic-a":"tenant-1"}` {
		t.Fatalf("unexpected instance map %s", cfg.InstanceMapJSON)
	}
	if !cfg.ClinicorpForceMock {
		t.Fatalf("expected forced mock mode")
	}
	if cfg.WidenStrategy != "next_day" {
		t.Fatalf("expected lower-cased widen strategy, got %s", cfg.WidenStrategy)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("QUEUE_DEPTH", "lots")
	t.Setenv("JOB_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.QueueDepth != 256 {
		t.Fatalf("expected default depth on parse failure, got %d", cfg.QueueDepth)
	}
	if cfg.JobTimeout != 90*time.Second {
		t.Fatalf("expected default timeout on parse failure, got %s", cfg.JobTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected RedisTLS false on parse failure")
	}
}

func TestHTTPSettings(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ops.example.com, ,https://admin.example.com")
	t.Setenv("WEBHOOK_RATE_LIMIT", "12.5")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.WebhookRateLimit != 12.5 {
		t.Fatalf("expected rate 12.5, got %v", cfg.WebhookRateLimit)
	}
	if cfg.WebhookRateBurst != 50 {
		t.Fatalf("expected default burst, got %d", cfg.WebhookRateBurst)
	}
	if cfg.AdminJWTSecret != "s3cret" {
		t.Fatalf("unexpected admin secret")
	}
}
