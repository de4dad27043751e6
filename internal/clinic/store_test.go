package clinic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func newRedisStore(t *testing.T, static map[string]*Config) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, static)
}

func TestStoreFallsBackToStaticThenDefault(t *testing.T) {
	static, err := ParseStaticConfigs(`{"tenant-1":{"name":"Sorriso Feliz","clinicorp":{"client_id":"mock"},"escalation_emails":["a@b.com"]}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	store := newRedisStore(t, static)
	ctx := context.Background()

	cfg, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.Name != "Sorriso Feliz" || !cfg.Clinicorp.IsMock() {
		t.Fatalf("expected static config, got %+v", cfg)
	}
	if cfg.Persona.AssistantName != "Carol" {
		t.Fatalf("expected default persona to be merged, got %+v", cfg.Persona)
	}

	def, err := store.Get(ctx, "tenant-unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if def.TenantID != "tenant-unknown" || def.Name == "" {
		t.Fatalf("expected default config, got %+v", def)
	}
}

func TestStoreSetOverridesStatic(t *testing.T) {
	static, _ := ParseStaticConfigs(`{"tenant-1":{"name":"Static"}}`)
	store := newRedisStore(t, static)
	ctx := context.Background()

	cfg := DefaultConfig("tenant-1")
	cfg.Name = "From Redis"
	if err := store.Set(ctx, cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "From Redis" || got.UpdatedAt.IsZero() {
		t.Fatalf("expected redis config, got %+v", got)
	}
}

func TestStoreWithoutRedisIsReadOnly(t *testing.T) {
	store := NewStore(nil, nil)
	if err := store.Set(context.Background(), DefaultConfig("t")); err == nil {
		t.Fatalf("expected read-only error")
	}
}

func TestParseStaticConfigsRejectsGarbage(t *testing.T) {
	if _, err := ParseStaticConfigs("{nope"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestHandlerUpdateAndGetRedacts(t *testing.T) {
	store := newRedisStore(t, nil)
	h := NewHandler(store, logging.Discard())
	r := chi.NewRouter()
	r.Mount("/tenants", h.Routes())

	body, _ := json.Marshal(UpdateConfigRequest{
		Name:      "Clínica Teste",
		Clinicorp: &ClinicorpCredentials{ClientID: "abc", ClientSecret: "secret-token-1234"},
	})
	req := httptest.NewRequest(http.MethodPut, "/tenants/tenant-9/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/tenants/tenant-9/config", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var got Config
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Clínica Teste" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	if got.Clinicorp.ClientSecret != "****1234" {
		t.Fatalf("expected masked secret, got %q", got.Clinicorp.ClientSecret)
	}
}
