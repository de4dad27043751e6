package clinicorp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type memConfigs struct {
	configs map[string]*clinic.Config
	sets    int
}

func (m *memConfigs) Get(_ context.Context, tenantID string) (*clinic.Config, error) {
	if cfg, ok := m.configs[tenantID]; ok {
		copied := *cfg
		return &copied, nil
	}
	return clinic.DefaultConfig(tenantID), nil
}

func (m *memConfigs) Set(_ context.Context, cfg *clinic.Config) error {
	if m.configs == nil {
		return errors.New("read only")
	}
	m.sets++
	m.configs[cfg.TenantID] = cfg
	return nil
}

func TestRegistryReusesClientPerTenant(t *testing.T) {
	configs := &memConfigs{configs: map[string]*clinic.Config{
		"t1": {TenantID: "t1", Clinicorp: clinic.ClinicorpCredentials{ClientID: "mock"}},
		"t2": {TenantID: "t2", Clinicorp: clinic.ClinicorpCredentials{APIToken: "tok"}},
	}}
	reg := NewRegistry(configs, RegistryOptions{}, logging.Discard())
	ctx := context.Background()

	a, err := reg.ClientFor(ctx, "t1")
	require.NoError(t, err)
	b, err := reg.ClientFor(ctx, "t1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, a.IsMock())

	c, err := reg.ClientFor(ctx, "t2")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, StateStatic, c.State())

	reg.Evict("t1")
	d, err := reg.ClientFor(ctx, "t1")
	require.NoError(t, err)
	assert.NotSame(t, a, d)
}

func TestRegistryForceMock(t *testing.T) {
	reg := NewRegistry(&memConfigs{}, RegistryOptions{ForceMock: true}, logging.Discard())
	c, err := reg.ClientFor(context.Background(), "unconfigured")
	require.NoError(t, err)
	assert.True(t, c.IsMock())
}

func TestRegistryUnconfiguredTenant(t *testing.T) {
	reg := NewRegistry(&memConfigs{}, RegistryOptions{}, logging.Discard())
	_, err := reg.ClientFor(context.Background(), "unconfigured")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRegistryPersistsRotatedTokens(t *testing.T) {
	configs := &memConfigs{configs: map[string]*clinic.Config{
		"t1": {TenantID: "t1"},
	}}
	reg := NewRegistry(configs, RegistryOptions{}, logging.Discard())
	reg.persistTokens(context.Background(), "t1", TokenSet{AccessToken: "a", RefreshToken: "r2", ExpiresAt: 1700000000})

	assert.Equal(t, 1, configs.sets)
	assert.Equal(t, "r2", configs.configs["t1"].Clinicorp.RefreshToken)
}

func TestHandlerCheckMock(t *testing.T) {
	configs := &memConfigs{configs: map[string]*clinic.Config{
		"t1": {TenantID: "t1", Clinicorp: clinic.ClinicorpCredentials{ClientID: "mock"}},
	}}
	h := NewHandler(NewRegistry(configs, RegistryOptions{}, logging.Discard()), logging.Discard())
	r := chi.NewRouter()
	r.Mount("/tenants/{tenantID}/clinicorp", h.Routes())

	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/clinicorp/check", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"connected"`)

	req = httptest.NewRequest(http.MethodPost, "/tenants/nobody/clinicorp/check", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerAppointmentsMock(t *testing.T) {
	configs := &memConfigs{configs: map[string]*clinic.Config{
		"t1": {TenantID: "t1", Clinicorp: clinic.ClinicorpCredentials{ClientID: "mock"}},
	}}
	h := NewHandler(NewRegistry(configs, RegistryOptions{}, logging.Discard()), logging.Discard())
	h.now = func() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Mount("/tenants/{tenantID}/clinicorp", h.Routes())

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/tenants/t1/clinicorp/appointments?date=2026-01-07")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Date         string        `json:"date"`
		Count        int           `json:"count"`
		Appointments []Appointment `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2026-01-07", body.Date)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "mock-appt-1", body.Appointments[0].ID.String())

	w = get("/tenants/t1/clinicorp/appointments")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"date":"2026-01-05"`)

	assert.Equal(t, http.StatusBadRequest, get("/tenants/t1/clinicorp/appointments?date=07/01").Code)
	assert.Equal(t, http.StatusBadRequest, get("/tenants/nobody/clinicorp/appointments").Code)
}
