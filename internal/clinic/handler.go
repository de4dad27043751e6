package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Handler provides HTTP endpoints for clinic configuration management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new clinic config HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes returns a chi router with clinic admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{tenantID}/config", h.GetConfig)
	r.Put("/{tenantID}/config", h.UpdateConfig)
	return r
}

// GetConfig returns the clinic configuration with secrets masked.
// GET /tenants/{tenantID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, `{"error": "tenant_id required"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "tenant_id", tenantID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg.Redacted()); err != nil {
		h.logger.Error("failed to encode clinic config", "tenant_id", tenantID, "error", err)
	}
}

// UpdateConfigRequest is the request body for updating clinic config.
type UpdateConfigRequest struct {
	Name             string                `json:"name,omitempty"`
	Timezone         string                `json:"timezone,omitempty"`
	Persona          *AIPersona            `json:"persona,omitempty"`
	Clinicorp        *ClinicorpCredentials `json:"clinicorp,omitempty"`
	EscalationEmails []string              `json:"escalation_emails,omitempty"`
}

// UpdateConfig creates or updates the clinic configuration for a tenant.
// PUT /tenants/{tenantID}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, `{"error": "tenant_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "tenant_id", tenantID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.Persona != nil {
		cfg.Persona = *req.Persona
	}
	if req.Clinicorp != nil {
		cfg.Clinicorp = *req.Clinicorp
	}
	if req.EscalationEmails != nil {
		cfg.EscalationEmails = req.EscalationEmails
	}
	cfg.TenantID = tenantID

	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save clinic config", "tenant_id", tenantID, "error", err)
		http.Error(w, `{"error": "failed to save config"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic config updated", "tenant_id", tenantID, "name", cfg.Name)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg.Redacted()); err != nil {
		h.logger.Error("failed to encode clinic config", "tenant_id", tenantID, "error", err)
	}
}
