package leads

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Handler handles HTTP requests for contacts
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new contacts handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ListContactsResponse is the response for listing contacts
type ListContactsResponse struct {
	Contacts []*Contact `json:"contacts"`
	Count    int        `json:"count"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
}

// ListContacts handles GET /tenants/{tenantID}/contacts requests
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "missing tenant_id", http.StatusBadRequest)
		return
	}

	filter := ListContactsFilter{
		Limit:  50,
		Offset: 0,
		Source: r.URL.Query().Get("source"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	contacts, err := h.repo.ListByTenant(r.Context(), tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list contacts", "error", err, "tenant_id", tenantID)
		http.Error(w, "failed to list contacts", http.StatusInternalServerError)
		return
	}

	response := ListContactsResponse{
		Contacts: contacts,
		Count:    len(contacts),
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
