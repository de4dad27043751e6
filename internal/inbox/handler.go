package inbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Handler exposes read-only views over stored conversations.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ListConversations handles GET /tenants/{tenantID}/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	status := r.URL.Query().Get("status")
	convs, err := h.store.ListConversations(r.Context(), tenantID, status, parseLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err, "tenant_id", tenantID)
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

// ListMessages handles GET /tenants/{tenantID}/conversations/{conversationID}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	conversationID := chi.URLParam(r, "conversationID")
	msgs, err := h.store.ListMessages(r.Context(), tenantID, conversationID, parseLimit(r, 200))
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to list messages", "error", err, "tenant_id", tenantID, "conversation_id", conversationID)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func parseLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
