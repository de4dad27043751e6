package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-concierge/internal/tenancy"
)

// requireTenant rejects blank {tenantID} segments and stores the tenant on
// the request context for downstream handlers.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
		if tenantID == "" {
			http.Error(w, "missing tenant id", http.StatusBadRequest)
			return
		}
		ctx := tenancy.WithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFromRequest(r *http.Request) (string, bool) {
	return tenancy.TenantIDFromContext(r.Context())
}
