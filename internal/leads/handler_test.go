package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func TestListContacts(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Create(context.Background(), &CreateContactRequest{TenantID: "tenant-1", Phone: "5511", FirstMessage: "me indicou"})
	handler := NewHandler(repo, logging.Discard())

	r := chi.NewRouter()
	r.Get("/tenants/{tenantID}/contacts", handler.ListContacts)

	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/contacts?limit=10", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListContactsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Limit != 10 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Contacts[0].AcquisitionSource != SourceIndication {
		t.Fatalf("expected indication source, got %s", resp.Contacts[0].AcquisitionSource)
	}
}
