package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for contact storage
type Repository interface {
	Create(ctx context.Context, req *CreateContactRequest) (*Contact, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (*Contact, error)
	// GetOrCreateByPhone returns the existing contact or creates one. It is
	// safe to retry and safe under concurrent callers for the same phone.
	GetOrCreateByPhone(ctx context.Context, req *CreateContactRequest) (*Contact, bool, error)
	ListByTenant(ctx context.Context, tenantID string, filter ListContactsFilter) ([]*Contact, error)
}

// InMemoryRepository keeps contacts in process memory. Used by tests and the
// memory store backend.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact // tenant|phone -> contact
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		contacts: make(map[string]*Contact),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func phoneKey(tenantID, phone string) string {
	return tenantID + "|" + phone
}

// Create creates a new contact in memory. A second create for the same
// tenant and phone returns the original row.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateContactRequest) (*Contact, error) {
	contact, _, err := r.GetOrCreateByPhone(ctx, req)
	return contact, err
}

// GetByPhone retrieves a contact by tenant and phone
func (r *InMemoryRepository) GetByPhone(ctx context.Context, tenantID, phone string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.contacts[phoneKey(tenantID, phone)]
	if !ok {
		return nil, ErrContactNotFound
	}
	copied := *contact
	return &copied, nil
}

func (r *InMemoryRepository) GetOrCreateByPhone(ctx context.Context, req *CreateContactRequest) (*Contact, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := phoneKey(req.TenantID, req.Phone)
	if existing, ok := r.contacts[key]; ok {
		copied := *existing
		return &copied, false, nil
	}
	contact := &Contact{
		ID:                uuid.New().String(),
		TenantID:          req.TenantID,
		Phone:             req.Phone,
		Name:              strings.TrimSpace(req.Name),
		AcquisitionSource: Classify(req.FirstMessage),
		CreatedAt:         r.now(),
	}
	r.contacts[key] = contact
	copied := *contact
	return &copied, true, nil
}

func (r *InMemoryRepository) ListByTenant(ctx context.Context, tenantID string, filter ListContactsFilter) ([]*Contact, error) {
	r.mu.RLock()
	var out []*Contact
	for _, c := range r.contacts {
		if c.TenantID != tenantID {
			continue
		}
		if filter.Source != "" && c.AcquisitionSource != filter.Source {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset >= len(out) {
		return []*Contact{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
