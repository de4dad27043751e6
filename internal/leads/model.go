package leads

import (
	"strings"
	"time"
)

// Contact is a person who has written to a tenant's WhatsApp number.
type Contact struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	Phone             string    `json:"phone"`
	Name              string    `json:"name"`
	AcquisitionSource string    `json:"acquisition_source"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateContactRequest carries what the ingress knows about a new contact.
// FirstMessage is only used to classify the acquisition source.
type CreateContactRequest struct {
	TenantID     string `json:"-"`
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	FirstMessage string `json:"-"`
}

// Validate validates the create contact request
func (r *CreateContactRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ErrMissingTenant
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// ListContactsFilter pages through a tenant's contacts.
type ListContactsFilter struct {
	Source string
	Limit  int
	Offset int
}
