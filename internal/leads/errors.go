package leads

import "errors"

var (
	// ErrMissingTenant is returned when a contact is not scoped to a tenant
	ErrMissingTenant = errors.New("tenant_id is required")

	// ErrMissingPhone is returned when a contact has no phone number
	ErrMissingPhone = errors.New("phone is required")

	// ErrContactNotFound is returned when a contact is not found
	ErrContactNotFound = errors.New("contact not found")
)
