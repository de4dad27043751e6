package tenancy

import (
	"context"
	"fmt"
	"strings"
)

// InstanceResolver maps a WhatsApp gateway instance name to the tenant that
// owns it.
type InstanceResolver interface {
	ResolveTenant(ctx context.Context, instance string) (string, error)
}

// NormalizeInstance is the canonical form of a gateway instance name. Every
// lookup keyed by instance goes through it.
func NormalizeInstance(instance string) string {
	return strings.ToLower(strings.TrimSpace(instance))
}

// UnmappedInstanceError is returned when no tenant is bound to an instance.
type UnmappedInstanceError struct {
	Instance string
}

func (e *UnmappedInstanceError) Error() string {
	return fmt.Sprintf("tenancy: instance %q is not bound to any tenant", e.Instance)
}

// ResolverFunc adapts a plain function into an InstanceResolver.
type ResolverFunc func(ctx context.Context, instance string) (string, error)

func (f ResolverFunc) ResolveTenant(ctx context.Context, instance string) (string, error) {
	return f(ctx, instance)
}
