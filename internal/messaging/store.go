package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/clinic-concierge/internal/tenancy"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresInstanceResolver reads bindings from the instance_bindings table.
type PostgresInstanceResolver struct {
	db Querier
}

func NewPostgresInstanceResolver(db Querier) *PostgresInstanceResolver {
	if db == nil {
		panic("messaging: pgx pool required")
	}
	return &PostgresInstanceResolver{db: db}
}

// ResolveTenant implements tenancy.InstanceResolver.
func (r *PostgresInstanceResolver) ResolveTenant(ctx context.Context, instance string) (string, error) {
	name := tenancy.NormalizeInstance(instance)
	if name == "" {
		return "", &tenancy.UnmappedInstanceError{Instance: instance}
	}
	var tenantID string
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id FROM instance_bindings WHERE instance_name = $1`, name,
	).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &tenancy.UnmappedInstanceError{Instance: instance}
		}
		return "", fmt.Errorf("messaging: lookup instance binding: %w", err)
	}
	return tenantID, nil
}

// Bind upserts the tenant owning instance, creating the tenant row if needed.
func (r *PostgresInstanceResolver) Bind(ctx context.Context, instance, tenantID string) error {
	name := tenancy.NormalizeInstance(instance)
	tenantID = strings.TrimSpace(tenantID)
	if name == "" || tenantID == "" {
		return errors.New("messaging: instance and tenant are required")
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO tenants (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, tenantID,
	); err != nil {
		return fmt.Errorf("messaging: ensure tenant: %w", err)
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO instance_bindings (instance_name, tenant_id)
		VALUES ($1, $2)
		ON CONFLICT (instance_name) DO UPDATE SET tenant_id = EXCLUDED.tenant_id`,
		name, tenantID,
	); err != nil {
		return fmt.Errorf("messaging: bind instance: %w", err)
	}
	return nil
}
