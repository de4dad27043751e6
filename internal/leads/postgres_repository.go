package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores contacts in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

const contactColumns = `id, tenant_id, phone, name, acquisition_source, created_at`

// Create inserts a new row, or returns the existing one for the same phone.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateContactRequest) (*Contact, error) {
	contact, _, err := r.GetOrCreateByPhone(ctx, req)
	return contact, err
}

// GetByPhone fetches a contact scoped to the tenant.
func (r *PostgresRepository) GetByPhone(ctx context.Context, tenantID, phone string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND phone = $2`
	contact, err := scanContact(r.db.QueryRow(ctx, query, tenantID, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return contact, nil
}

// GetOrCreateByPhone inserts with ON CONFLICT DO NOTHING and re-reads, so a
// concurrent insert for the same phone resolves to the winner's row.
func (r *PostgresRepository) GetOrCreateByPhone(ctx context.Context, req *CreateContactRequest) (*Contact, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO contacts (id, tenant_id, phone, name, acquisition_source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO NOTHING
		RETURNING ` + contactColumns
	contact, err := scanContact(r.db.QueryRow(ctx, query,
		uuid.New(),
		req.TenantID,
		req.Phone,
		strings.TrimSpace(req.Name),
		Classify(req.FirstMessage),
	))
	if err == nil {
		return contact, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("leads: insert failed: %w", err)
	}

	existing, err := r.GetByPhone(ctx, req.TenantID, req.Phone)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, filter ListContactsFilter) ([]*Contact, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE tenant_id = $1 AND ($2 = '' OR acquisition_source = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, tenantID, filter.Source, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Contact{}
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

func scanContact(row pgx.Row) (*Contact, error) {
	var contact Contact
	if err := row.Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.Phone,
		&contact.Name,
		&contact.AcquisitionSource,
		&contact.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &contact, nil
}
