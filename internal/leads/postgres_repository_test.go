package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var contactCols = []string{"id", "tenant_id", "phone", "name", "acquisition_source", "created_at"}

func TestPostgresGetOrCreateInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), "tenant-1", "5511999990000", "Ana", SourceFacebook).
		WillReturnRows(pgxmock.NewRows(contactCols).AddRow("c-1", "tenant-1", "5511999990000", "Ana", SourceFacebook, now))

	contact, created, err := repo.GetOrCreateByPhone(context.Background(), &CreateContactRequest{
		TenantID:     "tenant-1",
		Phone:        "5511999990000",
		Name:         "Ana",
		FirstMessage: "vi no face",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || contact.ID != "c-1" {
		t.Fatalf("expected created contact c-1, got created=%v %+v", created, contact)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetOrCreateConflictRereads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), "tenant-1", "551100", "", SourceOrganic).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM contacts WHERE tenant_id").
		WithArgs("tenant-1", "551100").
		WillReturnRows(pgxmock.NewRows(contactCols).AddRow("c-existing", "tenant-1", "551100", "", SourceTikTok, now))

	contact, created, err := repo.GetOrCreateByPhone(context.Background(), &CreateContactRequest{TenantID: "tenant-1", Phone: "551100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected existing contact to be reused")
	}
	if contact.ID != "c-existing" || contact.AcquisitionSource != SourceTikTok {
		t.Fatalf("unexpected contact %+v", contact)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetByPhoneNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("SELECT (.+) FROM contacts").WithArgs("t", "404").WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByPhone(context.Background(), "t", "404"); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
}
