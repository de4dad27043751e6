package inbox

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var convCols = []string{"id", "tenant_id", "contact_id", "phone", "display_name", "status", "intent_tag",
	"last_message_text", "last_message_at", "unread_count", "created_at", "updated_at"}

func TestPostgresCreateConversationConflictReturnsWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs("conv-new", "tenant-1", "contact-1", "5511", "Ana", IntentQualifying, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("tenant-1", "5511").
		WillReturnRows(pgxmock.NewRows(convCols).AddRow(
			"conv-winner", "tenant-1", "contact-1", "5511", "Ana", StatusOpen, IntentQualifying,
			"", now, 0, now, now,
		))

	conv, created, err := store.CreateConversation(context.Background(), &Conversation{
		ID: "conv-new", TenantID: "tenant-1", ContactID: "contact-1", Phone: "5511",
		DisplayName: "Ana", IntentTag: IntentQualifying, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if created || conv.ID != "conv-winner" {
		t.Fatalf("expected concurrent winner, got created=%v id=%s", created, conv.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()
	msg := &Message{
		ID: "m-1", TenantID: "tenant-1", ConversationID: "conv-1", Direction: DirectionInbound,
		Content: "oi", MessageType: TypeText, ExternalMessageID: "wamid-1", CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("m-1", "tenant-1", "conv-1", DirectionInbound, "oi", TypeText, "", "wamid-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("m-1"))
	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-1", "oi", now, DirectionInbound).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	created, err := store.AppendMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if !created {
		t.Fatalf("expected message to be created")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendMessageDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	created, err := store.AppendMessage(context.Background(), &Message{
		ID: "m-2", TenantID: "tenant-1", ConversationID: "conv-1", Direction: DirectionInbound,
		Content: "oi", MessageType: TypeText, ExternalMessageID: "wamid-1", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate to be skipped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs("conv-1", StatusOpen, StatusWaitingHuman).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.UpdateStatus(context.Background(), "conv-1", StatusOpen, StatusWaitingHuman)
	if err != nil || !ok {
		t.Fatalf("expected status change, got ok=%v err=%v", ok, err)
	}
}
