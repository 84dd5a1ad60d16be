package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func contactRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "channel", "phone_e164", "display_name", "kind", "created_at"})
}

func TestResolveCreatesProspect(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), "whatsapp", "+551199999999", "Maria", KindProspect).
		WillReturnRows(contactRows().AddRow(id, "whatsapp", "+551199999999", "Maria", KindProspect, time.Now()))

	contact, err := repo.Resolve(context.Background(), "whatsapp", "+551199999999", "Maria")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if contact.ID != id || contact.Kind != KindProspect {
		t.Fatalf("unexpected contact: %+v", contact)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveAdoptsExistingOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	winner := uuid.New()
	// ON CONFLICT DO NOTHING returns no row when another writer won the insert.
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), "whatsapp", "+551199999999", "+551199999999", KindProspect).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, channel, phone_e164").
		WithArgs("whatsapp", "+551199999999").
		WillReturnRows(contactRows().AddRow(winner, "whatsapp", "+551199999999", "Maria", KindProspect, time.Now()))

	contact, err := repo.Resolve(context.Background(), "whatsapp", "+551199999999", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if contact.ID != winner {
		t.Fatalf("expected winner id %s, got %s", winner, contact.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveRequiresPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	if _, err := repo.Resolve(context.Background(), "whatsapp", "  ", "Maria"); err == nil {
		t.Fatal("expected error for empty phone")
	}
}
