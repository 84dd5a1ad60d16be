package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func conversationRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "contact_id", "channel", "status", "started_at", "last_activity_at"})
}

func TestResolveActiveCreates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	contactID := uuid.New()
	convID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), contactID, "whatsapp", StatusActive).
		WillReturnRows(conversationRows().AddRow(convID, contactID, "whatsapp", StatusActive, now, now))

	conv, err := repo.ResolveActive(context.Background(), contactID, "whatsapp")
	if err != nil {
		t.Fatalf("resolve active: %v", err)
	}
	if conv.ID != convID || conv.Status != StatusActive {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveActiveReusesWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	contactID := uuid.New()
	winner := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), contactID, "whatsapp", StatusActive).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, contact_id, channel").
		WithArgs(contactID, "whatsapp").
		WillReturnRows(conversationRows().AddRow(winner, contactID, "whatsapp", StatusActive, now, now))

	conv, err := repo.ResolveActive(context.Background(), contactID, "whatsapp")
	if err != nil {
		t.Fatalf("resolve active: %v", err)
	}
	if conv.ID != winner {
		t.Fatalf("expected winner %s, got %s", winner, conv.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	contactID := uuid.New()
	newer := uuid.New()
	older := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, contact_id, channel").
		WithArgs(contactID).
		WillReturnRows(conversationRows().
			AddRow(newer, contactID, "whatsapp", StatusActive, now, now).
			AddRow(older, contactID, "whatsapp", StatusClosed, now.Add(-time.Hour), now.Add(-time.Hour)))

	list, err := repo.ListByContact(context.Background(), contactID)
	if err != nil {
		t.Fatalf("list by contact: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer || list[1].ID != older {
		t.Fatalf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTouch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	convID := uuid.New()
	at := time.Now()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(convID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Touch(context.Background(), convID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
