package chat

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoListWindowKeepsChronologicalOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectQuery("ORDER BY seq DESC\\s+LIMIT \\$2").
		WithArgs("s-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow("m-2", "s-1", "assistant", "answer", now).
			AddRow("m-3", "s-1", "user", "follow up", now))

	msgs, err := repo.List(context.Background(), "s-1", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleAssistant || msgs[1].Content != "follow up" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("m-1", "s-1", "user", "hello", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Append(context.Background(), Message{ID: "m-1", SessionID: "s-1", Role: RoleUser, Content: "hello", Timestamp: now})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
