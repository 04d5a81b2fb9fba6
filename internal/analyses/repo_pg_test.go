package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"vendorsec-backend/internal/shared/apperr"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateMapsUniqueViolationToConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := Job{ID: "a-2", SessionID: "s-1", Frameworks: []string{"SOC2"}, Status: StatusQueued, CreatedAt: time.Now().UTC()}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs("a-2", "s-1", "SOC2", "", "", "", StatusQueued, float64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), job)
	if !errors.Is(err, ErrActiveJob) || !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected active job conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetScansNullableColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM analysis_jobs WHERE id = \\$1").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "frameworks", "vendor_name", "reviewed_by", "ticket_number",
			"status", "progress_percentage", "current_step", "error_message", "created_at", "started_at", "completed_at",
		}).AddRow("a-1", "s-1", "SOC2,GDPR", "Acme", "", "", StatusRunning, 42.5, "Evaluating", nil, now, now, nil))

	job, err := repo.Get(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(job.Frameworks) != 2 || job.CurrentStep == nil || *job.CurrentStep != "Evaluating" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Error != nil || job.CompletedAt != nil || job.StartedAt == nil {
		t.Fatalf("unexpected nullable fields %+v", job)
	}
}

func TestPGRepoGetMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM analysis_jobs WHERE id = \\$1").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPGRepoCompleteRollsBackOnMissingJob(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	job := Job{ID: "a-1", Status: StatusCompleted, ProgressPercentage: 100, CompletedAt: &now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE analysis_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), job, AnalysisResults{AnalysisID: "a-1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteForSessionReturnsIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("DELETE FROM analysis_jobs WHERE session_id = \\$1 RETURNING id").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a-1").AddRow("a-2"))

	ids, err := repo.DeleteForSession(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("DeleteForSession: %v", err)
	}
	if len(ids) != 2 || ids[1] != "a-2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
