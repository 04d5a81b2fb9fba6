package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"vendorsec-backend/internal/shared/storage/db"
)

const uniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, session_id, COALESCE(array_to_string(frameworks, ','), ''), vendor_name, reviewed_by, ticket_number,
       status, progress_percentage, current_step, error_message, created_at, started_at, completed_at`

// Create inserts a queued job. The partial unique index on session_id rejects
// a second active job for the same session.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
    id, session_id, frameworks, vendor_name, reviewed_by, ticket_number,
    status, progress_percentage, current_step, error_message, created_at
) VALUES ($1, $2, string_to_array($3, ','), $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.SessionID,
		db.JoinList(job.Frameworks),
		job.VendorName,
		job.ReviewedBy,
		job.TicketNumber,
		job.Status,
		job.ProgressPercentage,
		nullString(job.CurrentStep),
		nullString(job.Error),
		job.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrActiveJob
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, analysisID string) (Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, analysisID)
	return scanJob(row)
}

func (r *PGRepo) Update(ctx context.Context, job Job) error {
	return updateJob(ctx, r.DB, job)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateJob(ctx context.Context, ex execer, job Job) error {
	const query = `
UPDATE analysis_jobs
SET status = $2,
    progress_percentage = $3,
    current_step = $4,
    error_message = $5,
    started_at = $6,
    completed_at = $7
WHERE id = $1`

	res, err := ex.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.ProgressPercentage,
		nullString(job.CurrentStep),
		nullString(job.Error),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete writes the terminal job row and the results document in one transaction.
func (r *PGRepo) Complete(ctx context.Context, job Job, results AnalysisResults) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := updateJob(ctx, tx, job); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE analysis_jobs SET results = $2 WHERE id = $1`, job.ID, payload)
		return err
	})
}

func (r *PGRepo) Results(ctx context.Context, analysisID string) (AnalysisResults, error) {
	var raw []byte
	err := r.DB.QueryRowContext(ctx, `SELECT results FROM analysis_jobs WHERE id = $1 AND results IS NOT NULL`, analysisID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisResults{}, ErrNotFound
		}
		return AnalysisResults{}, err
	}
	var res AnalysisResults
	if err := json.Unmarshal(raw, &res); err != nil {
		return AnalysisResults{}, fmt.Errorf("decode results %s: %w", analysisID, err)
	}
	return res, nil
}

func (r *PGRepo) ActiveForSession(ctx context.Context, sessionID string) (Job, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE session_id = $1 AND status IN ('queued', 'running')
ORDER BY created_at DESC
LIMIT 1`, sessionID)
	return scanJob(row)
}

func (r *PGRepo) LatestForSession(ctx context.Context, sessionID string) (Job, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT 1`, sessionID)
	return scanJob(row)
}

func (r *PGRepo) LatestCompletedForSession(ctx context.Context, sessionID string) (Job, AnalysisResults, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE session_id = $1 AND status = 'completed'
ORDER BY completed_at DESC
LIMIT 1`, sessionID)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	res, err := r.Results(ctx, job.ID)
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	return job, res, nil
}

func (r *PGRepo) DeleteForSession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `DELETE FROM analysis_jobs WHERE session_id = $1 RETURNING id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row *sql.Row) (Job, error) {
	var job Job
	var frameworks string
	var step, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&job.ID,
		&job.SessionID,
		&frameworks,
		&job.VendorName,
		&job.ReviewedBy,
		&job.TicketNumber,
		&job.Status,
		&job.ProgressPercentage,
		&step,
		&errMsg,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	job.Frameworks = db.SplitList(frameworks)
	if step.Valid {
		job.CurrentStep = &step.String
	}
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
