package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vendorsec-backend/internal/shared/storage/db"
)

// PGRepo implements SessionsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a session row unless it already exists.
func (r *PGRepo) Create(ctx context.Context, s Session) error {
	const query = `
INSERT INTO sessions (
    id,
    selected_frameworks,
    vendor_name,
    reviewed_by,
    ticket_number,
    created_at,
    updated_at
) VALUES ($1, COALESCE(string_to_array(NULLIF($2, ''), ','), '{}'), $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

	_, err := r.DB.ExecContext(ctx, query,
		s.ID,
		db.JoinList(s.SelectedFrameworks),
		s.AssessmentMeta.VendorName,
		s.AssessmentMeta.ReviewedBy,
		s.AssessmentMeta.TicketNumber,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

// Get loads a session with its files ordered by upload time.
func (r *PGRepo) Get(ctx context.Context, id string) (Session, error) {
	const query = `
SELECT id, COALESCE(array_to_string(selected_frameworks, ','), ''), vendor_name, reviewed_by, ticket_number, created_at, updated_at
FROM sessions
WHERE id = $1`

	var s Session
	var frameworks string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&frameworks,
		&s.AssessmentMeta.VendorName,
		&s.AssessmentMeta.ReviewedBy,
		&s.AssessmentMeta.TicketNumber,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.SelectedFrameworks = db.SplitList(frameworks)

	const filesQuery = `
SELECT id, original_name, size_bytes, mime_type, storage_key, uploaded_at
FROM session_files
WHERE session_id = $1
ORDER BY uploaded_at ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, filesQuery, id)
	if err != nil {
		return Session{}, err
	}
	defer rows.Close()

	s.Files = []FileRecord{}
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.OriginalName, &f.SizeBytes, &f.MimeType, &f.StorageKey, &f.UploadedAt); err != nil {
			return Session{}, err
		}
		s.Files = append(s.Files, f)
	}
	return s, rows.Err()
}

// Update writes selections and metadata.
func (r *PGRepo) Update(ctx context.Context, s Session) error {
	const query = `
UPDATE sessions
SET selected_frameworks = COALESCE(string_to_array(NULLIF($2, ''), ','), '{}'),
    vendor_name = $3,
    reviewed_by = $4,
    ticket_number = $5,
    updated_at = $6
WHERE id = $1`

	res, err := r.DB.ExecContext(ctx, query,
		s.ID,
		db.JoinList(s.SelectedFrameworks),
		s.AssessmentMeta.VendorName,
		s.AssessmentMeta.ReviewedBy,
		s.AssessmentMeta.TicketNumber,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

// AddFile inserts a file row and touches the session.
func (r *PGRepo) AddFile(ctx context.Context, sessionID string, f FileRecord, updatedAt time.Time) error {
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, sessionID, updatedAt)
		if err != nil {
			return err
		}
		if err := requireRow(res, ErrNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO session_files (id, session_id, original_name, size_bytes, mime_type, storage_key, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, sessionID, f.OriginalName, f.SizeBytes, f.MimeType, f.StorageKey, f.UploadedAt,
		)
		return err
	})
}

// RemoveFile deletes a file row and returns what was removed.
func (r *PGRepo) RemoveFile(ctx context.Context, sessionID, fileID string, updatedAt time.Time) (FileRecord, error) {
	var f FileRecord
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
DELETE FROM session_files
WHERE session_id = $1 AND id = $2
RETURNING id, original_name, size_bytes, mime_type, storage_key, uploaded_at`,
			sessionID, fileID,
		).Scan(&f.ID, &f.OriginalName, &f.SizeBytes, &f.MimeType, &f.StorageKey, &f.UploadedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrFileNotFound
			}
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, sessionID, updatedAt)
		return err
	})
	if err != nil {
		return FileRecord{}, err
	}
	return f, nil
}

// Delete removes the session; files cascade.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *PGRepo) ListIdleSince(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id
FROM sessions
WHERE updated_at < $1
ORDER BY updated_at ASC
LIMIT 500`, before)
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

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
