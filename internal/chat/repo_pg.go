package chat

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres. seq keeps insertion order stable
// when timestamps collide.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Append(ctx context.Context, msg Message) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Timestamp)
	return err
}

func (r *PGRepo) List(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
SELECT id, session_id, role, content, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT id, session_id, role, content, created_at FROM (
    SELECT id, session_id, role, content, created_at, seq
    FROM chat_messages
    WHERE session_id = $1
    ORDER BY seq DESC
    LIMIT $2
) recent
ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *PGRepo) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

func (r *PGRepo) DeleteForSession(ctx context.Context, sessionID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	return err
}
