package sessions

import (
	"context"
	"time"
)

// SessionsRepo defines persistence operations for sessions and their files.
type SessionsRepo interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, s Session) error
	AddFile(ctx context.Context, sessionID string, f FileRecord, updatedAt time.Time) error
	RemoveFile(ctx context.Context, sessionID, fileID string, updatedAt time.Time) (FileRecord, error)
	Delete(ctx context.Context, id string) error
	ListIdleSince(ctx context.Context, before time.Time) ([]string, error)
}
