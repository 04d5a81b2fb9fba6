package chat

import "context"

// Repo stores chat history in append order.
type Repo interface {
	Append(ctx context.Context, msg Message) error
	// List returns the last limit messages oldest first; limit <= 0 returns all.
	List(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Count(ctx context.Context, sessionID string) (int, error)
	DeleteForSession(ctx context.Context, sessionID string) error
}
