package chat

import (
	"context"
	"sync"
)

// MemoryRepo implements Repo in memory.
type MemoryRepo struct {
	mu        sync.RWMutex
	bySession map[string][]Message
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySession: make(map[string][]Message)}
}

func (r *MemoryRepo) Append(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[msg.SessionID] = append(r.bySession[msg.SessionID], msg)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.bySession[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message{}, msgs...), nil
}

func (r *MemoryRepo) Count(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession[sessionID]), nil
}

func (r *MemoryRepo) DeleteForSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
	return nil
}
