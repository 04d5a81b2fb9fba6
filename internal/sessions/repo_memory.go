package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of SessionsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Session
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Session)}
}

// Create stores a new session. Creating an existing session is a no-op.
func (r *MemoryRepo) Create(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; ok {
		return nil
	}
	r.data[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return clone(s), nil
}

// Update replaces the selections and metadata of a session. Files are untouched.
func (r *MemoryRepo) Update(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[s.ID]
	if !ok {
		return ErrNotFound
	}
	cur.SelectedFrameworks = append([]string(nil), s.SelectedFrameworks...)
	cur.AssessmentMeta = s.AssessmentMeta
	cur.UpdatedAt = s.UpdatedAt
	r.data[s.ID] = cur
	return nil
}

func (r *MemoryRepo) AddFile(ctx context.Context, sessionID string, f FileRecord, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[sessionID]
	if !ok {
		return ErrNotFound
	}
	cur.Files = append(cur.Files, f)
	cur.UpdatedAt = updatedAt
	r.data[sessionID] = cur
	return nil
}

func (r *MemoryRepo) RemoveFile(ctx context.Context, sessionID, fileID string, updatedAt time.Time) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[sessionID]
	if !ok {
		return FileRecord{}, ErrNotFound
	}
	for i, f := range cur.Files {
		if f.ID != fileID {
			continue
		}
		files := make([]FileRecord, 0, len(cur.Files)-1)
		files = append(files, cur.Files[:i]...)
		files = append(files, cur.Files[i+1:]...)
		cur.Files = files
		cur.UpdatedAt = updatedAt
		r.data[sessionID] = cur
		return f, nil
	}
	return FileRecord{}, ErrFileNotFound
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

// ListIdleSince returns ids of sessions not updated since before, oldest first.
func (r *MemoryRepo) ListIdleSince(ctx context.Context, before time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var idle []Session
	for _, s := range r.data {
		if s.UpdatedAt.Before(before) {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(idle, func(i, j int) bool { return idle[i].UpdatedAt.Before(idle[j].UpdatedAt) })
	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func clone(s Session) Session {
	s.Files = append([]FileRecord(nil), s.Files...)
	s.SelectedFrameworks = append([]string(nil), s.SelectedFrameworks...)
	return s
}
