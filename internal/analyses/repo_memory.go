package analyses

import (
	"context"
	"sync"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu        sync.RWMutex
	byID      map[string]Job
	results   map[string]AnalysisResults
	bySession map[string][]string // session id -> job ids, oldest first
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:      make(map[string]Job),
		results:   make(map[string]AnalysisResults),
		bySession: make(map[string][]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.bySession[job.SessionID] {
		if r.byID[id].Active() {
			return ErrActiveJob
		}
	}
	r.byID[job.ID] = cloneJob(job)
	r.bySession[job.SessionID] = append(r.bySession[job.SessionID], job.ID)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, analysisID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[analysisID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryRepo) Update(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[job.ID]; !ok {
		return ErrNotFound
	}
	r.byID[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryRepo) Complete(ctx context.Context, job Job, results AnalysisResults) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[job.ID]; !ok {
		return ErrNotFound
	}
	r.byID[job.ID] = cloneJob(job)
	r.results[job.ID] = results
	return nil
}

func (r *MemoryRepo) Results(ctx context.Context, analysisID string) (AnalysisResults, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResults{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[analysisID]
	if !ok {
		return AnalysisResults{}, ErrNotFound
	}
	return res, nil
}

func (r *MemoryRepo) ActiveForSession(ctx context.Context, sessionID string) (Job, error) {
	return r.latest(ctx, sessionID, Job.Active)
}

func (r *MemoryRepo) LatestForSession(ctx context.Context, sessionID string) (Job, error) {
	return r.latest(ctx, sessionID, func(Job) bool { return true })
}

func (r *MemoryRepo) LatestCompletedForSession(ctx context.Context, sessionID string) (Job, AnalysisResults, error) {
	job, err := r.latest(ctx, sessionID, func(j Job) bool { return j.Status == StatusCompleted })
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	res, err := r.Results(ctx, job.ID)
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	return job, res, nil
}

func (r *MemoryRepo) latest(ctx context.Context, sessionID string, match func(Job) bool) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.bySession[sessionID]
	for i := len(ids) - 1; i >= 0; i-- {
		if job := r.byID[ids[i]]; match(job) {
			return cloneJob(job), nil
		}
	}
	return Job{}, ErrNotFound
}

func (r *MemoryRepo) DeleteForSession(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := append([]string(nil), r.bySession[sessionID]...)
	for _, id := range ids {
		delete(r.byID, id)
		delete(r.results, id)
	}
	delete(r.bySession, sessionID)
	return ids, nil
}

func cloneJob(j Job) Job {
	j.Frameworks = append([]string(nil), j.Frameworks...)
	if j.CurrentStep != nil {
		s := *j.CurrentStep
		j.CurrentStep = &s
	}
	if j.Error != nil {
		s := *j.Error
		j.Error = &s
	}
	return j
}
