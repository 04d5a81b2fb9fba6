package analyses

import "context"

// Repo defines persistence operations for analysis jobs and their results.
type Repo interface {
	// Create stores a queued job. It fails with ErrActiveJob when the session
	// already has a queued or running job.
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, analysisID string) (Job, error)
	// Update writes status, progress, step, error and timestamps.
	Update(ctx context.Context, job Job) error
	// Complete writes the completed job and its results in one step.
	Complete(ctx context.Context, job Job, results AnalysisResults) error
	Results(ctx context.Context, analysisID string) (AnalysisResults, error)
	ActiveForSession(ctx context.Context, sessionID string) (Job, error)
	LatestForSession(ctx context.Context, sessionID string) (Job, error)
	LatestCompletedForSession(ctx context.Context, sessionID string) (Job, AnalysisResults, error)
	// DeleteForSession removes every job of the session and returns their ids.
	DeleteForSession(ctx context.Context, sessionID string) ([]string, error)
}
