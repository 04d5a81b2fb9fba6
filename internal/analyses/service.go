package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/storage/object"
	"vendorsec-backend/internal/shared/telemetry"
)

// SessionSource is the part of the session registry the orchestrator reads.
type SessionSource interface {
	Get(ctx context.Context, sessionID string) (sessions.Session, error)
	WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
}

// TextExtractor turns a stored upload into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, storageKey, mimeType, fileName string) (string, error)
}

// Service starts analysis jobs and runs their pipelines in the background.
type Service struct {
	Repo      Repo
	Sessions  SessionSource
	Extractor TextExtractor
	LLM       llm.Client
	Bus       events.Publisher
	// Store receives the JSON snapshot of completed results. Optional.
	Store object.ObjectStore

	FrameworkConcurrency  int
	ExtractionConcurrency int
	Weights               map[string]float64
	MaxTokens             int
	Temperature           float32
	Retry                 llm.RetryPolicy

	// BaseContext parents every pipeline. Cancelling it fails running jobs.
	BaseContext context.Context
	Now         func() time.Time

	wg sync.WaitGroup
}

// Start validates the session and enqueues a job. The pipeline runs
// detached from ctx; only the request ID is carried over.
func (s *Service) Start(ctx context.Context, req StartRequest) (Job, error) {
	if err := sessions.ValidateID(req.SessionID); err != nil {
		return Job{}, err
	}

	var job Job
	var files []sessions.FileRecord
	err := s.Sessions.WithLock(ctx, req.SessionID, func(ctx context.Context) error {
		sess, err := s.Sessions.Get(ctx, req.SessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			return apperr.Validation("no files uploaded for this session")
		}
		if err != nil {
			return err
		}
		if len(sess.Files) == 0 {
			return apperr.Validation("no files uploaded for this session")
		}

		ids := req.Frameworks
		if len(ids) == 0 {
			ids = sess.SelectedFrameworks
		}
		ids, err = frameworks.Validate(ids)
		if err != nil {
			return err
		}

		vendor := strings.TrimSpace(req.VendorName)
		if vendor == "" {
			vendor = sess.AssessmentMeta.VendorName
		}
		if vendor == "" {
			vendor = sessions.GuessVendorName(sess.Files)
		}
		reviewer := firstNonEmpty(req.ReviewedBy, sess.AssessmentMeta.ReviewedBy)
		ticket := firstNonEmpty(req.TicketNumber, sess.AssessmentMeta.TicketNumber)

		job = Job{
			ID:           uuid.NewString(),
			SessionID:    req.SessionID,
			Frameworks:   ids,
			VendorName:   vendor,
			ReviewedBy:   reviewer,
			TicketNumber: ticket,
			Status:       StatusQueued,
			CreatedAt:    s.now(),
		}
		if err := s.Repo.Create(ctx, job); err != nil {
			return err
		}
		files = append([]sessions.FileRecord(nil), sess.Files...)
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"analysis_id":       job.ID,
		"status":            StatusQueued,
		"status_transition": "->queued",
		"frameworks":        job.Frameworks,
		"files":             len(files),
	})

	r := &run{svc: s, job: job, files: files}
	pctx := detach(s.BaseContext, ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.execute(pctx)
	}()
	return job, nil
}

// Status returns the authoritative job snapshot.
func (s *Service) Status(ctx context.Context, analysisID string) (Job, error) {
	if strings.TrimSpace(analysisID) == "" {
		return Job{}, apperr.Validation("analysis id is required")
	}
	return s.Repo.Get(ctx, analysisID)
}

// Results returns the results of a completed job. Jobs that are still
// running or that failed yield ErrNotReady.
func (s *Service) Results(ctx context.Context, analysisID string) (Job, AnalysisResults, error) {
	job, err := s.Status(ctx, analysisID)
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	if job.Status != StatusCompleted {
		return job, AnalysisResults{}, ErrNotReady
	}
	res, err := s.Repo.Results(ctx, analysisID)
	if err != nil {
		return Job{}, AnalysisResults{}, err
	}
	return job, res, nil
}

// Current returns the most recent job of a session.
func (s *Service) Current(ctx context.Context, sessionID string) (Job, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return Job{}, err
	}
	return s.Repo.LatestForSession(ctx, sessionID)
}

// LatestResults returns the newest completed job of a session and its results.
func (s *Service) LatestResults(ctx context.Context, sessionID string) (Job, AnalysisResults, error) {
	return s.Repo.LatestCompletedForSession(ctx, sessionID)
}

// ResetSession is registered as a session reset hook. It refuses while a
// job is active and otherwise removes the session's jobs and snapshots.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	active, err := s.Repo.ActiveForSession(ctx, sessionID)
	if err == nil {
		return apperr.New(apperr.ErrConflict, "analysis %s is still %s", active.ID, active.Status)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	ids, err := s.Repo.DeleteForSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Store != nil {
		for _, id := range ids {
			if err := s.Store.Delete(ctx, snapshotKey(sessionID, id)); err != nil && !errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("analysis.snapshot_delete_failed", map[string]any{
					"session_id":  sessionID,
					"analysis_id": id,
					"err":         err.Error(),
				})
			}
		}
	}
	return nil
}

// Wait blocks until every pipeline started by this service has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) publish(sessionID string, ev events.Event) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(sessionID, events.NamespaceAnalysis, ev)
}

func snapshotKey(sessionID, analysisID string) string {
	return fmt.Sprintf("exports/%s/%s.json", sessionID, analysisID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
