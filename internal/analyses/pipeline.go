package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/metrics"
	"vendorsec-backend/internal/shared/telemetry"
)

// stage is a fixed slice of the 0..100 progress range.
type stage struct {
	name   string
	start  float64
	weight float64
}

var (
	stageExtraction  = stage{"extraction", 0, 30}
	stageEvaluation  = stage{"evaluation", 30, 40}
	stageAggregation = stage{"aggregation", 70, 10}
	stageSynthesis   = stage{"synthesis", 80, 15}
	stagePersistence = stage{"persistence", 95, 5}
)

func (s stage) at(done, total int) float64 {
	if total <= 0 || done >= total {
		return s.start + s.weight
	}
	return round1(s.start + s.weight*float64(done)/float64(total))
}

func (s stage) end() float64 { return s.start + s.weight }

// run owns one job while its pipeline executes. mu serializes job updates
// and their events so the published progress never goes backwards.
type run struct {
	svc   *Service
	files []sessions.FileRecord

	mu    sync.Mutex
	job   Job
	stage stage
}

func (r *run) execute(ctx context.Context) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, fmt.Errorf("internal error: %v", p))
		}
	}()

	if err := r.claim(ctx); err != nil {
		r.fail(ctx, err)
		return
	}
	if err := r.pipeline(ctx); err != nil {
		r.fail(ctx, err)
		return
	}

	r.mu.Lock()
	job := r.job
	r.mu.Unlock()
	duration := time.Since(started)
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(float64(duration.Milliseconds()))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"analysis_id":       job.ID,
		"status":            StatusCompleted,
		"status_transition": "running->completed",
		"duration_ms":       duration.Milliseconds(),
	})
}

func (r *run) claim(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.job
	if err := job.Claim(r.svc.now()); err != nil {
		return err
	}
	step := "Starting analysis"
	job.CurrentStep = &step
	if err := r.svc.Repo.Update(ctx, job); err != nil {
		return err
	}
	r.job = job
	r.stage = stageExtraction

	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"analysis_id":       job.ID,
		"status":            StatusRunning,
		"status_transition": "queued->running",
	})
	r.emitLocked(events.New(events.AnalysisStarted, "Analysis started", map[string]any{
		"frameworks":  job.Frameworks,
		"files_count": len(r.files),
		"vendor_name": job.VendorName,
	}))
	return nil
}

func (r *run) pipeline(ctx context.Context) error {
	docs, err := r.extract(ctx)
	if err != nil {
		return err
	}
	evals, err := r.evaluate(ctx, docs)
	if err != nil {
		return err
	}

	r.enter(stageAggregation)
	if err := r.advance(ctx, stageAggregation.start, "Calculating risk assessment",
		events.New(events.RiskAssessmentStarted, "Calculating risk assessment", nil)); err != nil {
		return err
	}
	agg := aggregate(evals, r.svc.Weights)
	if err := r.advance(ctx, stageAggregation.end(), "Risk assessment complete",
		events.New(events.RiskAssessmentComplete, "Risk assessment complete", map[string]any{
			"overall_compliance_score": agg.Overall,
			"overall_risk_level":       agg.Risk.OverallRiskLevel,
			"severity_counts":          agg.Risk.SeverityCounts,
		})); err != nil {
		return err
	}

	res := AnalysisResults{
		AnalysisID:             r.jobID(),
		Status:                 StatusCompleted,
		OverallComplianceScore: agg.Overall,
		Frameworks:             agg.Frameworks,
		Findings:               agg.Findings,
		Strengths:              agg.Strengths,
		RiskAssessment:         &agg.Risk,
		Documents:              summarizeDocuments(docs),
	}

	r.enter(stageSynthesis)
	if err := r.advance(ctx, stageSynthesis.start, "Generating executive summary",
		events.New(events.ExecutiveSummaryGenerating, "Generating executive summary", nil)); err != nil {
		return err
	}
	summary, err := r.summarize(ctx, res)
	if err != nil {
		return err
	}
	res.ExecutiveSummary = summary

	r.enter(stagePersistence)
	if err := r.advance(ctx, stagePersistence.start, "Saving results",
		events.New(events.AnalysisProgress, "Saving results", map[string]any{"stage": stagePersistence.name})); err != nil {
		return err
	}
	return r.persist(ctx, res)
}

// recovered turns a panic in an errgroup worker into its error, so it fails
// the stage instead of the process.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("internal error: %v", p)
			}
		}()
		return fn()
	}
}

func (r *run) extract(ctx context.Context) ([]document, error) {
	total := len(r.files)
	docs := make([]document, total)
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(r.svc.ExtractionConcurrency))
	for i, f := range r.files {
		i, f := i, f
		g.Go(recovered(func() error {
			r.emit(events.New(events.DocumentLoading, "Loading "+f.OriginalName, map[string]any{
				"file_id":   f.ID,
				"file_name": f.OriginalName,
			}))
			text, err := r.svc.Extractor.Extract(gctx, f.StorageKey, f.MimeType, f.OriginalName)
			if err != nil {
				return fmt.Errorf("%s: %w", f.OriginalName, err)
			}
			docs[i] = document{FileID: f.ID, Name: f.OriginalName, MimeType: f.MimeType, Text: text}

			mu.Lock()
			done++
			pct := stageExtraction.at(done, total)
			mu.Unlock()
			return r.advance(gctx, pct, "Loaded "+f.OriginalName,
				events.New(events.DocumentLoaded, "Loaded "+f.OriginalName, map[string]any{
					"file_id":    f.ID,
					"file_name":  f.OriginalName,
					"text_chars": len(text),
				}))
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *run) evaluate(ctx context.Context, docs []document) ([]evaluation, error) {
	r.enter(stageEvaluation)
	job := r.snapshot()
	total := len(job.Frameworks)
	evals := make([]evaluation, total)
	var mu sync.Mutex
	done := 0

	selected := make([]frameworks.Framework, 0, total)
	for _, id := range job.Frameworks {
		fw, ok := frameworks.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown framework %q", id)
		}
		selected = append(selected, fw)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(r.svc.FrameworkConcurrency))
	for i, fw := range selected {
		i, fw := i, fw
		g.Go(recovered(func() error {
			r.emit(events.New(events.DocumentAnalyzing, "Evaluating "+fw.Name, map[string]any{
				"framework":       fw.ID,
				"framework_name":  fw.Name,
				"documents_count": len(docs),
			}))

			msgs := evaluationMessages(fw, docs, job)
			opts := llm.Options{MaxTokens: r.svc.MaxTokens, Temperature: r.svc.Temperature, JSON: true}
			var ev evaluation
			err := llm.Retry(gctx, r.svc.Retry, "evaluate "+fw.ID, func(ctx context.Context) error {
				raw, err := r.svc.LLM.Complete(ctx, msgs, opts)
				if err != nil {
					return err
				}
				ev, err = parseEvaluation(fw.ID, raw)
				return err
			})
			if err != nil {
				return err
			}
			evals[i] = ev

			for _, f := range ev.Findings {
				r.emit(events.New(events.FindingDiscovered, f.Title, map[string]any{
					"framework": fw.ID,
					"severity":  f.Severity,
					"category":  f.Category,
					"title":     f.Title,
				}))
			}

			mu.Lock()
			done++
			pct := stageEvaluation.at(done, total)
			mu.Unlock()
			return r.advance(gctx, pct, fw.Name+" evaluated",
				events.New(events.FrameworkComplete, fw.Name+" evaluated", map[string]any{
					"framework":           fw.ID,
					"coverage_percentage": round1(ev.CoveragePercentage),
					"findings_count":      len(ev.Findings),
				}))
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evals, nil
}

func (r *run) summarize(ctx context.Context, res AnalysisResults) (string, error) {
	msgs := summaryMessages(r.snapshot(), res)
	opts := llm.Options{MaxTokens: r.svc.MaxTokens, Temperature: r.svc.Temperature}
	var summary string
	err := llm.Retry(ctx, r.svc.Retry, "executive summary", func(ctx context.Context) error {
		out, err := r.svc.LLM.Complete(ctx, msgs, opts)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return fmt.Errorf("%w: empty executive summary", llm.ErrMalformedOutput)
		}
		summary = out
		return nil
	})
	return summary, err
}

// persist writes the snapshot first so a completed job always has one, and
// removes it again when the job row cannot be completed.
func (r *run) persist(ctx context.Context, res AnalysisResults) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.job
	now := r.svc.now()
	if err := job.Complete(now); err != nil {
		return err
	}
	res.CompletedAt = now

	key := snapshotKey(job.SessionID, job.ID)
	if r.svc.Store != nil {
		body, err := json.Marshal(struct {
			Job     Job             `json:"job"`
			Results AnalysisResults `json:"results"`
		}{job, res})
		if err != nil {
			return err
		}
		if _, err := r.svc.Store.Put(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
			return fmt.Errorf("write results snapshot: %w", err)
		}
	}
	if err := r.svc.Repo.Complete(ctx, job, res); err != nil {
		if r.svc.Store != nil {
			if derr := r.svc.Store.Delete(context.WithoutCancel(ctx), key); derr != nil {
				telemetry.Warn("analysis.snapshot_cleanup_failed", map[string]any{
					"analysis_id": job.ID,
					"key":         key,
					"err":         derr.Error(),
				})
			}
		}
		return err
	}
	r.job = job
	r.emitLocked(events.New(events.AnalysisComplete, "Analysis complete", map[string]any{
		"overall_compliance_score": res.OverallComplianceScore,
		"findings_count":           len(res.Findings),
	}))
	return nil
}

// fail records the failure once and publishes exactly one analysis_error.
func (r *run) fail(ctx context.Context, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.Terminal() {
		return
	}
	if errors.Is(cause, context.Canceled) {
		cause = fmt.Errorf("analysis cancelled: %w", cause)
	}

	job := r.job
	from := job.Status
	if err := job.Fail(cause, r.svc.now()); err != nil {
		return
	}
	wctx := context.WithoutCancel(ctx)
	if err := r.svc.Repo.Update(wctx, job); err != nil {
		telemetry.Error("analysis.persist_failed", map[string]any{
			"session_id":  job.SessionID,
			"analysis_id": job.ID,
			"err":         err.Error(),
		})
	}
	r.job = job

	stageName := r.stage.name
	if stageName == "" {
		stageName = "start"
	}
	metrics.IncAnalysisFailed(stageName)
	telemetry.Error("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"analysis_id":       job.ID,
		"status":            StatusFailed,
		"status_transition": from + "->failed",
		"stage":             stageName,
		"err":               *job.Error,
	})
	r.emitLocked(events.New(events.AnalysisError, "Analysis failed", map[string]any{
		"error": *job.Error,
		"stage": stageName,
	}))
}

// advance moves progress forward, persists the job when it changed and
// publishes ev stamped with the resulting progress.
func (r *run) advance(ctx context.Context, pct float64, step string, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.job
	changed, err := job.Advance(pct, step)
	if err != nil {
		return err
	}
	if changed {
		if err := r.svc.Repo.Update(ctx, job); err != nil {
			return err
		}
		r.job = job
	}
	r.emitLocked(ev)
	return nil
}

// emit publishes ev at the current progress without changing the job.
func (r *run) emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(ev)
}

func (r *run) emitLocked(ev events.Event) {
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	ev.Data["analysis_id"] = r.job.ID
	if r.job.CurrentStep != nil {
		ev.Data["current_step"] = *r.job.CurrentStep
	}
	r.svc.publish(r.job.SessionID, ev.WithProgress(r.job.ProgressPercentage))
}

func (r *run) enter(s stage) {
	r.mu.Lock()
	r.stage = s
	r.mu.Unlock()
}

func (r *run) snapshot() Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneJob(r.job)
}

func (r *run) jobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.ID
}

func summarizeDocuments(docs []document) []DocumentSummary {
	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{FileID: d.FileID, Name: d.Name, MimeType: d.MimeType, TextChars: len(d.Text)})
	}
	return out
}

func limit(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
