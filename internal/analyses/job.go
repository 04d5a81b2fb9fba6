package analyses

import (
	"fmt"
	"strings"
	"time"
)

const maxErrorLen = 500

// Terminal reports whether the job can no longer change.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Active reports whether the job blocks a new analysis for its session.
func (j Job) Active() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}

// Claim moves a queued job to running.
func (j *Job) Claim(now time.Time) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: %s->%s", ErrIllegalTransition, j.Status, StatusRunning)
	}
	j.Status = StatusRunning
	j.StartedAt = &now
	return nil
}

// Advance records progress on a running job. Progress never decreases; a
// lower value keeps the current percentage. It reports whether anything changed.
func (j *Job) Advance(pct float64, step string) (bool, error) {
	if j.Status != StatusRunning {
		return false, fmt.Errorf("%w: advance while %s", ErrIllegalTransition, j.Status)
	}
	if pct > 100 {
		pct = 100
	}
	changed := false
	if pct > j.ProgressPercentage {
		j.ProgressPercentage = pct
		changed = true
	}
	if step != "" && (j.CurrentStep == nil || *j.CurrentStep != step) {
		s := step
		j.CurrentStep = &s
		changed = true
	}
	return changed, nil
}

// Complete moves a running job to completed at 100%.
func (j *Job) Complete(now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s->%s", ErrIllegalTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.ProgressPercentage = 100
	step := "Analysis complete"
	j.CurrentStep = &step
	j.CompletedAt = &now
	return nil
}

// Fail moves a non-terminal job to failed. Progress is left where it stopped.
func (j *Job) Fail(err error, now time.Time) error {
	if j.Terminal() {
		return fmt.Errorf("%w: %s->%s", ErrIllegalTransition, j.Status, StatusFailed)
	}
	j.Status = StatusFailed
	msg := sanitizeError(err)
	j.Error = &msg
	j.CompletedAt = &now
	return nil
}

func sanitizeError(err error) string {
	if err == nil {
		return "analysis failed"
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
