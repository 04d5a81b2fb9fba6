package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/server/middleware"
	"vendorsec-backend/internal/shared/server/respond"
)

// Subscriber opens live event subscriptions.
type Subscriber interface {
	Subscribe(sessionID string, ns events.Namespace) *events.Subscription
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc    *Service
	Events Subscriber
	polls  *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, sub Subscriber) *Handler {
	return &Handler{Svc: svc, Events: sub, polls: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analysis/start", h.start)
	rg.GET("/analysis/:id/status", h.status)
	rg.GET("/analysis/:id/results", h.results)
	rg.GET("/sessions/:sessionId/analysis/current", h.current)
	rg.GET("/sessions/:sessionId/analysis/stream", h.stream)
}

type startResponse struct {
	AnalysisID string `json:"analysis_id"`
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

type statusResponse struct {
	AnalysisID         string  `json:"analysis_id"`
	SessionID          string  `json:"session_id"`
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	CurrentStep        *string `json:"current_step"`
	Error              *string `json:"error"`
}

func toStatus(job Job) statusResponse {
	return statusResponse{
		AnalysisID:         job.ID,
		SessionID:          job.SessionID,
		Status:             job.Status,
		ProgressPercentage: job.ProgressPercentage,
		CurrentStep:        job.CurrentStep,
		Error:              job.Error,
	}
}

func (h *Handler) start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	c.Set("sessionId", req.SessionID)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Start(ctx, req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("analysisId", job.ID)

	respond.Accepted(c, startResponse{
		AnalysisID: job.ID,
		SessionID:  job.SessionID,
		Status:     job.Status,
		Message:    "Analysis started",
	})
}

func (h *Handler) status(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)

	client := middleware.SessionIDFromContext(c)
	if client == "" {
		client = c.ClientIP()
	}
	if !h.polls.Allow(client, analysisID) {
		c.Header("Retry-After", strconv.Itoa(h.polls.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "status polled too frequently", nil)
		return
	}

	job, err := h.Svc.Status(c.Request.Context(), analysisID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, toStatus(job))
}

func (h *Handler) results(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)

	job, res, err := h.Svc.Results(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			respond.Error(c, http.StatusConflict, "not_ready", "analysis results are not ready", gin.H{
				"status":              job.Status,
				"progress_percentage": job.ProgressPercentage,
				"error":               job.Error,
			})
			return
		}
		respond.FromError(c, err)
		return
	}
	respond.OK(c, res)
}

func (h *Handler) current(c *gin.Context) {
	job, err := h.Svc.Current(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("analysisId", job.ID)
	respond.OK(c, job)
}

// stream subscribes before reading the snapshot so no event published in
// between is lost. Events already buffered behind the snapshot are dropped
// when they would move the job's progress backwards. The stream ends after
// the next terminal event.
func (h *Handler) stream(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := sessions.ValidateID(sessionID); err != nil {
		respond.FromError(c, err)
		return
	}

	sub := h.Events.Subscribe(sessionID, events.NamespaceAnalysis)

	data := map[string]any{
		"session_id": sessionID,
		"namespace":  string(events.NamespaceAnalysis),
		"analysis":   nil,
	}
	initial := events.New(events.ConnectionStatus, "connected", data)
	seen := map[string]float64{}
	job, err := h.Svc.Current(c.Request.Context(), sessionID)
	switch {
	case err == nil:
		data["analysis"] = toStatus(job)
		seen[job.ID] = job.ProgressPercentage
		// a finished job's progress would sit above the next job's events
		if job.Active() {
			initial = initial.WithProgress(job.ProgressPercentage)
		}
	case !errors.Is(err, ErrNotFound):
		sub.Close()
		respond.FromError(c, err)
		return
	}

	events.Stream(c, sub, events.StreamOptions{
		Initial: []events.Event{initial},
		Skip: func(ev events.Event) bool {
			return staleProgress(seen, ev)
		},
		StopWhen: func(ev events.Event) bool {
			return ev.Terminal()
		},
	})
}

// staleProgress reports whether ev carries less progress than already sent
// for its job, and records the new high-water mark otherwise.
func staleProgress(seen map[string]float64, ev events.Event) bool {
	id, _ := ev.Data["analysis_id"].(string)
	if id == "" || ev.ProgressPercentage == nil {
		return false
	}
	pct := *ev.ProgressPercentage
	if last, ok := seen[id]; ok && pct < last && !ev.Terminal() {
		return true
	}
	if pct > seen[id] {
		seen[id] = pct
	}
	return false
}
