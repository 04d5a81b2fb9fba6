package export

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/analyses"
	"vendorsec-backend/internal/shared/server/respond"
	"vendorsec-backend/internal/shared/telemetry"
)

// ResultsReader returns a completed job and its results, or
// analyses.ErrNotReady while the job has not completed.
type ResultsReader interface {
	Results(ctx context.Context, analysisID string) (analyses.Job, analyses.AnalysisResults, error)
}

// Handler serves report downloads.
type Handler struct {
	Results ResultsReader
	Now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(results ResultsReader) *Handler {
	return &Handler{Results: results, Now: func() time.Time { return time.Now().UTC() }}
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/export/json/:id", h.json)
	rg.GET("/export/html/:id", h.html)
}

func (h *Handler) report(c *gin.Context) (Report, bool) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	job, res, err := h.Results.Results(c.Request.Context(), analysisID)
	if err != nil {
		respond.FromError(c, err)
		return Report{}, false
	}
	c.Set("sessionId", job.SessionID)
	return NewReport(job, res, h.Now()), true
}

func (h *Handler) json(c *gin.Context) {
	r, ok := h.report(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, r); err != nil {
		telemetry.Error("export.encode_failed", map[string]any{"analysis_id": r.AnalysisID, "err": err})
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to build report", nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+FileName(r, "json")+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (h *Handler) html(c *gin.Context) {
	r, ok := h.report(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, r); err != nil {
		telemetry.Error("export.render_failed", map[string]any{"analysis_id": r.AnalysisID, "err": err})
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to render report", nil)
		return
	}
	disposition := "inline"
	if c.Query("download") == "1" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition+`; filename="`+FileName(r, "html")+`"`)
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
