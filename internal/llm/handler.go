package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/server/respond"
	"vendorsec-backend/internal/shared/telemetry"
)

const connectionTestTimeout = 30 * time.Second

// Handler exposes a connectivity probe for the configured provider.
type Handler struct {
	Client  Client
	Timeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(client Client) *Handler {
	return &Handler{Client: client, Timeout: connectionTestTimeout}
}

// RegisterRoutes attaches the connection test route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/connection/test", h.test)
}

// ConnectionResult reports the outcome of a probe. Failures are reported in
// the body with a 200 status so the UI can show them.
type ConnectionResult struct {
	Success   bool   `json:"success"`
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TestConnection sends a minimal completion through client.
func TestConnection(ctx context.Context, client Client) ConnectionResult {
	d := describe(client)
	res := ConnectionResult{Provider: d.provider, Model: d.model}

	started := time.Now()
	out, err := client.Complete(ctx, []Message{
		{Role: RoleUser, Content: "Reply with the single word OK."},
	}, Options{MaxTokens: 16})
	res.LatencyMs = time.Since(started).Milliseconds()
	if err != nil {
		res.Error = apperr.Message(err)
		return res
	}
	res.Success = true
	res.Reply = strings.TrimSpace(out)
	return res
}

func (h *Handler) test(c *gin.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = connectionTestTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	res := TestConnection(ctx, h.Client)
	fields := map[string]any{
		"provider":   res.Provider,
		"model":      res.Model,
		"success":    res.Success,
		"latency_ms": res.LatencyMs,
	}
	if res.Error != "" {
		fields["err"] = res.Error
		telemetry.Warn("inference.connection_test", fields)
	} else {
		telemetry.Info("inference.connection_test", fields)
	}
	respond.JSON(c, http.StatusOK, res)
}
