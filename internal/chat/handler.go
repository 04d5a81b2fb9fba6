package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/server/respond"
)

// Subscriber opens live event subscriptions.
type Subscriber interface {
	Subscribe(sessionID string, ns events.Namespace) *events.Subscription
}

// Handler wires HTTP handlers to the chat service.
type Handler struct {
	Svc    *Service
	Events Subscriber
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, sub Subscriber) *Handler {
	return &Handler{Svc: svc, Events: sub}
}

// RegisterRoutes attaches chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.send)
	rg.POST("/chat/:sessionId/open", h.open)
	rg.POST("/chat/:sessionId/close", h.close)
	rg.GET("/chat/:sessionId/history", h.history)
	rg.DELETE("/chat/:sessionId/history", h.clear)
	rg.GET("/sessions/:sessionId/chat/stream", h.stream)
}

type sendResponse struct {
	Success bool    `json:"success"`
	Message Message `json:"message"`
	Status  string  `json:"status"`
}

type historyResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

func (h *Handler) send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	c.Set("sessionId", req.SessionID)

	msg, err := h.Svc.SendMessage(c.Request.Context(), req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Accepted(c, sendResponse{Success: true, Message: msg, Status: "generating"})
}

func (h *Handler) open(c *gin.Context) {
	st, err := h.Svc.Open(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, st)
}

func (h *Handler) close(c *gin.Context) {
	if err := h.Svc.Close(c.Request.Context(), c.Param("sessionId")); err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *Handler) history(c *gin.Context) {
	sessionID := c.Param("sessionId")
	msgs, err := h.Svc.History(c.Request.Context(), sessionID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, historyResponse{SessionID: sessionID, Messages: msgs})
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.Svc.Clear(c.Request.Context(), c.Param("sessionId")); err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *Handler) stream(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := sessions.ValidateID(sessionID); err != nil {
		respond.FromError(c, err)
		return
	}

	sub := h.Events.Subscribe(sessionID, events.NamespaceChat)
	st, err := h.Svc.Open(c.Request.Context(), sessionID)
	if err != nil {
		sub.Close()
		respond.FromError(c, err)
		return
	}
	events.Stream(c, sub, events.StreamOptions{
		Initial: []events.Event{events.New(events.ConnectionStatus, "connected", map[string]any{
			"session_id":   sessionID,
			"namespace":    string(events.NamespaceChat),
			"generating":   st.Generating,
			"has_analysis": st.HasAnalysis,
			"messages":     st.Messages,
		})},
	})
}
