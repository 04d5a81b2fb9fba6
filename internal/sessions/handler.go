package sessions

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/shared/server/respond"
)

// multipart framing on top of the file itself
const uploadOverheadBytes = 1 << 20

// Handler wires HTTP handlers to the registry.
type Handler struct {
	Registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(reg *Registry) *Handler {
	return &Handler{Registry: reg}
}

// RegisterRoutes attaches upload and session routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.upload)
	rg.GET("/upload/:sessionId", h.listFiles)
	rg.DELETE("/upload/:sessionId/:fileId", h.deleteFile)
	rg.DELETE("/upload/:sessionId", h.reset)

	rg.GET("/sessions/:sessionId", h.get)
	rg.PUT("/sessions/:sessionId/frameworks", h.setFrameworks)
	rg.PUT("/sessions/:sessionId/assessment", h.setAssessment)
}

type uploadResponse struct {
	Success bool        `json:"success"`
	File    *FileRecord `json:"file,omitempty"`
}

type fileListResponse struct {
	SessionID      string       `json:"session_id"`
	Files          []FileRecord `json:"files"`
	TotalSizeBytes int64        `json:"total_size_bytes"`
}

type sessionResponse struct {
	Session
	TotalSizeBytes      int64  `json:"total_size_bytes"`
	SuggestedVendorName string `json:"suggested_vendor_name,omitempty"`
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Registry.Limits.MaxFileBytes+uploadOverheadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds the upload limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form with session_id and file is required", nil)
		return
	}

	var sessionID string
	if vals := form.Value["session_id"]; len(vals) > 0 {
		sessionID = strings.TrimSpace(vals[0])
	}
	if err := ValidateID(sessionID); err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("sessionId", sessionID)

	files := form.File["file"]
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	fileHeader := files[0]

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	rec, err := h.Registry.AddFile(c.Request.Context(), sessionID, fileHeader.Filename, file)
	if err != nil {
		respond.FromError(c, err)
		return
	}

	respond.OK(c, uploadResponse{Success: true, File: &rec})
}

func (h *Handler) listFiles(c *gin.Context) {
	sessionID := c.Param("sessionId")
	files, err := h.Registry.Files(c.Request.Context(), sessionID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}
	respond.OK(c, fileListResponse{SessionID: sessionID, Files: files, TotalSizeBytes: total})
}

func (h *Handler) deleteFile(c *gin.Context) {
	if err := h.Registry.RemoveFile(c.Request.Context(), c.Param("sessionId"), c.Param("fileId")); err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, uploadResponse{Success: true})
}

func (h *Handler) reset(c *gin.Context) {
	if err := h.Registry.Reset(c.Request.Context(), c.Param("sessionId")); err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, uploadResponse{Success: true})
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.Registry.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, toResponse(s))
}

type frameworksRequest struct {
	Frameworks []string `json:"frameworks"`
}

func (h *Handler) setFrameworks(c *gin.Context) {
	var req frameworksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	s, err := h.Registry.SetFrameworks(c.Request.Context(), c.Param("sessionId"), req.Frameworks)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, toResponse(s))
}

func (h *Handler) setAssessment(c *gin.Context) {
	var req AssessmentMeta
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	s, err := h.Registry.SetAssessmentMeta(c.Request.Context(), c.Param("sessionId"), req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, toResponse(s))
}

func toResponse(s Session) sessionResponse {
	return sessionResponse{
		Session:             s,
		TotalSizeBytes:      s.TotalBytes(),
		SuggestedVendorName: GuessVendorName(s.Files),
	}
}
