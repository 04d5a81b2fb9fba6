package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestIDKeepsClientValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "client-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if seen != "client-123" || resp.Header().Get("X-Request-Id") != "client-123" {
		t.Fatalf("expected client id, got ctx=%q header=%q", seen, resp.Header().Get("X-Request-Id"))
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", maxRequestIDLength+1))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if len(seen) != 36 {
		t.Fatalf("expected generated uuid for oversized id, got %q", seen)
	}
}

func TestSessionContextPrefersRouteParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SessionContext())
	var seen string
	handler := func(c *gin.Context) {
		seen = SessionIDFromContext(c)
		c.Status(http.StatusOK)
	}
	router.GET("/sessions/:sessionId", handler)
	router.GET("/frameworks", handler)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s-route", nil)
	req.Header.Set("X-Session-Id", "s-header")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "s-route" {
		t.Fatalf("expected route param, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/frameworks", nil)
	req.Header.Set("X-Session-Id", " s-header ")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "s-header" {
		t.Fatalf("expected header value, got %q", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if resp.Header().Get("X-Content-Type-Options") != "nosniff" || resp.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", resp.Header())
	}
	if resp.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must only be sent over TLS")
	}
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BodyLimit(8))
	router.POST("/upload", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("0123456789")))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "payload_too_large") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("0123")))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
