package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/events"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(svc, events.NewBus(8)).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestChatEndpoints(t *testing.T) {
	svc, _ := newTestService(sliceLLM("Encryption ", "is covered."))
	router := newTestRouter(svc)

	resp := do(router, http.MethodPost, "/api/v1/chat/s-1/open", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"open":true`) {
		t.Fatalf("unexpected open response %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s-1","message":"Is encryption covered?"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	svc.Wait()

	resp = do(router, http.MethodGet, "/api/v1/chat/s-1/history", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var hist historyResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 2 || hist.Messages[1].Content != "Encryption is covered." {
		t.Fatalf("unexpected history %+v", hist)
	}

	resp = do(router, http.MethodDelete, "/api/v1/chat/s-1/history", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = do(router, http.MethodGet, "/api/v1/chat/s-1/history", "")
	if !strings.Contains(resp.Body.String(), `"messages":[]`) {
		t.Fatalf("expected empty history, got %s", resp.Body.String())
	}

	resp = do(router, http.MethodPost, "/api/v1/chat/s-1/close", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	svc, _ := newTestService(sliceLLM("x"))
	router := newTestRouter(svc)

	resp := do(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s-1","message":""}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	resp = do(router, http.MethodPost, "/api/v1/chat", `not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	resp = do(router, http.MethodGet, "/api/v1/chat/bad%20id/history", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
