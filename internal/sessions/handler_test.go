package sessions

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := newTestRegistry(t)
	router := gin.New()
	NewHandler(reg).RegisterRoutes(router.Group("/api/v1"))
	return router, reg
}

func multipartUpload(t *testing.T, sessionID, name, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if sessionID != "" {
		if err := writer.WriteField("session_id", sessionID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadListDeleteFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "sess-1", "Acme_Policy.txt", "we encrypt data at rest"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var uploaded struct {
		Success bool `json:"success"`
		File    struct {
			ID           string `json:"id"`
			OriginalName string `json:"original_name"`
			StorageKey   string `json:"storage_key"`
		} `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if !uploaded.Success || uploaded.File.ID == "" || uploaded.File.OriginalName != "Acme_Policy.txt" {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}
	if uploaded.File.StorageKey != "" {
		t.Fatalf("storage key must not be exposed")
	}

	list := httptest.NewRecorder()
	router.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/v1/upload/sess-1", nil))
	var files struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
		TotalSizeBytes int64 `json:"total_size_bytes"`
	}
	if err := json.NewDecoder(list.Body).Decode(&files); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(files.Files) != 1 || files.TotalSizeBytes != int64(len("we encrypt data at rest")) {
		t.Fatalf("unexpected list %+v", files)
	}

	session := httptest.NewRecorder()
	router.ServeHTTP(session, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1", nil))
	if !strings.Contains(session.Body.String(), `"suggested_vendor_name":"Acme"`) {
		t.Fatalf("expected vendor suggestion, got %s", session.Body.String())
	}

	del := httptest.NewRecorder()
	router.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/v1/upload/sess-1/"+uploaded.File.ID, nil))
	if del.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", del.Code)
	}
	again := httptest.NewRecorder()
	router.ServeHTTP(again, httptest.NewRequest(http.MethodDelete, "/api/v1/upload/sess-1/"+uploaded.File.ID, nil))
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", again.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "bad id!", "a.txt", "x"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad session id, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "sess-1", "macro.xlsm", "x"))
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for disallowed extension, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, multipartUpload(t, "sess-1", "big.txt", strings.Repeat("z", 4<<10)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized file, got %d", resp.Code)
	}
}

func TestSetFrameworksAndAssessment(t *testing.T) {
	router, reg := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/sess-2/frameworks", strings.NewReader(`{"frameworks":["soc2","hipaa"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/sessions/sess-2/assessment", strings.NewReader(`{"vendor_name":"Globex","reviewed_by":"sam"}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	s, err := reg.Get(req.Context(), "sess-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(s.SelectedFrameworks) != 2 || s.AssessmentMeta.VendorName != "Globex" {
		t.Fatalf("unexpected session %+v", s)
	}

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nobody", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}
