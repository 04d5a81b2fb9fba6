package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/shared/apperr"
)

func TestFromErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest, "validation_error"},
		{apperr.New(apperr.ErrUnsupportedFormat, "xlsx not supported"), http.StatusUnsupportedMediaType, "unsupported_format"},
		{fmt.Errorf("get: %w", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{apperr.New(apperr.ErrBusy, "generation in progress"), http.StatusConflict, "busy"},
		{apperr.New(apperr.ErrNotReady, "analysis running"), http.StatusConflict, "not_ready"},
		{apperr.New(apperr.ErrConflict, "analysis active"), http.StatusConflict, "conflict"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
		FromError(c, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, w.Code)
		}
		var body ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Code != tc.code {
			t.Fatalf("%v: expected code %q, got %q", tc.err, tc.code, body.Error.Code)
		}
	}
}

func TestFromErrorHidesInternalMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	FromError(c, errors.New("pq: password authentication failed"))

	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error.Message != "Unexpected server error" {
		t.Fatalf("internal error leaked: %q", body.Error.Message)
	}
}
