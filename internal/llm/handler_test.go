package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type echoClient struct{ reply string }

func (e echoClient) Complete(context.Context, []Message, Options) (string, error) { return e.reply, nil }

func (e echoClient) Stream(context.Context, []Message, Options) (Stream, error) {
	return SliceStream(e.reply), nil
}

func (echoClient) Provider() string { return "echo" }

func (echoClient) Model() string { return "echo-1" }

func postConnectionTest(t *testing.T, client Client) ConnectionResult {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(client).RegisterRoutes(router.Group("/api/v1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/connection/test", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var res ConnectionResult
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

func TestConnectionTestSuccess(t *testing.T) {
	res := postConnectionTest(t, echoClient{reply: " OK\n"})
	if !res.Success || res.Provider != "echo" || res.Model != "echo-1" || res.Reply != "OK" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestConnectionTestReportsFailure(t *testing.T) {
	res := postConnectionTest(t, PlaceholderClient{})
	if res.Success || res.Provider != "placeholder" || res.Error == "" {
		t.Fatalf("unexpected result %+v", res)
	}
}
