package events

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestStreamWritesUntilTerminalEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := NewBus(8)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		sub := bus.Subscribe("s1", NamespaceAnalysis)
		Stream(c, sub, StreamOptions{
			Initial:  []Event{New(ConnectionStatus, "connected", map[string]any{"session_id": "s1"})},
			StopWhen: Event.Terminal,
		})
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	go func() {
		deadline := time.Now().Add(time.Second)
		for bus.SubscriberCount("s1", NamespaceAnalysis) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		bus.Publish("s1", NamespaceAnalysis, New(AnalysisStarted, "", nil).WithProgress(0))
		bus.Publish("s1", NamespaceAnalysis, New(AnalysisComplete, "", map[string]any{"analysis_id": "a1"}).WithProgress(100))
	}()

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			names = append(names, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}

	want := []string{"connection_status", "analysis_started", "analysis_complete"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if bus.SubscriberCount("s1", NamespaceAnalysis) != 0 {
		t.Fatalf("expected subscription to be released")
	}
}
