package analyses

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/llm"
)

func newTestRouter(t *testing.T, env *testEnv, bus *events.Bus) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(env.svc, bus)
	h.polls = newPollLimiter(time.Hour, nil)
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestStartStatusAndResultsEndpoints(t *testing.T) {
	env := newTestEnv(t, scriptedLLM(soc2Evaluation), fakeExtractor{})
	env.upload(t, "s-1", "policy.txt", "policy")
	router := newTestRouter(t, env, events.NewBus(8))

	resp := doJSON(router, http.MethodPost, "/api/v1/analysis/start", `{"session_id":"s-1","frameworks":["SOC2"]}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var started startResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &started); err != nil || started.AnalysisID == "" {
		t.Fatalf("bad start response %s: %v", resp.Body.String(), err)
	}
	env.svc.Wait()

	resp = doJSON(router, http.MethodGet, "/api/v1/analysis/"+started.AnalysisID+"/status", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var status statusResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &status)
	if status.Status != StatusCompleted || status.ProgressPercentage != 100 {
		t.Fatalf("unexpected status %+v", status)
	}

	resp = doJSON(router, http.MethodGet, "/api/v1/analysis/"+started.AnalysisID+"/status", "")
	if resp.Code != http.StatusTooManyRequests || resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected throttled poll, got %d", resp.Code)
	}

	resp = doJSON(router, http.MethodGet, "/api/v1/analysis/"+started.AnalysisID+"/results", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"overall_compliance_score":72.5`) {
		t.Fatalf("unexpected results %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, http.MethodGet, "/api/v1/sessions/s-1/analysis/current", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), started.AnalysisID) {
		t.Fatalf("unexpected current %d: %s", resp.Code, resp.Body.String())
	}
}

func TestStartEndpointErrors(t *testing.T) {
	env := newTestEnv(t, scriptedLLM(soc2Evaluation), fakeExtractor{})
	router := newTestRouter(t, env, events.NewBus(8))

	resp := doJSON(router, http.MethodPost, "/api/v1/analysis/start", `{"session_id":"s-1","frameworks":["SOC2"]}`)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "no files uploaded") {
		t.Fatalf("expected 400 for empty session, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, http.MethodPost, "/api/v1/analysis/start", `{`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", resp.Code)
	}

	resp = doJSON(router, http.MethodGet, "/api/v1/analysis/missing/status", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	resp = doJSON(router, http.MethodGet, "/api/v1/analysis/missing/results", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestResultsNotReadyWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	client := scriptedLLM(soc2Evaluation)
	inner := client.complete
	client.complete = func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
		<-gate
		return inner(ctx, msgs, opts)
	}
	env := newTestEnv(t, client, fakeExtractor{})
	env.upload(t, "s-1", "policy.txt", "policy")
	router := newTestRouter(t, env, events.NewBus(8))

	job, err := env.svc.Start(context.Background(), StartRequest{SessionID: "s-1", Frameworks: []string{"SOC2"}})
	if err != nil {
		close(gate)
		t.Fatalf("start: %v", err)
	}
	resp := doJSON(router, http.MethodGet, "/api/v1/analysis/"+job.ID+"/results", "")
	close(gate)
	if resp.Code != http.StatusConflict || !strings.Contains(resp.Body.String(), "not_ready") {
		t.Fatalf("expected 409 not_ready, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestStreamReplaysSnapshotThenLiveEvents(t *testing.T) {
	env := newTestEnv(t, scriptedLLM(soc2Evaluation), fakeExtractor{})
	bus := events.NewBus(64)
	env.svc.Bus = bus
	env.upload(t, "s-1", "policy.txt", "policy")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(env.svc, bus).RegisterRoutes(router.Group("/api/v1"))
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/s-1/analysis/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	first := readEventName(t, reader)
	if first != string(events.ConnectionStatus) {
		t.Fatalf("expected connection_status first, got %s", first)
	}

	job, err := env.svc.Start(context.Background(), StartRequest{SessionID: "s-1", Frameworks: []string{"SOC2"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var last string
	for last != string(events.AnalysisComplete) {
		last = readEventName(t, reader)
	}
	env.svc.Wait()
	if got, _ := env.svc.Status(context.Background(), job.ID); got.Status != StatusCompleted {
		t.Fatalf("expected completed job, got %+v", got)
	}
}

// bufferedSubscriber queues events on the subscription before the handler
// reads its snapshot.
type bufferedSubscriber struct {
	bus     *events.Bus
	pending []events.Event
}

func (b *bufferedSubscriber) Subscribe(sessionID string, ns events.Namespace) *events.Subscription {
	sub := b.bus.Subscribe(sessionID, ns)
	for _, ev := range b.pending {
		b.bus.Publish(sessionID, ns, ev)
	}
	return sub
}

func TestStreamDropsProgressBehindSnapshot(t *testing.T) {
	env := newTestEnv(t, scriptedLLM(soc2Evaluation), fakeExtractor{})
	env.upload(t, "s-1", "policy.txt", "policy")
	done, err := env.svc.Start(context.Background(), StartRequest{SessionID: "s-1", Frameworks: []string{"SOC2"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	env.svc.Wait()

	progress := func(typ events.EventType, id string, pct float64) events.Event {
		return events.New(typ, "", map[string]any{"analysis_id": id}).WithProgress(pct)
	}
	sub := &bufferedSubscriber{
		bus: events.NewBus(16),
		pending: []events.Event{
			progress(events.FindingDiscovered, done.ID, 30),
			progress(events.FindingDiscovered, done.ID, 70),
			progress(events.AnalysisProgress, "next-job", 10),
			progress(events.AnalysisComplete, done.ID, 100),
		},
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(env.svc, sub).RegisterRoutes(router.Group("/api/v1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-1/analysis/stream", nil))

	var got []events.Event
	for _, line := range strings.Split(resp.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}
		got = append(got, ev)
	}

	want := []events.EventType{events.ConnectionStatus, events.AnalysisProgress, events.AnalysisComplete}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i, ev := range got {
		if ev.EventType != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], ev.EventType)
		}
	}
	if got[0].ProgressPercentage != nil {
		t.Fatalf("finished snapshot should not stamp progress, got %v", *got[0].ProgressPercentage)
	}
	if *got[1].ProgressPercentage != 10 || *got[2].ProgressPercentage != 100 {
		t.Fatalf("unexpected progress %v then %v", *got[1].ProgressPercentage, *got[2].ProgressPercentage)
	}
}

func TestStaleProgressTracksEachJob(t *testing.T) {
	seen := map[string]float64{"a": 50}
	ev := func(typ events.EventType, id string, pct float64) events.Event {
		return events.New(typ, "", map[string]any{"analysis_id": id}).WithProgress(pct)
	}
	if !staleProgress(seen, ev(events.AnalysisProgress, "a", 40)) {
		t.Fatalf("expected lower progress to be stale")
	}
	if staleProgress(seen, ev(events.AnalysisProgress, "a", 60)) || seen["a"] != 60 {
		t.Fatalf("expected higher progress to pass and raise the mark, got %v", seen["a"])
	}
	if staleProgress(seen, ev(events.AnalysisError, "a", 20)) {
		t.Fatalf("terminal events always pass")
	}
	if staleProgress(seen, ev(events.AnalysisProgress, "b", 5)) {
		t.Fatalf("another job has its own mark")
	}
	if staleProgress(seen, events.New(events.FindingDiscovered, "", map[string]any{"analysis_id": "a"})) {
		t.Fatalf("events without progress pass")
	}
}

func readEventName(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event:"); ok {
			return strings.TrimSpace(name)
		}
	}
	t.Fatalf("timed out waiting for event")
	return ""
}

func TestPollLimiterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	l := newPollLimiter(250*time.Millisecond, func() time.Time { return now })
	if !l.Allow("c", "a") || l.Allow("c", "a") {
		t.Fatalf("expected second poll inside window to be refused")
	}
	if !l.Allow("other", "a") {
		t.Fatalf("limits are per client")
	}
	now = now.Add(300 * time.Millisecond)
	if !l.Allow("c", "a") {
		t.Fatalf("expected poll after window to be allowed")
	}
	if l.RetryAfterSeconds() != 1 {
		t.Fatalf("expected Retry-After rounded up to 1, got %d", l.RetryAfterSeconds())
	}
}
