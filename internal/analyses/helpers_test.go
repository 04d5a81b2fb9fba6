package analyses

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/extract"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/storage/object/local"
)

const soc2Evaluation = `{
  "coverage_percentage": 72.5,
  "maturity_level": "Defined",
  "implemented_controls": [{"control_id": "CC6.1"}, {"control_id": "CC7.2"}],
  "partial_controls": [{"control_id": "CC8.1"}],
  "missing_controls": 2,
  "findings": [
    {"severity": "High", "category": "encryption", "title": "No key rotation", "description": "Keys are never rotated.", "recommendation": "Rotate keys yearly.", "control_references": ["SOC2:CC6.1"]},
    {"severity": "low", "category": "", "title": "Policy review cadence", "description": "", "recommendation": ""}
  ],
  "strengths": [{"category": "access_control", "title": "MFA enforced", "description": "All admins use MFA."}]
}`

// recorder keeps every published event; the real bus may drop under load.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(sessionID string, ns events.Namespace, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) count(t events.EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.EventType == t {
			n++
		}
	}
	return n
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	complete func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.complete(ctx, msgs, opts)
}

func (f *fakeLLM) Stream(ctx context.Context, msgs []llm.Message, opts llm.Options) (llm.Stream, error) {
	return nil, llm.ErrNotImplemented
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedLLM answers evaluations with eval and summaries with a fixed text.
func scriptedLLM(eval string) *fakeLLM {
	return &fakeLLM{complete: func(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
		if opts.JSON {
			return eval, nil
		}
		return "Acme has a defined control environment with gaps in key management.", nil
	}}
}

type fakeExtractor struct {
	fail map[string]error
}

func (f fakeExtractor) Extract(ctx context.Context, storageKey, mimeType, fileName string) (string, error) {
	if err := f.fail[fileName]; err != nil {
		return "", err
	}
	return "text of " + fileName, nil
}

type testEnv struct {
	svc *Service
	reg *sessions.Registry
	rec *recorder
}

func newTestEnv(t *testing.T, client llm.Client, ext TextExtractor) *testEnv {
	t.Helper()
	store := local.New(t.TempDir())
	reg := sessions.NewRegistry(sessions.NewMemoryRepo(), store, sessions.Limits{
		MaxFileBytes:    1 << 20,
		MaxSessionBytes: 4 << 20,
		TTL:             time.Hour,
	})
	if ext == nil {
		ext = &extract.Extractor{Store: store}
	}
	rec := &recorder{}
	svc := &Service{
		Repo:                  NewMemoryRepo(),
		Sessions:              reg,
		Extractor:             ext,
		LLM:                   client,
		Bus:                   rec,
		Store:                 store,
		FrameworkConcurrency:  2,
		ExtractionConcurrency: 2,
		MaxTokens:             512,
		Retry:                 llm.RetryPolicy{MaxAttempts: 2},
	}
	reg.OnReset(svc.ResetSession)
	t.Cleanup(svc.Wait)
	return &testEnv{svc: svc, reg: reg, rec: rec}
}

func (e *testEnv) upload(t *testing.T, sessionID, name, body string) sessions.FileRecord {
	t.Helper()
	rec, err := e.reg.AddFile(context.Background(), sessionID, name, strings.NewReader(body))
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return rec
}
