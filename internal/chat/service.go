package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"vendorsec-backend/internal/analyses"
	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/metrics"
	"vendorsec-backend/internal/shared/telemetry"
	"vendorsec-backend/internal/shared/util"
)

const (
	MaxMessageChars      = 10000
	defaultHistoryWindow = 10
)

// ResultsSource returns the newest completed analysis of a session.
type ResultsSource interface {
	LatestResults(ctx context.Context, sessionID string) (analyses.Job, analyses.AnalysisResults, error)
}

// SessionReader reads session state for context when no analysis exists.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (sessions.Session, error)
}

// Service runs one generation at a time per session and streams it on the
// chat namespace.
type Service struct {
	Repo     Repo
	Analyses ResultsSource
	Sessions SessionReader
	LLM      llm.Client
	Bus      events.Publisher

	HistoryWindow int
	MaxTokens     int
	Temperature   float32

	BaseContext context.Context
	Now         func() time.Time

	mu    sync.Mutex
	chats map[string]*channel
	wg    sync.WaitGroup
}

// channel is the per-session chat state. cancel is non-nil while a
// generation is in flight.
type channel struct {
	openedAt   time.Time
	generation string
	cancel     context.CancelFunc
	// closing marks a closed channel whose generation has not returned yet.
	closing bool
}

// Open registers the session's chat channel and describes it.
func (s *Service) Open(ctx context.Context, sessionID string) (State, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return State{}, err
	}
	s.mu.Lock()
	s.channelLocked(sessionID).closing = false
	s.mu.Unlock()
	return s.State(ctx, sessionID)
}

// State reports the channel without opening it.
func (s *Service) State(ctx context.Context, sessionID string) (State, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return State{}, err
	}
	n, err := s.Repo.Count(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	st := State{SessionID: sessionID, Messages: n}
	s.mu.Lock()
	if ch, ok := s.chats[sessionID]; ok {
		st.Open = !ch.closing
		st.Generating = ch.cancel != nil
	}
	s.mu.Unlock()
	if s.Analyses != nil {
		if _, _, err := s.Analyses.LatestResults(ctx, sessionID); err == nil {
			st.HasAnalysis = true
		}
	}
	return st, nil
}

// SendMessage appends the user message and starts the assistant reply in
// the background. A second call while a reply is streaming fails with ErrBusy.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (Message, error) {
	if err := sessions.ValidateID(req.SessionID); err != nil {
		return Message{}, err
	}
	text := strings.TrimSpace(util.SanitizeText(req.Message))
	if text == "" {
		return Message{}, apperr.Validation("message is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageChars {
		return Message{}, apperr.Validation("message exceeds %d characters", MaxMessageChars)
	}

	base := s.BaseContext
	if base == nil {
		base = context.Background()
	}
	genCtx, cancel := context.WithCancel(base)
	generation := uuid.NewString()

	s.mu.Lock()
	ch := s.channelLocked(req.SessionID)
	if ch.cancel != nil {
		s.mu.Unlock()
		cancel()
		return Message{}, ErrBusy
	}
	ch.cancel = cancel
	ch.generation = generation
	s.mu.Unlock()

	user := Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      RoleUser,
		Content:   text,
		Timestamp: s.now(),
	}
	if err := s.Repo.Append(ctx, user); err != nil {
		s.release(req.SessionID, generation)
		return Message{}, err
	}
	metrics.IncChatMessage(string(RoleUser))
	s.publish(req.SessionID, events.New(events.ChatMessage, "", map[string]any{"message": user}))

	msgs, err := s.prompt(ctx, req.SessionID, req.IncludeContext == nil || *req.IncludeContext)
	if err != nil {
		s.release(req.SessionID, generation)
		return Message{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.generate(genCtx, req.SessionID, generation, msgs)
	}()
	return user, nil
}

func (s *Service) prompt(ctx context.Context, sessionID string, includeContext bool) ([]llm.Message, error) {
	window := s.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	history, err := s.Repo.List(ctx, sessionID, window)
	if err != nil {
		return nil, err
	}
	contextText := ""
	if includeContext {
		contextText = s.contextFor(ctx, sessionID)
	}
	return buildMessages(contextText, history), nil
}

// contextFor prefers completed results and falls back to the session's files.
// Missing results are not an error.
func (s *Service) contextFor(ctx context.Context, sessionID string) string {
	if s.Analyses != nil {
		job, res, err := s.Analyses.LatestResults(ctx, sessionID)
		if err == nil {
			return analysisContext(job, res)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			telemetry.Warn("chat.context_failed", map[string]any{"session_id": sessionID, "err": err})
		}
	}
	if s.Sessions != nil {
		sess, err := s.Sessions.Get(ctx, sessionID)
		if err == nil {
			return sessionContext(sess)
		}
	}
	return ""
}

func (s *Service) generate(ctx context.Context, sessionID, generation string, msgs []llm.Message) {
	started := time.Now()
	defer s.release(sessionID, generation)
	defer func() {
		if p := recover(); p != nil {
			s.fail(sessionID, generation, started, fmt.Errorf("internal error: %v", p))
		}
	}()

	s.publish(sessionID, events.New(events.ChatTyping, "", map[string]any{"is_typing": true}))

	full, err := s.stream(ctx, sessionID, generation, msgs)
	if err != nil {
		s.fail(sessionID, generation, started, err)
		return
	}
	if err := ctx.Err(); err != nil {
		s.fail(sessionID, generation, started, err)
		return
	}

	reply := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleAssistant,
		Content:   full,
		Timestamp: s.now(),
	}
	if err := s.Repo.Append(ctx, reply); err != nil {
		s.fail(sessionID, generation, started, err)
		return
	}
	metrics.IncChatMessage(string(RoleAssistant))

	s.publish(sessionID, events.New(events.ChatResponseComplete, "", map[string]any{
		"message_id":    reply.ID,
		"generation_id": generation,
		"full_response": full,
		"timestamp":     reply.Timestamp,
	}))
	s.publish(sessionID, events.New(events.ChatTyping, "", map[string]any{"is_typing": false}))
	telemetry.Info("chat.generation", map[string]any{
		"session_id":  sessionID,
		"message_id":  reply.ID,
		"chars":       len(full),
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// stream forwards fragments as they arrive and returns the assembled reply.
func (s *Service) stream(ctx context.Context, sessionID, generation string, msgs []llm.Message) (string, error) {
	st, err := s.LLM.Stream(ctx, msgs, llm.Options{MaxTokens: s.MaxTokens, Temperature: s.Temperature})
	if err != nil {
		return "", err
	}
	defer st.Close()

	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		s.publish(sessionID, events.New(events.ChatResponseChunk, "", map[string]any{
			"chunk":         chunk,
			"generation_id": generation,
		}))
	}
	full := strings.TrimSpace(b.String())
	if full == "" {
		return "", fmt.Errorf("%w: empty reply", llm.ErrMalformedOutput)
	}
	return full, nil
}

// fail reports the error; the partial reply is discarded.
func (s *Service) fail(sessionID, generation string, started time.Time, err error) {
	msg := apperr.Message(err)
	if errors.Is(err, context.Canceled) {
		msg = "generation cancelled"
	}
	metrics.IncChatFailure()
	s.publish(sessionID, events.New(events.ChatError, msg, map[string]any{
		"error":         msg,
		"generation_id": generation,
	}))
	s.publish(sessionID, events.New(events.ChatTyping, "", map[string]any{"is_typing": false}))
	telemetry.Error("chat.generation", map[string]any{
		"session_id":  sessionID,
		"err":         err,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// Close cancels any in-flight generation and forgets the channel. While a
// cancelled generation is still unwinding the channel stays busy.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	if err := sessions.ValidateID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[sessionID]
	if !ok {
		return nil
	}
	if ch.cancel == nil {
		delete(s.chats, sessionID)
		return nil
	}
	ch.cancel()
	ch.closing = true
	return nil
}

// History returns the full conversation, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]Message, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return nil, err
	}
	return s.Repo.List(ctx, sessionID, 0)
}

// Clear deletes the history. It is refused while a reply is streaming.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := sessions.ValidateID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	if ch, ok := s.chats[sessionID]; ok && ch.cancel != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()
	return s.Repo.DeleteForSession(ctx, sessionID)
}

// ResetSession is registered as a session reset hook: it stops any
// generation and drops the history.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	if err := s.Close(ctx, sessionID); err != nil {
		return err
	}
	return s.Repo.DeleteForSession(ctx, sessionID)
}

// Generating reports whether a reply is streaming for the session.
func (s *Service) Generating(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[sessionID]
	return ok && ch.cancel != nil
}

// Wait blocks until every in-flight generation has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) channelLocked(sessionID string) *channel {
	if s.chats == nil {
		s.chats = make(map[string]*channel)
	}
	ch, ok := s.chats[sessionID]
	if !ok {
		ch = &channel{openedAt: s.now()}
		s.chats[sessionID] = ch
	}
	return ch
}

// release ends the generation if it is still the current one.
func (s *Service) release(sessionID, generation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[sessionID]
	if !ok || ch.generation != generation || ch.cancel == nil {
		return
	}
	ch.cancel()
	ch.cancel = nil
	if ch.closing {
		delete(s.chats, sessionID)
	}
}

func (s *Service) publish(sessionID string, ev events.Event) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(sessionID, events.NamespaceChat, ev)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
