package events

import "time"

// Namespace separates the analysis progress stream from the chat stream of a session.
type Namespace string

const (
	NamespaceAnalysis Namespace = "analysis"
	NamespaceChat     Namespace = "chat"
)

// EventType names the kind of progress or chat event.
type EventType string

const (
	AnalysisStarted            EventType = "analysis_started"
	DocumentLoading            EventType = "document_loading"
	DocumentLoaded             EventType = "document_loaded"
	DocumentAnalyzing          EventType = "document_analyzing"
	FindingDiscovered          EventType = "finding_discovered"
	FrameworkComplete          EventType = "framework_complete"
	RiskAssessmentStarted      EventType = "risk_assessment_started"
	RiskAssessmentComplete     EventType = "risk_assessment_complete"
	ExecutiveSummaryGenerating EventType = "executive_summary_generating"
	AnalysisProgress           EventType = "analysis_progress"
	AnalysisComplete           EventType = "analysis_complete"
	AnalysisError              EventType = "analysis_error"

	ChatMessage          EventType = "chat_message"
	ChatTyping           EventType = "chat_typing"
	ChatResponseChunk    EventType = "chat_response_chunk"
	ChatResponseComplete EventType = "chat_response_complete"
	ChatError            EventType = "chat_error"

	ConnectionStatus EventType = "connection_status"
)

// Event is one self-describing message on a session stream.
type Event struct {
	ID                 string         `json:"id,omitempty"`
	EventType          EventType      `json:"event_type"`
	Timestamp          time.Time      `json:"timestamp"`
	ProgressPercentage *float64       `json:"progress_percentage,omitempty"`
	Message            string         `json:"message,omitempty"`
	Data               map[string]any `json:"data"`
}

// New builds an event stamped with the current time.
func New(t EventType, message string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		EventType: t,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Data:      data,
	}
}

// WithProgress returns a copy of the event carrying a progress percentage.
func (e Event) WithProgress(pct float64) Event {
	e.ProgressPercentage = &pct
	return e
}

// Terminal reports whether the event ends an analysis stream.
func (e Event) Terminal() bool {
	return e.EventType == AnalysisComplete || e.EventType == AnalysisError
}
