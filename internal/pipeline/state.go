// internal/pipeline/state.go
package pipeline

import (
	"time"

	"insight-engine/internal/dates"
	"insight-engine/internal/models"
)

// Step statuses for the agent step trace.
const (
	StepStart    = "start"
	StepProgress = "progress"
	StepDone     = "done"
	StepError    = "error"
)

// AgentStep is one entry of the per-request trace; it is both kept on the
// state and emitted on the wire as a data-agent_step event.
type AgentStep struct {
	Step    string                 `json:"step"`
	Status  string                 `json:"status"`
	TS      string                 `json:"ts"`
	Message string                 `json:"message,omitempty"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// State is the conversation state threaded through the pipeline. One value
// per request, never shared, plain record on purpose.
type State struct {
	// Input
	Question    string
	ThreadID    string
	UserID      string
	ChatContext string
	DateRange   dates.Range
	PrevRange   dates.Range
	// PrevWasClarification tells the classifier the previous assistant turn
	// already asked for clarification.
	PrevWasClarification bool

	// Identifiers
	TraceID   string
	MessageID string
	TextID    string

	// Intermediate results
	Decision *models.RoutingDecision
	Payload  *models.DataPayload
	Spec     *models.DashboardSpec

	// Control
	RetryCount      int
	MaxRetries      int
	Err             error
	ExcludedQueries []string
	Steps           []AgentStep
}

// NewState builds the initial state for a request.
func NewState(question, threadID, userID, traceID string, maxRetries int) *State {
	return &State{
		Question:   question,
		ThreadID:   threadID,
		UserID:     userID,
		TraceID:    traceID,
		MessageID:  "msg-" + traceID,
		TextID:     "text-" + traceID,
		MaxRetries: maxRetries,
	}
}

func (s *State) addStep(step AgentStep) {
	s.Steps = append(s.Steps, step)
}

func newStep(name, status, message string, detail map[string]interface{}) AgentStep {
	return AgentStep{
		Step:    name,
		Status:  status,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Message: message,
		Detail:  detail,
	}
}
