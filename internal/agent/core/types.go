package core

import (
	"context"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Tool identifiers the planner may select. QAAgent is the terminal
// synthesis step and is guaranteed to run exactly once, last, every cycle.
const (
	ToolWeather = "weather_agent"
	ToolStock   = "stock_agent"
	ToolQA      = "qa_agent"
)

// KnownTools is the closed vocabulary the planner output is validated against.
var KnownTools = map[string]bool{
	ToolWeather: true,
	ToolStock:   true,
	ToolQA:      true,
}

// ApprovalMarker is appended to answers that still need human sign-off.
// The presentation layer keys off this substring to show approve/reject
// controls before the turn is committed to approved history.
const ApprovalMarker = "Awaiting human approval"

// ApprovalSuffix is the full marker text attached to a pending answer.
const ApprovalSuffix = "\n\n---\n" + ApprovalMarker + "... (Approve or Reject below)"

// NotEnoughHistoryMsg is returned when a summary is requested before at
// least one user and one assistant turn exist in approved history.
const NotEnoughHistoryMsg = "There is not enough conversation to summarize yet."

// Turn is a single immutable conversation turn.
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AgentState is the shared execution state threaded through one routing
// cycle. A fresh instance is built per user message and discarded after the
// cycle completes; only ChatHistory mutations and FinalAnswer survive into
// the session.
type AgentState struct {
	// Messages is the working view the planner and tool steps read from;
	// the last element is the current user input.
	Messages []Turn `json:"messages"`

	// ChatHistory is the approved context. It is separate from Messages so
	// a rejected answer can be excluded from future context while staying
	// visible in the raw transcript.
	ChatHistory []Turn `json:"chat_history"`

	// Tool results, populated by step executors.
	WeatherData string `json:"weather_data,omitempty"`
	StockData   string `json:"stock_data,omitempty"`

	// PendingTools is the remaining plan; it only shrinks during a cycle
	// and always ends with qa_agent after planning.
	PendingTools []string `json:"pending_tools"`

	// AutoApprove is the externally supplied approval flag for this cycle.
	// When false the synthesized answer carries the approval marker.
	AutoApprove bool `json:"auto_approve"`

	// FinalAnswer is set exactly once, by the synthesis step.
	FinalAnswer string `json:"final_answer,omitempty"`
}

// LatestUserInput returns the text of the current user message.
func (s *AgentState) LatestUserInput() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// LLMProvider abstracts the reasoning service. Implementations return the
// model's text response for a prompt; nothing about the response schema is
// guaranteed, so callers must parse defensively.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
}

// ToolAdapter wraps an external lookup behind a uniform call contract.
// Invoke never fails outward: any underlying fault is converted into a
// human-readable "Error: ..." string so synthesis can still acknowledge it.
type ToolAdapter interface {
	Name() string
	Invoke(ctx context.Context, query string) string
}

// Agent is one executable step of a cycle. Execute consumes the shared
// state and returns it mutated; step executors pop themselves off the
// front of PendingTools, the synthesis agent clears it.
type Agent interface {
	Name() string
	Execute(ctx context.Context, state *AgentState) error
}

// Intent is the classification of the current user input, computed once by
// the synthesis step and passed downward instead of re-sniffed ad hoc.
type Intent int

const (
	IntentAnswer Intent = iota
	IntentSummarize
)

func (i Intent) String() string {
	if i == IntentSummarize {
		return "summarize"
	}
	return "answer"
}

// CycleResult is what the orchestrator reports for one completed cycle.
type CycleResult struct {
	CycleID          string        `json:"cycle_id"`
	Answer           string        `json:"answer"`
	PendingApproval  bool          `json:"pending_approval"`
	Intent           string        `json:"intent"`
	ToolsUsed        []string      `json:"tools_used"`
	ProcessingTime   time.Duration `json:"processing_time"`
	PromptTokensUsed int64         `json:"prompt_tokens_used,omitempty"`
}
