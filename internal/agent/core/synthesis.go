package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/concierge/config"
	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
)

// answerWindow bounds how much approved history the answer prompt carries.
const answerWindow = 6

// SynthesisAgent is the terminal qa_agent step. It produces the final
// answer from accumulated tool results and approved history, appends the
// outcome to ChatHistory, and clears the plan so the cycle stops.
type SynthesisAgent struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewSynthesisAgent creates the qa_agent.
func NewSynthesisAgent(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *SynthesisAgent {
	return &SynthesisAgent{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[QA] ", log.LstdFlags),
	}
}

func (a *SynthesisAgent) Name() string { return ToolQA }

// ClassifyIntent decides once, up front, which synthesis branch runs.
func ClassifyIntent(userInput string) Intent {
	lower := strings.ToLower(userInput)
	if strings.Contains(lower, "summarize") || strings.Contains(lower, "summary") {
		return IntentSummarize
	}
	return IntentAnswer
}

// Execute runs exactly one of the two branches and is terminal either way:
// FinalAnswer is set and PendingTools is cleared.
func (a *SynthesisAgent) Execute(ctx context.Context, state *AgentState) error {
	userInput := state.LatestUserInput()

	var err error
	switch ClassifyIntent(userInput) {
	case IntentSummarize:
		err = a.summarize(ctx, state)
	default:
		err = a.answer(ctx, state, userInput)
	}
	if err != nil {
		return err
	}
	state.PendingTools = nil
	return nil
}

// summarize condenses the approved history. Turns that themselves asked for
// a summary are filtered out so the summary does not feed on its own
// requests.
func (a *SynthesisAgent) summarize(ctx context.Context, state *AgentState) error {
	var filtered []Turn
	numUser, numBot := 0, 0
	for _, t := range state.ChatHistory {
		if strings.Contains(strings.ToLower(t.Content), "summarize") {
			continue
		}
		filtered = append(filtered, t)
		if t.Role == RoleUser {
			numUser++
		} else {
			numBot++
		}
	}

	if numUser < 1 || numBot < 1 {
		// Defined fallback, not an error; the reasoning service is not called.
		state.FinalAnswer = NotEnoughHistoryMsg
		state.ChatHistory = append(state.ChatHistory, Turn{Role: RoleAssistant, Content: NotEnoughHistoryMsg, CreatedAt: time.Now()})
		return nil
	}

	model := a.model(a.config.LLM.Routing.Summary)
	summary, err := a.llmProvider.Generate(ctx, buildSummaryPrompt(filtered), model, nil)
	if err != nil {
		return fmt.Errorf("summary generation failed: %w", err)
	}
	summary = strings.TrimSpace(summary)

	state.FinalAnswer = summary
	state.ChatHistory = append(state.ChatHistory, Turn{Role: RoleAssistant, Content: summary, CreatedAt: time.Now()})
	return nil
}

func (a *SynthesisAgent) answer(ctx context.Context, state *AgentState, userInput string) error {
	history := state.ChatHistory
	if len(history) > answerWindow {
		history = history[len(history)-answerWindow:]
	}
	prompt := buildAnswerPrompt(history, userInput, state.WeatherData, state.StockData)

	model := a.model(a.config.LLM.Routing.Synthesis)
	answer, err := a.llmProvider.Generate(ctx, prompt, model, nil)
	if err != nil {
		return fmt.Errorf("answer generation failed: %w", err)
	}
	answer = strings.TrimSpace(answer)

	if !state.AutoApprove {
		answer += ApprovalSuffix
	}

	now := time.Now()
	state.ChatHistory = append(state.ChatHistory,
		Turn{Role: RoleUser, Content: userInput, CreatedAt: now},
		Turn{Role: RoleAssistant, Content: answer, CreatedAt: now},
	)
	state.FinalAnswer = answer
	return nil
}

func (a *SynthesisAgent) model(preferred string) string {
	if preferred != "" {
		return preferred
	}
	if a.config.LLM.Routing.Synthesis != "" {
		return a.config.LLM.Routing.Synthesis
	}
	return a.config.LLM.Routing.Fallback
}
