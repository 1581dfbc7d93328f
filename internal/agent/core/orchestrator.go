package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/concierge/config"
	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
)

// Session is the conversation memory a caller owns and passes into each
// HandleMessage call. The raw transcript records everything; the approved
// log is the only context future cycles see, which is what lets a rejected
// answer stay visible without contaminating the model's context.
type Session interface {
	ID() string
	AutoApprove() bool
	Approved() []Turn
	RecordRaw(turn Turn)
	RecordPending(turns []Turn)
	CommitApproved(turns []Turn)
}

// Orchestrator drives one strictly sequential routing cycle per user
// message: planner, then tool steps in plan order, then synthesis. Tool
// steps both read and mutate the single shared state, so there are no
// parallel branches.
type Orchestrator struct {
	config      *config.Config
	logger      *log.Logger
	telemetry   *telemetry.Telemetry
	planner     *Planner
	agents      map[string]Agent
	synthesizer *SynthesisAgent
	llmProvider LLMProvider
}

var cycleTracer trace.Tracer = otel.Tracer("concierge/internal/agent/orchestrator")

// NewOrchestrator wires the planner, step executors and synthesizer.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry) (*Orchestrator, error) {
	llmProvider, err := NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	adapters, err := NewToolAdapters(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool adapters: %w", err)
	}

	return NewOrchestratorWith(cfg, logger, tele, llmProvider, adapters), nil
}

// NewOrchestratorWith assembles an orchestrator from explicit dependencies.
// Tests use it to inject stub providers and adapters.
func NewOrchestratorWith(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, llmProvider LLMProvider, adapters map[string]ToolAdapter) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	agents := map[string]Agent{
		ToolWeather: NewWeatherAgent(adapters[ToolWeather], tele),
		ToolStock:   NewStockAgent(adapters[ToolStock], tele),
	}
	return &Orchestrator{
		config:      cfg,
		logger:      logger,
		telemetry:   tele,
		planner:     NewPlanner(cfg, llmProvider, tele),
		agents:      agents,
		synthesizer: NewSynthesisAgent(cfg, llmProvider, tele),
		llmProvider: llmProvider,
	}
}

// LLM exposes the orchestrator's underlying LLM provider.
func (o *Orchestrator) LLM() LLMProvider {
	return o.llmProvider
}

// HandleMessage runs one complete cycle for a user message and returns the
// final answer. The cycle always terminates at synthesis; only reasoning
// service transport faults propagate as errors.
func (o *Orchestrator) HandleMessage(ctx context.Context, sess Session, userInput string) (CycleResult, error) {
	startTime := time.Now()
	cycleID := uuid.NewString()

	ctx, span := cycleTracer.Start(ctx, "assistant.cycle",
		trace.WithAttributes(
			attribute.String("cycle.id", cycleID),
			attribute.String("session.id", sess.ID()),
		))
	defer span.End()

	userTurn := Turn{ID: uuid.NewString(), Role: RoleUser, Content: userInput, CreatedAt: time.Now()}
	sess.RecordRaw(userTurn)

	approved := sess.Approved()
	seed := make([]Turn, 0, len(approved)+1)
	seed = append(seed, approved...)
	seed = append(seed, userTurn)

	autoApprove := sess.AutoApprove()
	state := &AgentState{
		Messages:    seed,
		ChatHistory: append([]Turn(nil), seed...),
		AutoApprove: autoApprove,
	}
	seedLen := len(state.ChatHistory)

	cycleEvent := telemetry.CycleEvent{ID: cycleID, StartTime: startTime}
	defer func() {
		cycleEvent.Duration = time.Since(startTime)
		if o.telemetry != nil {
			o.telemetry.RecordCycleEvent(ctx, cycleEvent)
		}
	}()

	// Phase 1: planning.
	planCtx, planSpan := cycleTracer.Start(ctx, "assistant.plan")
	if err := o.planner.Plan(planCtx, state); err != nil {
		planSpan.RecordError(err)
		planSpan.SetStatus(codes.Error, err.Error())
		planSpan.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cycleEvent.Error = err.Error()
		return CycleResult{}, fmt.Errorf("planning failed: %w", err)
	}
	planSpan.SetAttributes(attribute.StringSlice("plan.tools", state.PendingTools))
	planSpan.SetStatus(codes.Ok, "completed")
	planSpan.End()

	// Phase 2: tool steps, strictly in plan order. The plan only shrinks,
	// so the bound below cannot be hit by a well-behaved executor.
	var toolsUsed []string
	maxSteps := len(state.PendingTools) + 1
	for steps := 0; steps < maxSteps; steps++ {
		next := Route(state)
		if next == ToolQA {
			break
		}
		agent, ok := o.agents[next]
		if !ok {
			span.SetStatus(codes.Error, "no agent for step")
			return CycleResult{}, fmt.Errorf("no agent registered for step: %s", next)
		}

		stepCtx, stepSpan := cycleTracer.Start(ctx, "assistant.execute",
			trace.WithAttributes(attribute.String("step.tool", next)))
		if err := agent.Execute(stepCtx, state); err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			cycleEvent.Error = err.Error()
			return CycleResult{}, fmt.Errorf("step %s failed: %w", next, err)
		}
		stepSpan.SetStatus(codes.Ok, "completed")
		stepSpan.End()
		toolsUsed = append(toolsUsed, next)
	}

	// Phase 3: synthesis, entered exactly once, terminal.
	synthCtx, synthSpan := cycleTracer.Start(ctx, "assistant.synthesize")
	intent := ClassifyIntent(userInput)
	if err := o.synthesizer.Execute(synthCtx, state); err != nil {
		synthSpan.RecordError(err)
		synthSpan.SetStatus(codes.Error, err.Error())
		synthSpan.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cycleEvent.Error = err.Error()
		return CycleResult{}, fmt.Errorf("synthesis failed: %w", err)
	}
	synthSpan.SetStatus(codes.Ok, "completed")
	synthSpan.End()

	answerTurn := Turn{ID: uuid.NewString(), Role: RoleAssistant, Content: state.FinalAnswer, CreatedAt: time.Now()}
	sess.RecordRaw(answerTurn)

	// The turns synthesis appended beyond the seeded context are the
	// cycle's contribution to approved history: committed immediately in
	// auto mode, parked as pending otherwise.
	delta := state.ChatHistory[seedLen:]
	pendingApproval := false
	if len(delta) > 0 {
		if autoApprove {
			sess.CommitApproved(delta)
		} else if intent == IntentAnswer {
			sess.RecordPending(delta)
			pendingApproval = true
		} else {
			// Summaries are informational; they never carry the marker.
			sess.CommitApproved(delta)
		}
	}

	cycleEvent.Success = true
	cycleEvent.Intent = intent.String()
	cycleEvent.ToolsUsed = toolsUsed
	span.SetAttributes(
		attribute.String("cycle.intent", intent.String()),
		attribute.Int("cycle.tool_count", len(toolsUsed)),
		attribute.Bool("cycle.pending_approval", pendingApproval),
	)
	span.SetStatus(codes.Ok, "completed")
	o.logger.Printf("completed cycle %s (%s) in %v", cycleID, intent, time.Since(startTime))

	return CycleResult{
		CycleID:         cycleID,
		Answer:          state.FinalAnswer,
		PendingApproval: pendingApproval,
		Intent:          intent.String(),
		ToolsUsed:       toolsUsed,
		ProcessingTime:  time.Since(startTime),
	}, nil
}
