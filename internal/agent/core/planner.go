package core

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mohammad-safakhou/concierge/config"
	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
)

// plannerWindow bounds how much recent conversation the planner sees.
const plannerWindow = 4

// Planner asks the reasoning service which tools a cycle needs and turns
// the raw response into a well-formed plan. It never fails outward: any
// malformed output degrades to the fallback plan [qa_agent].
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan writes PendingTools on the shared state. No other state is mutated.
func (p *Planner) Plan(ctx context.Context, state *AgentState) error {
	startTime := time.Now()

	recent := state.Messages
	if len(recent) > plannerWindow {
		recent = recent[len(recent)-plannerWindow:]
	}
	prompt := buildPlanningPrompt(recent)

	model := p.config.LLM.Routing.Planning
	if model == "" {
		model = p.config.LLM.Routing.Fallback
	}

	raw, err := p.llmProvider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0, // deterministic-ish tool selection
		"max_tokens":  100,
	})
	if err != nil {
		// Reasoning-service transport faults are fatal for the cycle;
		// only malformed output is absorbed.
		return err
	}

	plan, degraded := p.sanitizePlan(raw)
	state.PendingTools = plan

	if p.telemetry != nil {
		p.telemetry.RecordPlanEvent(ctx, telemetry.PlanEvent{
			Tools:    plan,
			Fallback: degraded,
			Duration: time.Since(startTime),
		})
	}
	p.logger.Printf("planned %v in %v", plan, time.Since(startTime))
	return nil
}

// sanitizePlan validates the raw model response against the closed tool
// vocabulary. Any violation (no array, non-string elements, unknown
// identifiers) falls back to [qa_agent]. qa_agent is normalized to appear
// exactly once, last; duplicates of other tools are preserved in order.
func (p *Planner) sanitizePlan(raw string) (plan []string, degraded bool) {
	fallback := []string{ToolQA}

	payload, err := ExtractJSONArray(raw)
	if err != nil {
		p.logger.Printf("falling back to default plan: %v", err)
		return fallback, true
	}

	var tools []string
	if err := json.Unmarshal([]byte(payload), &tools); err != nil {
		p.logger.Printf("falling back to default plan: %v", err)
		return fallback, true
	}

	plan = make([]string, 0, len(tools)+1)
	for _, t := range tools {
		if !KnownTools[t] {
			p.logger.Printf("unknown tool %q in plan, falling back to default plan", t)
			return fallback, true
		}
		if t == ToolQA {
			continue // re-appended last, exactly once
		}
		plan = append(plan, t)
	}
	return append(plan, ToolQA), false
}
