package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testOrchestrator(llm *scriptLLM, weather, stock string) *Orchestrator {
	adapters := map[string]ToolAdapter{
		ToolWeather: &fixedAdapter{name: ToolWeather, result: weather},
		ToolStock:   &fixedAdapter{name: ToolStock, result: stock},
	}
	return NewOrchestratorWith(testConfig(), nil, nil, llm, adapters)
}

func TestHandleMessageFullCycle(t *testing.T) {
	llm := &scriptLLM{responses: []string{
		`["weather_agent", "stock_agent", "qa_agent"]`,
		"Paris is sunny and Apple trades at $230.10.",
	}}
	orch := testOrchestrator(llm, "22.0°C, Sunny", "Stock: AAPL (NASDAQ)\nCurrent price: $230.10")
	sess := &memSession{id: "s1", auto: true}

	result, err := orch.HandleMessage(context.Background(), sess, "Weather in Paris and the Apple stock price?")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if want := []string{ToolWeather, ToolStock}; !reflect.DeepEqual(result.ToolsUsed, want) {
		t.Fatalf("ToolsUsed = %v, want %v", result.ToolsUsed, want)
	}
	if result.PendingApproval {
		t.Fatalf("auto mode must not hold the answer")
	}
	if result.Intent != "answer" {
		t.Fatalf("Intent = %q", result.Intent)
	}
	if strings.Contains(result.Answer, ApprovalMarker) {
		t.Fatalf("auto-approved answer carries marker: %q", result.Answer)
	}
	if len(sess.raw) != 2 {
		t.Fatalf("raw transcript length = %d, want 2", len(sess.raw))
	}
	if len(sess.approved) != 2 {
		t.Fatalf("approved log length = %d, want 2", len(sess.approved))
	}
	if len(sess.pending) != 0 {
		t.Fatalf("nothing should be pending in auto mode")
	}
}

func TestHandleMessageHoldsAnswerForApproval(t *testing.T) {
	llm := &scriptLLM{responses: []string{
		`["qa_agent"]`,
		"Hello there.",
	}}
	orch := testOrchestrator(llm, "", "")
	sess := &memSession{id: "s2", auto: false}

	result, err := orch.HandleMessage(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !result.PendingApproval {
		t.Fatalf("expected pending approval")
	}
	if !strings.Contains(result.Answer, ApprovalMarker) {
		t.Fatalf("held answer lacks marker: %q", result.Answer)
	}
	if len(sess.approved) != 0 {
		t.Fatalf("held turns leaked into approved log: %v", sess.approved)
	}
	if len(sess.pending) != 2 {
		t.Fatalf("pending length = %d, want 2", len(sess.pending))
	}
	// raw transcript records everything regardless of approval
	if len(sess.raw) != 2 {
		t.Fatalf("raw transcript length = %d, want 2", len(sess.raw))
	}
}

func TestHandleMessageSummaryCommitsDirectly(t *testing.T) {
	llm := &scriptLLM{responses: []string{
		`["qa_agent"]`,
		"You asked about Paris weather; it was sunny.",
	}}
	orch := testOrchestrator(llm, "", "")
	sess := &memSession{id: "s3", auto: false, approved: []Turn{
		{Role: RoleUser, Content: "Weather in Paris?"},
		{Role: RoleAssistant, Content: "Sunny, 22°C."},
	}}

	result, err := orch.HandleMessage(context.Background(), sess, "summarize our chat")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if result.PendingApproval {
		t.Fatalf("summaries must not await approval")
	}
	if result.Intent != "summarize" {
		t.Fatalf("Intent = %q", result.Intent)
	}
	if strings.Contains(result.Answer, ApprovalMarker) {
		t.Fatalf("summary carries marker: %q", result.Answer)
	}
	if len(sess.pending) != 0 {
		t.Fatalf("summary parked as pending")
	}
	if len(sess.approved) != 3 {
		t.Fatalf("approved log length = %d, want 3", len(sess.approved))
	}
}

func TestHandleMessageToolFailureCompletesCycle(t *testing.T) {
	llm := &scriptLLM{responses: []string{
		`["weather_agent", "qa_agent"]`,
		"I could not reach the weather service.",
	}}
	orch := testOrchestrator(llm, "Error: weather API key not configured", "")
	sess := &memSession{id: "s4", auto: true}

	result, err := orch.HandleMessage(context.Background(), sess, "Weather in Paris?")
	if err != nil {
		t.Fatalf("a failed tool must not abort the cycle: %v", err)
	}
	if want := []string{ToolWeather}; !reflect.DeepEqual(result.ToolsUsed, want) {
		t.Fatalf("ToolsUsed = %v", result.ToolsUsed)
	}
	if result.Answer == "" {
		t.Fatalf("no answer produced")
	}
}

func TestHandleMessagePlannerFaultPropagates(t *testing.T) {
	llm := &scriptLLM{err: errors.New("gateway timeout")}
	orch := testOrchestrator(llm, "", "")
	sess := &memSession{id: "s5", auto: true}

	if _, err := orch.HandleMessage(context.Background(), sess, "hi"); err == nil {
		t.Fatalf("expected planner transport fault to propagate")
	}
	// the user turn was already recorded before the fault
	if len(sess.raw) != 1 {
		t.Fatalf("raw transcript length = %d, want 1", len(sess.raw))
	}
	if len(sess.approved) != 0 || len(sess.pending) != 0 {
		t.Fatalf("failed cycle must not touch approved or pending logs")
	}
}

func TestHandleMessageSeedsContextFromApprovedOnly(t *testing.T) {
	llm := &scriptLLM{responses: []string{
		`["qa_agent"]`,
		"Your name is Ada.",
	}}
	orch := testOrchestrator(llm, "", "")
	sess := &memSession{id: "s6", auto: true, approved: []Turn{
		{Role: RoleUser, Content: "My name is Ada."},
		{Role: RoleAssistant, Content: "Nice to meet you, Ada."},
	}}
	// a rejected answer lives only in raw; it must not reach the prompt
	sess.raw = append(sess.raw, Turn{Role: RoleAssistant, Content: "Your name is Bob."})

	if _, err := orch.HandleMessage(context.Background(), sess, "What's my name?"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	answerPrompt := llm.prompts[len(llm.prompts)-1]
	if !strings.Contains(answerPrompt, "My name is Ada.") {
		t.Fatalf("approved history missing from prompt")
	}
	if strings.Contains(answerPrompt, "Your name is Bob.") {
		t.Fatalf("rejected turn leaked into the prompt")
	}
}
