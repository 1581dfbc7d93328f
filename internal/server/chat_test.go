package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/concierge/config"
	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/session/inmemory"
)

type scriptLLM struct {
	responses []string
}

func (s *scriptLLM) Generate(context.Context, string, string, map[string]interface{}) (string, error) {
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func (s *scriptLLM) GenerateWithTokens(ctx context.Context, prompt, model string, opts map[string]interface{}) (string, int64, int64, error) {
	out, err := s.Generate(ctx, prompt, model, opts)
	return out, 0, 0, err
}

type toolStub struct {
	name   string
	result string
}

func (a *toolStub) Name() string                          { return a.name }
func (a *toolStub) Invoke(context.Context, string) string { return a.result }

func newChatHandler(llm *scriptLLM) (*ChatHandler, *inmemory.Store) {
	cfg := &config.Config{
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			Planning: "m", Synthesis: "m", Summary: "m", Fallback: "m",
		}},
	}
	adapters := map[string]core.ToolAdapter{
		core.ToolWeather: &toolStub{name: core.ToolWeather, result: "22.0°C, Sunny"},
		core.ToolStock:   &toolStub{name: core.ToolStock, result: "Stock: AAPL (USD)\nCurrent price: $230.10"},
	}
	sessions := inmemory.NewStore()
	return &ChatHandler{
		Orch:     core.NewOrchestratorWith(cfg, nil, nil, llm, adapters),
		Sessions: sessions,
		TTL:      time.Hour,
		Logger:   log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}, sessions
}

func doChat(t *testing.T, h *ChatHandler, body string) ChatResponse {
	t.Helper()
	e := echo.New()
	ctx, rec := postJSON(e, "/api/chat", body)
	if err := h.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestChatHoldsAnswerForApproval(t *testing.T) {
	h, _ := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "Hello there."}})

	resp := doChat(t, h, `{"message":"hi"}`)
	if !resp.PendingApproval {
		t.Fatalf("expected pending approval")
	}
	if !strings.Contains(resp.Answer, core.ApprovalMarker) {
		t.Fatalf("answer lacks marker: %q", resp.Answer)
	}
	if resp.SessionID == "" || resp.CycleID == "" {
		t.Fatalf("missing ids: %+v", resp)
	}
}

func TestChatAutoApprove(t *testing.T) {
	h, sessions := newChatHandler(&scriptLLM{responses: []string{
		`["weather_agent", "qa_agent"]`,
		"Paris is sunny at 22 degrees.",
	}})

	resp := doChat(t, h, `{"message":"Weather in Paris?","auto_approve":true}`)
	if resp.PendingApproval {
		t.Fatalf("auto mode must not hold the answer")
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != core.ToolWeather {
		t.Fatalf("ToolsUsed = %v", resp.ToolsUsed)
	}

	sess, err := sessions.GetSession(resp.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Approved()) != 2 {
		t.Fatalf("approved length = %d", len(sess.Approved()))
	}
}

func TestChatRejectsWhileHeld(t *testing.T) {
	h, _ := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "First."}})

	resp := doChat(t, h, `{"message":"hi"}`)

	e := echo.New()
	ctx, _ := postJSON(e, "/api/chat", `{"message":"again","session_id":"`+resp.SessionID+`"}`)
	err := h.chat(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
}

func TestApproveCommitsCleanAnswer(t *testing.T) {
	h, sessions := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "Hello there."}})
	resp := doChat(t, h, `{"message":"hi"}`)

	e := echo.New()
	ctx, rec := postJSON(e, "/api/chat/approve", `{"session_id":"`+resp.SessionID+`"}`)
	if err := h.approve(ctx); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	sess, _ := sessions.GetSession(resp.SessionID)
	approved := sess.Approved()
	if len(approved) != 2 {
		t.Fatalf("approved length = %d", len(approved))
	}
	last := approved[len(approved)-1]
	if strings.Contains(last.Content, core.ApprovalMarker) {
		t.Fatalf("marker survived approval: %q", last.Content)
	}
	if last.Content != "Hello there." {
		t.Fatalf("approved answer = %q", last.Content)
	}
}

func TestApproveWithCorrection(t *testing.T) {
	h, sessions := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "Wrong answer."}})
	resp := doChat(t, h, `{"message":"hi"}`)

	e := echo.New()
	ctx, _ := postJSON(e, "/api/chat/approve",
		`{"session_id":"`+resp.SessionID+`","correction":"Right answer."}`)
	if err := h.approve(ctx); err != nil {
		t.Fatalf("approve: %v", err)
	}

	sess, _ := sessions.GetSession(resp.SessionID)
	approved := sess.Approved()
	if approved[len(approved)-1].Content != "Right answer." {
		t.Fatalf("approved answer = %q", approved[len(approved)-1].Content)
	}
}

func TestRejectDiscardsAnswer(t *testing.T) {
	h, sessions := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "Bad answer."}})
	resp := doChat(t, h, `{"message":"hi"}`)

	e := echo.New()
	ctx, _ := postJSON(e, "/api/chat/reject", `{"session_id":"`+resp.SessionID+`"}`)
	if err := h.reject(ctx); err != nil {
		t.Fatalf("reject: %v", err)
	}

	sess, _ := sessions.GetSession(resp.SessionID)
	if len(sess.Approved()) != 0 {
		t.Fatalf("rejected turns leaked into approved log")
	}
	// raw transcript keeps everything
	if len(sess.Raw()) != 2 {
		t.Fatalf("raw length = %d", len(sess.Raw()))
	}
}

func TestRejectWithoutPending(t *testing.T) {
	h, sessions := newChatHandler(&scriptLLM{})
	sess, _ := sessions.EnsureSession("", time.Hour)

	e := echo.New()
	ctx, _ := postJSON(e, "/api/chat/reject", `{"session_id":"`+sess.ID()+`"}`)
	err := h.reject(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	h, _ := newChatHandler(&scriptLLM{responses: []string{`["qa_agent"]`, "Hello."}})
	resp := doChat(t, h, `{"message":"hi"}`)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+resp.SessionID+"/transcript", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues(resp.SessionID)
	if err := h.transcript(ctx); err != nil {
		t.Fatalf("transcript: %v", err)
	}

	var tr TranscriptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tr.Turns) != 2 {
		t.Fatalf("turns = %d", len(tr.Turns))
	}
	if len(tr.Pending) != 2 {
		t.Fatalf("pending = %d", len(tr.Pending))
	}
}

func TestSearchEndpoint(t *testing.T) {
	h, _ := newChatHandler(&scriptLLM{responses: []string{
		`["qa_agent"]`,
		"Paris is sunny today.",
	}})
	resp := doChat(t, h, `{"message":"Weather in Paris?","auto_approve":true}`)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+resp.SessionID+"/search?q=sunny", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues(resp.SessionID)
	if err := h.search(ctx); err != nil {
		t.Fatalf("search: %v", err)
	}

	var sr SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sr.Hits) == 0 {
		t.Fatalf("no hits")
	}
}

func TestChatRequiresMessage(t *testing.T) {
	h, _ := newChatHandler(&scriptLLM{})
	e := echo.New()
	ctx, _ := postJSON(e, "/api/chat", `{"message":"  "}`)
	err := h.chat(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}
