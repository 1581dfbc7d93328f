package core

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/concierge/config"
)

// scriptLLM replays canned responses in call order.
type scriptLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (s *scriptLLM) Generate(_ context.Context, prompt string, _ string, _ map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.prompts = append(s.prompts, prompt)
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func (s *scriptLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	out, err := s.Generate(ctx, prompt, model, options)
	return out, 0, 0, err
}

// fixedAdapter returns the same payload for every query.
type fixedAdapter struct {
	name    string
	result  string
	queries []string
}

func (a *fixedAdapter) Name() string { return a.name }

func (a *fixedAdapter) Invoke(_ context.Context, query string) string {
	a.queries = append(a.queries, query)
	return a.result
}

// memSession is a minimal Session for orchestrator tests.
type memSession struct {
	id       string
	auto     bool
	raw      []Turn
	approved []Turn
	pending  []Turn
}

func (s *memSession) ID() string                  { return s.id }
func (s *memSession) AutoApprove() bool           { return s.auto }
func (s *memSession) Approved() []Turn            { return append([]Turn(nil), s.approved...) }
func (s *memSession) RecordRaw(turn Turn)         { s.raw = append(s.raw, turn) }
func (s *memSession) RecordPending(turns []Turn)  { s.pending = append([]Turn(nil), turns...) }
func (s *memSession) CommitApproved(turns []Turn) { s.approved = append(s.approved, turns...) }

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Planning:  "test-model",
				Synthesis: "test-model",
				Summary:   "test-model",
				Fallback:  "test-model",
			},
		},
	}
}
