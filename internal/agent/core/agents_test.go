package core

import (
	"context"
	"testing"
)

func TestWeatherAgentAssignsAndPops(t *testing.T) {
	adapter := &fixedAdapter{name: ToolWeather, result: "22.0°C, Sunny"}
	agent := NewWeatherAgent(adapter, nil)

	state := &AgentState{
		Messages:     []Turn{{Role: RoleUser, Content: "Weather in Paris?"}},
		PendingTools: []string{ToolWeather, ToolQA},
	}
	if err := agent.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.WeatherData != "22.0°C, Sunny" {
		t.Fatalf("WeatherData = %q", state.WeatherData)
	}
	if len(state.PendingTools) != 1 || state.PendingTools[0] != ToolQA {
		t.Fatalf("plan after step = %v", state.PendingTools)
	}
	if len(adapter.queries) != 1 || adapter.queries[0] != "Weather in Paris?" {
		t.Fatalf("adapter queries = %v", adapter.queries)
	}
}

func TestStockAgentAssignsStockData(t *testing.T) {
	adapter := &fixedAdapter{name: ToolStock, result: "Stock: AAPL (NASDAQ)\nCurrent price: $230.10"}
	agent := NewStockAgent(adapter, nil)

	state := &AgentState{
		Messages:     []Turn{{Role: RoleUser, Content: "stock price for Apple"}},
		PendingTools: []string{ToolStock, ToolQA},
	}
	if err := agent.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.StockData == "" || state.WeatherData != "" {
		t.Fatalf("wrong slot: weather=%q stock=%q", state.WeatherData, state.StockData)
	}
}

func TestDuplicateToolPopsOneOccurrence(t *testing.T) {
	adapter := &fixedAdapter{name: ToolWeather, result: "ok"}
	agent := NewWeatherAgent(adapter, nil)

	state := &AgentState{
		Messages:     []Turn{{Role: RoleUser, Content: "compare"}},
		PendingTools: []string{ToolWeather, ToolWeather, ToolQA},
	}
	if err := agent.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(state.PendingTools) != 2 || state.PendingTools[0] != ToolWeather {
		t.Fatalf("plan after step = %v", state.PendingTools)
	}
}

func TestToolErrorStillCompletesStep(t *testing.T) {
	adapter := &fixedAdapter{name: ToolWeather, result: "Error: weather API key not configured"}
	agent := NewWeatherAgent(adapter, nil)

	state := &AgentState{
		Messages:     []Turn{{Role: RoleUser, Content: "Weather in Paris?"}},
		PendingTools: []string{ToolWeather, ToolQA},
	}
	if err := agent.Execute(context.Background(), state); err != nil {
		t.Fatalf("tool error must not abort the step: %v", err)
	}
	if !IsToolError(state.WeatherData) {
		t.Fatalf("expected error-shaped payload, got %q", state.WeatherData)
	}
	if len(state.PendingTools) != 1 {
		t.Fatalf("plan after failed step = %v", state.PendingTools)
	}
}

func TestIsToolError(t *testing.T) {
	if !IsToolError("Error: boom") {
		t.Fatalf("expected Error: prefix to be detected")
	}
	if IsToolError("22.0°C, Sunny") {
		t.Fatalf("data misclassified as error")
	}
}
