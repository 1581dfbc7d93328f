package core

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
)

// IsToolError reports whether a tool result is the adapters' error-shaped
// payload rather than real data.
func IsToolError(result string) bool {
	return strings.HasPrefix(result, "Error:")
}

// stepAgent is a tool step executor: it reads the latest user message,
// invokes its bound adapter, writes the result into the shared state via
// assign, and pops itself off the front of the remaining plan. The only
// side effect is the adapter's network call.
type stepAgent struct {
	name      string
	adapter   ToolAdapter
	assign    func(state *AgentState, result string)
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func (a *stepAgent) Name() string { return a.name }

func (a *stepAgent) Execute(ctx context.Context, state *AgentState) error {
	startTime := time.Now()
	result := a.adapter.Invoke(ctx, state.LatestUserInput())
	a.assign(state, result)
	popTool(state, a.name)

	if a.telemetry != nil {
		a.telemetry.RecordToolEvent(ctx, telemetry.ToolEvent{
			Tool:     a.name,
			Duration: time.Since(startTime),
			Failed:   IsToolError(result),
		})
	}
	a.logger.Printf("%s completed in %v", a.name, time.Since(startTime))
	return nil
}

// popTool removes the first occurrence of name from the front of the plan.
// The executor layer does no reordering or deduplication; a malformed plan
// with a duplicate simply runs that tool twice.
func popTool(state *AgentState, name string) {
	if len(state.PendingTools) > 0 && state.PendingTools[0] == name {
		state.PendingTools = state.PendingTools[1:]
	}
}

// NewWeatherAgent builds the weather_agent step executor.
func NewWeatherAgent(adapter ToolAdapter, tele *telemetry.Telemetry) Agent {
	return &stepAgent{
		name:      ToolWeather,
		adapter:   adapter,
		assign:    func(state *AgentState, result string) { state.WeatherData = result },
		telemetry: tele,
		logger:    log.New(log.Writer(), "[WEATHER] ", log.LstdFlags),
	}
}

// NewStockAgent builds the stock_agent step executor.
func NewStockAgent(adapter ToolAdapter, tele *telemetry.Telemetry) Agent {
	return &stepAgent{
		name:      ToolStock,
		adapter:   adapter,
		assign:    func(state *AgentState, result string) { state.StockData = result },
		telemetry: tele,
		logger:    log.New(log.Writer(), "[STOCK] ", log.LstdFlags),
	}
}
