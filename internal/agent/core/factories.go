package core

import (
	"context"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/concierge/config"
	"github.com/mohammad-safakhou/concierge/internal/tools/stock"
	"github.com/mohammad-safakhou/concierge/internal/tools/weather"
)

// NewLLMProvider creates a new LLM provider based on configuration
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		case "anthropic":
			return NewAnthropicProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}

	return nil, fmt.Errorf("no valid LLM providers found")
}

// NewToolAdapters builds the adapters for every tool identifier the planner
// can select (synthesis excluded; it is not a lookup).
func NewToolAdapters(cfg config.ToolsConfig) (map[string]ToolAdapter, error) {
	weatherAPIKey := cfg.Weather.APIKey
	if weatherAPIKey == "" {
		weatherAPIKey = os.Getenv("WEATHER_API_KEY")
	}

	return map[string]ToolAdapter{
		ToolWeather: &namedAdapter{name: ToolWeather, lookup: weather.NewClient(cfg.Weather, weatherAPIKey)},
		ToolStock:   &namedAdapter{name: ToolStock, lookup: stock.NewClient(cfg.Stock)},
	}, nil
}

// lookupFunc is the contract both tool clients satisfy.
type lookupFunc interface {
	Lookup(ctx context.Context, query string) string
}

type namedAdapter struct {
	name   string
	lookup lookupFunc
}

func (a *namedAdapter) Name() string { return a.name }

func (a *namedAdapter) Invoke(ctx context.Context, query string) string {
	return a.lookup.Lookup(ctx, query)
}
