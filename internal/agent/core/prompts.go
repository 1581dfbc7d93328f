package core

import (
	"fmt"
	"strings"
)

// planningPromptTemplate asks the model for nothing but a JSON array of tool
// identifiers. The example line matters: models echo its shape.
const planningPromptTemplate = `You are a tool selector for a multi-agent assistant.

Your job is to return ONLY a JSON array of tool names to use, in execution order. Do NOT explain, comment, or add anything else.

Available tools:
- "weather_agent": for weather, temperature, or forecast-related queries
- "stock_agent": for stock prices, company tickers, or market-related questions
- "qa_agent": always include this LAST for synthesizing the final answer

Recent conversation:
%s

Respond with a JSON array of tool names. Example:
["weather_agent", "stock_agent", "qa_agent"]
`

const summaryPromptTemplate = `You are a helpful assistant. Summarize the following conversation:

%s

Write a clear and concise summary.`

// RenderTranscript formats turns the way all prompts expect them.
func RenderTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		label := "Bot"
		if t.Role == RoleUser {
			label = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, t.Content))
	}
	return strings.Join(lines, "\n")
}

func buildPlanningPrompt(recent []Turn) string {
	return fmt.Sprintf(planningPromptTemplate, RenderTranscript(recent))
}

func buildSummaryPrompt(turns []Turn) string {
	return fmt.Sprintf(summaryPromptTemplate, RenderTranscript(turns))
}

func buildAnswerPrompt(history []Turn, userInput, weatherData, stockData string) string {
	var context strings.Builder
	if weatherData != "" {
		context.WriteString(fmt.Sprintf("\n**Weather Info:**\n%s\n", weatherData))
	}
	if stockData != "" {
		context.WriteString(fmt.Sprintf("\n**Stock Info:**\n%s\n", stockData))
	}
	return fmt.Sprintf(
		"You are a helpful assistant. Use the conversation below to answer the latest user query.\n\n%s\n\nUser's latest message: %q\n%s\n\nKeep it concise.",
		RenderTranscript(history), userInput, strings.TrimSpace(context.String()))
}
