// Package weather wraps the weatherapi.com lookup behind the assistant's
// never-failing tool contract: any fault comes back as an "Error: ..."
// string so synthesis can still acknowledge it.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/concierge/config"
)

type Client struct {
	cfg    config.WeatherToolConfig
	apiKey string
	http   *http.Client
}

func NewClient(cfg config.WeatherToolConfig, apiKey string) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// queryIntent is what the free-text query asks for.
type queryIntent int

const (
	intentCurrent queryIntent = iota
	intentForecast
	intentYesterday
	intentCompare
)

func detectIntent(q string) queryIntent {
	lower := strings.ToLower(q)
	switch {
	case strings.Contains(lower, "yesterday"):
		return intentYesterday
	case strings.Contains(lower, "forecast") || strings.Contains(lower, "next 7") || strings.Contains(lower, "7-day"):
		return intentForecast
	case strings.Contains(lower, "compare") || (strings.Contains(lower, " and ") && strings.Contains(lower, "weather")):
		return intentCompare
	default:
		return intentCurrent
	}
}

var cityPattern = regexp.MustCompile(`[A-Z][a-z]+(?:\s[A-Z][a-z]+)*`)

// leading question words and weather vocabulary the naive extractor must
// not mistake for city names
var cityStopwords = map[string]bool{
	"What": true, "Whats": true, "Is": true, "The": true, "How": true,
	"Tell": true, "Give": true, "Show": true, "Compare": true,
	"Weather": true, "Temperature": true, "Forecast": true, "Yesterday": true,
}

// extractCities pulls capitalized tokens out of the raw query. It is a
// simple heuristic, not a geocoder; the upstream API resolves whatever
// survives the filter.
func extractCities(q string) []string {
	matches := cityPattern.FindAllString(q, -1)
	seen := make(map[string]bool, len(matches))
	var cities []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" || cityStopwords[m] || seen[m] {
			continue
		}
		seen[m] = true
		cities = append(cities, m)
	}
	if len(cities) == 0 {
		cities = []string{strings.TrimSpace(q)}
	}
	return cities
}

// Lookup resolves the query to one of the supported intents and fetches the
// matching weather data. Never returns a raised fault; a single failed
// attempt yields an error string.
func (c *Client) Lookup(ctx context.Context, query string) string {
	if c.apiKey == "" {
		return "Error: weather API key not configured"
	}

	intent := detectIntent(query)
	cities := extractCities(query)

	switch intent {
	case intentCompare:
		if len(cities) >= 2 {
			return c.compare(ctx, cities[:2])
		}
		return c.current(ctx, cities[0])
	case intentYesterday:
		return c.yesterday(ctx, cities[0])
	case intentForecast:
		return c.forecast(ctx, cities[0])
	default:
		return c.current(ctx, cities[0])
	}
}

type currentResponse struct {
	Current struct {
		TempC     float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

type forecastResponse struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				AvgTempC  float64 `json:"avgtemp_c"`
				Condition struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (c *Client) current(ctx context.Context, city string) string {
	var data currentResponse
	if err := c.get(ctx, fmt.Sprintf("%s/current.json?key=%s&q=%s", c.endpoint(), c.apiKey, url.QueryEscape(city)), &data); err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("%.1f°C, %s", data.Current.TempC, data.Current.Condition.Text)
}

func (c *Client) compare(ctx context.Context, cities []string) string {
	lines := make([]string, 0, len(cities))
	for _, city := range cities {
		var data currentResponse
		if err := c.get(ctx, fmt.Sprintf("%s/current.json?key=%s&q=%s", c.endpoint(), c.apiKey, url.QueryEscape(city)), &data); err != nil {
			return "Error: " + err.Error()
		}
		lines = append(lines, fmt.Sprintf("%s: %.1f°C, %s", city, data.Current.TempC, data.Current.Condition.Text))
	}
	return "City comparison:\n" + strings.Join(lines, "\n")
}

func (c *Client) yesterday(ctx context.Context, city string) string {
	yday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	var data forecastResponse
	if err := c.get(ctx, fmt.Sprintf("%s/history.json?key=%s&q=%s&dt=%s", c.endpoint(), c.apiKey, url.QueryEscape(city), yday), &data); err != nil {
		return "Error: " + err.Error()
	}
	if len(data.Forecast.ForecastDay) == 0 {
		return fmt.Sprintf("Error: no historical data for %s", city)
	}
	day := data.Forecast.ForecastDay[0]
	return fmt.Sprintf("Yesterday's weather in %s (%s): %.1f°C, %s", city, yday, day.Day.AvgTempC, day.Day.Condition.Text)
}

func (c *Client) forecast(ctx context.Context, city string) string {
	var data forecastResponse
	if err := c.get(ctx, fmt.Sprintf("%s/forecast.json?key=%s&q=%s&days=7", c.endpoint(), c.apiKey, url.QueryEscape(city)), &data); err != nil {
		return "Error: " + err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "7-day forecast for %s:\n", city)
	for _, day := range data.Forecast.ForecastDay {
		label := day.Date
		if t, err := time.Parse("2006-01-02", day.Date); err == nil {
			label = t.Format("Mon, 02 Jan 2006")
		}
		fmt.Fprintf(&b, "%s: %.1f°C\n", label, day.Day.AvgTempC)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather API returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) endpoint() string {
	if c.cfg.Endpoint != "" {
		return strings.TrimRight(c.cfg.Endpoint, "/")
	}
	return "http://api.weatherapi.com/v1"
}
