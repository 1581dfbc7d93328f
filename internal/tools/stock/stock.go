// Package stock wraps Yahoo Finance symbol search and quoting behind the
// assistant's never-failing tool contract.
package stock

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
	cfg  config.StockToolConfig
	http *http.Client
}

func NewClient(cfg config.StockToolConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

var companyPattern = regexp.MustCompile(`(?:price for|stock price for|stock of)\s+(.+)`)

// extractSearchTerm pulls the company name out of a natural-language query,
// falling back to the whole query when no known phrasing matches.
func extractSearchTerm(query string) string {
	if m := companyPattern.FindStringSubmatch(strings.ToLower(query)); m != nil {
		return strings.TrimRight(strings.TrimSpace(m[1]), "?.!")
	}
	return strings.TrimSpace(query)
}

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
}

// Lookup searches Yahoo Finance for a matching symbol (preferring NSE/BSE
// listings) and fetches its latest market price. Single attempt; any fault
// yields an error string.
func (c *Client) Lookup(ctx context.Context, query string) string {
	term := extractSearchTerm(query)

	symbol, err := c.search(ctx, term)
	if err != nil {
		return "Error: " + err.Error()
	}
	if symbol == "" {
		return fmt.Sprintf("Error: no matching stock symbol found for %q", term)
	}

	price, currency, err := c.quote(ctx, symbol)
	if err != nil {
		return "Error: " + err.Error()
	}
	if price == 0 {
		return fmt.Sprintf("Error: price not available for %q", symbol)
	}

	return fmt.Sprintf("Stock: %s (%s)\nCurrent price: %s%.2f", symbol, currency, currencySymbols[currency], price)
}

func (c *Client) search(ctx context.Context, term string) (string, error) {
	endpoint := c.cfg.SearchEndpoint
	if endpoint == "" {
		endpoint = "https://query1.finance.yahoo.com/v1/finance/search"
	}

	var data struct {
		Quotes []struct {
			Symbol string `json:"symbol"`
		} `json:"quotes"`
	}
	if err := c.get(ctx, endpoint+"?q="+url.QueryEscape(term), &data); err != nil {
		return "", err
	}
	if len(data.Quotes) == 0 {
		return "", nil
	}

	// Prefer Indian NSE/BSE listings.
	for _, q := range data.Quotes {
		if strings.HasSuffix(q.Symbol, ".NS") || strings.HasSuffix(q.Symbol, ".BO") {
			return q.Symbol, nil
		}
	}
	return data.Quotes[0].Symbol, nil
}

func (c *Client) quote(ctx context.Context, symbol string) (float64, string, error) {
	endpoint := c.cfg.QuoteEndpoint
	if endpoint == "" {
		endpoint = "https://query1.finance.yahoo.com/v7/finance/quote"
	}

	var data struct {
		QuoteResponse struct {
			Result []struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Currency           string  `json:"currency"`
			} `json:"result"`
		} `json:"quoteResponse"`
	}
	if err := c.get(ctx, endpoint+"?symbols="+url.QueryEscape(symbol), &data); err != nil {
		return 0, "", err
	}
	if len(data.QuoteResponse.Result) == 0 {
		return 0, "", fmt.Errorf("no quote data for %q", symbol)
	}
	r := data.QuoteResponse.Result[0]
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return r.RegularMarketPrice, currency, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	// Yahoo rejects requests without a browser-looking agent.
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stock API returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
