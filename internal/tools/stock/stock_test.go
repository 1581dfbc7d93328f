package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/concierge/config"
)

func TestExtractSearchTerm(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"What is the stock price for Apple?", "apple"},
		{"price for Reliance Industries", "reliance industries"},
		{"stock of Tesla!", "tesla"},
		{"AAPL", "AAPL"},
	}
	for _, tc := range cases {
		if got := extractSearchTerm(tc.query); got != tc.want {
			t.Fatalf("extractSearchTerm(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func newTestClient(t *testing.T, searchBody, quoteBody string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Mozilla/5.0" {
			t.Fatalf("missing browser user agent")
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/search"):
			w.Write([]byte(searchBody))
		case strings.HasPrefix(r.URL.Path, "/quote"):
			w.Write([]byte(quoteBody))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	c := NewClient(config.StockToolConfig{
		SearchEndpoint: srv.URL + "/search",
		QuoteEndpoint:  srv.URL + "/quote",
	})
	return c, srv
}

func TestLookupQuote(t *testing.T) {
	c, srv := newTestClient(t,
		`{"quotes":[{"symbol":"AAPL"}]}`,
		`{"quoteResponse":{"result":[{"regularMarketPrice":230.10,"currency":"USD"}]}}`)
	defer srv.Close()

	got := c.Lookup(context.Background(), "stock price for Apple")
	want := "Stock: AAPL (USD)\nCurrent price: $230.10"
	if got != want {
		t.Fatalf("Lookup = %q, want %q", got, want)
	}
}

func TestLookupPrefersIndianListings(t *testing.T) {
	c, srv := newTestClient(t,
		`{"quotes":[{"symbol":"RELI"},{"symbol":"RELIANCE.NS"}]}`,
		`{"quoteResponse":{"result":[{"regularMarketPrice":2950.55,"currency":"INR"}]}}`)
	defer srv.Close()

	got := c.Lookup(context.Background(), "price for Reliance Industries")
	want := "Stock: RELIANCE.NS (INR)\nCurrent price: ₹2950.55"
	if got != want {
		t.Fatalf("Lookup = %q, want %q", got, want)
	}
}

func TestLookupNoMatch(t *testing.T) {
	c, srv := newTestClient(t, `{"quotes":[]}`, `{}`)
	defer srv.Close()

	got := c.Lookup(context.Background(), "price for Frobnicate Corp")
	if !strings.HasPrefix(got, "Error: no matching stock symbol found") {
		t.Fatalf("Lookup = %q", got)
	}
}

func TestLookupMissingPrice(t *testing.T) {
	c, srv := newTestClient(t,
		`{"quotes":[{"symbol":"GHST"}]}`,
		`{"quoteResponse":{"result":[{"regularMarketPrice":0,"currency":"USD"}]}}`)
	defer srv.Close()

	got := c.Lookup(context.Background(), "price for Ghost")
	if !strings.HasPrefix(got, "Error: price not available") {
		t.Fatalf("Lookup = %q", got)
	}
}

func TestLookupUpstreamFailureBecomesErrorString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.StockToolConfig{
		SearchEndpoint: srv.URL + "/search",
		QuoteEndpoint:  srv.URL + "/quote",
	})
	got := c.Lookup(context.Background(), "price for Apple")
	if !strings.HasPrefix(got, "Error:") {
		t.Fatalf("Lookup = %q, want Error: prefix", got)
	}
}

func TestLookupMissingCurrencyDefaultsToUSD(t *testing.T) {
	c, srv := newTestClient(t,
		`{"quotes":[{"symbol":"MSFT"}]}`,
		`{"quoteResponse":{"result":[{"regularMarketPrice":410.25}]}}`)
	defer srv.Close()

	got := c.Lookup(context.Background(), "price for Microsoft")
	want := "Stock: MSFT (USD)\nCurrent price: $410.25"
	if got != want {
		t.Fatalf("Lookup = %q, want %q", got, want)
	}
}
