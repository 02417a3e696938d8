package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://eodhd.com/api"

const dateLayout = "2006-01-02"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=eodhd_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the EODHD market data API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers sent with each request.
	header http.Header
	// query contains query parameters sent with each request (token, format).
	query url.Values
	// limiter optionally gates every request.
	limiter *TokenBucket
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithLimiter gates every request on a token bucket, respecting the
// provider's request quota.
func WithLimiter(tb *TokenBucket) Option {
	return func(c *Client) {
		c.limiter = tb
	}
}

// NewClient creates a new EODHD API client.
func NewClient(token string, options ...Option) (*Client, error) {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if token != "" {
		c.query.Set("api_token", token)
	}
	c.query.Set("fmt", "json")
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Bar is one end-of-day trading record.
type Bar struct {
	Date   string          `json:"date"` // YYYY-MM-DD, exchange trading date
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// RealTimeQuote is the delayed real-time snapshot for one symbol.
type RealTimeQuote struct {
	Code      string          `json:"code"`
	Timestamp int64           `json:"timestamp"` // epoch seconds
	Close     decimal.Decimal `json:"close"`
}

// Dividend is one historical payout.
type Dividend struct {
	Date  string          `json:"date"` // YYYY-MM-DD
	Value decimal.Decimal `json:"value"`
}

// DailyBars returns end-of-day records for symbol between from and to
// inclusive, oldest first.
func (c *Client) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(dateLayout))
	q.Set("to", to.UTC().Format(dateLayout))
	q.Set("period", "d")
	var bars []Bar
	if err := c.get(ctx, "/eod/"+url.PathEscape(symbol), q, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// RealTime returns the latest (possibly delayed) quote for symbol.
func (c *Client) RealTime(ctx context.Context, symbol string) (RealTimeQuote, error) {
	var q RealTimeQuote
	if err := c.get(ctx, "/real-time/"+url.PathEscape(symbol), nil, &q); err != nil {
		return RealTimeQuote{}, err
	}
	return q, nil
}

// Dividends returns payouts for symbol from the given date onward.
func (c *Client) Dividends(ctx context.Context, symbol string, from time.Time) ([]Dividend, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(dateLayout))
	var rows []Dividend
	if err := c.get(ctx, "/div/"+url.PathEscape(symbol), q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, path string, extra url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	query := url.Values{}
	for k, vs := range c.query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("GET %s: unauthorized", path)

	case http.StatusTooManyRequests:
		return fmt.Errorf("GET %s: rate limited", path)

	default:
		return fmt.Errorf("GET %s: unexpected status code %d", path, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
