package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// Yahoo does not document a limit; two requests per second has never been throttled.
	defaultRatePerSec = 2
	defaultUserAgent  = "Mozilla/5.0 (compatible; optionlab/1.0)"

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// YahooClient fetches daily bars from the Yahoo Finance chart API with rate
// limiting, retries and a circuit breaker around each fetch.
type YahooClient struct {
	http      *http.Client
	base      string
	userAgent string
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	retryWait time.Duration
}

// Option customizes a YahooClient.
type Option func(*YahooClient)

// WithRate overrides the request rate (requests per second).
func WithRate(perSec float64) Option {
	return func(c *YahooClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithRetryWait overrides the base backoff between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *YahooClient) { c.retryWait = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *YahooClient) { c.http = h }
}

// NewYahooClient creates a client. An empty base uses the production URL.
func NewYahooClient(base string, opts ...Option) *YahooClient {
	if base == "" {
		base = DefaultBaseURL
	}
	c := &YahooClient{
		http:      &http.Client{Timeout: 15 * time.Second},
		base:      base,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(defaultRatePerSec, 1),
		retryWait: baseRetryWait,
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo-chart",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// a symbol without data is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// FetchBars implements ports.BarProvider.
func (c *YahooClient) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	from, to = domain.Day(from), domain.Day(to)
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	q.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.base, url.PathEscape(symbol), q.Encode())

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp chartResponse
		if err := c.get(ctx, u, &resp); err != nil {
			return nil, err
		}
		return parseChart(resp, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("marketdata.FetchBars %s: %w", symbol, err)
	}
	bars := out.([]domain.Bar)
	slog.Debug("fetched bars", "symbol", symbol, "from", from.Format(domain.DateLayout),
		"to", to.Format(domain.DateLayout), "bars", len(bars))
	return bars, nil
}

// parseChart converts the columnar response to bars, dropping rows with
// missing prices and rows outside [from, to].
func parseChart(resp chartResponse, from, to time.Time) ([]domain.Bar, error) {
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrDataUnavailable, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: empty chart", domain.ErrDataUnavailable)
	}
	r := resp.Chart.Result[0]
	quote := r.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, okO := at(quote.Open, i)
		high, okH := at(quote.High, i)
		low, okL := at(quote.Low, i)
		cls, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			continue
		}
		vol, _ := at(quote.Volume, i)

		day := domain.Day(time.Unix(ts+r.Meta.GMTOffset, 0))
		if day.Before(from) || day.After(to) {
			continue
		}
		if n := len(bars); n > 0 && !day.After(bars[n-1].Date) {
			// intraday duplicate of the last session
			bars[n-1] = domain.Bar{Date: day, Open: bars[n-1].Open, High: math.Max(high, bars[n-1].High),
				Low: math.Min(low, bars[n-1].Low), Close: cls, Volume: vol}
			continue
		}
		bars = append(bars, domain.Bar{Date: day, Open: open, High: high, Low: low, Close: cls, Volume: vol})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no complete bars in range", domain.ErrDataUnavailable)
	}
	return bars, nil
}

func at(col []*float64, i int) (float64, bool) {
	if i >= len(col) || col[i] == nil {
		return 0, false
	}
	v := *col[i]
	if math.IsNaN(v) || v <= 0 {
		return 0, false
	}
	return v, true
}

// get performs a GET with rate limiting and retries.
func (c *YahooClient) get(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("yahoo request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			// the chart API answers unknown symbols with 404 and a JSON error body
			defer resp.Body.Close()
			var body chartResponse
			if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Chart.Error != nil {
				return fmt.Errorf("%w: %s", domain.ErrDataUnavailable, body.Chart.Error.Description)
			}
			return fmt.Errorf("%w: not found", domain.ErrDataUnavailable)
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, honoring the context.
func (c *YahooClient) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
