package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"whytrade-api/config"
)

// Client fetches quotes and daily candles from the chart API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	suffix     string
	logger     zerolog.Logger
}

// NewClient creates a market data client
func NewClient(cfg config.MarketConfig, logger zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		suffix:     cfg.ExchangeSuffix,
		logger:     logger.With().Str("component", "MarketClient").Logger(),
	}
}

// NormalizeSymbol appends the exchange suffix to bare numeric tickers.
// "7203" becomes "7203.T"; symbols that already carry a suffix or contain
// letters pass through unchanged.
func (c *Client) NormalizeSymbol(symbol string) string {
	if c.suffix == "" {
		return symbol
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return symbol
		}
	}
	return symbol + c.suffix
}

// chartResponse mirrors the subset of the chart API payload we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []quoteArrays `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) fetchChart(ctx context.Context, symbol, dataRange, interval string) (*chartResponse, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build chart request: %w", err)
	}
	q := req.URL.Query()
	q.Set("range", dataRange)
	q.Set("interval", interval)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "whytrade-api/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Chart request failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("symbol", symbol).Msg("Chart request returned non-OK status")
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	if parsed.Chart.Error != nil {
		if parsed.Chart.Error.Code == "Not Found" {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	return &parsed, nil
}

// GetQuote returns the current price snapshot for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	normalized := c.NormalizeSymbol(symbol)
	parsed, err := c.fetchChart(ctx, normalized, "5d", "1d")
	if err != nil {
		return nil, err
	}

	result := parsed.Chart.Result[0]
	price := result.Meta.RegularMarketPrice
	if price == 0 {
		// Off-hours responses sometimes omit the live price; fall back to
		// the most recent close.
		if candles := candlesFromResult(result.Timestamp, result.Indicators.Quote); len(candles) > 0 {
			price = candles[len(candles)-1].Close
		}
	}
	if price == 0 {
		return nil, ErrNoData
	}

	prev := result.Meta.PreviousClose
	quote := &Quote{
		Symbol:        result.Meta.Symbol,
		Name:          result.Meta.ShortName,
		Currency:      result.Meta.Currency,
		Price:         price,
		PreviousClose: prev,
		MarketTime:    time.Unix(result.Meta.RegularMarketTime, 0).UTC(),
	}
	if prev > 0 {
		quote.Change = price - prev
		quote.ChangePercent = (price - prev) / prev * 100
	}
	return quote, nil
}

// GetDailyCandles returns up to a year of daily candles, oldest first
func (c *Client) GetDailyCandles(ctx context.Context, symbol string) ([]Candle, error) {
	normalized := c.NormalizeSymbol(symbol)
	parsed, err := c.fetchChart(ctx, normalized, "1y", "1d")
	if err != nil {
		return nil, err
	}

	result := parsed.Chart.Result[0]
	candles := candlesFromResult(result.Timestamp, result.Indicators.Quote)
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	return candles, nil
}

type quoteArrays struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

func candlesFromResult(timestamps []int64, quotes []quoteArrays) []Candle {
	if len(quotes) == 0 {
		return nil
	}
	q := quotes[0]
	candles := make([]Candle, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		candle := Candle{
			Time:  time.Unix(ts, 0).UTC(),
			Close: *q.Close[i],
		}
		if i < len(q.Open) && q.Open[i] != nil {
			candle.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			candle.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			candle.Low = *q.Low[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			candle.Volume = *q.Volume[i]
		}
		candles = append(candles, candle)
	}
	return candles
}
