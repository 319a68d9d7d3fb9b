package market

import (
	"errors"
	"time"
)

// Errors callers map to HTTP statuses
var (
	// ErrNoData means the upstream has no data for the symbol.
	ErrNoData = errors.New("no market data for symbol")
	// ErrUpstream means the upstream request failed.
	ErrUpstream = errors.New("market data provider unavailable")
)

// Quote is the current price snapshot for a symbol
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Currency      string    `json:"currency"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	MarketTime    time.Time `json:"market_time"`
}

// Analysis is a technical snapshot built from daily candles
type Analysis struct {
	Symbol          string    `json:"symbol"`
	Price           float64   `json:"price"`
	SMA25           *float64  `json:"sma_25"`
	SMA75           *float64  `json:"sma_75"`
	PriceVsSMA25Pct *float64  `json:"price_vs_sma_25_pct"`
	PriceVsSMA75Pct *float64  `json:"price_vs_sma_75_pct"`
	RSI14           *float64  `json:"rsi_14"`
	VolumeRatio     *float64  `json:"volume_ratio"` // latest volume over 25-day average
	High52W         float64   `json:"high_52w"`
	Low52W          float64   `json:"low_52w"`
	RangePosition   float64   `json:"range_position_pct"` // 0 at 52w low, 100 at 52w high
	Trend           string    `json:"trend"`              // UPTREND, DOWNTREND or SIDEWAYS
	AsOf            time.Time `json:"as_of"`
}

// Candle is one daily bar. Upstream gaps (nil closes) are dropped before
// candles reach the indicator code.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}
