package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whytrade-api/config"
)

// Service serves quotes and technical analyses, caching upstream responses
// so a page of trades does not hammer the provider. The cache is optional;
// with a nil cache every call goes upstream.
type Service struct {
	client *Client
	cache  *Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewService creates a market data service
func NewService(cfg config.MarketConfig, client *Client, cache *Cache, logger zerolog.Logger) *Service {
	ttl := time.Duration(cfg.CacheTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		client: client,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "MarketService").Logger(),
	}
}

// GetQuote returns the current price snapshot for a symbol
func (s *Service) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	key := fmt.Sprintf(keyQuote, s.client.NormalizeSymbol(symbol))
	if s.cache != nil {
		var cached Quote
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, quote, s.ttl); err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Quote cache write skipped")
		}
	}
	return quote, nil
}

// GetAnalysis returns a technical snapshot for a symbol. Analyses change
// on the daily bar, so they are cached longer than quotes.
func (s *Service) GetAnalysis(ctx context.Context, symbol string) (*Analysis, error) {
	normalized := s.client.NormalizeSymbol(symbol)
	key := fmt.Sprintf(keyAnalysis, normalized)
	if s.cache != nil {
		var cached Analysis
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	candles, err := s.client.GetDailyCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	analysis, err := Analyze(normalized, candles)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, analysis, 10*s.ttl); err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Analysis cache write skipped")
		}
	}
	return analysis, nil
}
