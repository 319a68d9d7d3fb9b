// Package position implements the trade ledger's position engine: owner-scoped
// trade CRUD, open-position aggregation, close/settle with exit-leg pairing,
// and post-trade reflections.
package position

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"whytrade-api/internal/database"
	"whytrade-api/internal/events"
	"whytrade-api/internal/logging"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

// Service coordinates trade lifecycle operations over a Store.
type Service struct {
	store Store
	bus   *events.EventBus
	log   *logging.Logger
}

// NewService creates a position service. bus may be nil when no event
// delivery is wanted (tests, CLI tools).
func NewService(store Store, bus *events.EventBus) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   logging.WithComponent("position"),
	}
}

func (s *Service) publish(eventType events.EventType, userID string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, UserID: userID, Data: data})
}

// CreateTradeInput carries the fields accepted on trade entry.
type CreateTradeInput struct {
	TickerSymbol string               `json:"ticker_symbol" binding:"required"`
	TradeType    database.TradeType   `json:"trade_type" binding:"required"`
	Quantity     decimal.Decimal      `json:"quantity"`
	Price        decimal.Decimal      `json:"price"`
	TotalAmount  *decimal.Decimal     `json:"total_amount"`
	ExecutedAt   *time.Time           `json:"executed_at"`

	MarketEnv           *string          `json:"market_env"`
	TechnicalAnalysis   *string          `json:"technical_analysis"`
	FundamentalAnalysis *string          `json:"fundamental_analysis"`
	RiskRewardRatio     *decimal.Decimal `json:"risk_reward_ratio"`
	ConfidenceLevel     *int             `json:"confidence_level"`
	EntryTrigger        *string          `json:"entry_trigger"`
	TargetPrice         *decimal.Decimal `json:"target_price"`
	StopLoss            *decimal.Decimal `json:"stop_loss"`
	HoldingPeriod       *string          `json:"holding_period"`
	PositionSizing      *string          `json:"position_sizing"`
	CompetitorAnalysis  *string          `json:"competitor_analysis"`
	Catalyst            *string          `json:"catalyst"`
	Rationale           *string          `json:"rationale"`
}

func validateSymbol(symbol string) error {
	if len(symbol) < 1 || len(symbol) > 10 {
		return validationError("ticker symbol must be 1-10 characters")
	}
	if !tickerPattern.MatchString(symbol) {
		return validationError("ticker symbol must match " + tickerPattern.String())
	}
	return nil
}

func validateTradeType(t database.TradeType) error {
	if t != database.TradeTypeBuy && t != database.TradeTypeSell {
		return validationError("trade type must be BUY or SELL")
	}
	return nil
}

func validateConfidence(level *int) error {
	if level != nil && (*level < 1 || *level > 5) {
		return validationError("confidence level must be between 1 and 5")
	}
	return nil
}

// Validate checks field constraints before any store access.
func (in *CreateTradeInput) Validate() error {
	if err := validateSymbol(in.TickerSymbol); err != nil {
		return err
	}
	if err := validateTradeType(in.TradeType); err != nil {
		return err
	}
	if !in.Quantity.IsPositive() {
		return validationError("quantity must be positive")
	}
	if in.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	return validateConfidence(in.ConfidenceLevel)
}

// CreateTrade records a new executed order for userID, status OPEN. The total
// amount defaults to quantity x price when the caller does not supply one.
func (s *Service) CreateTrade(ctx context.Context, userID string, in CreateTradeInput) (*database.Trade, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	totalAmount := in.Quantity.Mul(in.Price)
	if in.TotalAmount != nil {
		totalAmount = *in.TotalAmount
	}
	executedAt := time.Now()
	if in.ExecutedAt != nil {
		executedAt = *in.ExecutedAt
	}

	trade := &database.Trade{
		UserID:              userID,
		TickerSymbol:        in.TickerSymbol,
		TradeType:           in.TradeType,
		Quantity:            in.Quantity,
		Price:               in.Price,
		TotalAmount:         totalAmount,
		ExecutedAt:          executedAt,
		Status:              database.TradeStatusOpen,
		MarketEnv:           in.MarketEnv,
		TechnicalAnalysis:   in.TechnicalAnalysis,
		FundamentalAnalysis: in.FundamentalAnalysis,
		RiskRewardRatio:     in.RiskRewardRatio,
		ConfidenceLevel:     in.ConfidenceLevel,
		EntryTrigger:        in.EntryTrigger,
		TargetPrice:         in.TargetPrice,
		StopLoss:            in.StopLoss,
		HoldingPeriod:       in.HoldingPeriod,
		PositionSizing:      in.PositionSizing,
		CompetitorAnalysis:  in.CompetitorAnalysis,
		Catalyst:            in.Catalyst,
		Rationale:           in.Rationale,
	}

	if err := s.store.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	s.publish(events.EventTradeOpened, userID, map[string]interface{}{
		"trade_id":      trade.ID,
		"ticker_symbol": trade.TickerSymbol,
		"trade_type":    trade.TradeType,
	})
	return trade, nil
}

// GetTrade returns a trade scoped by owner.
func (s *Service) GetTrade(ctx context.Context, tradeID, userID string) (*database.Trade, error) {
	trade, err := s.store.GetTradeForUser(ctx, tradeID, userID)
	if err != nil {
		return nil, fmt.Errorf("get trade: %w", err)
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

// ListTrades returns a page of the caller's trades, newest execution first.
func (s *Service) ListTrades(ctx context.Context, userID string, limit, offset int) ([]*database.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	trades, err := s.store.ListTradesForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// UpdateTradeInput carries a partial field set; nil fields retain prior values.
type UpdateTradeInput struct {
	TickerSymbol *string              `json:"ticker_symbol"`
	TradeType    *database.TradeType  `json:"trade_type"`
	Quantity     *decimal.Decimal     `json:"quantity"`
	Price        *decimal.Decimal     `json:"price"`
	TotalAmount  *decimal.Decimal     `json:"total_amount"`
	ExecutedAt   *time.Time           `json:"executed_at"`

	MarketEnv           *string          `json:"market_env"`
	TechnicalAnalysis   *string          `json:"technical_analysis"`
	FundamentalAnalysis *string          `json:"fundamental_analysis"`
	RiskRewardRatio     *decimal.Decimal `json:"risk_reward_ratio"`
	ConfidenceLevel     *int             `json:"confidence_level"`
	EntryTrigger        *string          `json:"entry_trigger"`
	TargetPrice         *decimal.Decimal `json:"target_price"`
	StopLoss            *decimal.Decimal `json:"stop_loss"`
	HoldingPeriod       *string          `json:"holding_period"`
	PositionSizing      *string          `json:"position_sizing"`
	CompetitorAnalysis  *string          `json:"competitor_analysis"`
	Catalyst            *string          `json:"catalyst"`
	Rationale           *string          `json:"rationale"`
}

// UpdateTrade applies a partial update to an owned trade. Status and
// profit/loss are never writable here; they only change through Settle.
func (s *Service) UpdateTrade(ctx context.Context, tradeID, userID string, in UpdateTradeInput) (*database.Trade, error) {
	trade, err := s.GetTrade(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}

	if in.TickerSymbol != nil {
		if err := validateSymbol(*in.TickerSymbol); err != nil {
			return nil, err
		}
		trade.TickerSymbol = *in.TickerSymbol
	}
	if in.TradeType != nil {
		if err := validateTradeType(*in.TradeType); err != nil {
			return nil, err
		}
		trade.TradeType = *in.TradeType
	}
	if in.Quantity != nil {
		if !in.Quantity.IsPositive() {
			return nil, validationError("quantity must be positive")
		}
		trade.Quantity = *in.Quantity
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, validationError("price must not be negative")
		}
		trade.Price = *in.Price
	}
	if in.TotalAmount != nil {
		trade.TotalAmount = *in.TotalAmount
	}
	if in.ExecutedAt != nil {
		trade.ExecutedAt = *in.ExecutedAt
	}
	if err := validateConfidence(in.ConfidenceLevel); err != nil {
		return nil, err
	}

	applyIfSet := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	applyIfSet(&trade.MarketEnv, in.MarketEnv)
	applyIfSet(&trade.TechnicalAnalysis, in.TechnicalAnalysis)
	applyIfSet(&trade.FundamentalAnalysis, in.FundamentalAnalysis)
	applyIfSet(&trade.EntryTrigger, in.EntryTrigger)
	applyIfSet(&trade.HoldingPeriod, in.HoldingPeriod)
	applyIfSet(&trade.PositionSizing, in.PositionSizing)
	applyIfSet(&trade.CompetitorAnalysis, in.CompetitorAnalysis)
	applyIfSet(&trade.Catalyst, in.Catalyst)
	applyIfSet(&trade.Rationale, in.Rationale)
	if in.RiskRewardRatio != nil {
		trade.RiskRewardRatio = in.RiskRewardRatio
	}
	if in.ConfidenceLevel != nil {
		trade.ConfidenceLevel = in.ConfidenceLevel
	}
	if in.TargetPrice != nil {
		trade.TargetPrice = in.TargetPrice
	}
	if in.StopLoss != nil {
		trade.StopLoss = in.StopLoss
	}

	if err := s.store.UpdateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("update trade: %w", err)
	}

	s.publish(events.EventTradeUpdated, userID, map[string]interface{}{
		"trade_id":      trade.ID,
		"ticker_symbol": trade.TickerSymbol,
	})
	return trade, nil
}

// DeleteTrade permanently removes an owned trade. The reflection goes with
// it; an exit leg referencing the trade stays but loses its back-reference.
func (s *Service) DeleteTrade(ctx context.Context, tradeID, userID string) error {
	deleted, err := s.store.DeleteTradeForUser(ctx, tradeID, userID)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	if !deleted {
		return ErrTradeNotFound
	}
	s.publish(events.EventTradeDeleted, userID, map[string]interface{}{
		"trade_id": tradeID,
	})
	return nil
}

// SettleInput carries the close request.
type SettleInput struct {
	ClosingPrice decimal.Decimal `json:"closing_price"`
	ClosedAt     *time.Time      `json:"closed_at"`
	Rationale    *string         `json:"rationale"`
}

// ProfitLoss computes the settlement P/L for an entry trade closed at
// closingPrice: (close - entry) x qty for BUY, (entry - close) x qty for SELL.
func ProfitLoss(entry *database.Trade, closingPrice decimal.Decimal) decimal.Decimal {
	if entry.TradeType == database.TradeTypeBuy {
		return closingPrice.Sub(entry.Price).Mul(entry.Quantity)
	}
	return entry.Price.Sub(closingPrice).Mul(entry.Quantity)
}

// Settle closes an OPEN trade by synthesizing the opposite-side exit leg at
// the closing price. The exit leg is inserted already CLOSED, carries the
// computed profit/loss and points back at the entry via related_trade_id;
// the entry's own profit_loss stays null and its executed_at is untouched.
// Returns the exit leg as the authoritative settlement record.
func (s *Service) Settle(ctx context.Context, tradeID, userID string, in SettleInput) (*database.Trade, error) {
	if in.ClosingPrice.IsNegative() {
		return nil, validationError("closing price must not be negative")
	}

	entry, err := s.GetTrade(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}
	if entry.Status == database.TradeStatusClosed {
		return nil, ErrTradeAlreadyClosed
	}

	closedAt := time.Now()
	if in.ClosedAt != nil {
		closedAt = *in.ClosedAt
	}
	pl := ProfitLoss(entry, in.ClosingPrice)
	entryID := entry.ID

	exit := &database.Trade{
		UserID:         userID,
		TickerSymbol:   entry.TickerSymbol,
		TradeType:      entry.TradeType.Opposite(),
		Quantity:       entry.Quantity,
		Price:          in.ClosingPrice,
		TotalAmount:    entry.Quantity.Mul(in.ClosingPrice),
		ExecutedAt:     closedAt,
		Status:         database.TradeStatusClosed,
		ProfitLoss:     &pl,
		RelatedTradeID: &entryID,
		Rationale:      in.Rationale,
	}

	settled, err := s.store.SettleTrade(ctx, entryID, userID, exit)
	if err != nil {
		return nil, fmt.Errorf("settle trade: %w", err)
	}
	if !settled {
		// Lost the conditional status flip to a concurrent settlement.
		return nil, ErrTradeAlreadyClosed
	}

	s.log.WithField("trade_id", entryID).WithField("profit_loss", pl.String()).
		Info("trade settled")
	s.publish(events.EventTradeClosed, userID, map[string]interface{}{
		"trade_id":      entryID,
		"exit_trade_id": exit.ID,
		"ticker_symbol": exit.TickerSymbol,
		"profit_loss":   pl.String(),
	})
	return exit, nil
}

// Positions returns the caller's derived positions. With includeClosed false
// it aggregates OPEN trades by ticker symbol; with includeClosed true it
// returns settled entry/exit pairs, one position per entry leg.
func (s *Service) Positions(ctx context.Context, userID string, includeClosed bool) ([]*database.Position, error) {
	if includeClosed {
		return s.closedPositions(ctx, userID)
	}
	return s.openPositions(ctx, userID)
}

func (s *Service) openPositions(ctx context.Context, userID string) ([]*database.Position, error) {
	trades, err := s.store.ListOpenTradesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}

	bySymbol := make(map[string]*database.Position)
	var order []string
	for _, trade := range trades {
		pos, ok := bySymbol[trade.TickerSymbol]
		if !ok {
			pos = &database.Position{TickerSymbol: trade.TickerSymbol}
			bySymbol[trade.TickerSymbol] = pos
			order = append(order, trade.TickerSymbol)
		}
		pos.TotalQuantity = pos.TotalQuantity.Add(trade.Quantity)
		pos.TotalAmount = pos.TotalAmount.Add(trade.TotalAmount)
		pos.Trades = append(pos.Trades, trade)
	}

	positions := make([]*database.Position, 0, len(order))
	for _, symbol := range order {
		pos := bySymbol[symbol]
		if pos.TotalQuantity.IsPositive() {
			pos.AveragePrice = pos.TotalAmount.Div(pos.TotalQuantity)
		} else {
			pos.AveragePrice = decimal.Zero
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (s *Service) closedPositions(ctx context.Context, userID string) ([]*database.Position, error) {
	entries, err := s.store.ListClosedEntryTradesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}

	positions := make([]*database.Position, 0, len(entries))
	for _, entry := range entries {
		pos := &database.Position{
			TickerSymbol:  entry.TickerSymbol,
			TotalQuantity: entry.Quantity,
			AveragePrice:  entry.Price,
			TotalAmount:   entry.TotalAmount,
			Trades:        []*database.Trade{entry},
		}
		exit, err := s.store.GetExitTradeForEntry(ctx, entry.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("find exit trade: %w", err)
		}
		if exit != nil {
			// The exit leg owns the pair's realized P/L.
			pos.Trades = append(pos.Trades, exit)
			pos.ProfitLoss = exit.ProfitLoss
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// ReflectionInput carries reflection fields; on update, nil fields are left
// untouched.
type ReflectionInput struct {
	WhatWentWell       *string `json:"what_went_well"`
	WhatWentWrong      *string `json:"what_went_wrong"`
	LessonsLearned     *string `json:"lessons_learned"`
	ActionItems        *string `json:"action_items"`
	SatisfactionRating *int    `json:"satisfaction_rating"`
}

// Validate checks the satisfaction rating range.
func (in *ReflectionInput) Validate() error {
	if in.SatisfactionRating != nil && (*in.SatisfactionRating < 1 || *in.SatisfactionRating > 5) {
		return validationError("satisfaction rating must be between 1 and 5")
	}
	return nil
}

// CreateReflection attaches a reflection to an owned CLOSED trade.
func (s *Service) CreateReflection(ctx context.Context, tradeID, userID string, in ReflectionInput) (*database.TradeReflection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	trade, err := s.GetTrade(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade.Status != database.TradeStatusClosed {
		return nil, ErrTradeNotClosed
	}

	existing, err := s.store.GetReflectionByTradeID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("check reflection: %w", err)
	}
	if existing != nil {
		return nil, ErrReflectionExists
	}

	ref := &database.TradeReflection{
		TradeID:            tradeID,
		WhatWentWell:       in.WhatWentWell,
		WhatWentWrong:      in.WhatWentWrong,
		LessonsLearned:     in.LessonsLearned,
		ActionItems:        in.ActionItems,
		SatisfactionRating: in.SatisfactionRating,
	}
	if err := s.store.CreateReflection(ctx, ref); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrReflectionExists
		}
		return nil, fmt.Errorf("create reflection: %w", err)
	}

	s.publish(events.EventReflectionSaved, userID, map[string]interface{}{
		"trade_id":      tradeID,
		"reflection_id": ref.ID,
	})
	return ref, nil
}

// GetReflection returns the reflection for an owned trade.
func (s *Service) GetReflection(ctx context.Context, tradeID, userID string) (*database.TradeReflection, error) {
	if _, err := s.GetTrade(ctx, tradeID, userID); err != nil {
		return nil, err
	}
	ref, err := s.store.GetReflectionByTradeID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("get reflection: %w", err)
	}
	if ref == nil {
		return nil, ErrReflectionNotFound
	}
	return ref, nil
}

// UpdateReflection merges the supplied fields into an existing reflection.
func (s *Service) UpdateReflection(ctx context.Context, tradeID, userID string, in ReflectionInput) (*database.TradeReflection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ref, err := s.GetReflection(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}

	if in.WhatWentWell != nil {
		ref.WhatWentWell = in.WhatWentWell
	}
	if in.WhatWentWrong != nil {
		ref.WhatWentWrong = in.WhatWentWrong
	}
	if in.LessonsLearned != nil {
		ref.LessonsLearned = in.LessonsLearned
	}
	if in.ActionItems != nil {
		ref.ActionItems = in.ActionItems
	}
	if in.SatisfactionRating != nil {
		ref.SatisfactionRating = in.SatisfactionRating
	}

	if err := s.store.UpdateReflection(ctx, ref); err != nil {
		return nil, fmt.Errorf("update reflection: %w", err)
	}

	s.publish(events.EventReflectionSaved, userID, map[string]interface{}{
		"trade_id":      tradeID,
		"reflection_id": ref.ID,
	})
	return ref, nil
}
