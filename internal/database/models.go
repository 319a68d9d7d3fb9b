package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the side of an executed order
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Opposite returns the exit side for an entry side.
func (t TradeType) Opposite() TradeType {
	if t == TradeTypeBuy {
		return TradeTypeSell
	}
	return TradeTypeBuy
}

// TradeStatus is the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// User represents a journal account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	FullName     string    `json:"full_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Trade is a single executed order. An entry trade has RelatedTradeID nil;
// an exit leg is always CLOSED and points back at its entry via
// RelatedTradeID.
type Trade struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	TickerSymbol   string           `json:"ticker_symbol"`
	TradeType      TradeType        `json:"trade_type"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	ExecutedAt     time.Time        `json:"executed_at"`
	Status         TradeStatus      `json:"status"`
	ProfitLoss     *decimal.Decimal `json:"profit_loss,omitempty"`
	RelatedTradeID *string          `json:"related_trade_id,omitempty"`

	// Rationale fields, advisory only
	MarketEnv           *string          `json:"market_env,omitempty"`
	TechnicalAnalysis   *string          `json:"technical_analysis,omitempty"`
	FundamentalAnalysis *string          `json:"fundamental_analysis,omitempty"`
	RiskRewardRatio     *decimal.Decimal `json:"risk_reward_ratio,omitempty"`
	ConfidenceLevel     *int             `json:"confidence_level,omitempty"`
	EntryTrigger        *string          `json:"entry_trigger,omitempty"`
	TargetPrice         *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss            *decimal.Decimal `json:"stop_loss,omitempty"`
	HoldingPeriod       *string          `json:"holding_period,omitempty"`
	PositionSizing      *string          `json:"position_sizing,omitempty"`
	CompetitorAnalysis  *string          `json:"competitor_analysis,omitempty"`
	Catalyst            *string          `json:"catalyst,omitempty"`
	Rationale           *string          `json:"rationale,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// IsEntry reports whether the trade is an entry leg.
func (t *Trade) IsEntry() bool {
	return t.RelatedTradeID == nil
}

// TradeReflection is a post-mortem annotation, at most one per closed trade.
type TradeReflection struct {
	ID                 string     `json:"id"`
	TradeID            string     `json:"trade_id"`
	WhatWentWell       *string    `json:"what_went_well,omitempty"`
	WhatWentWrong      *string    `json:"what_went_wrong,omitempty"`
	LessonsLearned     *string    `json:"lessons_learned,omitempty"`
	ActionItems        *string    `json:"action_items,omitempty"`
	SatisfactionRating *int       `json:"satisfaction_rating,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// Position is a derived aggregation over a user's trades for one symbol.
// It is recomputed on every read and never persisted.
type Position struct {
	TickerSymbol  string           `json:"ticker_symbol"`
	TotalQuantity decimal.Decimal  `json:"total_quantity"`
	AveragePrice  decimal.Decimal  `json:"average_price"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	ProfitLoss    *decimal.Decimal `json:"profit_loss,omitempty"`
	Trades        []*Trade         `json:"trades"`
}
