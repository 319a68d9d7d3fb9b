package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const tradeColumns = `
	id, user_id, ticker_symbol, trade_type, quantity, price, total_amount,
	executed_at, status, profit_loss, related_trade_id,
	market_env, technical_analysis, fundamental_analysis, risk_reward_ratio,
	confidence_level, entry_trigger, target_price, stop_loss, holding_period,
	position_sizing, competitor_analysis, catalyst, rationale,
	created_at, updated_at`

type tradeRow interface {
	Scan(dest ...any) error
}

func scanTrade(row tradeRow) (*Trade, error) {
	t := &Trade{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.TickerSymbol, &t.TradeType, &t.Quantity, &t.Price,
		&t.TotalAmount, &t.ExecutedAt, &t.Status, &t.ProfitLoss, &t.RelatedTradeID,
		&t.MarketEnv, &t.TechnicalAnalysis, &t.FundamentalAnalysis, &t.RiskRewardRatio,
		&t.ConfidenceLevel, &t.EntryTrigger, &t.TargetPrice, &t.StopLoss, &t.HoldingPeriod,
		&t.PositionSizing, &t.CompetitorAnalysis, &t.Catalyst, &t.Rationale,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...any) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// CreateTrade inserts a new trade owned by trade.UserID
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (
			user_id, ticker_symbol, trade_type, quantity, price, total_amount,
			executed_at, status, profit_loss, related_trade_id,
			market_env, technical_analysis, fundamental_analysis, risk_reward_ratio,
			confidence_level, entry_trigger, target_price, stop_loss, holding_period,
			position_sizing, competitor_analysis, catalyst, rationale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		trade.UserID, trade.TickerSymbol, trade.TradeType, trade.Quantity,
		trade.Price, trade.TotalAmount, trade.ExecutedAt, trade.Status,
		trade.ProfitLoss, trade.RelatedTradeID,
		trade.MarketEnv, trade.TechnicalAnalysis, trade.FundamentalAnalysis,
		trade.RiskRewardRatio, trade.ConfidenceLevel, trade.EntryTrigger,
		trade.TargetPrice, trade.StopLoss, trade.HoldingPeriod,
		trade.PositionSizing, trade.CompetitorAnalysis, trade.Catalyst,
		trade.Rationale,
	).Scan(&trade.ID, &trade.CreatedAt, &trade.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// GetTradeForUser retrieves a trade scoped by owner. Returns nil when the
// trade does not exist or belongs to another user.
func (r *Repository) GetTradeForUser(ctx context.Context, tradeID, userID string) (*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 AND user_id = $2`
	trade, err := scanTrade(r.db.Pool.QueryRow(ctx, query, tradeID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListTradesForUser retrieves a user's trades with pagination, newest
// execution first with id as a deterministic tie-break.
func (r *Repository) ListTradesForUser(ctx context.Context, userID string, limit, offset int) ([]*Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryTrades(ctx, query, userID, limit, offset)
}

// ListOpenTradesForUser retrieves all of a user's OPEN trades
func (r *Repository) ListOpenTradesForUser(ctx context.Context, userID string) ([]*Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND status = 'OPEN'
		ORDER BY executed_at DESC, id DESC
	`
	return r.queryTrades(ctx, query, userID)
}

// ListClosedEntryTradesForUser retrieves a user's CLOSED entry legs
// (closed trades that are not themselves exit legs).
func (r *Repository) ListClosedEntryTradesForUser(ctx context.Context, userID string) ([]*Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND status = 'CLOSED' AND related_trade_id IS NULL
		ORDER BY executed_at DESC, id DESC
	`
	return r.queryTrades(ctx, query, userID)
}

// GetExitTradeForEntry retrieves the exit leg whose related_trade_id points
// at the given entry trade. Returns nil when the entry has no exit leg.
func (r *Repository) GetExitTradeForEntry(ctx context.Context, entryTradeID, userID string) (*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE related_trade_id = $1 AND user_id = $2`
	trade, err := scanTrade(r.db.Pool.QueryRow(ctx, query, entryTradeID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exit trade: %w", err)
	}
	return trade, nil
}

// UpdateTrade writes all mutable fields of a trade, scoped by owner.
func (r *Repository) UpdateTrade(ctx context.Context, trade *Trade) error {
	query := `
		UPDATE trades SET
			ticker_symbol = $3, trade_type = $4, quantity = $5, price = $6,
			total_amount = $7, executed_at = $8, status = $9, profit_loss = $10,
			market_env = $11, technical_analysis = $12, fundamental_analysis = $13,
			risk_reward_ratio = $14, confidence_level = $15, entry_trigger = $16,
			target_price = $17, stop_loss = $18, holding_period = $19,
			position_sizing = $20, competitor_analysis = $21, catalyst = $22,
			rationale = $23, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		trade.ID, trade.UserID, trade.TickerSymbol, trade.TradeType,
		trade.Quantity, trade.Price, trade.TotalAmount, trade.ExecutedAt,
		trade.Status, trade.ProfitLoss,
		trade.MarketEnv, trade.TechnicalAnalysis, trade.FundamentalAnalysis,
		trade.RiskRewardRatio, trade.ConfidenceLevel, trade.EntryTrigger,
		trade.TargetPrice, trade.StopLoss, trade.HoldingPeriod,
		trade.PositionSizing, trade.CompetitorAnalysis, trade.Catalyst,
		trade.Rationale,
	).Scan(&trade.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	return nil
}

// DeleteTradeForUser hard-deletes a trade scoped by owner. The reflection row
// is removed by the ON DELETE CASCADE constraint and any exit leg keeps its
// row with related_trade_id detached. Returns false when no row matched.
func (r *Repository) DeleteTradeForUser(ctx context.Context, tradeID, userID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM trades WHERE id = $1 AND user_id = $2`, tradeID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete trade: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SettleTrade atomically closes the entry trade and inserts its exit leg.
// The status flip is conditional on status = 'OPEN' so that of two
// concurrent settlements exactly one observes an affected row; the loser
// gets settled = false and nothing is written.
func (r *Repository) SettleTrade(ctx context.Context, entryTradeID, userID string, exit *Trade) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trades SET status = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = $4
	`, entryTradeID, userID, TradeStatusClosed, TradeStatusOpen)
	if err != nil {
		return false, fmt.Errorf("failed to close entry trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trades (
			user_id, ticker_symbol, trade_type, quantity, price, total_amount,
			executed_at, status, profit_loss, related_trade_id, rationale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		exit.UserID, exit.TickerSymbol, exit.TradeType, exit.Quantity,
		exit.Price, exit.TotalAmount, exit.ExecutedAt, exit.Status,
		exit.ProfitLoss, exit.RelatedTradeID, exit.Rationale,
	).Scan(&exit.ID, &exit.CreatedAt, &exit.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert exit trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}
