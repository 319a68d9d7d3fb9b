package position

import (
	"context"

	"whytrade-api/internal/database"
)

// Store is the ledger access the engine needs. *database.Repository is the
// production implementation; tests use an in-memory fake.
//
// Lookup methods return (nil, nil) when no row matches the (id, owner) pair,
// so a missing trade and another owner's trade are indistinguishable here.
type Store interface {
	CreateTrade(ctx context.Context, trade *database.Trade) error
	GetTradeForUser(ctx context.Context, tradeID, userID string) (*database.Trade, error)
	ListTradesForUser(ctx context.Context, userID string, limit, offset int) ([]*database.Trade, error)
	ListOpenTradesForUser(ctx context.Context, userID string) ([]*database.Trade, error)
	ListClosedEntryTradesForUser(ctx context.Context, userID string) ([]*database.Trade, error)
	GetExitTradeForEntry(ctx context.Context, entryTradeID, userID string) (*database.Trade, error)
	UpdateTrade(ctx context.Context, trade *database.Trade) error
	DeleteTradeForUser(ctx context.Context, tradeID, userID string) (bool, error)

	// SettleTrade flips the entry to CLOSED and inserts the exit leg in one
	// atomic unit. The flip is conditional on the entry still being OPEN;
	// settled reports whether this call won the flip.
	SettleTrade(ctx context.Context, entryTradeID, userID string, exit *database.Trade) (settled bool, err error)

	CreateReflection(ctx context.Context, ref *database.TradeReflection) error
	GetReflectionByTradeID(ctx context.Context, tradeID string) (*database.TradeReflection, error)
	UpdateReflection(ctx context.Context, ref *database.TradeReflection) error
}

var _ Store = (*database.Repository)(nil)
