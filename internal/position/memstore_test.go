package position

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"whytrade-api/internal/database"
)

// memStore is an in-memory Store used to exercise the engine without a
// database. It mirrors the repository's contracts: owner-scoped lookups
// return nil on miss, settlement is a conditional flip, and the reflection
// table enforces a unique trade id.
type memStore struct {
	mu          sync.Mutex
	trades      map[string]*database.Trade
	reflections map[string]*database.TradeReflection // keyed by trade ID
}

func newMemStore() *memStore {
	return &memStore{
		trades:      make(map[string]*database.Trade),
		reflections: make(map[string]*database.TradeReflection),
	}
}

func copyTrade(t *database.Trade) *database.Trade {
	c := *t
	return &c
}

func copyReflection(r *database.TradeReflection) *database.TradeReflection {
	c := *r
	return &c
}

func (m *memStore) CreateTrade(_ context.Context, trade *database.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	m.trades[trade.ID] = copyTrade(trade)
	return nil
}

func (m *memStore) GetTradeForUser(_ context.Context, tradeID, userID string) (*database.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[tradeID]
	if !ok || trade.UserID != userID {
		return nil, nil
	}
	return copyTrade(trade), nil
}

func (m *memStore) tradesForUser(userID string, keep func(*database.Trade) bool) []*database.Trade {
	var out []*database.Trade
	for _, trade := range m.trades {
		if trade.UserID == userID && keep(trade) {
			out = append(out, copyTrade(trade))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memStore) ListTradesForUser(_ context.Context, userID string, limit, offset int) ([]*database.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.tradesForUser(userID, func(*database.Trade) bool { return true })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) ListOpenTradesForUser(_ context.Context, userID string) ([]*database.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradesForUser(userID, func(t *database.Trade) bool {
		return t.Status == database.TradeStatusOpen
	}), nil
}

func (m *memStore) ListClosedEntryTradesForUser(_ context.Context, userID string) ([]*database.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradesForUser(userID, func(t *database.Trade) bool {
		return t.Status == database.TradeStatusClosed && t.RelatedTradeID == nil
	}), nil
}

func (m *memStore) GetExitTradeForEntry(_ context.Context, entryTradeID, userID string) (*database.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trade := range m.trades {
		if trade.UserID == userID && trade.RelatedTradeID != nil && *trade.RelatedTradeID == entryTradeID {
			return copyTrade(trade), nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateTrade(_ context.Context, trade *database.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.trades[trade.ID]
	if !ok || existing.UserID != trade.UserID {
		return pgconnNoRows()
	}
	m.trades[trade.ID] = copyTrade(trade)
	return nil
}

func (m *memStore) DeleteTradeForUser(_ context.Context, tradeID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[tradeID]
	if !ok || trade.UserID != userID {
		return false, nil
	}
	delete(m.trades, tradeID)
	delete(m.reflections, tradeID)
	for _, t := range m.trades {
		if t.RelatedTradeID != nil && *t.RelatedTradeID == tradeID {
			t.RelatedTradeID = nil
		}
	}
	return true, nil
}

func (m *memStore) SettleTrade(_ context.Context, entryTradeID, userID string, exit *database.Trade) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.trades[entryTradeID]
	if !ok || entry.UserID != userID || entry.Status != database.TradeStatusOpen {
		return false, nil
	}
	entry.Status = database.TradeStatusClosed
	if exit.ID == "" {
		exit.ID = uuid.NewString()
	}
	m.trades[exit.ID] = copyTrade(exit)
	return true, nil
}

func (m *memStore) CreateReflection(_ context.Context, ref *database.TradeReflection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reflections[ref.TradeID]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "trade_reflections_trade_id_key"}
	}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	m.reflections[ref.TradeID] = copyReflection(ref)
	return nil
}

func (m *memStore) GetReflectionByTradeID(_ context.Context, tradeID string) (*database.TradeReflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.reflections[tradeID]
	if !ok {
		return nil, nil
	}
	return copyReflection(ref), nil
}

func (m *memStore) UpdateReflection(_ context.Context, ref *database.TradeReflection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reflections[ref.TradeID] = copyReflection(ref)
	return nil
}

func pgconnNoRows() error {
	return &pgconn.PgError{Code: "P0002"}
}

var _ Store = (*memStore)(nil)
