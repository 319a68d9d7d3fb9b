package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"whytrade-api/internal/database"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, nil), store
}

func mustCreate(t *testing.T, svc *Service, userID string, in CreateTradeInput) *database.Trade {
	t.Helper()
	trade, err := svc.CreateTrade(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("CreateTrade failed: %v", err)
	}
	return trade
}

func TestCreateTradeDefaults(t *testing.T) {
	svc, _ := newTestService()

	trade := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "7203",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("100"),
		Price:        dec("2500.5"),
	})

	if trade.Status != database.TradeStatusOpen {
		t.Errorf("expected status OPEN, got %s", trade.Status)
	}
	if !trade.TotalAmount.Equal(dec("250050")) {
		t.Errorf("expected total_amount 250050, got %s", trade.TotalAmount)
	}
	if trade.ExecutedAt.IsZero() {
		t.Error("expected executed_at to default to now")
	}
	if trade.ProfitLoss != nil {
		t.Error("new trade must not carry profit_loss")
	}
}

func TestCreateTradeValidation(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name string
		in   CreateTradeInput
	}{
		{"empty symbol", CreateTradeInput{TickerSymbol: "", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("1")}},
		{"symbol too long", CreateTradeInput{TickerSymbol: "ABCDEFGHIJK", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("1")}},
		{"lowercase symbol", CreateTradeInput{TickerSymbol: "aapl", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("1")}},
		{"bad side", CreateTradeInput{TickerSymbol: "AAPL", TradeType: "HOLD", Quantity: dec("1"), Price: dec("1")}},
		{"zero quantity", CreateTradeInput{TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("0"), Price: dec("1")}},
		{"negative price", CreateTradeInput{TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTrade(context.Background(), "user-1", tt.in)
			var domainErr Error
			if !errors.As(err, &domainErr) || domainErr.Code != CodeValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSettleBuyProfitLoss(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("10"),
		Price:        dec("100"),
	})

	exit, err := svc.Settle(context.Background(), entry.ID, "user-1", SettleInput{ClosingPrice: dec("120")})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if exit.ProfitLoss == nil || !exit.ProfitLoss.Equal(dec("200")) {
		t.Errorf("expected profit_loss 200, got %v", exit.ProfitLoss)
	}
	if exit.TradeType != database.TradeTypeSell {
		t.Errorf("BUY entry must settle with a SELL exit leg, got %s", exit.TradeType)
	}
	if exit.Status != database.TradeStatusClosed {
		t.Errorf("exit leg must be CLOSED, got %s", exit.Status)
	}
	if exit.RelatedTradeID == nil || *exit.RelatedTradeID != entry.ID {
		t.Error("exit leg must reference the entry trade")
	}

	// Entry flips to CLOSED, its own P/L stays null.
	reloaded, err := svc.GetTrade(context.Background(), entry.ID, "user-1")
	if err != nil {
		t.Fatalf("GetTrade failed: %v", err)
	}
	if reloaded.Status != database.TradeStatusClosed {
		t.Errorf("entry must be CLOSED after settlement, got %s", reloaded.Status)
	}
	if reloaded.ProfitLoss != nil {
		t.Error("entry trade must not carry profit_loss under exit-leg settlement")
	}
}

func TestSettleSellProfitLoss(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeSell,
		Quantity:     dec("10"),
		Price:        dec("100"),
	})

	exit, err := svc.Settle(context.Background(), entry.ID, "user-1", SettleInput{ClosingPrice: dec("90")})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if exit.ProfitLoss == nil || !exit.ProfitLoss.Equal(dec("100")) {
		t.Errorf("expected profit_loss 100, got %v", exit.ProfitLoss)
	}
	if exit.TradeType != database.TradeTypeBuy {
		t.Errorf("SELL entry must settle with a BUY exit leg, got %s", exit.TradeType)
	}
}

func TestSettleTwiceFails(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("5"),
		Price:        dec("50"),
	})

	if _, err := svc.Settle(context.Background(), entry.ID, "user-1", SettleInput{ClosingPrice: dec("55")}); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}
	_, err := svc.Settle(context.Background(), entry.ID, "user-1", SettleInput{ClosingPrice: dec("60")})
	if !errors.Is(err, ErrTradeAlreadyClosed) {
		t.Errorf("expected ErrTradeAlreadyClosed, got %v", err)
	}
}

func TestConcurrentSettleExactlyOneWins(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("10"),
		Price:        dec("100"),
	})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Settle(context.Background(), entry.ID, "user-1", SettleInput{ClosingPrice: dec("110")})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrTradeAlreadyClosed) {
			t.Errorf("unexpected settle error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one settlement to win, got %d", wins)
	}
}

func TestSettleOtherUsersTradeNotFound(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("1"),
		Price:        dec("10"),
	})

	_, err := svc.Settle(context.Background(), entry.ID, "user-2", SettleInput{ClosingPrice: dec("11")})
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("cross-owner settle must be NotFound, got %v", err)
	}
}

func TestOwnerScoping(t *testing.T) {
	svc, _ := newTestService()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL",
		TradeType:    database.TradeTypeBuy,
		Quantity:     dec("1"),
		Price:        dec("10"),
	})

	if _, err := svc.GetTrade(context.Background(), entry.ID, "user-2"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("cross-owner read must be NotFound, got %v", err)
	}
	if _, err := svc.UpdateTrade(context.Background(), entry.ID, "user-2", UpdateTradeInput{}); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("cross-owner update must be NotFound, got %v", err)
	}
	if err := svc.DeleteTrade(context.Background(), entry.ID, "user-2"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("cross-owner delete must be NotFound, got %v", err)
	}
}

func TestOpenPositionAggregation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	base := time.Now()
	for i, in := range []CreateTradeInput{
		{TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("10"), Price: dec("100")},
		{TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("20"), Price: dec("130")},
		{TickerSymbol: "MSFT", TradeType: database.TradeTypeBuy, Quantity: dec("5"), Price: dec("400")},
	} {
		at := base.Add(time.Duration(i) * time.Minute)
		in.ExecutedAt = &at
		mustCreate(t, svc, "user-1", in)
	}
	// Another user's open trade must not leak into the aggregation.
	mustCreate(t, svc, "user-2", CreateTradeInput{
		TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("999"), Price: dec("1"),
	})

	positions, err := svc.Positions(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}

	var aapl *database.Position
	for _, pos := range positions {
		if pos.TickerSymbol == "AAPL" {
			aapl = pos
		}
	}
	if aapl == nil {
		t.Fatal("missing AAPL position")
	}
	if !aapl.TotalQuantity.Equal(dec("30")) {
		t.Errorf("expected total_quantity 30, got %s", aapl.TotalQuantity)
	}
	if !aapl.TotalAmount.Equal(dec("3600")) {
		t.Errorf("expected total_amount 3600, got %s", aapl.TotalAmount)
	}
	// Amount-weighted mean: 3600 / 30 = 120.
	if !aapl.AveragePrice.Equal(dec("120")) {
		t.Errorf("expected average_price 120, got %s", aapl.AveragePrice)
	}
	// average_price x total_quantity must reproduce total_amount.
	if !aapl.AveragePrice.Mul(aapl.TotalQuantity).Sub(aapl.TotalAmount).Abs().LessThan(dec("0.0001")) {
		t.Error("average_price x total_quantity drifted from total_amount")
	}
	// Constituents ordered by execution time descending.
	if len(aapl.Trades) != 2 || !aapl.Trades[0].ExecutedAt.After(aapl.Trades[1].ExecutedAt) {
		t.Error("constituent trades must be ordered newest first")
	}
}

func TestClosedPositionsPairing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("10"), Price: dec("100"),
	})
	exit, err := svc.Settle(ctx, entry.ID, "user-1", SettleInput{ClosingPrice: dec("120")})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	positions, err := svc.Positions(ctx, "user-1", true)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.ProfitLoss == nil || !pos.ProfitLoss.Equal(dec("200")) {
		t.Errorf("closed pair must report the exit leg's profit_loss, got %v", pos.ProfitLoss)
	}
	if len(pos.Trades) != 2 {
		t.Fatalf("expected entry+exit pair, got %d trades", len(pos.Trades))
	}
	if pos.Trades[0].ID != entry.ID || pos.Trades[1].ID != exit.ID {
		t.Error("pair must list the entry leg then its exit leg")
	}
}

func TestUpdateTradePartialMerge(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("10"), Price: dec("100"),
		Rationale: strPtr("earnings play"),
	})

	updated, err := svc.UpdateTrade(ctx, entry.ID, "user-1", UpdateTradeInput{
		Quantity: decPtr("15"),
	})
	if err != nil {
		t.Fatalf("UpdateTrade failed: %v", err)
	}
	if !updated.Quantity.Equal(dec("15")) {
		t.Errorf("expected quantity 15, got %s", updated.Quantity)
	}
	if updated.TickerSymbol != "AAPL" {
		t.Errorf("unspecified symbol must be retained, got %s", updated.TickerSymbol)
	}
	if updated.Rationale == nil || *updated.Rationale != "earnings play" {
		t.Error("unspecified rationale must be retained")
	}
	if !updated.Price.Equal(dec("100")) {
		t.Errorf("unspecified price must be retained, got %s", updated.Price)
	}
}

func TestDeleteTradeCascadesReflection(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	entry := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("10"),
	})
	if _, err := svc.Settle(ctx, entry.ID, "user-1", SettleInput{ClosingPrice: dec("12")}); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if _, err := svc.CreateReflection(ctx, entry.ID, "user-1", ReflectionInput{LessonsLearned: strPtr("size down")}); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	if err := svc.DeleteTrade(ctx, entry.ID, "user-1"); err != nil {
		t.Fatalf("DeleteTrade failed: %v", err)
	}

	ref, err := store.GetReflectionByTradeID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetReflectionByTradeID failed: %v", err)
	}
	if ref != nil {
		t.Error("reflection must not survive its trade")
	}
}

func TestReflectionInvariants(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	open := mustCreate(t, svc, "user-1", CreateTradeInput{
		TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy, Quantity: dec("1"), Price: dec("10"),
	})

	// Reflections are only allowed on closed trades.
	_, err := svc.CreateReflection(ctx, open.ID, "user-1", ReflectionInput{})
	if !errors.Is(err, ErrTradeNotClosed) {
		t.Errorf("expected ErrTradeNotClosed, got %v", err)
	}

	if _, err := svc.Settle(ctx, open.ID, "user-1", SettleInput{ClosingPrice: dec("11")}); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if _, err := svc.CreateReflection(ctx, open.ID, "user-1", ReflectionInput{SatisfactionRating: intPtr(4)}); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	// At most one reflection per trade.
	_, err = svc.CreateReflection(ctx, open.ID, "user-1", ReflectionInput{})
	if !errors.Is(err, ErrReflectionExists) {
		t.Errorf("expected ErrReflectionExists, got %v", err)
	}

	// Out-of-range rating is rejected before the store is touched.
	_, err = svc.UpdateReflection(ctx, open.ID, "user-1", ReflectionInput{SatisfactionRating: intPtr(6)})
	var domainErr Error
	if !errors.As(err, &domainErr) || domainErr.Code != CodeValidation {
		t.Errorf("expected validation error, got %v", err)
	}

	// Partial merge leaves absent fields untouched.
	updated, err := svc.UpdateReflection(ctx, open.ID, "user-1", ReflectionInput{WhatWentWell: strPtr("good exit")})
	if err != nil {
		t.Fatalf("UpdateReflection failed: %v", err)
	}
	if updated.SatisfactionRating == nil || *updated.SatisfactionRating != 4 {
		t.Error("rating must be retained across partial update")
	}
	if updated.WhatWentWell == nil || *updated.WhatWentWell != "good exit" {
		t.Error("supplied field must overwrite")
	}
}

func TestReflectionOnMissingTrade(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateReflection(context.Background(), "no-such-trade", "user-1", ReflectionInput{})
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
	_, err = svc.GetReflection(context.Background(), "no-such-trade", "user-1")
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestListTradesPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		mustCreate(t, svc, "user-1", CreateTradeInput{
			TickerSymbol: "AAPL", TradeType: database.TradeTypeBuy,
			Quantity: dec("1"), Price: dec("10"), ExecutedAt: &at,
		})
	}

	page, err := svc.ListTrades(ctx, "user-1", 2, 1)
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(page))
	}
	if !page[0].ExecutedAt.After(page[1].ExecutedAt) {
		t.Error("trades must be ordered newest execution first")
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
