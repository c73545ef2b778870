package collector

import (
	"context"
	"testing"
	"time"

	"polytrader/internal/db"
	"polytrader/internal/market"
)

func TestCollector_CollectAndLatest(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(database)
	ctx := context.Background()

	first, err := market.NewSnapshot(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		market.MarketState{MarketID: "a", TokenID: "YES", Bid: 0.45, Ask: 0.55, Midpoint: 0.5, Spread: 0.1, Volume: 10},
		market.MarketState{MarketID: "b", TokenID: "YES", Bid: 0.2, Ask: 0.3, Midpoint: 0.25, Spread: 0.1, Volume: 5},
	)
	if err != nil {
		t.Fatal(err)
	}
	second, err := market.NewSnapshot(time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		market.MarketState{MarketID: "a", TokenID: "YES", Bid: 0.55, Ask: 0.65, Midpoint: 0.6, Spread: 0.1, Volume: 12}.WithLastPrice(0.61),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Collect(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := c.Collect(ctx, second); err != nil {
		t.Fatal(err)
	}

	var markets, snapshots int
	database.QueryRow(`SELECT COUNT(*) FROM markets`).Scan(&markets)
	database.QueryRow(`SELECT COUNT(*) FROM market_snapshots`).Scan(&snapshots)
	if markets != 2 || snapshots != 3 {
		t.Errorf("expected 2 markets and 3 snapshots, got %d and %d", markets, snapshots)
	}

	latest, err := c.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a, ok := latest.Get("a")
	if !ok || a.Midpoint != 0.6 || a.LastPrice == nil || *a.LastPrice != 0.61 {
		t.Errorf("expected latest state of a, got %+v", a)
	}
	if b, ok := latest.Get("b"); !ok || b.Midpoint != 0.25 {
		t.Errorf("expected b from first snapshot, got %+v", b)
	}
	if !latest.TakenAt().Equal(time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)) {
		t.Errorf("unexpected taken at %v", latest.TakenAt())
	}
}

func TestCollector_NilSnapshot(t *testing.T) {
	c := NewCollector(nil)
	if err := c.Collect(context.Background(), nil); err == nil {
		t.Error("expected error for nil snapshot")
	}
}
