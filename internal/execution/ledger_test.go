package execution

import (
	"context"
	"errors"
	"math"
	"testing"

	"polytrader/internal/db"
	"polytrader/internal/order"
)

type failingBalance struct{}

func (failingBalance) Refresh(context.Context) error { return errors.New("api down") }
func (failingBalance) Balance() float64            { return 0 }

func TestLedger_AccountFromShadowSubmissions(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	shadow := NewShadow(database)
	shadow.Observe(testSnapshot(t, 0.5))
	orders := []order.Order{
		limit(order.SideBuy, 10, 0.4),
		limit(order.SideBuy, 10, 0.6),
		limit(order.SideSell, 5, 0.7),
	}
	if err := shadow.Submit(ctx, "mm", orders); err != nil {
		t.Fatal(err)
	}

	ledger := NewLedger(database, shadow.Name(), FixedBalance(250))
	positions, balance, err := ledger.Account(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 250 {
		t.Errorf("expected balance 250, got %v", balance)
	}
	pos, ok := positions.Get("m1")
	if !ok {
		t.Fatal("expected a position in m1")
	}
	if pos.Size != 15 || pos.TokenID != "YES" {
		t.Errorf("expected 15 YES, got %v %s", pos.Size, pos.TokenID)
	}
	if math.Abs(pos.AvgEntryPrice-0.5) > 1e-9 {
		t.Errorf("expected average entry 0.5, got %v", pos.AvgEntryPrice)
	}

	other := NewLedger(database, "manifold", FixedBalance(0))
	positions, _, err = other.Account(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if positions.Len() != 0 {
		t.Errorf("expected no positions for another sink, got %d", positions.Len())
	}
}

func TestLedger_BalanceFailure(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewLedger(database, "manifold", failingBalance{}).Account(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
}
