package risk

import (
	"math"
	"reflect"
	"testing"
	"time"

	"polytrader/internal/market"
	"polytrader/internal/order"
	"polytrader/internal/strategy"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func newTestContext(t *testing.T, currentSize, balance float64) strategy.Context {
	t.Helper()
	snap, err := market.NewSnapshot(time.Now(), market.MarketState{
		MarketID: "m1", TokenID: "YES", Bid: 0.45, Ask: 0.55, Midpoint: 0.50, Spread: 0.10,
	})
	if err != nil {
		t.Fatal(err)
	}
	return strategy.Context{
		Mode:      strategy.ModePaper,
		Positions: market.NewPositionBook(market.Position{MarketID: "m1", Size: currentSize}),
		Balance:   balance,
		Markets:   snap,
	}
}

func limitOrder(side order.Side, size, price float64) order.Order {
	return order.Order{MarketID: "m1", TokenID: "YES", Side: side, Type: order.TypeLimit, Size: size, Price: order.PriceOf(price)}
}

func TestGate_AcceptsWithinLimits(t *testing.T) {
	g := newTestGate(t)
	d := g.Evaluate(limitOrder(order.SideBuy, 10, 0.49), newTestContext(t, 0, 100))
	if !d.Accepted {
		t.Errorf("expected accept, got %s: %s", d.Reason, d.Detail)
	}
}

func TestGate_Rejections(t *testing.T) {
	g := newTestGate(t)

	testCases := []struct {
		desc    string
		order   order.Order
		current float64
		balance float64
		want    Reason
	}{
		{"buy beyond max position", limitOrder(order.SideBuy, 11, 0.5), 90, 100, ReasonPositionLimit},
		{"buy exactly to max position", limitOrder(order.SideBuy, 10, 0.5), 90, 100, ReasonNone},
		{"sell more than held", limitOrder(order.SideSell, 20, 0.5), 5, 100, ReasonPositionLimit},
		{"sell from flat", limitOrder(order.SideSell, 1, 0.5), 0, 100, ReasonPositionLimit},
		{"sell all", limitOrder(order.SideSell, 5, 0.5), 5, 100, ReasonNone},
		{"price above ceiling", limitOrder(order.SideBuy, 10, 1.50), 0, 100, ReasonPriceRange},
		{"price at ceiling", limitOrder(order.SideSell, 1, 0.99), 5, 100, ReasonPriceRange},
		{"price at floor", limitOrder(order.SideBuy, 1, 0.01), 0, 100, ReasonPriceRange},
		{"price NaN", limitOrder(order.SideBuy, 1, math.NaN()), 0, 100, ReasonPriceRange},
		{"missing price", order.Order{MarketID: "m1", Side: order.SideBuy, Type: order.TypeGTC, Size: 1}, 0, 100, ReasonMissingPrice},
		{"insufficient balance", limitOrder(order.SideBuy, 10, 0.5), 0, 4.99, ReasonInsufficientBalance},
		{"balance exactly covers cost", limitOrder(order.SideBuy, 10, 0.49), 0, 4.9, ReasonNone},
		{"sell ignores balance", limitOrder(order.SideSell, 5, 0.5), 5, 0, ReasonNone},
		{"unknown side", order.Order{MarketID: "m1", Type: order.TypeMarket, Size: 1}, 0, 100, ReasonInvalidOrder},
		{"unknown type", order.Order{MarketID: "m1", Side: order.SideBuy, Size: 1}, 0, 100, ReasonInvalidOrder},
		{"zero size", order.Order{MarketID: "m1", Side: order.SideBuy, Type: order.TypeMarket}, 0, 100, ReasonInvalidOrder},
		{"infinite size", order.Order{MarketID: "m1", Side: order.SideBuy, Type: order.TypeMarket, Size: math.Inf(1)}, 0, 100, ReasonInvalidOrder},
		{"NaN balance", limitOrder(order.SideBuy, 1, 0.5), 0, math.NaN(), ReasonInsufficientBalance},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			d := g.Evaluate(tc.order, newTestContext(t, tc.current, tc.balance))
			if d.Reason != tc.want {
				t.Errorf("expected %s, got %s (%s)", tc.want, d.Reason, d.Detail)
			}
			if d.Accepted != (tc.want == ReasonNone) {
				t.Errorf("accepted=%v inconsistent with reason %s", d.Accepted, d.Reason)
			}
		})
	}
}

func TestGate_FirstFailureWins(t *testing.T) {
	g := newTestGate(t)
	// Over the position limit, out of the price range and unaffordable at once.
	o := limitOrder(order.SideBuy, 500, 1.5)
	d := g.Evaluate(o, newTestContext(t, 0, 1))
	if d.Reason != ReasonPositionLimit {
		t.Errorf("expected position limit to win, got %s", d.Reason)
	}

	o.Size = 10
	d = g.Evaluate(o, newTestContext(t, 0, 1))
	if d.Reason != ReasonPriceRange {
		t.Errorf("expected price range to win over solvency, got %s", d.Reason)
	}
}

func TestGate_PerMarketLimitAndShortTolerance(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionPerMarket = map[string]float64{"m1": 20}
	limits.ShortTolerance = 5
	g, err := NewGate(limits)
	if err != nil {
		t.Fatal(err)
	}

	if d := g.Evaluate(limitOrder(order.SideBuy, 25, 0.5), newTestContext(t, 0, 100)); d.Reason != ReasonPositionLimit {
		t.Errorf("expected per-market limit of 20 to apply, got %s", d.Reason)
	}
	if d := g.Evaluate(limitOrder(order.SideSell, 5, 0.5), newTestContext(t, 0, 100)); !d.Accepted {
		t.Errorf("expected short within tolerance to pass, got %s", d.Reason)
	}
	if d := g.Evaluate(limitOrder(order.SideSell, 6, 0.5), newTestContext(t, 0, 100)); d.Reason != ReasonPositionLimit {
		t.Errorf("expected short beyond tolerance to fail, got %s", d.Reason)
	}
}

func TestGate_MarketBuyUsesWorstCaseCost(t *testing.T) {
	g := newTestGate(t)
	o := order.Order{MarketID: "m1", TokenID: "YES", Side: order.SideBuy, Type: order.TypeMarket, Size: 10}

	// Worst case is the 0.99 ceiling: 10 * 0.99 = 9.9.
	if d := g.Evaluate(o, newTestContext(t, 0, 9.8)); d.Reason != ReasonInsufficientBalance {
		t.Errorf("expected insufficient balance at 9.8, got %s", d.Reason)
	}
	if d := g.Evaluate(o, newTestContext(t, 0, 9.9)); !d.Accepted {
		t.Errorf("expected accept at 9.9, got %s: %s", d.Reason, d.Detail)
	}

	// A protective price never lowers the estimate.
	o.Price = order.PriceOf(0.6)
	if d := g.Evaluate(o, newTestContext(t, 0, 6)); d.Reason != ReasonInsufficientBalance {
		t.Errorf("expected protective price not to shrink the cost, got %s", d.Reason)
	}
	if d := g.Evaluate(o, newTestContext(t, 0, 9.9)); !d.Accepted {
		t.Errorf("expected accept at 9.9 with protective price, got %s: %s", d.Reason, d.Detail)
	}
}

func TestGate_MarketBuyProtectivePriceOutOfRange(t *testing.T) {
	g := newTestGate(t)
	testCases := []struct {
		desc  string
		price float64
	}{
		{"tiny", 0.0001},
		{"at floor", 0.01},
		{"at ceiling", 0.99},
		{"above one", 1.5},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			o := order.Order{MarketID: "m1", TokenID: "YES", Side: order.SideBuy, Type: order.TypeMarket, Size: 90, Price: order.PriceOf(tc.price)}
			d := g.Evaluate(o, newTestContext(t, 0, 5))
			if d.Accepted || d.Reason != ReasonPriceRange {
				t.Errorf("expected price_range rejection, got accepted=%v reason=%s", d.Accepted, d.Reason)
			}
		})
	}
}

func TestGate_DoesNotMutateInputs(t *testing.T) {
	g := newTestGate(t)
	c := newTestContext(t, 5, 100)
	o := limitOrder(order.SideBuy, 10, 0.49)

	positionsBefore := c.Positions.All()
	marketsBefore := c.Markets.All()
	orderBefore := o

	g.Evaluate(o, c)
	g.Evaluate(limitOrder(order.SideSell, 20, 0.5), c)

	if !reflect.DeepEqual(positionsBefore, c.Positions.All()) {
		t.Error("gate mutated positions")
	}
	if !reflect.DeepEqual(marketsBefore, c.Markets.All()) {
		t.Error("gate mutated market data")
	}
	if c.Balance != 100 {
		t.Error("gate mutated balance")
	}
	if !reflect.DeepEqual(orderBefore, o) {
		t.Error("gate mutated order")
	}
}

func TestNewGate_RejectsBadLimits(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*Limits)
	}{
		{"zero max position", func(l *Limits) { l.MaxPosition = 0 }},
		{"infinite max position", func(l *Limits) { l.MaxPosition = math.Inf(1) }},
		{"negative per-market", func(l *Limits) { l.MaxPositionPerMarket = map[string]float64{"m": -1} }},
		{"negative tolerance", func(l *Limits) { l.ShortTolerance = -1 }},
		{"floor above ceiling", func(l *Limits) { l.PriceFloor, l.PriceCeiling = 0.9, 0.1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			l := DefaultLimits()
			tc.mutate(&l)
			if _, err := NewGate(l); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReasonStrings(t *testing.T) {
	want := map[Reason]string{
		ReasonNone:                "none",
		ReasonInvalidOrder:        "invalid_order",
		ReasonPositionLimit:       "position_limit",
		ReasonMissingPrice:        "missing_price",
		ReasonPriceRange:          "price_out_of_range",
		ReasonInsufficientBalance: "insufficient_balance",
	}
	for r, s := range want {
		if r.String() != s {
			t.Errorf("expected %s, got %s", s, r.String())
		}
	}
}
