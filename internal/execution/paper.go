package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// Fill is a simulated execution of one order.
type Fill struct {
	Strategy string
	MarketID string
	TokenID  string
	Side     order.Side
	Price    float64
	Size     float64
	At       time.Time
}

type paperPosition struct {
	tokenID     string
	size        decimal.Decimal
	avgEntry    decimal.Decimal
	realizedPnL decimal.Decimal
}

// Paper is a virtual account. It is both the AccountSource and the OrderSink
// of a PAPER run: every submitted order fills immediately, LIMIT-family orders
// at their price and MARKET orders at the last observed midpoint.
type Paper struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	positions map[string]*paperPosition
	prices    map[string]float64
	fills     []Fill
	now       func() time.Time
}

func NewPaper(initialBalance float64) *Paper {
	return &Paper{
		balance:   decimal.NewFromFloat(initialBalance),
		positions: make(map[string]*paperPosition),
		prices:    make(map[string]float64),
		now:       time.Now,
	}
}

func (p *Paper) Name() string { return "paper" }

// Observe records midpoints for MARKET fills and unrealized PnL.
func (p *Paper) Observe(snap *market.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range snap.States() {
		p.prices[st.MarketID] = st.Midpoint
	}
}

// Account returns the current positions and cash balance.
func (p *Paper) Account(ctx context.Context) (market.PositionBook, float64, error) {
	if err := ctx.Err(); err != nil {
		return market.PositionBook{}, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]market.Position, 0, len(p.positions))
	for id, pos := range p.positions {
		mp := market.Position{
			MarketID:      id,
			TokenID:       pos.tokenID,
			Size:          pos.size.InexactFloat64(),
			AvgEntryPrice: pos.avgEntry.InexactFloat64(),
			RealizedPnL:   pos.realizedPnL.InexactFloat64(),
		}
		if price, ok := p.prices[id]; ok {
			current := price
			mp.CurrentPrice = &current
			mp.UnrealizedPnL = decimal.NewFromFloat(price).Sub(pos.avgEntry).Mul(pos.size).InexactFloat64()
		}
		positions = append(positions, mp)
	}
	return market.NewPositionBook(positions...), p.balance.InexactFloat64(), nil
}

// Submit fills each order in turn. Orders that cannot be filled are skipped
// and reported together in the returned error.
func (p *Paper) Submit(ctx context.Context, strategyName string, orders []order.Order) error {
	var errs []error
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := p.fill(strategyName, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Paper) fill(strategyName string, o order.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var execPrice float64
	if o.Type == order.TypeMarket {
		price, ok := p.prices[o.MarketID]
		if !ok {
			return fmt.Errorf("no price available for %s", o.MarketID)
		}
		execPrice = price
	} else {
		price, ok := o.HasPrice()
		if !ok {
			return fmt.Errorf("%s order for %s without price", o.Type, o.MarketID)
		}
		execPrice = price
	}

	price := decimal.NewFromFloat(execPrice)
	size := decimal.NewFromFloat(o.Size)
	notional := price.Mul(size)

	pos, ok := p.positions[o.MarketID]
	if !ok {
		pos = &paperPosition{tokenID: o.TokenID}
	}

	switch o.Side {
	case order.SideBuy:
		if p.balance.LessThan(notional) {
			return fmt.Errorf("insufficient balance for %s: need %s, have %s", o.MarketID, notional, p.balance)
		}
		p.balance = p.balance.Sub(notional)
		total := pos.size.Add(size)
		if total.IsPositive() {
			pos.avgEntry = pos.avgEntry.Mul(pos.size).Add(notional).Div(total)
		}
		pos.size = total
	case order.SideSell:
		if pos.size.LessThan(size) {
			return fmt.Errorf("insufficient position in %s: need %s, have %s", o.MarketID, size, pos.size)
		}
		p.balance = p.balance.Add(notional)
		pos.realizedPnL = pos.realizedPnL.Add(price.Sub(pos.avgEntry).Mul(size))
		pos.size = pos.size.Sub(size)
		if pos.size.IsZero() {
			pos.avgEntry = decimal.Zero
		}
	default:
		return fmt.Errorf("unknown side %s", o.Side)
	}
	p.positions[o.MarketID] = pos

	p.fills = append(p.fills, Fill{
		Strategy: strategyName,
		MarketID: o.MarketID,
		TokenID:  o.TokenID,
		Side:     o.Side,
		Price:    execPrice,
		Size:     o.Size,
		At:       p.now(),
	})

	slog.Info("paper order filled",
		"strategy", strategyName,
		"market", o.MarketID,
		"side", o.Side.String(),
		"price", execPrice,
		"size", o.Size,
		"balance", p.balance.StringFixed(4),
	)
	return nil
}

// Fills returns every simulated fill so far.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

// Balance returns the cash balance.
func (p *Paper) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance.InexactFloat64()
}
