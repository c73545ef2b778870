package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonnyspicer/mango"
	"github.com/shopspring/decimal"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// maxFailures is how many consecutive failures park a market.
const maxFailures = 3

var (
	minLimit = decimal.RequireFromString("0.01")
	maxLimit = decimal.RequireFromString("0.99")
)

// Manifold sends queued orders to Manifold as limit bets. A BUY is a YES bet
// limited at the order price; a SELL is a NO bet at the same limit, which is
// the Manifold way of taking the other side of a binary market.
type Manifold struct {
	post   func(mango.PostBetRequest) error
	db     *sql.DB
	minBet float64

	mu         sync.Mutex
	prices     map[string]float64
	failedBets map[string]int // market id -> consecutive failure count
}

func NewManifold(client *mango.Client, db *sql.DB, minBet float64) *Manifold {
	return newManifold(func(req mango.PostBetRequest) error {
		_, err := client.PostBet(req)
		return err
	}, db, minBet)
}

func newManifold(post func(mango.PostBetRequest) error, db *sql.DB, minBet float64) *Manifold {
	return &Manifold{
		post:       post,
		db:         db,
		minBet:     minBet,
		prices:     make(map[string]float64),
		failedBets: make(map[string]int),
	}
}

func (m *Manifold) Name() string { return "manifold" }

// Observe records midpoints used to size MARKET orders.
func (m *Manifold) Observe(snap *market.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range snap.States() {
		m.prices[st.MarketID] = st.Midpoint
	}
}

// Submit places one bet per order. Failures are collected and returned
// together; they never stop the remaining orders.
func (m *Manifold) Submit(ctx context.Context, strategyName string, orders []order.Order) error {
	var errs []error
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := m.submitOne(strategyName, o); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.MarketID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manifold) submitOne(strategyName string, o order.Order) error {
	m.mu.Lock()
	failures := m.failedBets[o.MarketID]
	ref := m.prices[o.MarketID]
	m.mu.Unlock()

	// Skip markets that have failed repeatedly (e.g. resolved or closed).
	if failures >= maxFailures {
		slog.Info("skipping repeatedly failed market", "market", o.MarketID)
		return fmt.Errorf("skipped: failed %d times", failures)
	}

	req, err := betRequest(o, ref)
	if err != nil {
		return err
	}
	if req.Amount < m.minBet {
		slog.Debug("bet below minimum, skipping", "market", o.MarketID, "amount", req.Amount, "min_bet", m.minBet)
		return nil
	}

	slog.Info("placing bet",
		"strategy", strategyName,
		"market", o.MarketID,
		"outcome", req.Outcome,
		"amount", req.Amount,
		"order", o.String(),
	)

	if err := m.post(req); err != nil {
		m.recordFailure(o.MarketID, err)
		m.record(strategyName, o, req, err)
		return err
	}

	m.mu.Lock()
	delete(m.failedBets, o.MarketID)
	m.mu.Unlock()
	m.record(strategyName, o, req, nil)

	slog.Info("bet placed successfully", "strategy", strategyName, "market", o.MarketID, "outcome", req.Outcome, "amount", req.Amount)
	return nil
}

func (m *Manifold) recordFailure(marketID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	errStr := err.Error()
	// Permanently failing markets are parked immediately.
	if strings.Contains(errStr, "resolved") || strings.Contains(errStr, "status 403") || strings.Contains(errStr, "status 404") {
		m.failedBets[marketID] = 100
		slog.Warn("market permanently blacklisted", "market", marketID, "error", err)
	} else {
		m.failedBets[marketID]++
	}
	slog.Error("bet failed", "market", marketID, "error", err, "consecutive_failures", m.failedBets[marketID])
}

func (m *Manifold) record(strategyName string, o order.Order, req mango.PostBetRequest, postErr error) {
	if m.db == nil {
		return
	}
	if err := recordSubmission(m.db, m.Name(), strategyName, o, req.Outcome, req.Amount, req.LimitProb, postErr); err != nil {
		slog.Error("failed to record bet in db", "error", err)
	}
}

// betRequest maps an order onto a Manifold bet. ref is the price used to
// size a MARKET order that carries no protective price.
func betRequest(o order.Order, ref float64) (mango.PostBetRequest, error) {
	price, priced := o.HasPrice()
	if !priced {
		if o.Type.Priced() {
			return mango.PostBetRequest{}, fmt.Errorf("%s order without price", o.Type)
		}
		price = ref
	}
	if !(price > 0 && price < 1) {
		return mango.PostBetRequest{}, fmt.Errorf("no usable price for %s: %v", o.MarketID, price)
	}

	p := decimal.NewFromFloat(price)
	size := decimal.NewFromFloat(o.Size)

	if o.Type.Priced() {
		// Manifold accepts limits at whole-percent precision. Rounding goes
		// against us so the bet is never priced worse than the order.
		if o.Side == order.SideBuy {
			p = p.RoundFloor(2)
		} else {
			p = p.RoundCeil(2)
		}
		if !(p.GreaterThan(minLimit) && p.LessThan(maxLimit)) {
			return mango.PostBetRequest{}, fmt.Errorf("limit %s for %s outside (%s, %s)", p, o.MarketID, minLimit, maxLimit)
		}
	}

	req := mango.PostBetRequest{ContractId: o.MarketID}
	switch o.Side {
	case order.SideBuy:
		req.Outcome = "YES"
		req.Amount = size.Mul(p).Round(2).InexactFloat64()
	case order.SideSell:
		req.Outcome = "NO"
		req.Amount = size.Mul(decimal.NewFromInt(1).Sub(p)).Round(2).InexactFloat64()
	default:
		return mango.PostBetRequest{}, fmt.Errorf("unknown side %s", o.Side)
	}

	if o.Type.Priced() {
		limit := p.InexactFloat64()
		req.LimitProb = &limit
	}
	return req, nil
}
