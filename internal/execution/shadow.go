package execution

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"polytrader/internal/market"
	"polytrader/internal/order"
)

// Intent is an order a SHADOW run would have sent.
type Intent struct {
	Strategy string
	Order    order.Order
	Outcome  string
	Amount   float64
	At       time.Time
}

// Shadow records what the live sink would place without sending anything.
type Shadow struct {
	db *sql.DB

	mu      sync.Mutex
	prices  map[string]float64
	intents []Intent
}

func NewShadow(db *sql.DB) *Shadow {
	return &Shadow{db: db, prices: make(map[string]float64)}
}

func (s *Shadow) Name() string { return "shadow" }

func (s *Shadow) Observe(snap *market.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range snap.States() {
		s.prices[st.MarketID] = st.Midpoint
	}
}

func (s *Shadow) Submit(ctx context.Context, strategyName string, orders []order.Order) error {
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		ref := s.prices[o.MarketID]
		s.mu.Unlock()

		in := Intent{Strategy: strategyName, Order: o, At: time.Now()}
		req, err := betRequest(o, ref)
		if err != nil {
			slog.Warn("shadow order would be refused", "strategy", strategyName, "order", o.String(), "error", err)
		} else {
			in.Outcome, in.Amount = req.Outcome, req.Amount
		}

		s.mu.Lock()
		s.intents = append(s.intents, in)
		s.mu.Unlock()

		slog.Info("shadow order", "strategy", strategyName, "order", o.String(), "outcome", in.Outcome, "amount", in.Amount)
		if s.db != nil {
			if dbErr := recordSubmission(s.db, s.Name(), strategyName, o, in.Outcome, in.Amount, req.LimitProb, err); dbErr != nil {
				slog.Error("failed to record shadow order", "error", dbErr)
			}
		}
	}
	return nil
}

// Intents returns every recorded order.
func (s *Shadow) Intents() []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Intent, len(s.intents))
	copy(out, s.intents)
	return out
}
