package execution

import (
	"context"
	"database/sql"
	"fmt"

	"polytrader/internal/market"
)

// BalanceSource reports spendable cash. *risk.Portfolio satisfies it.
type BalanceSource interface {
	Refresh(ctx context.Context) error
	Balance() float64
}

// FixedBalance is a BalanceSource that never changes.
type FixedBalance float64

func (f FixedBalance) Refresh(context.Context) error { return nil }
func (f FixedBalance) Balance() float64            { return float64(f) }

// Ledger is the account source for sinks that do not hold positions
// themselves. Positions are rebuilt from the placed submissions of one sink.
type Ledger struct {
	db      *sql.DB
	sink    string
	balance BalanceSource
}

func NewLedger(db *sql.DB, sink string, balance BalanceSource) *Ledger {
	return &Ledger{db: db, sink: sink, balance: balance}
}

// Account refreshes the balance and aggregates the sink's placed orders into
// signed positions.
func (l *Ledger) Account(ctx context.Context) (market.PositionBook, float64, error) {
	if err := l.balance.Refresh(ctx); err != nil {
		return market.PositionBook{}, 0, fmt.Errorf("refreshing balance: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT market_id, MAX(token_id),
		       SUM(CASE WHEN side = 'BUY' THEN size ELSE -size END),
		       COALESCE(SUM(CASE WHEN side = 'BUY' THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN side = 'BUY' THEN size ELSE 0 END), 0)
		FROM submissions
		WHERE sink = ? AND status = 'placed'
		GROUP BY market_id`, l.sink)
	if err != nil {
		return market.PositionBook{}, 0, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var positions []market.Position
	for rows.Next() {
		var p market.Position
		var spent, bought float64
		if err := rows.Scan(&p.MarketID, &p.TokenID, &p.Size, &spent, &bought); err != nil {
			return market.PositionBook{}, 0, fmt.Errorf("scanning position: %w", err)
		}
		if bought > 0 {
			p.AvgEntryPrice = spent / bought
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return market.PositionBook{}, 0, err
	}
	return market.NewPositionBook(positions...), l.balance.Balance(), nil
}
