// Package journal persists cycle reports and every order decision so rejected
// orders stay observable after the logs rotate.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"polytrader/internal/order"
	"polytrader/internal/runtime"
)

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record stores one cycle report and its accepted and rejected orders in a
// single transaction. It returns the cycle row id.
func (j *Journal) Record(ctx context.Context, rep runtime.Report) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning journal transaction: %w", err)
	}
	defer tx.Rollback()

	var errText *string
	if rep.Err != nil {
		s := rep.Err.Error()
		errText = &s
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (strategy, cycle, mode, started_at, duration_ms, ticks, tick_errors, proposed, accepted, rejected, cancelled, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.Strategy, rep.Cycle, rep.Mode.String(), rep.StartedAt.UTC().Format(time.RFC3339Nano),
		rep.Duration.Milliseconds(), rep.Ticks, rep.TickErrors, rep.Proposed,
		len(rep.Accepted), len(rep.Rejections), boolToInt(rep.Cancelled), errText,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting cycle: %w", err)
	}
	cycleID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading cycle id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_decisions (cycle_id, strategy, market_id, token_id, side, order_type, size, price, accepted, stage, reason, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing decision insert: %w", err)
	}
	defer stmt.Close()

	insert := func(o order.Order, accepted bool, stage, reason, detail string) error {
		_, err := stmt.ExecContext(ctx,
			cycleID, rep.Strategy, o.MarketID, o.TokenID, o.Side.String(), o.Type.String(), o.Size, o.Price,
			boolToInt(accepted), nullable(stage), nullable(reason), nullable(detail),
		)
		return err
	}
	for _, o := range rep.Accepted {
		if err := insert(o, true, "", "", ""); err != nil {
			return 0, fmt.Errorf("inserting accepted order: %w", err)
		}
	}
	for _, r := range rep.Rejections {
		if err := insert(r.Order, false, string(r.Stage), r.Reason, r.Detail); err != nil {
			return 0, fmt.Errorf("inserting rejected order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing journal: %w", err)
	}
	return cycleID, nil
}

// Decision is one journaled order outcome.
type Decision struct {
	CycleID  int64
	Strategy string
	MarketID string
	Side     string
	Type     string
	Size     float64
	Price    *float64
	Accepted bool
	Stage    string
	Reason   string
}

// Decisions returns the decisions of one cycle in insertion order.
func (j *Journal) Decisions(ctx context.Context, cycleID int64) ([]Decision, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT cycle_id, strategy, market_id, side, order_type, size, price, accepted, COALESCE(stage, ''), COALESCE(reason, '')
		FROM order_decisions WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var price sql.NullFloat64
		var accepted int
		if err := rows.Scan(&d.CycleID, &d.Strategy, &d.MarketID, &d.Side, &d.Type, &d.Size, &price, &accepted, &d.Stage, &d.Reason); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		if price.Valid {
			p := price.Float64
			d.Price = &p
		}
		d.Accepted = accepted == 1
		out = append(out, d)
	}
	return out, rows.Err()
}

// SnapshotBankroll stores the account value after a cycle.
func (j *Journal) SnapshotBankroll(ctx context.Context, balance, investmentValue float64) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO bankroll_snapshots (balance, investment_value, total_value)
		VALUES (?, ?, ?)`,
		balance, investmentValue, balance+investmentValue,
	)
	if err != nil {
		return fmt.Errorf("inserting bankroll snapshot: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
