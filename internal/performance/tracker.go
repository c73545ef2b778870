package performance

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// Tracker computes runtime metrics from the journal tables.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report contains all performance metrics.
type Report struct {
	Cycles          int
	FailedCycles    int
	CancelledCycles int
	Proposed        int
	Accepted        int
	Rejected        int
	AcceptanceRate  float64
	Submitted       int
	SubmitFailures  int
	CurrentBalance  float64
	PeakBalance     float64
	MaxDrawdown     float64
	Rejections      map[string]int // reason -> count
	StrategyStats   map[string]StrategyStats
}

// StrategyStats contains per-strategy counts.
type StrategyStats struct {
	Cycles         int
	FailedCycles   int
	Proposed       int
	Accepted       int
	Rejected       int
	AcceptanceRate float64
	Rejections     map[string]int
}

// Generate computes the full performance report.
func (t *Tracker) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		Rejections:    make(map[string]int),
		StrategyStats: make(map[string]StrategyStats),
	}

	if err := t.computeStrategyStats(ctx, r); err != nil {
		return nil, fmt.Errorf("computing strategy stats: %w", err)
	}
	if err := t.computeRejections(ctx, r); err != nil {
		return nil, fmt.Errorf("computing rejections: %w", err)
	}
	if err := t.computeSubmissions(ctx, r); err != nil {
		return nil, fmt.Errorf("computing submissions: %w", err)
	}
	if err := t.computeDrawdown(ctx, r); err != nil {
		return nil, fmt.Errorf("computing drawdown: %w", err)
	}

	if r.Proposed > 0 {
		r.AcceptanceRate = float64(r.Accepted) / float64(r.Proposed)
	}
	return r, nil
}

func (t *Tracker) computeStrategyStats(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*),
		       COALESCE(SUM(CASE WHEN error IS NOT NULL AND cancelled = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(cancelled), 0),
		       COALESCE(SUM(proposed), 0), COALESCE(SUM(accepted), 0), COALESCE(SUM(rejected), 0)
		FROM cycles GROUP BY strategy`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var stats StrategyStats
		var cancelled int
		if err := rows.Scan(&name, &stats.Cycles, &stats.FailedCycles, &cancelled, &stats.Proposed, &stats.Accepted, &stats.Rejected); err != nil {
			return err
		}
		if stats.Proposed > 0 {
			stats.AcceptanceRate = float64(stats.Accepted) / float64(stats.Proposed)
		}
		stats.Rejections = make(map[string]int)
		r.StrategyStats[name] = stats

		r.Cycles += stats.Cycles
		r.FailedCycles += stats.FailedCycles
		r.CancelledCycles += cancelled
		r.Proposed += stats.Proposed
		r.Accepted += stats.Accepted
		r.Rejected += stats.Rejected
	}
	return rows.Err()
}

func (t *Tracker) computeRejections(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT strategy, COALESCE(reason, 'unknown'), COUNT(*)
		FROM order_decisions WHERE accepted = 0
		GROUP BY strategy, reason`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, reason string
		var count int
		if err := rows.Scan(&name, &reason, &count); err != nil {
			return err
		}
		r.Rejections[reason] += count
		if stats, ok := r.StrategyStats[name]; ok {
			stats.Rejections[reason] = count
		}
	}
	return rows.Err()
}

func (t *Tracker) computeSubmissions(ctx context.Context, r *Report) error {
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM submissions`)
	return row.Scan(&r.Submitted, &r.SubmitFailures)
}

func (t *Tracker) computeDrawdown(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `SELECT total_value FROM bankroll_snapshots ORDER BY id ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var peak, last float64
	var maxDD float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return err
		}
		last = value
		if value > peak {
			peak = value
		}
		if peak > 0 {
			dd := (peak - value) / peak
			maxDD = math.Max(maxDD, dd)
		}
	}
	r.CurrentBalance = last
	r.PeakBalance = peak
	r.MaxDrawdown = maxDD
	return rows.Err()
}
