package performance

import (
	"log/slog"
	"sort"
)

// LogReport logs the performance report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== PERFORMANCE REPORT ===",
		"cycles", r.Cycles,
		"failed_cycles", r.FailedCycles,
		"cancelled_cycles", r.CancelledCycles,
		"proposed", r.Proposed,
		"accepted", r.Accepted,
		"rejected", r.Rejected,
		"acceptance_rate", r.AcceptanceRate,
		"submitted", r.Submitted,
		"submit_failures", r.SubmitFailures,
		"balance", r.CurrentBalance,
		"peak_balance", r.PeakBalance,
		"max_drawdown", r.MaxDrawdown,
	)

	names := make([]string, 0, len(r.StrategyStats))
	for name := range r.StrategyStats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stats := r.StrategyStats[name]
		slog.Info("strategy performance",
			"strategy", name,
			"cycles", stats.Cycles,
			"failed_cycles", stats.FailedCycles,
			"proposed", stats.Proposed,
			"accepted", stats.Accepted,
			"rejected", stats.Rejected,
			"acceptance_rate", stats.AcceptanceRate,
			"rejections", stats.Rejections,
		)
	}
}
