package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"polytrader/internal/collector"
	"polytrader/internal/config"
	"polytrader/internal/journal"
	"polytrader/internal/market"
	"polytrader/internal/performance"
	"polytrader/internal/runtime"
	"polytrader/internal/strategy"
)

// observer is implemented by sinks that price orders off the latest snapshot.
type observer interface {
	Observe(snap *market.Snapshot)
}

// Deps are the collaborators of the trading loop. Collector and Tracker are
// optional.
type Deps struct {
	Mode      strategy.Mode
	Source    runtime.MarketDataSource
	Account   runtime.AccountSource
	Runtimes  []*runtime.Runtime
	Sinks     []runtime.OrderSink
	Journal   *journal.Journal
	Collector *collector.Collector
	Tracker   *performance.Tracker
}

// Scheduler orchestrates the main trading loop.
type Scheduler struct {
	deps Deps
	cfg  config.ScheduleConfig
	last *market.Snapshot
}

func New(deps Deps, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{deps: deps, cfg: cfg}
}

// Run starts all periodic loops and blocks until ctx is cancelled. Every
// runtime is stopped on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"mode", s.deps.Mode.String(),
		"strategies", len(s.deps.Runtimes),
		"cycle_interval", s.cfg.CycleInterval.Duration,
		"snapshot_interval", s.cfg.SnapshotInterval.Duration,
		"report_interval", s.cfg.ReportInterval.Duration,
	)
	defer s.stopAll()

	s.restore(ctx)

	// Run first cycle immediately.
	s.RunCycle(ctx)
	s.runCollection(ctx)

	cycleTicker := time.NewTicker(s.cfg.CycleInterval.Duration)
	snapshotTicker := time.NewTicker(s.cfg.SnapshotInterval.Duration)
	reportTicker := time.NewTicker(s.cfg.ReportInterval.Duration)
	defer cycleTicker.Stop()
	defer snapshotTicker.Stop()
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			s.runPerformanceReport(context.Background())
			return ctx.Err()
		case <-cycleTicker.C:
			s.RunCycle(ctx)
		case <-snapshotTicker.C:
			s.runCollection(ctx)
		case <-reportTicker.C:
			s.runPerformanceReport(ctx)
		}
	}
}

// RunCycle runs one invocation cycle for every live runtime against a shared
// snapshot, journals the reports and hands drained orders to every sink.
func (s *Scheduler) RunCycle(ctx context.Context) []runtime.Report {
	snap, err := s.deps.Source.Snapshot(ctx)
	if err != nil {
		slog.Error("market snapshot failed, skipping cycle", "error", err)
		return nil
	}
	s.last = snap
	s.observe(snap)

	positions, balance, err := s.deps.Account.Account(ctx)
	if err != nil {
		slog.Error("account refresh failed, skipping cycle", "error", err)
		return nil
	}

	cycle := runtime.Cycle{
		Mode:      s.deps.Mode,
		Snapshot:  snap,
		Positions: positions,
		Balance:   balance,
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout.Duration)
	defer cancel()

	reports := make([]runtime.Report, len(s.deps.Runtimes))
	ran := make([]bool, len(s.deps.Runtimes))
	var wg sync.WaitGroup
	for i, rt := range s.deps.Runtimes {
		wg.Add(1)
		go func(i int, rt *runtime.Runtime) {
			defer wg.Done()
			rep, err := rt.RunCycle(cycleCtx, cycle)
			if err != nil {
				if !errors.Is(err, runtime.ErrStopped) {
					slog.Error("strategy cycle refused", "strategy", rt.Name(), "error", err)
				}
				return
			}
			reports[i], ran[i] = rep, true
		}(i, rt)
	}
	wg.Wait()

	var out []runtime.Report
	for i, rt := range s.deps.Runtimes {
		if !ran[i] {
			continue
		}
		rep := reports[i]
		out = append(out, rep)

		if s.deps.Journal != nil {
			if _, err := s.deps.Journal.Record(ctx, rep); err != nil {
				slog.Error("failed to journal cycle", "strategy", rep.Strategy, "error", err)
			}
		}
		if rep.Err != nil {
			slog.Warn("strategy cycle did not complete", "strategy", rep.Strategy, "cycle", rep.Cycle, "cancelled", rep.Cancelled, "error", rep.Err)
		}

		orders := rt.Drain()
		if len(orders) == 0 {
			continue
		}
		for _, sink := range s.deps.Sinks {
			if err := sink.Submit(ctx, rt.Name(), orders); err != nil {
				slog.Error("order submission failed", "sink", sink.Name(), "strategy", rt.Name(), "error", err)
			}
		}
	}

	s.snapshotBankroll(ctx)
	return out
}

// restore primes the sinks with the last persisted snapshot so MARKET orders
// can be priced before the first scan lands.
func (s *Scheduler) restore(ctx context.Context) {
	if s.deps.Collector == nil {
		return
	}
	snap, err := s.deps.Collector.Latest(ctx)
	if err != nil {
		slog.Warn("failed to restore last snapshot", "error", err)
		return
	}
	if snap.Len() == 0 {
		return
	}
	s.observe(snap)
	slog.Info("restored last snapshot", "markets", snap.Len(), "taken_at", snap.TakenAt())
}

func (s *Scheduler) observe(snap *market.Snapshot) {
	for _, sink := range s.deps.Sinks {
		if o, ok := sink.(observer); ok {
			o.Observe(snap)
		}
	}
}

func (s *Scheduler) runCollection(ctx context.Context) {
	if s.deps.Collector == nil || s.last == nil {
		return
	}
	slog.Info("starting data collection", "markets", s.last.Len())
	if err := s.deps.Collector.Collect(ctx, s.last); err != nil {
		slog.Error("collection failed", "error", err)
	}
}

func (s *Scheduler) runPerformanceReport(ctx context.Context) {
	if s.deps.Tracker == nil {
		return
	}
	report, err := s.deps.Tracker.Generate(ctx)
	if err != nil {
		slog.Error("performance report failed", "error", err)
		return
	}
	performance.LogReport(report)
}

func (s *Scheduler) snapshotBankroll(ctx context.Context) {
	if s.deps.Journal == nil {
		return
	}
	positions, balance, err := s.deps.Account.Account(ctx)
	if err != nil {
		slog.Error("bankroll snapshot failed", "error", err)
		return
	}

	invested := 0.0
	for _, p := range positions.All() {
		price := p.AvgEntryPrice
		if p.CurrentPrice != nil {
			price = *p.CurrentPrice
		}
		invested += p.Size * price
	}
	if err := s.deps.Journal.SnapshotBankroll(ctx, balance, invested); err != nil {
		slog.Error("bankroll snapshot failed", "error", err)
	}
}

func (s *Scheduler) stopAll() {
	for _, rt := range s.deps.Runtimes {
		rt.Stop()
	}
}
