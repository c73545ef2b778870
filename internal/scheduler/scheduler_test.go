package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"polytrader/internal/collector"
	"polytrader/internal/config"
	"polytrader/internal/db"
	"polytrader/internal/execution"
	"polytrader/internal/journal"
	"polytrader/internal/market"
	"polytrader/internal/order"
	"polytrader/internal/risk"
	"polytrader/internal/runtime"
	"polytrader/internal/strategy"
)

type fakeSource struct {
	snap  *market.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Snapshot(context.Context) (*market.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*sql.DB, *fakeSource, *runtime.Runtime) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	snap, err := market.NewSnapshot(time.Now(), market.MarketState{
		MarketID: "m1", TokenID: "YES", Bid: 0.45, Ask: 0.55, Midpoint: 0.50, Spread: 0.10, Volume: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}

	gate, err := risk.NewGate(risk.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	rt := runtime.New("mm", strategy.NewMarketMaker(discardLogger()), gate, discardLogger())
	if err := rt.Initialize(strategy.Params{"order_size": 10}); err != nil {
		t.Fatal(err)
	}
	return database, &fakeSource{snap: snap}, rt
}

func schedule() config.ScheduleConfig {
	return config.DefaultConfig().Schedule
}

func count(t *testing.T, database *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunCycle_PaperRoundTrip(t *testing.T) {
	database, source, rt := setup(t)
	paper := execution.NewPaper(100)

	s := New(Deps{
		Mode:     strategy.ModePaper,
		Source:   source,
		Account:  paper,
		Runtimes: []*runtime.Runtime{rt},
		Sinks:    []runtime.OrderSink{paper},
		Journal:  journal.New(database),
	}, schedule())

	reports := s.RunCycle(context.Background())
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].Err != nil || len(reports[0].Accepted) != 1 {
		t.Fatalf("expected one accepted order, got %+v", reports[0])
	}
	if rt.Pending() != 0 {
		t.Errorf("expected queue drained, %d pending", rt.Pending())
	}

	fills := paper.Fills()
	if len(fills) != 1 || fills[0].MarketID != "m1" {
		t.Fatalf("expected one fill in m1, got %+v", fills)
	}
	if got := paper.Balance(); got != 95.1 {
		t.Errorf("expected balance 95.1, got %v", got)
	}

	if n := count(t, database, "cycles"); n != 1 {
		t.Errorf("expected 1 journaled cycle, got %d", n)
	}
	if n := count(t, database, "bankroll_snapshots"); n != 1 {
		t.Errorf("expected 1 bankroll snapshot, got %d", n)
	}
}

func TestRunCycle_SourceFailureSkipsCycle(t *testing.T) {
	database, source, rt := setup(t)
	source.err = errors.New("manifold unavailable")
	paper := execution.NewPaper(100)

	s := New(Deps{
		Mode:     strategy.ModePaper,
		Source:   source,
		Account:  paper,
		Runtimes: []*runtime.Runtime{rt},
		Sinks:    []runtime.OrderSink{paper},
		Journal:  journal.New(database),
	}, schedule())

	if reports := s.RunCycle(context.Background()); reports != nil {
		t.Errorf("expected no reports, got %+v", reports)
	}
	if n := count(t, database, "cycles"); n != 0 {
		t.Errorf("expected nothing journaled, got %d", n)
	}
	if len(paper.Fills()) != 0 {
		t.Error("expected no fills")
	}
}

func TestRunCycle_SkipsStoppedRuntime(t *testing.T) {
	_, source, rt := setup(t)
	paper := execution.NewPaper(100)

	gate, err := risk.NewGate(risk.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	stopped := runtime.New("stopped", strategy.NewMarketMaker(discardLogger()), gate, discardLogger())
	if err := stopped.Initialize(strategy.Params{"order_size": -1}); err == nil {
		t.Fatal("expected initialization failure")
	}

	s := New(Deps{
		Mode:     strategy.ModePaper,
		Source:   source,
		Account:  paper,
		Runtimes: []*runtime.Runtime{stopped, rt},
		Sinks:    []runtime.OrderSink{paper},
	}, schedule())

	reports := s.RunCycle(context.Background())
	if len(reports) != 1 || reports[0].Strategy != "mm" {
		t.Fatalf("expected only the mm report, got %+v", reports)
	}
}

func TestRun_StopsRuntimesOnShutdown(t *testing.T) {
	_, source, rt := setup(t)
	paper := execution.NewPaper(100)

	s := New(Deps{
		Mode:     strategy.ModePaper,
		Source:   source,
		Account:  paper,
		Runtimes: []*runtime.Runtime{rt},
		Sinks:    []runtime.OrderSink{paper},
	}, schedule())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rt.State() != runtime.StateStopped {
		t.Errorf("expected runtime stopped, got %s", rt.State())
	}
	if len(paper.Fills()) != 0 {
		t.Error("expected cancelled cycle to submit nothing")
	}
}

func TestRestore_PricesSinksFromLastSnapshot(t *testing.T) {
	database, source, rt := setup(t)
	ctx := context.Background()

	coll := collector.NewCollector(database)
	if err := coll.Collect(ctx, source.snap); err != nil {
		t.Fatal(err)
	}

	paper := execution.NewPaper(100)
	s := New(Deps{
		Mode:      strategy.ModePaper,
		Source:    source,
		Account:   paper,
		Runtimes:  []*runtime.Runtime{rt},
		Sinks:     []runtime.OrderSink{paper},
		Collector: coll,
	}, schedule())
	s.restore(ctx)

	buy := order.Order{MarketID: "m1", TokenID: "YES", Side: order.SideBuy, Type: order.TypeMarket, Size: 10}
	if err := paper.Submit(ctx, "manual", []order.Order{buy}); err != nil {
		t.Fatalf("expected market order priced from restored snapshot: %v", err)
	}
	if fills := paper.Fills(); len(fills) != 1 || fills[0].Price != 0.5 {
		t.Errorf("expected one fill at 0.5, got %+v", fills)
	}
}
