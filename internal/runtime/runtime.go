// Package runtime drives one strategy instance through its lifecycle and makes
// sure nothing it proposes reaches the order queue without passing the risk gate.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polytrader/internal/market"
	"polytrader/internal/order"
	"polytrader/internal/risk"
	"polytrader/internal/strategy"
)

var (
	// ErrNotInitialized is returned by RunCycle before a successful Initialize.
	ErrNotInitialized = errors.New("strategy not initialized")

	// ErrStopped is returned once the runtime reached its terminal state.
	ErrStopped = errors.New("strategy runtime stopped")
)

// State is the lifecycle state of a Runtime.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleError records a ProposeOrders failure. The cycle's orders are discarded
// and the runtime continues with the next cycle.
type CycleError struct {
	Strategy string
	Cycle    uint64
	Err      error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d of %s failed: %v", e.Cycle, e.Strategy, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic from a strategy hook.
type PanicError struct {
	Hook  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Hook, e.Value)
}

// Cycle is the host-built input of one invocation cycle.
type Cycle struct {
	Mode       strategy.Mode
	Snapshot   *market.Snapshot
	Positions  market.PositionBook
	Balance    float64
	Parameters strategy.Params // nil means the params given to Initialize
}

// Stage names where an order was rejected.
type Stage string

const (
	StageValidation Stage = "validation"
	StageStrategy   Stage = "strategy"
	StageGate       Stage = "gate"
)

// Rejection is one order that did not make it into the queue.
type Rejection struct {
	Order  order.Order
	Stage  Stage
	Reason string
	Detail string
}

// Report summarizes one cycle for logs, the journal and performance tracking.
type Report struct {
	Strategy   string
	Cycle      uint64
	Mode       strategy.Mode
	StartedAt  time.Time
	Duration   time.Duration
	Ticks      int
	TickErrors int
	Proposed   int
	Accepted   []order.Order
	Rejections []Rejection
	Cancelled  bool
	Err        error // CycleError or the context error, nil on success
}

// Runtime owns one strategy instance. Lifecycle calls are serialized, so the
// strategy never sees two hooks running at once.
type Runtime struct {
	name     string
	strategy strategy.Strategy
	gate     *risk.Gate
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	cycle  uint64
	params strategy.Params
	queue  OrderQueue
}

func New(name string, s strategy.Strategy, gate *risk.Gate, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		name:     name,
		strategy: s,
		gate:     gate,
		log:      logger.With("strategy", name),
	}
}

func (r *Runtime) Name() string { return r.name }

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Initialize applies params to the strategy. It may be called again to
// re-apply configuration; a failure is fatal and stops the runtime.
func (r *Runtime) Initialize(params strategy.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateStopped {
		return ErrStopped
	}

	err := guard("initialize", func() error {
		return r.strategy.Initialize(params.Clone())
	})
	if err != nil {
		r.state = StateStopped
		r.log.Error("strategy initialization failed", "error", err)
		return fmt.Errorf("initializing strategy %s: %w", r.name, err)
	}

	r.params = params.Clone()
	r.state = StateInitialized
	r.log.Info("strategy initialized", "params", r.params.Keys())
	return nil
}

// Stop moves the runtime to its terminal state. Queued orders stay drainable.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped {
		r.state = StateStopped
		r.log.Info("strategy stopped", "cycles", r.cycle)
	}
}

// Drain hands every accepted order to the host and empties the queue.
func (r *Runtime) Drain() []order.Order {
	return r.queue.Drain()
}

// Pending is the number of accepted orders not yet drained.
func (r *Runtime) Pending() int {
	return r.queue.Len()
}

// RunCycle runs OnTick for every market in the snapshot, then ProposeOrders
// once, then the strategy's RiskCheck and the gate for each candidate in the
// order proposed. Accepted orders are committed to the queue together at the
// end; a failed or cancelled cycle commits nothing.
//
// The returned error is reserved for lifecycle misuse. Cycle outcomes,
// including failures, are reported through Report.
func (r *Runtime) RunCycle(ctx context.Context, c Cycle) (rep Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateUninitialized:
		return Report{}, ErrNotInitialized
	case StateStopped:
		return Report{}, ErrStopped
	}
	r.state = StateRunning
	r.cycle++

	rep = Report{
		Strategy:  r.name,
		Cycle:     r.cycle,
		Mode:      c.Mode,
		StartedAt: time.Now(),
	}
	defer func() { rep.Duration = time.Since(rep.StartedAt) }()

	params := c.Parameters
	if params == nil {
		params = r.params
	}
	sctx := strategy.Context{
		Mode:       c.Mode,
		Positions:  c.Positions,
		Balance:    c.Balance,
		Markets:    c.Snapshot,
		Parameters: params.Clone(),
	}

	if r.cancelled(ctx, &rep, "before ticks") {
		return rep, nil
	}
	r.tick(c.Snapshot, &rep)
	if r.cancelled(ctx, &rep, "after ticks") {
		return rep, nil
	}

	var proposed []order.Order
	err = guard("propose_orders", func() error {
		var err error
		proposed, err = r.strategy.ProposeOrders(sctx)
		return err
	})
	if err != nil {
		rep.Err = &CycleError{Strategy: r.name, Cycle: r.cycle, Err: err}
		r.log.Error("propose orders failed, discarding cycle", "cycle", r.cycle, "error", err)
		return rep, nil
	}
	rep.Proposed = len(proposed)

	staged := make([]order.Order, 0, len(proposed))
	for _, o := range proposed {
		if r.cancelled(ctx, &rep, "during risk checks") {
			return rep, nil
		}
		o = cloneOrder(o)
		if rej, ok := r.check(o, sctx); !ok {
			rep.Rejections = append(rep.Rejections, rej)
			continue
		}
		staged = append(staged, o)
	}
	if r.cancelled(ctx, &rep, "before commit") {
		return rep, nil
	}

	r.queue.enqueue(staged...)
	rep.Accepted = make([]order.Order, len(staged))
	for i, o := range staged {
		rep.Accepted[i] = cloneOrder(o)
	}

	r.log.Info("cycle complete",
		"cycle", r.cycle,
		"ticks", rep.Ticks,
		"tick_errors", rep.TickErrors,
		"proposed", rep.Proposed,
		"accepted", len(rep.Accepted),
		"rejected", len(rep.Rejections),
	)
	return rep, nil
}

func (r *Runtime) tick(snap *market.Snapshot, rep *Report) {
	states := snap.States()
	rep.Ticks = len(states)
	if len(states) == 0 {
		return
	}

	if bt, ok := r.strategy.(strategy.BatchTicker); ok {
		if err := guard("on_ticks", func() error { return bt.OnTicks(states) }); err != nil {
			rep.TickErrors++
			r.log.Warn("batched tick failed", "markets", len(states), "error", err)
		}
		return
	}

	for _, st := range states {
		if err := guard("on_tick", func() error { return r.strategy.OnTick(st) }); err != nil {
			rep.TickErrors++
			r.log.Warn("tick failed", "market", st.MarketID, "error", err)
		}
	}
}

// check runs validation, the strategy's own opinion and the gate. Both the
// strategy and the gate must accept; an error counts as a rejection.
func (r *Runtime) check(o order.Order, sctx strategy.Context) (Rejection, bool) {
	if err := o.Validate(); err != nil {
		r.log.Warn("dropping malformed order", "order", o.String(), "error", err)
		return Rejection{Order: o, Stage: StageValidation, Reason: "invalid_order", Detail: err.Error()}, false
	}

	var approved bool
	err := guard("risk_check", func() error {
		var err error
		approved, err = r.strategy.RiskCheck(cloneOrder(o), sctx)
		return err
	})
	if err != nil {
		r.log.Warn("strategy risk check failed, rejecting order", "order", o.String(), "error", err)
		return Rejection{Order: o, Stage: StageStrategy, Reason: "risk_check_error", Detail: err.Error()}, false
	}
	if !approved {
		r.log.Info("order vetoed by strategy", "order", o.String())
		return Rejection{Order: o, Stage: StageStrategy, Reason: "strategy_veto"}, false
	}

	if d := r.gate.Evaluate(o, sctx); !d.Accepted {
		r.log.Info("order rejected by risk gate", "order", o.String(), "reason", d.Reason.String(), "detail", d.Detail)
		return Rejection{Order: o, Stage: StageGate, Reason: d.Reason.String(), Detail: d.Detail}, false
	}
	return Rejection{}, true
}

func (r *Runtime) cancelled(ctx context.Context, rep *Report, where string) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	rep.Cancelled = true
	rep.Err = err
	r.log.Warn("cycle cancelled, discarding orders", "cycle", r.cycle, "at", where, "error", err)
	return true
}

// guard runs a strategy hook, turning a panic into an error.
func guard(hook string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Hook: hook, Value: v}
		}
	}()
	return fn()
}

func cloneOrder(o order.Order) order.Order {
	if o.Price != nil {
		o.Price = order.PriceOf(*o.Price)
	}
	return o
}
