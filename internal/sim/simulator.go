// Package sim assembles the execution simulator: the synthetic market, the
// order manager, the execution router and the risk monitor, all driven by
// one scheduler.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/alanyoungcy/execsim/internal/cost"
	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/executor"
	"github.com/alanyoungcy/execsim/internal/market"
	"github.com/alanyoungcy/execsim/internal/report"
	"github.com/alanyoungcy/execsim/internal/sched"
	"github.com/alanyoungcy/execsim/internal/service"
)

// Loop defaults used when the config leaves an interval unset.
const (
	DefaultMarketInterval = time.Second
	DefaultRiskInterval   = 5 * time.Second
	DefaultOrderInterval  = time.Second
	DefaultVenue          = "SIM"
)

// Simulator is one execution simulation run. It is safe for concurrent use;
// orders may be submitted from any goroutine while the loops run.
type Simulator struct {
	cfg       domain.ExecutionConfig
	clk       clock.Clock
	logger    *slog.Logger
	observers observers
	extraLPs  []symbolLP

	sched   *sched.Scheduler
	books   *market.BookStore
	market  *market.Simulator
	ledger  *service.Ledger
	orders  *service.OrderManager
	risk    *service.RiskMonitor
	filler  *executor.Filler
	router  *executor.Router
	reports *report.Generator

	// gate is held shared by order admission and exclusively by Stop
	// before its cancel sweep, so no order is accepted after the sweep.
	gate sync.RWMutex

	mu      sync.Mutex
	session domain.TradingSession
	started bool
	running bool
	halted  bool
	runCtx  context.Context
	cancel  context.CancelFunc
	runDone chan struct{}
	final   *domain.ExecutionReport
}

// New builds a Simulator for cfg and session. Nothing runs until Start.
func New(cfg domain.ExecutionConfig, session domain.TradingSession, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		clk:    clock.New(),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	base := s.logger
	s.logger = base.With(slog.String("component", "simulator"))

	if len(cfg.Market.Symbols) == 0 {
		return nil, fmt.Errorf("sim: new: no symbols configured: %w", domain.ErrValidation)
	}
	if cfg.MarketInterval <= 0 {
		cfg.MarketInterval = DefaultMarketInterval
	}
	if cfg.RiskInterval <= 0 {
		cfg.RiskInterval = DefaultRiskInterval
	}
	if cfg.OrderInterval <= 0 {
		cfg.OrderInterval = DefaultOrderInterval
	}
	if cfg.Venue == "" {
		cfg.Venue = DefaultVenue
	}
	s.cfg = cfg

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.StartTime.IsZero() {
		session.StartTime = s.clk.Now()
	}
	session.EndTime = nil
	s.session = session

	lps := market.NewLiquidityProviderSet()
	for _, spec := range cfg.Market.LiquidityProviders {
		lps.Register(spec.Symbol, market.NewQuotingProvider(spec))
	}
	for _, extra := range s.extraLPs {
		lps.Register(extra.symbol, extra.lp)
	}

	// Separate streams keep the market path independent of order flow.
	marketRand := market.NewRand(cfg.Seed)
	execRand := market.NewRand(cfg.Seed + 1)

	s.sched = sched.New(s.clk, base)
	s.books = market.NewBookStore()
	s.market = market.NewSimulator(s.books, cfg.Market, lps, marketRand, s.clk, base)
	s.ledger = service.NewLedger()
	s.orders = service.NewOrderManager(s.books, s.ledger, session, cfg.DayLength, s.clk, base)
	s.risk = service.NewRiskMonitor(cfg.RiskControls, session, s.ledger, s.books, s.orders, s.clk, base)
	s.filler = executor.NewFiller(s.sched, s.orders, s.books, s.ledger,
		cost.NewModel(cfg.Costs), cfg.Impact,
		executor.NewLatencyModel(cfg.Latency, execRand),
		cfg.Venue, base)
	s.router = executor.NewRouter(&executor.Env{
		Sched:    s.sched,
		Orders:   s.orders,
		Books:    s.books,
		Filler:   s.filler,
		Rand:     execRand,
		Defaults: cfg.Algorithms,
		Logger:   base,
	})
	s.reports = report.NewGenerator(base)

	s.orders.SetListener(s.observers.OnOrder)
	s.filler.SetListeners(s.observers.OnFill, s.risk.Record)
	s.risk.SetListener(s.observers.OnRisk)
	s.risk.SetActions(func(ctx context.Context, o domain.TradeOrder) (string, error) {
		var id string
		err := s.admit(func() error {
			routed, err := s.router.Submit(ctx, o)
			id = routed.ID
			return err
		})
		return id, err
	}, s.halt)

	return s, nil
}

// Start seeds the books and starts the market, risk and order loops. With
// a real clock the loops run on their own goroutine until Stop or ctx is
// cancelled; with a mock clock they run inside Advance.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sim: start: %w", domain.ErrAlreadyRunning)
	}
	if err := s.market.Seed(); err != nil {
		return fmt.Errorf("sim: start: %w", err)
	}
	for _, sym := range s.books.Symbols() {
		if snap, ok := s.books.Get(sym); ok {
			s.observers.OnBook(snap)
		}
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.running = true

	s.sched.Every(s.cfg.MarketInterval, "market_tick", s.marketTick)
	s.sched.Every(s.cfg.RiskInterval, "risk_tick", s.riskTick)
	s.sched.Every(s.cfg.OrderInterval, "order_tick", s.orderTick)

	if _, virtual := s.clk.(*clock.Mock); !virtual {
		s.runDone = make(chan struct{})
		go func(ctx context.Context) {
			defer close(s.runDone)
			if err := s.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sim: scheduler exited", slog.String("error", err.Error()))
			}
			s.mu.Lock()
			wasRunning := s.running
			s.running = false
			s.mu.Unlock()
			if wasRunning {
				s.logger.Warn("sim: run context ended before stop")
			}
		}(s.runCtx)
	}

	s.logger.InfoContext(ctx, "sim: started",
		slog.String("session_id", s.session.ID),
		slog.Int("symbols", len(s.cfg.Market.Symbols)),
		slog.Int("risk_controls", len(s.risk.Controls())),
		slog.Duration("market_interval", s.cfg.MarketInterval),
		slog.Duration("risk_interval", s.cfg.RiskInterval),
		slog.Duration("order_interval", s.cfg.OrderInterval),
	)
	return nil
}

// Stop halts every loop, cancels all outstanding orders and returns the
// session report. Calling Stop again returns the same report.
func (s *Simulator) Stop(ctx context.Context) (domain.ExecutionReport, error) {
	s.mu.Lock()
	if s.final != nil {
		r := *s.final
		s.mu.Unlock()
		return r, nil
	}
	if !s.started {
		s.mu.Unlock()
		return domain.ExecutionReport{}, fmt.Errorf("sim: stop: %w", domain.ErrNotRunning)
	}
	s.running = false
	s.cancel()
	done := s.runDone
	s.mu.Unlock()

	// Wait out submissions admitted before running went false.
	s.gate.Lock()
	s.gate.Unlock()

	s.sched.Clear()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return domain.ExecutionReport{}, fmt.Errorf("sim: stop: %w", ctx.Err())
		}
	}

	cancelled := s.orders.CancelAll("simulation stopped")
	end := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final != nil {
		return *s.final, nil
	}
	s.session.EndTime = &end
	r := s.reports.Generate(report.Input{
		Session:    s.session,
		End:        end,
		Orders:     s.orders.All(),
		Fills:      s.ledger.Fills(),
		RiskEvents: s.risk.Events(),
		Halted:     s.halted,
	})
	s.final = &r

	s.logger.InfoContext(ctx, "sim: stopped",
		slog.String("session_id", s.session.ID),
		slog.Int("cancelled_orders", len(cancelled)),
		slog.Int("fills", r.TotalFills),
		slog.Bool("halted", s.halted),
	)
	return r, nil
}

// halt stops the engine from inside a risk tick. Orders stay as they are
// until Stop.
func (s *Simulator) halt(reason string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.halted = true
	s.cancel()
	s.mu.Unlock()

	s.sched.Clear()
	s.logger.Error("sim: trading halted", slog.String("reason", reason))
}

func (s *Simulator) marketTick(ctx context.Context) {
	for _, snap := range s.market.Tick() {
		if ctx.Err() != nil {
			return
		}
		s.observers.OnBook(snap)
	}
}

func (s *Simulator) riskTick(ctx context.Context) {
	s.risk.Check(ctx)
}

func (s *Simulator) orderTick(ctx context.Context) {
	s.router.ProcessTick(ctx)
}

// SubmitOrder validates, risk-checks and routes order, returning its id.
// Validation and risk failures leave no state behind.
func (s *Simulator) SubmitOrder(ctx context.Context, order domain.TradeOrder) (string, error) {
	order.Internal = false
	var id string
	err := s.admit(func() error {
		routed, err := s.router.Submit(ctx, order)
		id = routed.ID
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// admit runs submit while the engine is live and holds Stop's sweep off
// until it returns.
func (s *Simulator) admit(submit func() error) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.IsRunning() {
		return fmt.Errorf("sim: submit: %w", domain.ErrNotRunning)
	}
	return submit()
}

// ScheduleOrder submits order after delay on the simulator clock. Failures
// are logged.
func (s *Simulator) ScheduleOrder(delay time.Duration, order domain.TradeOrder) error {
	if !s.IsRunning() {
		return fmt.Errorf("sim: schedule order: %w", domain.ErrNotRunning)
	}
	s.sched.After(delay, "scenario_order", func(ctx context.Context) {
		id, err := s.SubmitOrder(ctx, order)
		if err != nil {
			s.logger.WarnContext(ctx, "sim: scheduled order failed",
				slog.String("symbol", order.Symbol),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.InfoContext(ctx, "sim: scheduled order submitted", slog.String("order_id", id))
	})
	return nil
}

// CancelOrder cancels a non-terminal order. It returns false if the order
// is unknown or already terminal.
func (s *Simulator) CancelOrder(id string) bool {
	return s.orders.Cancel(id, "cancelled by request")
}

// Order returns a copy of the order with id.
func (s *Simulator) Order(id string) (domain.TradeOrder, error) {
	o, ok := s.orders.Get(id)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("sim: order %q: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// OrderStatus returns the status of the order with id.
func (s *Simulator) OrderStatus(id string) (domain.OrderStatus, error) {
	o, err := s.Order(id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// Orders returns every order of the session in submission order.
func (s *Simulator) Orders() []domain.TradeOrder {
	return s.orders.All()
}

// Positions returns a point-in-time copy of the signed positions.
func (s *Simulator) Positions() map[string]float64 {
	return s.ledger.Positions()
}

// Fills returns a copy of the fill history.
func (s *Simulator) Fills() []domain.ExecutionResult {
	return s.ledger.Fills()
}

// Book returns the current snapshot for symbol.
func (s *Simulator) Book(symbol string) (domain.OrderBookSnapshot, error) {
	snap, ok := s.books.Get(symbol)
	if !ok {
		return domain.OrderBookSnapshot{}, fmt.Errorf("sim: book %q: %w", symbol, domain.ErrNotFound)
	}
	return snap, nil
}

// RiskEvents returns every risk event raised so far.
func (s *Simulator) RiskEvents() []domain.RiskEvent {
	return s.risk.Events()
}

// PnL marks the session's positions to the current mids.
func (s *Simulator) PnL() float64 {
	return s.ledger.PnL(s.books.Mids())
}

// IsRunning reports whether the loops are running. A cancelled Start
// context counts as not running even before Stop.
func (s *Simulator) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

func (s *Simulator) liveLocked() bool {
	return s.running && s.runCtx != nil && s.runCtx.Err() == nil
}

// Session returns a copy of the session.
func (s *Simulator) Session() domain.TradingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Status summarises the simulator state.
func (s *Simulator) Status() domain.SimStatus {
	s.mu.Lock()
	st := domain.SimStatus{
		SessionID: s.session.ID,
		Running:   s.liveLocked(),
		Halted:    s.halted,
		StartedAt: s.session.StartTime,
	}
	s.mu.Unlock()
	st.ActiveOrders = s.orders.ActiveCount()
	st.Fills = s.ledger.Len()
	st.Symbols = s.books.Symbols()
	return st
}

// Now returns the simulator clock time.
func (s *Simulator) Now() time.Time {
	return s.clk.Now()
}

// Advance moves a virtual clock forward by d, running every task that falls
// due. It panics unless the simulator was built WithClock(*clock.Mock).
func (s *Simulator) Advance(d time.Duration) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.sched.Advance(ctx, d)
}
