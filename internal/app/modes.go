package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/feed"
	"github.com/alanyoungcy/execsim/internal/notify"
	"github.com/alanyoungcy/execsim/internal/server"
	"github.com/alanyoungcy/execsim/internal/server/handler"
	"github.com/alanyoungcy/execsim/internal/server/ws"
	"github.com/alanyoungcy/execsim/internal/sim"
)

const (
	// stopTimeout bounds Stop and the export that follows it.
	stopTimeout = 30 * time.Second

	// sessionLeaseTTL is how long a crashed run keeps its session id locked.
	sessionLeaseTTL = 30 * time.Second
)

// session bundles a simulator with the background observers feeding the
// bus and the notifier.
type session struct {
	sim       *sim.Simulator
	publisher *feed.Publisher
	alerter   *notify.Alerter
	unlock    func()
}

// newSession builds the simulator for the configured session on clk and
// takes the session lock when Redis is wired. publish attaches the feed
// publisher even without Redis so in-process subscribers get events.
func (a *App) newSession(ctx context.Context, deps *Dependencies, clk clock.Clock, publish bool) (*session, error) {
	ts := a.cfg.TradingSession()
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	ts.StartTime = clk.Now()

	out := &session{unlock: func() {}}
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "session:"+ts.ID, sessionLeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("app: lock session %s: %w", ts.ID, err)
		}
		out.unlock = unlock
	}
	if deps.ReportStore != nil {
		if _, err := deps.ReportStore.Get(ctx, ts.ID); err == nil {
			out.unlock()
			return nil, fmt.Errorf("app: session %s: %w", ts.ID, domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			out.unlock()
			return nil, fmt.Errorf("app: session %s: %w", ts.ID, err)
		}
	}

	opts := []sim.Option{sim.WithClock(clk), sim.WithLogger(a.logger)}
	if publish || deps.BookCache != nil {
		out.publisher = feed.NewPublisher(deps.SignalBus, deps.BookCache, feed.DefaultBuffer, a.logger)
		opts = append(opts, sim.WithObserver(out.publisher))
	}
	if deps.Notifier != nil {
		out.alerter = notify.NewAlerter(deps.Notifier, 0, a.logger)
		opts = append(opts, sim.WithObserver(out.alerter))
	}

	s, err := sim.New(a.cfg.Execution(), ts, opts...)
	if err != nil {
		out.unlock()
		return nil, fmt.Errorf("app: %w", err)
	}
	out.sim = s
	return out, nil
}

// startBackground runs the publisher and alerter on g.
func (s *session) startBackground(ctx context.Context, g *errgroup.Group) {
	if s.publisher != nil {
		g.Go(func() error { return s.publisher.Run(ctx) })
	}
	if s.alerter != nil {
		g.Go(func() error { return s.alerter.Run(ctx) })
	}
}

// start starts the simulator, records the audit entry and schedules the
// scenario orders.
func (a *App) start(ctx context.Context, deps *Dependencies, s *sim.Simulator) error {
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	ts := s.Session()
	a.audit(ctx, deps, ts.ID, "session.started", map[string]any{
		"mode":    a.cfg.Mode,
		"symbols": s.Status().Symbols,
	})

	for _, so := range a.cfg.ScenarioOrders(ts.StartTime) {
		if err := s.ScheduleOrder(so.At, so.Order); err != nil {
			return fmt.Errorf("app: schedule scenario order: %w", err)
		}
	}
	if n := len(a.cfg.Scenario.Orders); n > 0 {
		a.logger.InfoContext(ctx, "app: scenario orders scheduled", slog.Int("orders", n))
	}
	return nil
}

// SimulateMode runs one session to completion and exports its results. On
// a virtual clock the session runs as fast as possible for run_for of
// simulated time; on the real clock it runs for run_for or until ctx is
// cancelled.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	realtime := a.cfg.Simulation.Realtime
	var clk clock.Clock
	var mock *clock.Mock
	if realtime {
		clk = clock.New()
	} else {
		mock = clock.NewMock()
		mock.Set(time.Now().UTC())
		clk = mock
	}

	sess, err := a.newSession(ctx, deps, clk, false)
	if err != nil {
		return err
	}
	defer sess.unlock()

	// Background work outlives ctx so the final events are flushed after
	// Stop.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()
	g, gctx := errgroup.WithContext(bgCtx)
	sess.startBackground(gctx, g)

	if err := a.start(ctx, deps, sess.sim); err != nil {
		bgCancel()
		_ = g.Wait()
		return err
	}

	runFor := a.cfg.Simulation.RunFor.Duration
	if realtime {
		waitRealtime(ctx, runFor)
	} else {
		a.runVirtual(ctx, sess.sim, runFor, a.cfg.Simulation.StepSize.Duration)
	}

	report, stopErr := a.stop(ctx, sess.sim)
	bgCancel()
	if err := g.Wait(); err != nil {
		a.logger.WarnContext(ctx, "app: background worker failed", slog.String("error", err.Error()))
	}
	if stopErr != nil {
		return stopErr
	}
	return a.export(ctx, deps, sess.sim, report)
}

// runVirtual advances the virtual clock in step increments until runFor
// has elapsed or ctx is cancelled.
func (a *App) runVirtual(ctx context.Context, s *sim.Simulator, runFor, step time.Duration) {
	started := time.Now()
	var elapsed time.Duration
	for elapsed < runFor {
		if ctx.Err() != nil {
			a.logger.InfoContext(ctx, "app: virtual run interrupted", slog.Duration("simulated", elapsed))
			return
		}
		d := step
		if elapsed+d > runFor {
			d = runFor - elapsed
		}
		s.Advance(d)
		elapsed += d
	}
	a.logger.InfoContext(ctx, "app: virtual run complete",
		slog.Duration("simulated", elapsed),
		slog.Duration("wall", time.Since(started)),
	)
}

// waitRealtime blocks for runFor, or until ctx is done when runFor is zero.
func waitRealtime(ctx context.Context, runFor time.Duration) {
	if runFor <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(runFor)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// stop stops s with a bounded context that survives ctx cancellation.
func (a *App) stop(ctx context.Context, s *sim.Simulator) (domain.ExecutionReport, error) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	report, err := s.Stop(stopCtx)
	if err != nil {
		return domain.ExecutionReport{}, fmt.Errorf("app: stop: %w", err)
	}
	a.setReport(report)
	a.logger.InfoContext(ctx, "app: session finished",
		slog.String("session_id", report.SessionID),
		slog.Int("orders", report.TotalOrders),
		slog.Int("fills", report.TotalFills),
		slog.Float64("notional", report.TotalNotional),
		slog.Float64("avg_slippage_bps", report.AvgSlippageBps),
		slog.Float64("pnl", report.Risk.PnL),
		slog.Bool("halted", report.Risk.Halted),
	)
	return report, nil
}

// export writes the finished session to every wired sink. Sink failures
// are logged and returned together; one failing sink does not skip the
// others.
func (a *App) export(ctx context.Context, deps *Dependencies, s *sim.Simulator, report domain.ExecutionReport) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	var errs []error
	fail := func(sink string, err error) {
		a.logger.ErrorContext(ctx, "app: export failed",
			slog.String("sink", sink),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", sink, err))
	}

	fills := s.Fills()
	if deps.ReportStore != nil {
		if err := deps.OrderStore.UpsertBatch(ctx, report.SessionID, s.Orders()); err != nil {
			fail("postgres orders", err)
		}
		if err := deps.ExecutionStore.InsertBatch(ctx, report.SessionID, fills); err != nil {
			fail("postgres executions", err)
		}
		if err := deps.ReportStore.Save(ctx, report); err != nil {
			fail("postgres report", err)
		}
	}

	detail := map[string]any{
		"fills":  report.TotalFills,
		"pnl":    report.Risk.PnL,
		"halted": report.Risk.Halted,
	}
	if deps.Archiver != nil {
		dir, err := deps.Archiver.ArchiveSession(ctx, report, fills)
		if err != nil {
			fail("s3 archive", err)
		} else {
			detail["archive"] = dir
		}
	}
	a.audit(ctx, deps, report.SessionID, "session.completed", detail)

	if deps.Notifier != nil {
		if err := deps.Notifier.NotifyReport(ctx, report); err != nil {
			fail("notify", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("app: export: %w", errors.Join(errs...))
	}
	return nil
}

// audit writes an audit entry when Postgres is wired. Failures are logged.
func (a *App) audit(ctx context.Context, deps *Dependencies, sessionID, event string, detail map[string]any) {
	if deps.AuditStore == nil {
		return
	}
	if err := deps.AuditStore.Log(ctx, sessionID, event, detail); err != nil {
		a.logger.WarnContext(ctx, "app: audit log failed",
			slog.String("session_id", sessionID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// stoppable is the simulator as seen by the HTTP API. Stop also signals
// ServerMode to shut the server down.
type stoppable struct {
	*sim.Simulator
	once    sync.Once
	stopped chan struct{}
}

func (s *stoppable) Stop(ctx context.Context) (domain.ExecutionReport, error) {
	report, err := s.Simulator.Stop(ctx)
	if err == nil {
		s.once.Do(func() { close(s.stopped) })
	}
	return report, err
}

// ServerMode runs a real-time session behind the HTTP and WebSocket API
// until POST /api/simulation/stop, run_for elapses or ctx is cancelled,
// then exports the session like SimulateMode.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Simulation.Realtime {
		a.logger.InfoContext(ctx, "app: server mode always uses the real clock")
	}
	sess, err := a.newSession(ctx, deps, clock.New(), true)
	if err != nil {
		return err
	}
	defer sess.unlock()

	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()
	g, gctx := errgroup.WithContext(bgCtx)
	sess.startBackground(gctx, g)

	ctl := &stoppable{Simulator: sess.sim, stopped: make(chan struct{})}
	hub := ws.NewHub(deps.SignalBus, nil, sess.sim.Status, a.logger)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,

		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(time.Now()),
		Orders:     handler.NewOrderHandler(ctl, a.logger),
		Positions:  handler.NewPositionHandler(ctl, a.logger),
		Books:      handler.NewBookHandler(ctl, a.logger),
		Fills:      handler.NewFillHandler(ctl),
		Risk:       handler.NewRiskHandler(ctl),
		Simulation: handler.NewSimulationHandler(a.cfg.Mode, ctl, a.logger),
		Streams:    handler.NewStreamHandler(deps.SignalBus, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	srvCtx, srvCancel := context.WithCancel(gctx)
	defer srvCancel()
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Run(srvCtx) })

	if err := a.start(ctx, deps, sess.sim); err != nil {
		bgCancel()
		_ = g.Wait()
		return err
	}

	var deadline <-chan time.Time
	if runFor := a.cfg.Simulation.RunFor.Duration; runFor > 0 {
		timer := time.NewTimer(runFor)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "app: interrupted")
	case <-ctl.stopped:
		a.logger.InfoContext(ctx, "app: stop requested over the API")
	case <-deadline:
		a.logger.InfoContext(ctx, "app: run_for elapsed")
	case <-gctx.Done():
		a.logger.ErrorContext(ctx, "app: server or background worker exited")
	}

	report, stopErr := a.stop(ctx, sess.sim)

	srvCancel()
	bgCancel()
	runErr := g.Wait()

	if stopErr != nil {
		return stopErr
	}
	if err := a.export(ctx, deps, sess.sim, report); err != nil {
		return err
	}
	return runErr
}
