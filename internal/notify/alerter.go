package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const sendTimeout = 15 * time.Second

// Alerter forwards simulator risk events to a Notifier off the scheduler
// goroutine. It implements the simulator observer callbacks; only OnRisk
// does anything.
type Alerter struct {
	n      *Notifier
	queue  chan domain.RiskEvent
	logger *slog.Logger
}

// NewAlerter creates an Alerter holding up to buffer pending events.
func NewAlerter(n *Notifier, buffer int, logger *slog.Logger) *Alerter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Alerter{
		n:      n,
		queue:  make(chan domain.RiskEvent, buffer),
		logger: logger.With(slog.String("component", "alerter")),
	}
}

func (a *Alerter) OnFill(domain.ExecutionResult)   {}
func (a *Alerter) OnOrder(domain.OrderEvent)       {}
func (a *Alerter) OnBook(domain.OrderBookSnapshot) {}

// OnRisk queues ev, dropping it if the queue is full.
func (a *Alerter) OnRisk(ev domain.RiskEvent) {
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("notify: alert queue full, dropping",
			slog.String("type", ev.Type),
			slog.String("symbol", ev.Symbol),
		)
	}
}

// Run sends queued alerts until ctx is done.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.queue:
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := a.n.NotifyRisk(sctx, ev); err != nil {
				a.logger.Warn("notify: risk alert failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}
