// Package notify sends risk alerts and session summaries to Telegram and
// Discord, filtered by event type.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Event types passed to Notify.
const (
	EventReport = "session.report"
	EventHalt   = "risk.halt"
	EventRisk   = "risk.breach"
)

// sendTimeout bounds one delivery attempt per sender.
const sendTimeout = 10 * time.Second

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers filtered events to every Sender in parallel.
type Notifier struct {
	senders  []Sender
	exact    map[string]bool
	prefixes []string // from patterns such as "risk.*"
	logger   *slog.Logger
}

// NewNotifier creates a Notifier for senders. events lists the event types
// to deliver; a trailing '*' matches by prefix and an empty list passes
// everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		exact:   make(map[string]bool, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		e = strings.TrimSpace(e)
		if prefix, ok := strings.CutSuffix(e, "*"); ok {
			n.prefixes = append(n.prefixes, prefix)
			continue
		}
		n.exact[e] = true
	}
	return n
}

func (n *Notifier) allowed(event string) bool {
	if len(n.exact) == 0 && len(n.prefixes) == 0 {
		return true
	}
	if n.exact[event] {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(event, p) {
			return true
		}
	}
	return false
}

// Notify delivers title and message to every sender if event passes the
// filter. A failing sender does not stop the others; their errors are
// joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allowed(event) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "notify: send failed",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// NotifyRisk formats a risk event. Halts use EventHalt so they can be
// routed separately from ordinary breaches.
func (n *Notifier) NotifyRisk(ctx context.Context, ev domain.RiskEvent) error {
	event := EventRisk
	if ev.Action == domain.RiskActionHaltTrading {
		event = EventHalt
	}
	title := fmt.Sprintf("Risk %s: %s", ev.Type, ev.Action)
	msg := ev.Message
	if ev.Symbol != "" {
		msg = fmt.Sprintf("[%s] %s", ev.Symbol, msg)
	}
	msg += fmt.Sprintf("\nlimit %.2f, actual %.2f", ev.Limit, ev.Actual)
	return n.Notify(ctx, event, title, msg)
}

// NotifyReport sends a short summary of a finished session.
func (n *Notifier) NotifyReport(ctx context.Context, r domain.ExecutionReport) error {
	title := "Session " + r.SessionID + " finished"
	var b strings.Builder
	fmt.Fprintf(&b, "duration %s\n", r.Duration)
	fmt.Fprintf(&b, "orders %d (filled %d, cancelled %d, rejected %d)\n",
		r.TotalOrders, r.FilledOrders, r.CancelledOrders, r.RejectedOrders)
	fmt.Fprintf(&b, "fills %d, volume %.2f, notional %.2f\n", r.TotalFills, r.TotalVolume, r.TotalNotional)
	fmt.Fprintf(&b, "avg slippage %.2f bps, cost %.2f bps\n", r.AvgSlippageBps, r.Costs.AvgCostBps)
	fmt.Fprintf(&b, "pnl %.2f", r.Risk.PnL)
	if r.Risk.Halted {
		b.WriteString(" (halted)")
	}
	return n.Notify(ctx, EventReport, title, b.String())
}

// postJSON posts payload and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
