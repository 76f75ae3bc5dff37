package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// sessionDetail is the stored record of one session.
type sessionDetail struct {
	Report domain.ExecutionReport   `json:"report"`
	Orders []domain.TradeOrder      `json:"orders,omitempty"`
	Fills  []domain.ExecutionResult `json:"fills"`
	Audit  []domain.AuditEntry      `json:"audit,omitempty"`
}

// storedDeps wires the dependencies and checks Postgres is among them.
func (a *App) storedDeps(ctx context.Context) (*Dependencies, error) {
	if !a.cfg.Postgres.Enabled {
		return nil, fmt.Errorf("app: inspect requires [postgres] enabled = true")
	}
	return a.wire(ctx)
}

// ListSessions writes the reports of the most recent sessions as JSON.
func (a *App) ListSessions(ctx context.Context, limit int, w io.Writer) error {
	deps, err := a.storedDeps(ctx)
	if err != nil {
		return err
	}
	reports, err := deps.ReportStore.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("app: list sessions: %w", err)
	}
	return writeIndented(w, reports)
}

// ShowSession writes a stored session with its orders, fills and the audit
// entries recorded while it ran. Without Postgres it falls back to the S3
// archive, which holds the report and fills only.
func (a *App) ShowSession(ctx context.Context, id string, w io.Writer) error {
	if !a.cfg.Postgres.Enabled && a.cfg.S3.Enabled {
		deps, err := a.wire(ctx)
		if err != nil {
			return err
		}
		report, fills, err := deps.Archiver.LoadSession(ctx, id)
		if err != nil {
			return fmt.Errorf("app: show session %s: %w", id, err)
		}
		return writeIndented(w, sessionDetail{Report: report, Fills: fills})
	}

	deps, err := a.storedDeps(ctx)
	if err != nil {
		return err
	}
	report, err := deps.ReportStore.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("app: show session %s: %w", id, err)
	}
	orders, err := deps.OrderStore.ListBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("app: show session %s: %w", id, err)
	}
	fills, err := deps.ExecutionStore.ListBySession(ctx, id, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("app: show session %s: %w", id, err)
	}

	audit, err := deps.AuditStore.ListBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("app: show session %s: %w", id, err)
	}

	return writeIndented(w, sessionDetail{Report: report, Orders: orders, Fills: fills, Audit: audit})
}

// ShowOrder writes one stored order.
func (a *App) ShowOrder(ctx context.Context, id string, w io.Writer) error {
	deps, err := a.storedDeps(ctx)
	if err != nil {
		return err
	}
	order, err := deps.OrderStore.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("app: show order %s: %w", id, err)
	}
	return writeIndented(w, order)
}

// ShowBook writes the order book snapshot a running session last cached
// for symbol.
func (a *App) ShowBook(ctx context.Context, symbol string, w io.Writer) error {
	if !a.cfg.Redis.Enabled {
		return fmt.Errorf("app: show book requires [redis] enabled = true")
	}
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	snap, err := deps.BookCache.GetSnapshot(ctx, symbol)
	if err != nil {
		return fmt.Errorf("app: show book %s: %w", symbol, err)
	}
	return writeIndented(w, snap)
}

// WriteReport writes the last finished session report.
func (a *App) WriteReport(w io.Writer) error {
	r, ok := a.Report()
	if !ok {
		return fmt.Errorf("app: write report: %w", domain.ErrNotFound)
	}
	return writeIndented(w, r)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
