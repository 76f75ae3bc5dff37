package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ExecutionStore persists fills for offline analysis.
type ExecutionStore interface {
	InsertBatch(ctx context.Context, sessionID string, fills []ExecutionResult) error
	ListBySession(ctx context.Context, sessionID string, opts ListOpts) ([]ExecutionResult, error)
}

// OrderStore persists final order states.
type OrderStore interface {
	UpsertBatch(ctx context.Context, sessionID string, orders []TradeOrder) error
	GetByID(ctx context.Context, id string) (TradeOrder, error)
	ListBySession(ctx context.Context, sessionID string) ([]TradeOrder, error)
}

// ReportStore persists session reports.
type ReportStore interface {
	Save(ctx context.Context, report ExecutionReport) error
	Get(ctx context.Context, sessionID string) (ExecutionReport, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionReport, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, sessionID, event string, detail map[string]any) error
	ListBySession(ctx context.Context, sessionID string) ([]AuditEntry, error)
}
