package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// ReportStore implements domain.ReportStore. The full report is kept as
// JSONB next to a few columns for listing.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a ReportStore backed by pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Save inserts or replaces the report for r.SessionID.
func (s *ReportStore) Save(ctx context.Context, r domain.ExecutionReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal report %s: %w", r.SessionID, err)
	}

	const query = `
		INSERT INTO sessions (id, start_time, end_time, report, total_fills, total_notional, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			report = EXCLUDED.report,
			total_fills = EXCLUDED.total_fills,
			total_notional = EXCLUDED.total_notional,
			pnl = EXCLUDED.pnl`

	if _, err := s.pool.Exec(ctx, query,
		r.SessionID, r.StartTime, r.EndTime, data, r.TotalFills, r.TotalNotional, r.Risk.PnL,
	); err != nil {
		return fmt.Errorf("postgres: save report %s: %w", r.SessionID, err)
	}
	return nil
}

// Get returns the stored report for sessionID or domain.ErrNotFound.
func (s *ReportStore) Get(ctx context.Context, sessionID string) (domain.ExecutionReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM sessions WHERE id = $1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionReport{}, fmt.Errorf("postgres: get report %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ExecutionReport{}, fmt.Errorf("postgres: get report %s: %w", sessionID, err)
	}

	var r domain.ExecutionReport
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.ExecutionReport{}, fmt.Errorf("postgres: unmarshal report %s: %w", sessionID, err)
	}
	return r, nil
}

// ListRecent returns up to limit reports, newest session first.
func (s *ReportStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT report FROM sessions ORDER BY start_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.ExecutionReport
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		var r domain.ExecutionReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reports rows: %w", err)
	}
	return reports, nil
}

var _ domain.ReportStore = (*ReportStore)(nil)
