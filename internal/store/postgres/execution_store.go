package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore. The book snapshot
// attached to each fill is not persisted.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, order_id, symbol, side, algorithm, venue, executed_at,
	quantity, price, mid_price, slippage_bps, market_impact_bps, latency_us, costs`

// InsertBatch writes fills with a single pgx batch. Fills already stored
// are skipped, so re-exporting a session is harmless.
func (s *ExecutionStore) InsertBatch(ctx context.Context, sessionID string, fills []domain.ExecutionResult) error {
	if len(fills) == 0 {
		return nil
	}

	const query = `
		INSERT INTO executions (
			id, session_id, order_id, symbol, side, algorithm, venue, executed_at,
			quantity, price, mid_price, slippage_bps, market_impact_bps, latency_us, costs
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, f := range fills {
		costs, err := json.Marshal(f.Costs)
		if err != nil {
			return fmt.Errorf("postgres: marshal costs %s: %w", f.ID, err)
		}
		batch.Queue(query,
			f.ID, sessionID, f.OrderID, f.Symbol, string(f.Side), string(f.Algorithm), f.Venue, f.Timestamp,
			f.Quantity, f.Price, f.MidPrice, f.SlippageBps, f.MarketImpactBps, f.Latency.Microseconds(), costs,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert execution batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBySession returns a session's fills oldest first.
func (s *ExecutionStore) ListBySession(ctx context.Context, sessionID string, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	query, args := appendListOpts(
		`SELECT `+executionSelectCols+` FROM executions WHERE session_id = $1`,
		[]any{sessionID}, 2, "executed_at", "ASC", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	fills, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return fills, nil
}

func scanExecutionRows(rows pgx.Rows) ([]domain.ExecutionResult, error) {
	var fills []domain.ExecutionResult
	for rows.Next() {
		var (
			f         domain.ExecutionResult
			side      string
			algo      string
			latencyUS int64
			costs     []byte
		)
		if err := rows.Scan(
			&f.ID, &f.OrderID, &f.Symbol, &side, &algo, &f.Venue, &f.Timestamp,
			&f.Quantity, &f.Price, &f.MidPrice, &f.SlippageBps, &f.MarketImpactBps, &latencyUS, &costs,
		); err != nil {
			return nil, err
		}
		f.Side = domain.OrderSide(side)
		f.Algorithm = domain.Algorithm(algo)
		f.Latency = time.Duration(latencyUS) * time.Microsecond
		if len(costs) > 0 {
			if err := json.Unmarshal(costs, &f.Costs); err != nil {
				return nil, fmt.Errorf("unmarshal costs %s: %w", f.ID, err)
			}
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
