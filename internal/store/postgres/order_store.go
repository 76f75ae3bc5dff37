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

// OrderStore implements domain.OrderStore. It keeps one row per order
// holding its latest state.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, client_order_id, symbol, side, order_type, algorithm, time_in_force,
	quantity, remaining, price, avg_fill_price, arrival_mid, status, tag, internal, last_error,
	params, submitted_at, updated_at`

// UpsertBatch inserts or refreshes the given orders in one batch.
func (s *OrderStore) UpsertBatch(ctx context.Context, sessionID string, orders []domain.TradeOrder) error {
	if len(orders) == 0 {
		return nil
	}

	const query = `
		INSERT INTO orders (
			id, session_id, client_order_id, symbol, side, order_type, algorithm, time_in_force,
			quantity, remaining, price, avg_fill_price, arrival_mid, status, tag, internal, last_error,
			params, submitted_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20
		) ON CONFLICT (id) DO UPDATE SET
			remaining = EXCLUDED.remaining,
			avg_fill_price = EXCLUDED.avg_fill_price,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, o := range orders {
		params, err := json.Marshal(o.Params)
		if err != nil {
			return fmt.Errorf("postgres: marshal params %s: %w", o.ID, err)
		}
		batch.Queue(query,
			o.ID, sessionID, o.ClientOrderID, o.Symbol, string(o.Side), string(o.Type), string(o.Algorithm), string(o.TimeInForce),
			o.Quantity, o.Remaining, o.Price, o.AvgFillPrice, o.ArrivalMid, string(o.Status), o.Tag, o.Internal, o.LastError,
			params, o.SubmittedAt, o.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range orders {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert order batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns one order or domain.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.TradeOrder, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return domain.TradeOrder{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return domain.TradeOrder{}, fmt.Errorf("postgres: scan order %s: %w", id, err)
	}
	if len(orders) == 0 {
		return domain.TradeOrder{}, fmt.Errorf("postgres: get order %s: %w", id, domain.ErrNotFound)
	}
	return orders[0], nil
}

// ListBySession returns a session's orders in submission order.
func (s *OrderStore) ListBySession(ctx context.Context, sessionID string) ([]domain.TradeOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE session_id = $1 ORDER BY submitted_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.TradeOrder, error) {
	var orders []domain.TradeOrder
	for rows.Next() {
		var (
			o                           domain.TradeOrder
			clientID, tif, tag, lastErr *string
			side, typ, algo, status     string
			params                      []byte
		)
		if err := rows.Scan(
			&o.ID, &clientID, &o.Symbol, &side, &typ, &algo, &tif,
			&o.Quantity, &o.Remaining, &o.Price, &o.AvgFillPrice, &o.ArrivalMid, &status, &tag, &o.Internal, &lastErr,
			&params, &o.SubmittedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		o.ClientOrderID = deref(clientID)
		o.TimeInForce = domain.TimeInForce(deref(tif))
		o.Tag = deref(tag)
		o.LastError = deref(lastErr)
		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(typ)
		o.Algorithm = domain.Algorithm(algo)
		o.Status = domain.OrderStatus(status)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &o.Params); err != nil {
				return nil, fmt.Errorf("unmarshal params %s: %w", o.ID, err)
			}
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return orders, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.OrderStore = (*OrderStore)(nil)
