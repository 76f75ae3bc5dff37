package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// simulator.
type OrderService interface {
	SubmitOrder(ctx context.Context, order domain.TradeOrder) (string, error)
	CancelOrder(id string) bool
	Order(id string) (domain.TradeOrder, error)
	Orders() []domain.TradeOrder
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "orders"),
	}
}

// orderRequest is the body of POST /api/orders. Durations use Go syntax
// ("10m", "250ms").
type orderRequest struct {
	ClientOrderID     string  `json:"client_order_id"`
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	Type              string  `json:"type"`
	Quantity          float64 `json:"quantity"`
	Price             float64 `json:"price"`
	Algorithm         string  `json:"algorithm"`
	TimeInForce       string  `json:"time_in_force"`
	ExpireAt          string  `json:"expire_at"` // RFC 3339, GTD only
	Duration          string  `json:"duration"`
	Slices            int     `json:"slices"`
	Chunks            int     `json:"chunks"`
	MinChunkDelay     string  `json:"min_chunk_delay"`
	MaxChunkDelay     string  `json:"max_chunk_delay"`
	ParticipationRate float64 `json:"participation_rate"`
	Interval          string  `json:"interval"`
	MaxSlippageBps    float64 `json:"max_slippage_bps"`
	MaxDelay          string  `json:"max_delay"`
	Hidden            bool    `json:"hidden"`
	Iceberg           bool    `json:"iceberg"`
	DisplayQuantity   float64 `json:"display_quantity"`
	Tag               string  `json:"tag"`
}

func (req orderRequest) toOrder() (domain.TradeOrder, error) {
	order := domain.TradeOrder{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          domain.OrderSide(req.Side),
		Type:          domain.OrderType(req.Type),
		Quantity:      req.Quantity,
		Price:         req.Price,
		Algorithm:     domain.Algorithm(req.Algorithm),
		TimeInForce:   domain.TimeInForce(req.TimeInForce),
		Params: domain.AlgoParams{
			Slices:            req.Slices,
			Chunks:            req.Chunks,
			ParticipationRate: req.ParticipationRate,
		},
		MaxSlippageBps:  req.MaxSlippageBps,
		Hidden:          req.Hidden,
		Iceberg:         req.Iceberg,
		DisplayQuantity: req.DisplayQuantity,
		Tag:             req.Tag,
	}
	// Market and limit algorithms infer their own type; slicers follow
	// the price.
	if order.Type == "" && order.Algorithm != "" &&
		order.Algorithm != domain.AlgoMarket && order.Algorithm != domain.AlgoLimit {
		order.Type = domain.OrderTypeMarket
		if order.Price > 0 {
			order.Type = domain.OrderTypeLimit
		}
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"duration", req.Duration, &order.Params.Duration},
		{"min_chunk_delay", req.MinChunkDelay, &order.Params.MinChunkDelay},
		{"max_chunk_delay", req.MaxChunkDelay, &order.Params.MaxChunkDelay},
		{"interval", req.Interval, &order.Params.Interval},
		{"max_delay", req.MaxDelay, &order.MaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return domain.TradeOrder{}, fmt.Errorf("%s: %w", d.name, domain.ErrValidation)
		}
		*d.dst = v
	}
	if req.ExpireAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpireAt)
		if err != nil {
			return domain.TradeOrder{}, fmt.Errorf("expire_at: %w", domain.ErrValidation)
		}
		order.ExpireAt = t
	}
	return order, nil
}

// orderView is the JSON rendering of a working or finished order.
type orderView struct {
	ID              string             `json:"id"`
	ClientOrderID   string             `json:"client_order_id,omitempty"`
	Symbol          string             `json:"symbol"`
	Side            domain.OrderSide   `json:"side"`
	Type            domain.OrderType   `json:"type"`
	Algorithm       domain.Algorithm   `json:"algorithm"`
	TimeInForce     domain.TimeInForce `json:"time_in_force,omitempty"`
	Status          domain.OrderStatus `json:"status"`
	Quantity        float64            `json:"quantity"`
	Filled          float64            `json:"filled"`
	Remaining       float64            `json:"remaining"`
	Price           float64            `json:"price,omitempty"`
	AvgFillPrice    float64            `json:"avg_fill_price,omitempty"`
	ArrivalMid      float64            `json:"arrival_mid,omitempty"`
	Tag             string             `json:"tag,omitempty"`
	Internal        bool               `json:"internal,omitempty"`
	LastError       string             `json:"last_error,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ExpireAt        *time.Time         `json:"expire_at,omitempty"`
	DisplayQuantity float64            `json:"display_quantity,omitempty"`
}

func newOrderView(o domain.TradeOrder) orderView {
	v := orderView{
		ID:              o.ID,
		ClientOrderID:   o.ClientOrderID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Type:            o.Type,
		Algorithm:       o.Algorithm,
		TimeInForce:     o.TimeInForce,
		Status:          o.Status,
		Quantity:        o.Quantity,
		Filled:          o.Filled(),
		Remaining:       o.Remaining,
		Price:           o.Price,
		AvgFillPrice:    o.AvgFillPrice,
		ArrivalMid:      o.ArrivalMid,
		Tag:             o.Tag,
		Internal:        o.Internal,
		LastError:       o.LastError,
		SubmittedAt:     o.SubmittedAt,
		UpdatedAt:       o.UpdatedAt,
		DisplayQuantity: o.DisplayQuantity,
	}
	if !o.ExpireAt.IsZero() {
		t := o.ExpireAt
		v.ExpireAt = &t
	}
	return v
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []orderView `json:"orders"`
	Total  int         `json:"total"`
}

// ListOrders returns the session's orders, optionally filtered by symbol
// and status. Hidden orders are omitted.
// GET /api/orders?symbol=TEST&status=working&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	symbol := q.Get("symbol")
	status := domain.OrderStatus(q.Get("status"))

	views := []orderView{}
	for _, o := range h.orders.Orders() {
		if o.Hidden {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		views = append(views, newOrderView(o))
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders: page(views, opts),
		Total:  len(views),
	})
}

// GetOrder returns one order by id.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	o, err := h.orders.Order(id)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to get order", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

// PlaceOrder validates and routes a new order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" || req.Side == "" {
		writeError(w, http.StatusBadRequest, "symbol and side are required")
		return
	}

	order, err := req.toOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.orders.SubmitOrder(r.Context(), order)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to place order", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: order placed",
		slog.String("order_id", id),
		slog.String("symbol", order.Symbol),
		slog.String("algorithm", string(order.Algorithm)),
	)

	placed, err := h.orders.Order(id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(placed))
}

// CancelOrder cancels a working order by its ID.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if !h.orders.CancelOrder(id) {
		o, err := h.orders.Order(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusConflict, fmt.Sprintf("order is %s", o.Status))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   string(domain.OrderStatusCancelled),
		"order_id": id,
	})
}
