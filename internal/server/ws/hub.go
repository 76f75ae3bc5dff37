// Package ws streams simulator events from the signal bus to WebSocket
// clients. Every frame is a JSON envelope {"channel": ..., "data": ...}
// where data is the bus payload unchanged.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// eventBuffer bounds events waiting to be fanned out.
const eventBuffer = 256

// DefaultChannels are the bus channels the hub relays.
var DefaultChannels = []string{
	domain.ChannelFills,
	domain.ChannelOrders,
	domain.ChannelRisk,
	domain.ChannelBooks,
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// StatusFunc reports the simulator state sent to clients on connect and on
// request.
type StatusFunc func() domain.SimStatus

// event is a framed bus message and the symbol it concerns, if any.
type event struct {
	channel string
	symbol  string
	frame   []byte
}

// Hub relays bus channels to connected clients. One goroutine (Run) owns
// registration and fan-out; each client has its own read and write pumps.
type Hub struct {
	bus      domain.Subscriber
	channels []string
	status   StatusFunc
	upgrader websocket.Upgrader

	events     chan event
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}

	logger *slog.Logger
}

// NewHub creates a hub relaying channels (DefaultChannels when empty) from
// bus. status may be nil.
func NewHub(bus domain.Subscriber, channels []string, status StatusFunc, logger *slog.Logger) *Hub {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	return &Hub{
		bus:      bus,
		channels: channels,
		status:   status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API key check runs before the upgrade; origins are
			// handled by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events:     make(chan event, eventBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run subscribes to the bus and serves clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, ch := range h.channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("ws: subscribe %s: %w", ch, err)
		}
		go h.relay(ctx, ch, msgs)
	}
	h.logger.Info("ws: hub running", slog.Any("channels", h.channels))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return nil
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.String("client", c.id), slog.Int("clients", n))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.String("client", c.id),
				slog.Int("clients", n),
				slog.Int("dropped", c.dropped),
			)
		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) fanOut(ev event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.channel, ev.symbol) {
			continue
		}
		select {
		case c.send <- ev.frame:
		default:
			// Only Run touches dropped.
			c.dropped++
			if c.dropped == 1 || c.dropped%100 == 0 {
				h.logger.Warn("ws: client too slow, dropping frames",
					slog.String("client", c.id),
					slog.String("channel", ev.channel),
					slog.Int("dropped", c.dropped),
				)
			}
		}
	}
}

// relay frames each payload from one bus channel and queues it for fan-out.
func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			ev, err := frame(channel, data)
			if err != nil {
				h.logger.Warn("ws: bad payload",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case h.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// frame wraps data in an envelope and pulls out its symbol so clients can
// filter by instrument.
func frame(channel string, data []byte) (event, error) {
	var probe struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return event{}, err
	}
	b, err := json.Marshal(envelope{Channel: channel, Data: data})
	if err != nil {
		return event{}, err
	}
	return event{channel: channel, symbol: probe.Symbol, frame: b}, nil
}

// HandleWS upgrades the request and registers the client, subscribed to
// every relayed channel and all symbols.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.pushStatus()

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
