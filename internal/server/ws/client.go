package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Pseudo-channels for frames the hub generates itself.
const (
	channelStatus  = "status"
	channelControl = "control"
)

// request is a client control message, e.g.
//
//	{"action":"subscribe","channels":["execsim:fills"],"symbols":["AAPL"]}
//
// Actions: subscribe, unsubscribe, status. A trailing '*' in a channel
// matches every channel with that prefix. An empty symbol set means all
// symbols.
type request struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
}

// reply acknowledges a request with the client's resulting filters.
type reply struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	Symbols  []string `json:"symbols"`
	Error    string   `json:"error,omitempty"`
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool
	symbols  map[string]bool

	dropped int
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool, len(h.channels)),
		symbols:  make(map[string]bool),
	}
	for _, ch := range h.channels {
		c.channels[ch] = true
	}
	return c
}

// wants reports whether a frame on channel about symbol passes the client's
// filters. Frames without a symbol pass any symbol filter.
func (c *client) wants(channel, symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if symbol != "" && len(c.symbols) > 0 && !c.symbols[symbol] {
		return false
	}
	if c.channels[channel] {
		return true
	}
	for sub := range c.channels {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) apply(req request) reply {
	c.mu.Lock()
	switch req.Action {
	case "subscribe":
		for _, ch := range req.Channels {
			c.channels[ch] = true
		}
		for _, s := range req.Symbols {
			c.symbols[s] = true
		}
	case "unsubscribe":
		for _, ch := range req.Channels {
			delete(c.channels, ch)
		}
		for _, s := range req.Symbols {
			delete(c.symbols, s)
		}
	case "status":
	default:
		c.mu.Unlock()
		return reply{Action: req.Action, Error: "unknown action"}
	}
	r := reply{
		Action:   req.Action,
		Channels: sortedKeys(c.channels),
		Symbols:  sortedKeys(c.symbols),
	}
	c.mu.Unlock()
	return r
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// push queues a hub-generated frame. It is dropped when the buffer is full.
func (c *client) push(channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	b, err := json.Marshal(envelope{Channel: channel, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *client) pushStatus() {
	if c.hub.status != nil {
		c.push(channelStatus, c.hub.status())
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req request
		if err := c.conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.push(channelControl, reply{Error: "invalid json"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close",
					slog.String("client", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.push(channelControl, c.apply(req))
		if req.Action == "status" {
			c.pushStatus()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
