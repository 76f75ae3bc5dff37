package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/feed"
)

func dialHub(t *testing.T, ctx context.Context, bus domain.Subscriber) *websocket.Conn {
	t.Helper()
	status := func() domain.SimStatus { return domain.SimStatus{SessionID: "s1", Running: true} }
	hub := NewHub(bus, nil, status, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello struct {
		Channel string           `json:"channel"`
		Data    domain.SimStatus `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, channelStatus, hello.Channel)
	require.Equal(t, "s1", hello.Data.SessionID)
	return conn
}

// send writes req and returns the control reply.
func send(t *testing.T, conn *websocket.Conn, req request) reply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, channelControl, env.Channel)
	var r reply
	require.NoError(t, json.Unmarshal(env.Data, &r))
	return r
}

func TestHubRelaysBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := feed.NewMemBus()
	conn := dialHub(t, ctx, bus)

	r := send(t, conn, request{Action: "unsubscribe", Channels: []string{domain.ChannelBooks}})
	assert.Empty(t, r.Error)
	assert.NotContains(t, r.Channels, domain.ChannelBooks)
	assert.Contains(t, r.Channels, domain.ChannelFills)

	require.NoError(t, bus.Publish(ctx, domain.ChannelBooks, []byte(`{"symbol":"TEST"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte(`{"order_id":"o1"}`)))

	var got envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, domain.ChannelFills, got.Channel)

	var fill map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &fill))
	assert.Equal(t, "o1", fill["order_id"])
}

func TestHubSymbolFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := feed.NewMemBus()
	conn := dialHub(t, ctx, bus)

	r := send(t, conn, request{Action: "subscribe", Symbols: []string{"AAPL"}})
	assert.Equal(t, []string{"AAPL"}, r.Symbols)

	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte(`{"symbol":"MSFT","order_id":"m1"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte(`{"symbol":"AAPL","order_id":"a1"}`)))

	var got envelope
	require.NoError(t, conn.ReadJSON(&got))
	var fill map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &fill))
	assert.Equal(t, "a1", fill["order_id"])
}

func TestHubStatusAndUnknownAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := dialHub(t, ctx, feed.NewMemBus())

	r := send(t, conn, request{Action: "bogus"})
	assert.Equal(t, "unknown action", r.Error)

	r = send(t, conn, request{Action: "status"})
	assert.Empty(t, r.Error)
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, channelStatus, env.Channel)
}

func TestClientWants(t *testing.T) {
	c := &client{channels: map[string]bool{"execsim:*": true}, symbols: map[string]bool{}}
	assert.True(t, c.wants(domain.ChannelRisk, ""))
	assert.False(t, c.wants("other:risk", ""))

	c = &client{channels: map[string]bool{domain.ChannelOrders: true}, symbols: map[string]bool{"AAPL": true}}
	assert.True(t, c.wants(domain.ChannelOrders, "AAPL"))
	assert.True(t, c.wants(domain.ChannelOrders, ""))
	assert.False(t, c.wants(domain.ChannelOrders, "MSFT"))
	assert.False(t, c.wants(domain.ChannelFills, "AAPL"))
}

func TestFrameExtractsSymbol(t *testing.T) {
	ev, err := frame(domain.ChannelBooks, []byte(`{"symbol":"AAPL","bids":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", ev.symbol)
	assert.JSONEq(t, `{"channel":"execsim:books","data":{"symbol":"AAPL","bids":[]}}`, string(ev.frame))

	_, err = frame(domain.ChannelBooks, []byte(`not json`))
	assert.Error(t, err)
}
