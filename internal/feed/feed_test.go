package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBookCache struct {
	mu    sync.Mutex
	snaps map[string]domain.OrderBookSnapshot
	sets  int
}

func (c *fakeBookCache) SetSnapshot(_ context.Context, snap domain.OrderBookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snaps == nil {
		c.snaps = make(map[string]domain.OrderBookSnapshot)
	}
	c.snaps[snap.Symbol] = snap
	c.sets++
	return nil
}

func (c *fakeBookCache) GetSnapshot(_ context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[symbol]
	if !ok {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemBusPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewMemBus()

	exact, err := bus.Subscribe(ctx, domain.ChannelFills)
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, "execsim:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelRisk, []byte("risk")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte("fill")))

	assert.Equal(t, "fill", string(receive(t, exact)))
	assert.Equal(t, "risk", string(receive(t, all)))
	assert.Equal(t, "fill", string(receive(t, all)))

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-exact
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestMemBusStreams(t *testing.T) {
	ctx := context.Background()
	bus := NewMemBus()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, "s", []byte(p)))
	}

	msgs, err := bus.StreamRead(ctx, "s", "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, "s", msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))

	none, err := bus.StreamRead(ctx, "missing", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPublisherForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewMemBus()
	books := &fakeBookCache{}
	sub, err := bus.Subscribe(ctx, "execsim:*")
	require.NoError(t, err)

	p := NewPublisher(bus, books, 16, discardLogger())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.OnOrder(domain.OrderEvent{OrderID: "hidden", Hidden: true})
	p.OnOrder(domain.OrderEvent{OrderID: "o1", Status: domain.OrderStatusWorking})
	p.OnFill(domain.ExecutionResult{ID: "f1", OrderID: "o1", Quantity: 10, Price: 101})
	p.OnRisk(domain.RiskEvent{ID: "r1", Type: string(domain.RiskLossLimit)})

	var ev domain.OrderEvent
	require.NoError(t, json.Unmarshal(receive(t, sub), &ev))
	assert.Equal(t, "o1", ev.OrderID)

	var fill domain.ExecutionResult
	require.NoError(t, json.Unmarshal(receive(t, sub), &fill))
	assert.Equal(t, "f1", fill.ID)
	assert.Equal(t, 101.0, fill.Price)

	var risk domain.RiskEvent
	require.NoError(t, json.Unmarshal(receive(t, sub), &risk))
	assert.Equal(t, "r1", risk.ID)

	assert.Eventually(t, func() bool {
		msgs, _ := bus.StreamRead(ctx, domain.StreamFills, "0", 10)
		return len(msgs) == 1
	}, time.Second, 10*time.Millisecond)

	p.OnBook(domain.OrderBookSnapshot{Symbol: "TEST", Sequence: 1, BestBid: 99, BestAsk: 101})
	p.OnBook(domain.OrderBookSnapshot{Symbol: "TEST", Sequence: 2, BestBid: 100, BestAsk: 102})
	assert.Eventually(t, func() bool {
		snap, err := books.GetSnapshot(ctx, "TEST")
		return err == nil && snap.Sequence == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, p.Dropped())
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(NewMemBus(), nil, 2, discardLogger())
	for i := 0; i < 5; i++ {
		p.OnRisk(domain.RiskEvent{ID: "r"})
	}
	assert.Equal(t, int64(3), p.Dropped())
}

func TestPublisherFlushesOnCancel(t *testing.T) {
	bus := NewMemBus()
	p := NewPublisher(bus, nil, 8, discardLogger())
	p.OnFill(domain.ExecutionResult{ID: "f1"})
	p.OnFill(domain.ExecutionResult{ID: "f2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	msgs, err := bus.StreamRead(context.Background(), domain.StreamFills, "0", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
