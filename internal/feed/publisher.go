// Package feed pushes simulator events to a domain.SignalBus (Redis or
// in-memory) and mirrors book snapshots into an optional domain.BookCache.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// DefaultBuffer is the number of queued events before new ones are dropped.
const DefaultBuffer = 4096

const flushTimeout = 5 * time.Second

type envelope struct {
	channel string
	stream  string
	payload []byte
}

// Publisher implements the simulator observer callbacks. Callbacks never
// block: events are queued for Run and dropped with a warning once the
// queue is full. Book snapshots are coalesced per symbol so only the latest
// one is written to the cache.
type Publisher struct {
	bus    domain.SignalBus
	books  domain.BookCache
	logger *slog.Logger

	events  chan envelope
	dropped atomic.Int64

	bookMu  sync.Mutex
	pending map[string]domain.OrderBookSnapshot
	bookSig chan struct{}
}

// NewPublisher creates a Publisher. books may be nil. A buffer <= 0 uses
// DefaultBuffer.
func NewPublisher(bus domain.SignalBus, books domain.BookCache, buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Publisher{
		bus:     bus,
		books:   books,
		logger:  logger.With(slog.String("component", "feed_publisher")),
		events:  make(chan envelope, buffer),
		pending: make(map[string]domain.OrderBookSnapshot),
		bookSig: make(chan struct{}, 1),
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// OnFill queues a fill for the fills channel and the durable fill stream.
func (p *Publisher) OnFill(f domain.ExecutionResult) {
	p.enqueue(domain.ChannelFills, domain.StreamFills, f)
}

// OnOrder queues an order status change. Hidden orders are not published.
func (p *Publisher) OnOrder(ev domain.OrderEvent) {
	if ev.Hidden {
		return
	}
	p.enqueue(domain.ChannelOrders, "", ev)
}

// OnRisk queues a risk event.
func (p *Publisher) OnRisk(ev domain.RiskEvent) {
	p.enqueue(domain.ChannelRisk, "", ev)
}

// OnBook records the latest snapshot for its symbol and wakes the book
// writer.
func (p *Publisher) OnBook(snap domain.OrderBookSnapshot) {
	p.bookMu.Lock()
	p.pending[snap.Symbol] = snap
	p.bookMu.Unlock()
	select {
	case p.bookSig <- struct{}{}:
	default:
	}
}

func (p *Publisher) enqueue(channel, stream string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("feed: marshal event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	select {
	case p.events <- envelope{channel: channel, stream: stream, payload: payload}:
	default:
		if n := p.dropped.Add(1); n == 1 || n%1000 == 0 {
			p.logger.Warn("feed: queue full, dropping events",
				slog.String("channel", channel),
				slog.Int64("dropped", n),
			)
		}
	}
}

// Run drains the queues until ctx is cancelled, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("feed: publisher started")
	defer p.logger.Info("feed: publisher stopped", slog.Int64("dropped", p.dropped.Load()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runEvents(gctx) })
	g.Go(func() error { return p.runBooks(gctx) })
	return g.Wait()
}

func (p *Publisher) runEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flushEvents()
			return nil
		case env := <-p.events:
			p.send(ctx, env)
		}
	}
}

func (p *Publisher) flushEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case env := <-p.events:
			p.send(ctx, env)
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, env envelope) {
	if err := p.bus.Publish(ctx, env.channel, env.payload); err != nil {
		p.logger.Warn("feed: publish failed",
			slog.String("channel", env.channel),
			slog.String("error", err.Error()),
		)
	}
	if env.stream == "" {
		return
	}
	if err := p.bus.StreamAppend(ctx, env.stream, env.payload); err != nil {
		p.logger.Warn("feed: stream append failed",
			slog.String("stream", env.stream),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Publisher) runBooks(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			p.writeBooks(fctx)
			cancel()
			return nil
		case <-p.bookSig:
			p.writeBooks(ctx)
		}
	}
}

func (p *Publisher) writeBooks(ctx context.Context) {
	p.bookMu.Lock()
	batch := p.pending
	p.pending = make(map[string]domain.OrderBookSnapshot, len(batch))
	p.bookMu.Unlock()

	for sym, snap := range batch {
		if p.books != nil {
			if err := p.books.SetSnapshot(ctx, snap); err != nil {
				p.logger.Warn("feed: cache book failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				continue
			}
		}
		payload, err := json.Marshal(bookTop{
			Symbol: snap.Symbol, Sequence: snap.Sequence, BestBid: snap.BestBid,
			BestAsk: snap.BestAsk, MidPrice: snap.MidPrice, Timestamp: snap.Timestamp,
		})
		if err != nil {
			continue
		}
		if err := p.bus.Publish(ctx, domain.ChannelBooks, payload); err != nil {
			p.logger.Debug("feed: publish book failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
}

// bookTop is the compact book update sent on the books channel; readers
// fetch depth from the cache.
type bookTop struct {
	Symbol    string    `json:"symbol"`
	Sequence  uint64    `json:"sequence"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	MidPrice  float64   `json:"mid_price"`
	Timestamp time.Time `json:"timestamp"`
}
