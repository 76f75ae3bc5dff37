package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// BookCache implements domain.BookCache with a sorted set and a size hash
// per book side. <ns> is the client namespace, "execsim" by default.
//
// Key schema:
//
//	<ns>:book:{symbol}:bids     - sorted set of bid prices (score = price)
//	<ns>:book:{symbol}:asks     - sorted set of ask prices (score = price)
//	<ns>:book:{symbol}:bid:size - hash price -> size
//	<ns>:book:{symbol}:ask:size - hash price -> size
//	<ns>:book:{symbol}:bbo      - hash with "bid" and "ask"
//	<ns>:book:{symbol}:meta     - hash with "ts", "seq" and "tick"
type BookCache struct {
	c   *Client
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache. A positive ttl expires books that stop
// being refreshed, for example after the simulator exits.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{c: c, rdb: c.rdb, ttl: ttl}
}

func (bc *BookCache) bookKey(symbol, suffix string) string { return bc.c.key("book", symbol, suffix) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// SetSnapshot atomically replaces the cached book for snap.Symbol.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	sym := snap.Symbol
	bids, asks := bc.bookKey(sym, "bids"), bc.bookKey(sym, "asks")
	bidSize, askSize := bc.bookKey(sym, "bid:size"), bc.bookKey(sym, "ask:size")
	bbo, meta := bc.bookKey(sym, "bbo"), bc.bookKey(sym, "meta")

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, bids, asks, bidSize, askSize, bbo, meta)

	for _, lvl := range snap.Bids {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, bids, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, bidSize, p, formatFloat(lvl.Size))
	}
	for _, lvl := range snap.Asks {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, asks, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, askSize, p, formatFloat(lvl.Size))
	}

	pipe.HSet(ctx, bbo, "bid", formatFloat(snap.BestBid), "ask", formatFloat(snap.BestAsk))
	pipe.HSet(ctx, meta,
		"ts", strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		"seq", strconv.FormatUint(snap.Sequence, 10),
		"tick", formatFloat(snap.TickSize),
	)

	if bc.ttl > 0 {
		for _, k := range []string{bids, asks, bidSize, askSize, bbo, meta} {
			pipe.Expire(ctx, k, bc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book snapshot %s: %w", sym, err)
	}
	return nil
}

// GetSnapshot rebuilds a snapshot from Redis. Derived fields (spread, mid,
// volumes, imbalance) are recomputed from the levels. It returns
// domain.ErrNotFound if the symbol has no cached book.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bc.bookKey(symbol, "bids"), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, bc.bookKey(symbol, "asks"), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bc.bookKey(symbol, "bid:size"))
	askSizeCmd := pipe.HGetAll(ctx, bc.bookKey(symbol, "ask:size"))
	metaCmd := pipe.HGetAll(ctx, bc.bookKey(symbol, "meta"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get book snapshot %s: %w", symbol, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.OrderBookSnapshot{Symbol: symbol}
	if ns, err := strconv.ParseInt(metaVals["ts"], 10, 64); err == nil {
		snap.Timestamp = time.Unix(0, ns).UTC()
	}
	snap.Sequence, _ = strconv.ParseUint(metaVals["seq"], 10, 64)
	snap.TickSize, _ = strconv.ParseFloat(metaVals["tick"], 64)

	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	snap.Bids = levels(bidsZ, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	snap.Asks = levels(asksZ, askSizes)

	for _, l := range snap.Bids {
		snap.BidVolume += l.Size
	}
	for _, l := range snap.Asks {
		snap.AskVolume += l.Size
	}
	snap.TotalVolume = snap.BidVolume + snap.AskVolume
	if snap.TotalVolume > 0 {
		snap.Imbalance = (snap.BidVolume - snap.AskVolume) / snap.TotalVolume
	}
	if len(snap.Bids) > 0 {
		snap.BestBid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		snap.BestAsk = snap.Asks[0].Price
	}
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.Spread = snap.BestAsk - snap.BestBid
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}
	return snap, nil
}

func levels(zs []redis.Z, sizes map[string]string) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(zs))
	for _, z := range zs {
		p, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[p], 64)
		out = append(out, domain.BookLevel{Price: z.Score, Size: size})
	}
	return out
}

var _ domain.BookCache = (*BookCache)(nil)
