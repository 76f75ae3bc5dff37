package feed

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const (
	memSubscriberBuffer = 128
	memStreamMaxLen     = 50000
)

// MemBus is an in-process domain.SignalBus used when Redis is not
// configured. Slow subscribers lose messages rather than block publishers.
type MemBus struct {
	mu      sync.RWMutex
	subs    map[int]memSub
	nextSub int
	streams map[string]*memStream
}

type memSub struct {
	pattern string
	ch      chan []byte
}

type memStream struct {
	seq     uint64
	entries []domain.StreamMessage
}

// NewMemBus creates an empty MemBus.
func NewMemBus() *MemBus {
	return &MemBus{
		subs:    make(map[int]memSub),
		streams: make(map[string]*memStream),
	}
}

// Publish delivers payload to every subscriber whose channel or glob
// pattern matches.
func (b *MemBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !matchChannel(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel, which may
// be a glob such as "execsim:*". The channel closes when ctx is done.
func (b *MemBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, memSubscriberBuffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = memSub{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func matchChannel(pattern, channel string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == channel
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// StreamAppend appends payload to stream, trimming the oldest entries past
// memStreamMaxLen.
func (b *MemBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[stream]
	if !ok {
		st = &memStream{}
		b.streams[stream] = st
	}
	st.seq++
	st.entries = append(st.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(st.seq, 10) + "-0",
		Payload: payload,
	})
	if over := len(st.entries) - memStreamMaxLen; over > 0 {
		st.entries = append([]domain.StreamMessage(nil), st.entries[over:]...)
	}
	return nil
}

// StreamRead returns up to count entries after lastID. "0" and "0-0" read
// from the beginning; "$" returns nothing since reads never block.
func (b *MemBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "$" {
		return nil, nil
	}
	after, _ := strconv.ParseUint(strings.SplitN(lastID, "-", 2)[0], 10, 64)

	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.streams[stream]
	if !ok {
		return nil, nil
	}
	var out []domain.StreamMessage
	for _, m := range st.entries {
		seq, _ := strconv.ParseUint(strings.TrimSuffix(m.ID, "-0"), 10, 64)
		if seq <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*MemBus)(nil)
