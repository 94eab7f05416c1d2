package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

const (
	subscriberBuffer = 256
	streamMaxLen     = 10000
)

// Bus is an in-process domain.SignalBus used when Redis is not configured.
// Channels ending in '*' subscribe to every channel with that prefix.
// Publishing never blocks: a full subscriber buffer drops the message.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	streams map[string][]domain.StreamMessage
	seq     map[string]int64
}

type subscription struct {
	pattern string
	ch      chan []byte
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[*subscription]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int64),
	}
}

// Publish delivers payload to every matching subscriber.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !matches(sub.pattern, channel) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. The returned
// channel is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := &subscription{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		close(sub.ch)
		b.mu.Unlock()
	}()
	return sub.ch, nil
}

// StreamAppend appends payload to a capped in-memory stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[stream]++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq[stream], 10) + "-0",
		Payload: payload,
	})
	if len(msgs) > streamMaxLen {
		msgs = msgs[len(msgs)-streamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages after lastID. "0" or "" reads from
// the beginning.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) int64 {
	head, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func matches(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
