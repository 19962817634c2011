package bus

import (
	"context"
	"sync"

	"github.com/omakh-hive/queen/internal/metrics"
)

// Memory is the process-local fallback backend. It implements the
// same lane/priority/history semantics as the durable Redis backend,
// using one buffered channel per (recipient, lane) — the teacher's
// bounded-channel-with-select/default backpressure pattern from
// internal/kernel/events.go, generalized from a single global queue
// to one pair of queues per recipient.
type Memory struct {
	highWaterMark int
	historyLimit  int
	metrics       *metrics.Metrics

	mu    sync.Mutex
	lanes map[string]*recipientLanes

	subMu       sync.Mutex
	subscribers map[int]chan Message
	nextSubID   int

	histMu  sync.Mutex
	history []Message
}

type recipientLanes struct {
	priority chan Message
	normal   chan Message
}

// NewMemory builds a Memory backend. highWaterMark bounds each lane's
// channel capacity; historyLimit bounds the retained audit history.
func NewMemory(highWaterMark, historyLimit int, m *metrics.Metrics) *Memory {
	if highWaterMark < 1 {
		highWaterMark = 1
	}
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Memory{
		highWaterMark: highWaterMark,
		historyLimit:  historyLimit,
		metrics:       m,
		lanes:         make(map[string]*recipientLanes),
		subscribers:   make(map[int]chan Message),
	}
}

func (b *Memory) lanesFor(recipient string) *recipientLanes {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lanes[recipient]
	if !ok {
		l = &recipientLanes{
			priority: make(chan Message, b.highWaterMark),
			normal:   make(chan Message, b.highWaterMark),
		}
		b.lanes[recipient] = l
	}
	return l
}

func (b *Memory) chanFor(recipient string, lane Lane) chan Message {
	l := b.lanesFor(recipient)
	if lane == LanePriority {
		return l.priority
	}
	return l.normal
}

// Send implements Bus.
func (b *Memory) Send(_ context.Context, msg Message) error {
	ch := b.chanFor(msg.Recipient, msg.Lane)
	select {
	case ch <- msg:
		b.appendHistory(msg)
		if b.metrics != nil {
			b.metrics.BusMessagesSentTotal.WithLabelValues(string(msg.Lane)).Inc()
			b.metrics.BusQueueDepth.WithLabelValues(msg.Recipient, string(msg.Lane)).Set(float64(len(ch)))
		}
		return nil
	default:
		if b.metrics != nil {
			b.metrics.BusMessagesDroppedTotal.WithLabelValues("queue_full").Inc()
		}
		return &ErrQueueFull{Recipient: msg.Recipient, Lane: msg.Lane}
	}
}

// Receive implements Bus, draining the priority lane before normal.
func (b *Memory) Receive(_ context.Context, recipient string) (Message, bool, error) {
	l := b.lanesFor(recipient)

	select {
	case msg := <-l.priority:
		b.observeReceive(msg, l)
		return msg, true, nil
	default:
	}

	select {
	case msg := <-l.normal:
		b.observeReceive(msg, l)
		return msg, true, nil
	default:
	}

	return Message{}, false, nil
}

func (b *Memory) observeReceive(msg Message, l *recipientLanes) {
	if b.metrics == nil {
		return
	}
	b.metrics.BusMessagesReceivedTotal.WithLabelValues(string(msg.Lane)).Inc()
	b.metrics.BusQueueDepth.WithLabelValues(msg.Recipient, "priority").Set(float64(len(l.priority)))
	b.metrics.BusQueueDepth.WithLabelValues(msg.Recipient, "normal").Set(float64(len(l.normal)))
}

// Broadcast implements Bus, fanning msg out to every live subscriber
// without blocking on a slow or absent reader.
func (b *Memory) Broadcast(_ context.Context, msg Message) error {
	b.appendHistory(msg)
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			if b.metrics != nil {
				b.metrics.BusMessagesDroppedTotal.WithLabelValues("subscriber_full").Inc()
			}
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *Memory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, 64)

	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = ch
	b.subMu.Unlock()

	go func() {
		<-ctx.Done()
		b.subMu.Lock()
		delete(b.subscribers, id)
		close(ch)
		b.subMu.Unlock()
	}()

	return ch, nil
}

// QueueSize implements Bus.
func (b *Memory) QueueSize(_ context.Context, recipient string, lane Lane) (int, error) {
	return len(b.chanFor(recipient, lane)), nil
}

// ClearQueue implements Bus.
func (b *Memory) ClearQueue(_ context.Context, recipient string, lane Lane) error {
	ch := b.chanFor(recipient, lane)
	for {
		select {
		case <-ch:
		default:
			return nil
		}
	}
}

func (b *Memory) appendHistory(msg Message) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, msg)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
}

// History implements Bus, returning the most recent limit messages,
// newest first.
func (b *Memory) History(_ context.Context, limit int) ([]Message, error) {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	n := len(b.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Message, limit)
	for i := 0; i < limit; i++ {
		out[i] = b.history[n-1-i]
	}
	return out, nil
}

// Health implements Bus; the in-process backend is always reachable.
func (b *Memory) Health(_ context.Context) error { return nil }

// Close implements Bus.
func (b *Memory) Close() error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	return nil
}
