package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

// ErrChannelFull is returned by Hub.Join when a topic is already at
// its MaxConnectionsPerTopic cap. The caller is expected to close the
// underlying socket with close code 1008.
type ErrChannelFull struct{ Topic Topic }

func (e ErrChannelFull) Error() string { return "push: topic " + string(e.Topic) + " is full" }

// topicState holds the connection set and change-detection state for
// a single topic, each guarded by its own lock so that broadcast
// iteration on one topic never blocks another (spec.md §5's
// "push-channel connection sets are protected by a lock scoped to the
// topic" requirement).
type topicState struct {
	mu        sync.RWMutex
	conns     map[*conn]struct{}
	lastHash  string
	lastIsSet bool
}

// Hub owns every topic's connection set and is the broadcast entry
// point external components use to push out-of-band updates.
type Hub struct {
	maxPerTopic int
	log         *zap.Logger
	metrics     *metrics.Metrics

	mu     sync.Mutex
	topics map[Topic]*topicState
}

// NewHub builds a Hub capping every topic at maxPerTopic connections.
func NewHub(maxPerTopic int, m *metrics.Metrics, log *zap.Logger) *Hub {
	if maxPerTopic <= 0 || maxPerTopic > 100 {
		maxPerTopic = 100
	}
	return &Hub{
		maxPerTopic: maxPerTopic,
		metrics:     m,
		log:         log,
		topics:      make(map[Topic]*topicState),
	}
}

func (h *Hub) state(t Topic) *topicState {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.topics[t]
	if !ok {
		ts = &topicState{conns: make(map[*conn]struct{})}
		h.topics[t] = ts
	}
	return ts
}

// Join registers c as a subscriber of t, or returns ErrChannelFull if
// the topic is already at capacity.
func (h *Hub) Join(t Topic, c *conn) error {
	ts := h.state(t)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.conns) >= h.maxPerTopic {
		if h.metrics != nil {
			h.metrics.PushRejectedTotal.WithLabelValues(string(t)).Inc()
		}
		return ErrChannelFull{Topic: t}
	}
	ts.conns[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.PushConnectionsActive.WithLabelValues(string(t)).Set(float64(len(ts.conns)))
	}
	return nil
}

// Leave removes c from t's subscriber set.
func (h *Hub) Leave(t Topic, c *conn) {
	ts := h.state(t)
	ts.mu.Lock()
	delete(ts.conns, c)
	n := len(ts.conns)
	ts.mu.Unlock()
	if h.metrics != nil {
		h.metrics.PushConnectionsActive.WithLabelValues(string(t)).Set(float64(n))
	}
}

// Broadcast pushes data to every current subscriber of t, regardless
// of whether it differs from the last poll-driven snapshot — this is
// the out-of-band entry point external components call directly, and
// bypasses the poller's own diff check. Disconnected sockets found
// mid-broadcast are dropped from the set after the iteration.
func (h *Hub) Broadcast(t Topic, data any) {
	env := newEnvelope(t, data)
	ts := h.state(t)

	ts.mu.RLock()
	targets := make([]*conn, 0, len(ts.conns))
	for c := range ts.conns {
		targets = append(targets, c)
	}
	ts.mu.RUnlock()

	var dead []*conn
	for _, c := range targets {
		if err := c.writeJSON(env); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Leave(t, c)
		_ = c.ws.Close()
	}
}

// pushIfChanged sends data to every subscriber of t only if its hash
// differs from the last snapshot pushed to this topic (by poll or by
// a prior pushIfChanged call; Broadcast does not update this state).
func (h *Hub) pushIfChanged(t Topic, data any) error {
	hash, err := snapshotHash(data)
	if err != nil {
		return err
	}

	ts := h.state(t)
	ts.mu.Lock()
	unchanged := ts.lastIsSet && ts.lastHash == hash
	ts.lastHash = hash
	ts.lastIsSet = true
	ts.mu.Unlock()

	if unchanged {
		return nil
	}
	h.Broadcast(t, data)
	return nil
}

// pingAll sends a ping frame to every subscriber of t, dropping any
// connection that hasn't ponged within staleAfter.
func (h *Hub) pingAll(t Topic, staleAfter time.Duration) {
	ts := h.state(t)
	ts.mu.RLock()
	targets := make([]*conn, 0, len(ts.conns))
	for c := range ts.conns {
		targets = append(targets, c)
	}
	ts.mu.RUnlock()

	for _, c := range targets {
		if c.stale(staleAfter) {
			h.Leave(t, c)
			_ = c.closeWithCode(websocket.CloseGoingAway, "missed heartbeat")
			continue
		}
		if err := c.writePing(); err != nil {
			h.Leave(t, c)
			_ = c.ws.Close()
		}
	}
}

// Count returns the current number of subscribers of t.
func (h *Hub) Count(t Topic) int {
	ts := h.state(t)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.conns)
}
