// Package push implements the real-time admin fan-out channel (C9):
// a per-topic connection manager over a duplex websocket transport,
// bounded at 100 subscribers per topic, with change-detected polling
// and a 30s heartbeat.
//
// Grounded on original_source's app/api/v1/websocket.py
// (ConnectionManager: per-channel connection sets, MAX_CONNECTIONS_PER_CHANNEL,
// HEARTBEAT_INTERVAL, change-detected poll loops per channel, the
// broadcast entry point) and the teacher's internal/metrics.Serve
// (http.Server lifecycle: mux, graceful Shutdown raced against
// ctx.Done). The transport is github.com/gorilla/websocket rather
// than the teacher's gRPC, because the wire protocol spec.md §6
// names — text frames carrying {type, data, timestamp} and close
// code 1008 "channel full" — is websocket's own close-code space,
// not gRPC's; gorilla/websocket is a direct dependency of several
// repos in the retrieval pack.
package push

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Topic names a pollable data feed. These line up with
// config.PushConfig.TopicIntervals's keys.
type Topic string

const (
	TopicRegistry  Topic = "registry"
	TopicDecisions Topic = "decisions"
	TopicAnalytics Topic = "analytics"
)

// messageType maps a topic onto the wire-level {type} enum required
// by spec.md §6: hive_update, bee_update, analytics_update, ping.
func messageType(t Topic) string {
	switch t {
	case TopicRegistry:
		return "hive_update"
	case TopicDecisions:
		return "bee_update"
	case TopicAnalytics:
		return "analytics_update"
	default:
		return string(t)
	}
}

// Envelope is the exact JSON text frame sent to every subscriber.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func newEnvelope(t Topic, data any) Envelope {
	return Envelope{Type: messageType(t), Data: data, Timestamp: time.Now().Unix()}
}

func pingEnvelope() Envelope {
	return Envelope{Type: "ping", Timestamp: time.Now().Unix()}
}

// Source produces the current snapshot for a topic. Returning an
// error leaves the last-sent snapshot untouched; the poller logs and
// retries on the next tick.
type Source func() (any, error)

// snapshotHash returns a content hash of v's JSON encoding, used to
// detect whether a topic's data changed since the last push.
func snapshotHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
