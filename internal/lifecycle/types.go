// Package lifecycle implements the Instance Lifecycle (C8): boot
// registration and heartbeat, recovery of in-flight session and
// pending-operation state, and a bounded graceful shutdown sequence.
//
// Grounded on cmd/octoreflex/main.go's boot/shutdown sequencing
// almost 1:1 (root-context cancellation, a timed drain raced against
// a hard deadline via select, a SIGHUP goroutine, a blocking
// SIGINT/SIGTERM select) and internal/gossip/quorum.go's
// observation-with-recordedAt shape, reused for the TTL bookkeeping
// around session records. Since the Bus is message-passing rather
// than a keyed store, instance/session registration is expressed as
// Bus messages on well-known recipients ("instance-registry",
// "session-registry") rather than invented bus primitives. Library:
// github.com/google/uuid (instance IDs), go.uber.org/zap.
package lifecycle

import "time"

// instanceRegistryRecipient is the Bus recipient every instance
// registration and heartbeat message is sent to.
const instanceRegistryRecipient = "instance-registry"

// sessionRegistryRecipient is the Bus recipient session-persistence
// and pending-operation records are sent to at shutdown and scanned
// from at boot.
const sessionRegistryRecipient = "session-registry"

const (
	kindInstanceRegister  = "instance.register"
	kindInstanceHeartbeat = "instance.heartbeat"
	kindSessionPersist    = "session.persist"
	kindPendingOp         = "pending.op"
)

// Instance describes this process's registration record.
type Instance struct {
	ID        string
	Hostname  string
	StartedAt time.Time
	TTL       time.Duration
}

// Session is a rehydratable unit of in-flight conversational state.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Turns     []ConvTurn     `json:"turns"`
	Metadata  map[string]any `json:"metadata"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// ConvTurn is one exchange in a bounded conversation history, per
// spec.md §4.10's "most recent ~10 turns" retention rule.
type ConvTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PendingOp is an operation that was in flight when the process last
// shut down, captured so it can be re-enqueued on the next boot.
type PendingOp struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}
