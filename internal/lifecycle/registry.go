package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/bus"
	"github.com/omakh-hive/queen/internal/metrics"
)

// Manager owns instance boot registration, periodic heartbeats, and
// the recovery scan performed at the start of every boot.
type Manager struct {
	b        bus.Bus
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	instance Instance

	stopHeartbeat chan struct{}
	bootedAt      time.Time
}

// Config carries the subset of config.LifecycleConfig the Manager needs.
type Config struct {
	InstanceTTL             time.Duration
	HeartbeatInterval       time.Duration
	ShutdownDrainTimeout    time.Duration
	ShutdownFallbackTimeout time.Duration
	SessionPersistTTL       time.Duration
}

// New builds a Manager bound to b, generating a fresh instance ID
// from the local hostname and a random suffix.
func New(b bus.Bus, cfg Config, m *metrics.Metrics, log *zap.Logger) *Manager {
	hostname, _ := os.Hostname()
	id := hostname + "-" + uuid.NewString()
	return &Manager{
		b:   b,
		cfg: cfg,
		log: log,
		instance: Instance{
			ID:        id,
			Hostname:  hostname,
			StartedAt: time.Now(),
			TTL:       cfg.InstanceTTL,
		},
		metrics:       m,
		stopHeartbeat: make(chan struct{}),
	}
}

// Instance returns this process's registration record.
func (m *Manager) Instance() Instance { return m.instance }

// RecoveryResult summarizes what Boot rehydrated.
type RecoveryResult struct {
	SessionsRecovered  int
	PendingOpsRequeued int

	// Sessions holds the decoded, non-expired sessions recovered
	// during the scan, for a caller (the Supervisor) that wants to
	// rehydrate its own in-memory session store rather than just
	// counting.
	Sessions []Session
}

// Boot performs the full startup sequence: register the instance,
// start the heartbeat loop, and recover sessions/pending operations
// from the last shutdown.
func (m *Manager) Boot(ctx context.Context) (RecoveryResult, error) {
	if err := m.register(ctx); err != nil {
		return RecoveryResult{}, err
	}
	go m.heartbeatLoop(ctx)

	result, err := m.recover(ctx)
	if err != nil && m.log != nil {
		m.log.Warn("recovery scan failed", zap.Error(err))
	}
	if m.log != nil {
		m.log.Info("instance booted",
			zap.String("instance_id", m.instance.ID),
			zap.Int("sessions_recovered", result.SessionsRecovered),
			zap.Int("pending_ops_requeued", result.PendingOpsRequeued),
		)
	}
	return result, err
}

func (m *Manager) register(ctx context.Context) error {
	msg := bus.Message{
		ID:        uuid.NewString(),
		Sender:    m.instance.ID,
		Recipient: instanceRegistryRecipient,
		Lane:      bus.LaneNormal,
		Type:      kindInstanceRegister,
		Payload: map[string]any{
			"instance_id": m.instance.ID,
			"hostname":    m.instance.Hostname,
			"ttl_seconds": m.instance.TTL.Seconds(),
		},
		Timestamp: time.Now(),
	}
	return m.b.Send(ctx, msg)
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopHeartbeat:
			return
		case <-ticker.C:
			msg := bus.Message{
				ID:        uuid.NewString(),
				Sender:    m.instance.ID,
				Recipient: instanceRegistryRecipient,
				Lane:      bus.LaneNormal,
				Type:      kindInstanceHeartbeat,
				Payload: map[string]any{
					"instance_id": m.instance.ID,
					"ttl_seconds": m.instance.TTL.Seconds(),
				},
				Timestamp: time.Now(),
			}
			if err := m.b.Send(ctx, msg); err != nil && m.log != nil {
				m.log.Warn("heartbeat send failed", zap.Error(err))
			}
		}
	}
}

// recover scans the session registry's durable history for persisted
// sessions and pending operations, rehydrating sessions into the
// returned count and re-enqueuing pending ops onto their original
// recipient via the Bus.
func (m *Manager) recover(ctx context.Context) (RecoveryResult, error) {
	var result RecoveryResult

	history, err := m.b.History(ctx, 10000)
	if err != nil {
		return result, err
	}

	for _, msg := range history {
		switch msg.Type {
		case kindSessionPersist:
			if sess, ok := decodeSession(msg.Payload); ok {
				result.SessionsRecovered++
				result.Sessions = append(result.Sessions, sess)
			}
		case kindPendingOp:
			op, ok := decodePendingOp(msg.Payload)
			if !ok {
				continue
			}
			requeued := bus.Message{
				ID:        op.ID,
				Sender:    m.instance.ID,
				Recipient: op.Recipient,
				Lane:      bus.LaneNormal,
				Type:      op.Type,
				Payload:   op.Payload,
				Timestamp: time.Now(),
			}
			if err := m.b.Send(ctx, requeued); err == nil {
				result.PendingOpsRequeued++
			}
		}
	}
	return result, nil
}

func decodeSession(payload map[string]any) (Session, bool) {
	raw, ok := payload["json"].(string)
	if !ok {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, false
	}
	if time.Now().After(s.ExpiresAt) {
		return Session{}, false
	}
	return s, true
}

func decodePendingOp(payload map[string]any) (PendingOp, bool) {
	raw, ok := payload["json"].(string)
	if !ok {
		return PendingOp{}, false
	}
	var op PendingOp
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return PendingOp{}, false
	}
	return op, true
}

// PersistSession writes a session record to the session registry with
// cfg.SessionPersistTTL applied as its expiry.
func (m *Manager) PersistSession(ctx context.Context, s Session) error {
	s.ExpiresAt = time.Now().Add(m.cfg.SessionPersistTTL)
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.b.Send(ctx, bus.Message{
		ID:        uuid.NewString(),
		Sender:    m.instance.ID,
		Recipient: sessionRegistryRecipient,
		Lane:      bus.LaneNormal,
		Type:      kindSessionPersist,
		Payload:   map[string]any{"json": string(raw)},
		Timestamp: time.Now(),
	})
}

// PersistPendingOp records an in-flight operation so it survives a
// crash and can be re-enqueued on the next boot's recovery scan.
func (m *Manager) PersistPendingOp(ctx context.Context, op PendingOp) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return m.b.Send(ctx, bus.Message{
		ID:        uuid.NewString(),
		Sender:    m.instance.ID,
		Recipient: sessionRegistryRecipient,
		Lane:      bus.LaneNormal,
		Type:      kindPendingOp,
		Payload:   map[string]any{"json": string(raw)},
		Timestamp: time.Now(),
	})
}
