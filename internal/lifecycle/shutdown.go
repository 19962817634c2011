package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PendingOpSource supplies the in-flight operations a caller wants
// flushed to durable storage during shutdown.
type PendingOpSource func() []PendingOp

// SessionSource supplies the active sessions a caller wants persisted
// during shutdown.
type SessionSource func() []Session

// LogFlusher flushes any batched log sinks. *zap.Logger's Sync method
// satisfies this.
type LogFlusher func() error

// ShutdownReport summarizes what the sequence completed before
// returning, and whether it hit the drain timeout or the hard
// fallback cutoff.
type ShutdownReport struct {
	PendingOpsFlushed int
	SessionsPersisted int
	HitDrainTimeout   bool
	HitFallback       bool
	Duration          time.Duration
}

// Shutdown runs the five-step graceful shutdown sequence from
// spec.md §4.8: mark unhealthy, flush pending ops, persist sessions,
// flush logs, and stop the heartbeat loop — racing the whole sequence
// against ShutdownDrainTimeout and hard-cutting at
// ShutdownFallbackTimeout if it hasn't finished by then.
func (m *Manager) Shutdown(ctx context.Context, markUnhealthy func(), ops PendingOpSource, sessions SessionSource, flushLogs LogFlusher) ShutdownReport {
	start := time.Now()
	report := make(chan ShutdownReport, 1)

	go func() {
		r := ShutdownReport{}

		if markUnhealthy != nil {
			markUnhealthy()
		}

		if ops != nil {
			for _, op := range ops() {
				if err := m.PersistPendingOp(ctx, op); err == nil {
					r.PendingOpsFlushed++
				} else if m.log != nil {
					m.log.Warn("failed to flush pending op", zap.String("op_id", op.ID), zap.Error(err))
				}
			}
		}

		if sessions != nil {
			for _, s := range sessions() {
				if err := m.PersistSession(ctx, s); err == nil {
					r.SessionsPersisted++
				} else if m.log != nil {
					m.log.Warn("failed to persist session", zap.String("session_id", s.ID), zap.Error(err))
				}
			}
		}

		close(m.stopHeartbeat)

		if flushLogs != nil {
			if err := flushLogs(); err != nil && m.log != nil {
				m.log.Warn("log flush failed", zap.Error(err))
			}
		}

		report <- r
	}()

	drain := m.cfg.ShutdownDrainTimeout
	if drain <= 0 {
		drain = 10 * time.Second
	}
	fallback := m.cfg.ShutdownFallbackTimeout
	if fallback <= 0 {
		fallback = 30 * time.Second
	}

	select {
	case r := <-report:
		r.Duration = time.Since(start)
		if m.log != nil {
			m.log.Info("shutdown sequence complete", zap.Duration("duration", r.Duration))
		}
		return r
	case <-time.After(drain):
		select {
		case r := <-report:
			r.HitDrainTimeout = true
			r.Duration = time.Since(start)
			if m.log != nil {
				m.log.Warn("shutdown exceeded drain timeout but finished before fallback", zap.Duration("duration", r.Duration))
			}
			return r
		case <-time.After(fallback - drain):
			if m.log != nil {
				m.log.Error("shutdown hit fallback timeout — forcing exit")
			}
			return ShutdownReport{HitDrainTimeout: true, HitFallback: true, Duration: time.Since(start)}
		}
	}
}
