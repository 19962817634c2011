package security

import (
	"strconv"
	"sync"
	"time"

	"github.com/omakh-hive/queen/internal/config"
)

const (
	maxRecentScores = 10
	maxEvents       = 50
)

// ContextStore owns every user's SecurityContext behind a striped
// lock, mirroring the teacher's escalation state machine's per-key
// locking shape (internal/escalation/state_machine.go) rather than
// a single global mutex.
type ContextStore struct {
	cfg *config.SecurityConfig

	mu    sync.RWMutex
	byKey map[string]*contextEntry
}

type contextEntry struct {
	mu  sync.Mutex
	ctx *SecurityContext
}

// NewContextStore builds an empty ContextStore bound to cfg.
func NewContextStore(cfg *config.SecurityConfig) *ContextStore {
	return &ContextStore{cfg: cfg, byKey: make(map[string]*contextEntry)}
}

// GetOrCreate returns the entry for userID, creating it on first use.
func (s *ContextStore) getOrCreate(userID string) *contextEntry {
	s.mu.RLock()
	e, ok := s.byKey[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.byKey[userID]; ok {
		return e
	}
	now := time.Now()
	e = &contextEntry{ctx: &SecurityContext{
		UserID:      userID,
		CreatedAt:   now,
		LastSeen:    now,
		ThreatLevel: ThreatSafe,
	}}
	s.byKey[userID] = e
	return e
}

// Summary returns a copy of userID's current context, or nil if none
// exists yet.
func (s *ContextStore) Summary(userID string) *SecurityContext {
	s.mu.RLock()
	e, ok := s.byKey[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.ctx
	return &cp
}

// Unblock clears a user's persistent block, for operator use.
func (s *ContextStore) Unblock(userID string) {
	s.mu.RLock()
	e, ok := s.byKey[userID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.Blocked = false
	e.ctx.BlockedReason = ""
}

// Cleanup removes contexts idle past cfg.ContextIdleTTL, skipping
// blocked users so their block record survives the sweep.
func (s *ContextStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.byKey {
		e.mu.Lock()
		idle := now.Sub(e.ctx.LastSeen) > s.cfg.ContextIdleTTL
		blocked := e.ctx.Blocked
		e.mu.Unlock()
		if idle && !blocked {
			delete(s.byKey, k)
			removed++
		}
	}
	return removed
}

// thresholdsFor returns the (block, quarantine) pair for an endpoint class.
func thresholdsFor(cfg *config.SecurityConfig, class EndpointClass) (block, quarantine int) {
	if class == EndpointCritical {
		return cfg.CriticalBlockThreshold, cfg.CriticalQuarantineThreshold
	}
	return cfg.StandardBlockThreshold, cfg.StandardQuarantineThreshold
}

// calculateThreatLevel mirrors context_manager.py's
// _calculate_threat_level: a block count above 3 forces CRITICAL
// regardless of score, otherwise the cumulative score buckets decide.
func calculateThreatLevel(blocks int, cumulativeRisk float64) ThreatLevel {
	if blocks > 3 {
		return ThreatCritical
	}
	switch {
	case cumulativeRisk >= 80:
		return ThreatCritical
	case cumulativeRisk >= 60:
		return ThreatHigh
	case cumulativeRisk >= 40:
		return ThreatMedium
	case cumulativeRisk >= 20:
		return ThreatLow
	default:
		return ThreatSafe
	}
}

// detectEscalation mirrors context_manager.py's _detect_escalation:
// it needs at least 5 recorded scores and fires on a monotonic
// non-decreasing run, a majority of recent scores above 60, or a
// burst of three-plus risky events within the last five minutes.
func detectEscalation(ctx *SecurityContext, now time.Time) (bool, string) {
	if len(ctx.RecentScores) < 5 {
		return false, ""
	}
	last5 := ctx.RecentScores[len(ctx.RecentScores)-5:]

	monotonic := true
	for i := 1; i < len(last5); i++ {
		if last5[i] < last5[i-1] {
			monotonic = false
			break
		}
	}
	if monotonic {
		return true, "risk score has been non-decreasing over the last 5 messages"
	}

	above60 := 0
	for _, s := range last5 {
		if s > 60 {
			above60++
		}
	}
	if above60 >= 3 {
		return true, "3 or more of the last 5 risk scores exceed 60"
	}

	windowStart := now.Add(-5 * time.Minute)
	burst := 0
	for _, ev := range ctx.Events {
		if ev.RiskScore > 50 && !ev.Timestamp.Before(windowStart) {
			burst++
		}
	}
	if burst >= 3 {
		return true, "3 or more risky events within the last 5 minutes"
	}
	return false, ""
}

// shouldPersistentlyBlock mirrors context_manager.py's
// should_block_user: a user stays blocked once already marked so, on
// a CRITICAL threat level, after too many blocks, after a detected
// escalation at HIGH/CRITICAL threat, or once cumulative risk clears
// 85.
func shouldPersistentlyBlock(cfg *config.SecurityConfig, ctx *SecurityContext) (bool, string) {
	if ctx.Blocked {
		return true, ctx.BlockedReason
	}
	if ctx.ThreatLevel == ThreatCritical {
		return true, "threat level is critical"
	}
	if ctx.Blocks > cfg.PersistentBlockAfterBlocks {
		return true, "exceeded the maximum number of blocked requests"
	}
	if ctx.EscalationFound && (ctx.ThreatLevel == ThreatHigh || ctx.ThreatLevel == ThreatCritical) {
		return true, "escalating risk pattern detected at high threat level"
	}
	if ctx.CumulativeRisk > cfg.PersistentBlockAfterEMA {
		return true, "cumulative risk score exceeded the persistent-block ceiling"
	}
	return false, ""
}

// Evaluate runs Gate 3 for one call: it updates userID's context with
// the Gate 2 score, recomputes its threat level and escalation state,
// and returns the final decision for this call — combining the
// endpoint-class threshold table, the threat-level override, and the
// persistent-block rule.
func (s *ContextStore) Evaluate(userID string, score int, endpoint EndpointClass, now time.Time) (Decision, *SecurityContext, string) {
	e := s.getOrCreate(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := e.ctx

	ctx.LastSeen = now
	ctx.MessageCount++

	ctx.RecentScores = append(ctx.RecentScores, score)
	if len(ctx.RecentScores) > maxRecentScores {
		ctx.RecentScores = ctx.RecentScores[len(ctx.RecentScores)-maxRecentScores:]
	}

	ctx.CumulativeRisk = s.cfg.EMAPrevWeight*ctx.CumulativeRisk + s.cfg.EMANewWeight*float64(score)
	if score > 50 {
		ctx.Warnings++
	}

	block, quarantine := thresholdsFor(s.cfg, endpoint)
	decision := DecisionAllow
	switch {
	case score >= block:
		decision = DecisionBlock
	case score >= quarantine:
		decision = DecisionQuarantine
	}

	ctx.ThreatLevel = calculateThreatLevel(ctx.Blocks, ctx.CumulativeRisk)
	if ctx.ThreatLevel == ThreatCritical {
		decision = DecisionBlock
	} else if ctx.ThreatLevel == ThreatHigh && score > 30 && decision == DecisionAllow {
		decision = DecisionQuarantine
	}

	ctx.EscalationFound, ctx.EscalationReason = detectEscalation(ctx, now)

	if decision == DecisionBlock {
		ctx.Blocks++
	}

	ctx.Events = append(ctx.Events, SecurityEvent{
		Timestamp: now,
		EventType: "gate3_decision",
		RiskScore: score,
		Details:   string(decision),
		Blocked:   decision == DecisionBlock,
	})
	if len(ctx.Events) > maxEvents {
		ctx.Events = ctx.Events[len(ctx.Events)-maxEvents:]
	}

	persist, reason := shouldPersistentlyBlock(s.cfg, ctx)
	if persist {
		ctx.Blocked = true
		ctx.BlockedReason = reason
		if ctx.BlockedAt.IsZero() {
			ctx.BlockedAt = now
		}
		decision = DecisionBlock
	}

	reasoning := reason
	if reasoning == "" {
		reasoning = "score " + strconv.Itoa(score) + " evaluated against endpoint thresholds"
	}

	cp := *ctx
	return decision, &cp, reasoning
}
