package security

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/config"
	"github.com/omakh-hive/queen/internal/metrics"
	"github.com/omakh-hive/queen/internal/queenerr"
)

// Pipeline is the four-gate security pipeline (C3). A single Pipeline
// is shared across every request path in the Queen.
type Pipeline struct {
	cfg        *config.SecurityConfig
	contexts   *ContextStore
	quarantine *Quarantine
	images     *ImageScanner
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New builds a Pipeline bound to cfg. ocr may be nil to disable
// image-text extraction.
func New(cfg *config.SecurityConfig, m *metrics.Metrics, log *zap.Logger, ocr OCRFunc) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		contexts:   NewContextStore(cfg),
		quarantine: NewQuarantine(cfg.QuarantineCapacity),
		images:     NewImageScanner(cfg, ocr),
		metrics:    m,
		log:        log,
	}
}

// Inspect runs Gates 1 through 3 over a single piece of input text on
// behalf of userID, bound for the given endpoint class. It is the
// entry point every worker call and board post goes through before
// reaching the Dispatcher.
func (p *Pipeline) Inspect(userID, text string, endpoint EndpointClass) (GateResult, error) {
	if ctx := p.contexts.Summary(userID); ctx != nil && ctx.Blocked {
		return GateResult{Decision: DecisionBlock, Reasoning: ctx.BlockedReason},
			queenerr.New(queenerr.KindBlocked, "user is persistently blocked: "+ctx.BlockedReason)
	}

	sanitized, invisible := Sanitize(text)
	score, matched := Detect(sanitized, invisible, p.cfg.GateWeights, p.cfg.InvisibleCharWeight)

	decision, ctx, reasoning := p.contexts.Evaluate(userID, score, endpoint, time.Now())

	if p.metrics != nil {
		p.metrics.SecurityGateDecisionsTotal.WithLabelValues(strings.ToLower(string(decision))).Inc()
		p.metrics.SecurityRiskScore.Observe(float64(score))
	}

	result := GateResult{
		Decision:       decision,
		RiskScore:      score,
		SanitizedText:  sanitized,
		MatchedFamily:  matched,
		Reasoning:      reasoning,
		InvisibleChars: invisible,
	}

	if decision != DecisionAllow {
		p.quarantine.Add(QuarantineItem{UserID: userID, Text: text, Result: result, Timestamp: time.Now()})
		if p.metrics != nil {
			p.metrics.SecurityQuarantineDepth.Set(float64(p.quarantine.Len()))
		}
	}

	if p.log != nil && decision != DecisionAllow {
		p.log.Warn("gate3 decision",
			zap.String("user_id", userID),
			zap.String("decision", string(decision)),
			zap.Int("risk_score", score),
			zap.Strings("matched_families", matched),
			zap.String("threat_level", string(ctx.ThreatLevel)),
		)
	}

	switch decision {
	case DecisionBlock:
		if p.metrics != nil && ctx.Blocked {
			p.metrics.SecurityUsersBlockedTotal.Inc()
		}
		return result, queenerr.New(queenerr.KindBlocked, reasoning)
	case DecisionQuarantine:
		return result, queenerr.New(queenerr.KindQuarantined, reasoning)
	default:
		return result, nil
	}
}

// FilterResponse runs Gate 4 over generated output before it is
// returned to the caller.
func (p *Pipeline) FilterResponse(text string) OutputFilterResult {
	return FilterOutput(text)
}

// ScanImage runs the image sub-gate over raw bytes.
func (p *Pipeline) ScanImage(data []byte) ImageScanResult {
	result := p.images.ScanRaw(data)
	if result.ExtractedText != "" {
		_, matched := Detect(result.ExtractedText, 0, p.cfg.GateWeights, p.cfg.InvisibleCharWeight)
		result.Issues = append(result.Issues, matched...)
	}
	return result
}

// ContextSummary exposes a read-only copy of a user's SecurityContext
// for operator tooling and the Push Channel.
func (p *Pipeline) ContextSummary(userID string) *SecurityContext {
	return p.contexts.Summary(userID)
}

// Unblock clears a user's persistent block.
func (p *Pipeline) Unblock(userID string) {
	p.contexts.Unblock(userID)
}

// QuarantineList returns every item currently retained in quarantine.
func (p *Pipeline) QuarantineList() []QuarantineItem {
	return p.quarantine.List()
}

// CleanupContexts purges idle, unblocked contexts. Intended to be
// called periodically by the Supervisor.
func (p *Pipeline) CleanupContexts(now time.Time) int {
	return p.contexts.Cleanup(now)
}
