// Package security implements the four-gate LLM security pipeline
// (sanitize, detect, context/decide, output-filter) plus the image
// sub-gate. Every public LLM-facing call in the Queen passes through
// this pipeline.
//
// Grounded on the teacher's internal/escalation package (weighted
// composite scoring, the EWMA accumulator, the monotonic
// escalate/decay state machine all reappear here in shape) and on
// original_source's core/security/{prompt_protection,context_manager,
// image_scanner}.py for the exact weights and thresholds.
package security

import "time"

// Decision is the Gate 3 verdict for a single call.
type Decision string

const (
	DecisionAllow      Decision = "ALLOW"
	DecisionQuarantine Decision = "QUARANTINE"
	DecisionBlock      Decision = "BLOCK"
)

// EndpointClass selects which Gate 3 threshold pair applies.
type EndpointClass int

const (
	// EndpointStandard uses the 70/50 block/quarantine thresholds.
	EndpointStandard EndpointClass = iota
	// EndpointCritical covers critical or code-generating endpoints,
	// which use the stricter 30/20 thresholds.
	EndpointCritical
)

// ThreatLevel is the coarse per-user threat classification derived
// from cumulative risk and block history.
type ThreatLevel string

const (
	ThreatSafe     ThreatLevel = "safe"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// SecurityEvent is one entry in a SecurityContext's bounded event log.
type SecurityEvent struct {
	Timestamp time.Time
	EventType string
	RiskScore int
	Details   string
	Blocked   bool
}

// SecurityContext is the per-user-id security state tracked across a
// session. It is owned by the Security Pipeline; other components may
// hold a read-only summary for the duration of a single operation.
type SecurityContext struct {
	UserID    string
	SessionID string
	CreatedAt time.Time
	LastSeen  time.Time

	ThreatLevel      ThreatLevel
	CumulativeRisk   float64
	Warnings         int
	Blocks           int
	MessageCount     int
	RecentScores     []int // bounded to last 10
	Events           []SecurityEvent // bounded to last 50
	EscalationFound  bool
	EscalationReason string

	Blocked       bool
	BlockedAt     time.Time
	BlockedReason string
}

// GateResult is the return value of running the pipeline's input
// gates (1 through 3) over a piece of text.
type GateResult struct {
	Decision       Decision
	RiskScore      int
	SanitizedText  string
	MatchedFamily  []string
	Reasoning      string
	InvisibleChars int
}

// OutputFilterResult is the return value of Gate 4.
type OutputFilterResult struct {
	FilteredText string
	IsSafe       bool
	Redactions   []string
	Warnings     []string
}

// ImageScanResult is the return value of the image sub-gate.
type ImageScanResult struct {
	IsSafe         bool
	RiskScore      int
	Issues         []string
	Warnings       []string
	ExtractedText  string
	FileHash       string
	FileSize       int64
	Format         string
}

// QuarantineItem is a single entry in the quarantine ring buffer.
type QuarantineItem struct {
	UserID    string
	Text      string
	Result    GateResult
	Timestamp time.Time
}
