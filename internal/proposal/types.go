// Package proposal implements the Proposal Engine (C7): the
// draft→validating→fixing→testing→ready→approved/rejected→deployed
// state machine, per-file validation, an auto-fix loop bounded at a
// configured attempt count, a content-addressed sandbox layout, and a
// hash-chained audit ledger.
//
// Grounded on original_source/.../core/proposal_validator.go's Python
// counterpart for the five validation rules and the two auto-fix
// rewrites, original_source/.../core/proposal_auto_fixer.py for the
// fix-loop shape (analyze → categorize → fix request → re-test →
// repeat, bounded attempts, early exit on "unfixable"), and
// internal/governance/constitutional.go for the SHA-256 decision-chain
// pattern reused for the audit ledger. Libraries: github.com/google/uuid
// (proposal and sandbox IDs), go.uber.org/zap.
package proposal

import "time"

// FileAction is the operation a proposal file entry performs.
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionModify FileAction = "modify"
	ActionDelete FileAction = "delete"
)

// File is one file change carried by a Proposal.
type File struct {
	Path   string
	Action FileAction
	Code   string
}

// Status is a Proposal's position in the state machine.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusValidating Status = "validating"
	StatusFixing     Status = "fixing"
	StatusTesting    Status = "testing"
	StatusReady      Status = "ready"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusDeployed   Status = "deployed"
)

// RiskLevel classifies how much a proposal's changes could disrupt
// production if promoted.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FixAttempt records one pass through the auto-fix loop.
type FixAttempt struct {
	Attempt      int
	Category     ErrorCategory
	RootCause    string
	Explanation  string
	Unfixable    bool
	UnfixableWhy string
	Timestamp    time.Time
}

// Proposal is a self-contained code change working its way through
// validation, auto-fixing, and testing before an explicit human
// approval step.
type Proposal struct {
	ID          string
	Title       string
	Description string
	Files       []File
	Priority    int
	RiskLevel   RiskLevel
	Status      Status
	Attempts    int
	FixHistory  []FixAttempt
	CreatedBy   string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// TestOutcome is the caller-supplied result of running a proposal's
// sandbox test suite, fed into the auto-fix loop.
type TestOutcome struct {
	Passed       bool
	FailedTests  []string
	ErrorMessage []string
}

// ErrorCategory is the top-level bucket assigned to a test failure
// before a fix is requested.
type ErrorCategory string

const (
	CategoryImport       ErrorCategory = "import_error"
	CategorySyntax       ErrorCategory = "syntax_error"
	CategoryIndentation  ErrorCategory = "indentation_error"
	CategoryUndefined    ErrorCategory = "undefined_variable"
	CategoryType         ErrorCategory = "type_error"
	CategoryAttribute    ErrorCategory = "attribute_error"
	CategoryFileNotFound ErrorCategory = "file_not_found"
	CategoryUnknown      ErrorCategory = "unknown_error"
)

// FailureAnalysis summarizes a TestOutcome into a category and a
// best-guess root cause, carried into the fix request.
type FailureAnalysis struct {
	FailedTests  []string
	Category     ErrorCategory
	ErrorMessage []string
	RootCause    string
}

// FixRequest is handed to a FixGenerator to produce a concrete code
// change addressing a failure.
type FixRequest struct {
	Proposal *Proposal
	Analysis FailureAnalysis
	History  []FixAttempt
}

// FixResult is what a FixGenerator returns for one attempt.
type FixResult struct {
	Files       []File
	Explanation string
	Unfixable   bool
	Reason      string
}

// FixGenerator produces a fix for a failing proposal. Implementations
// typically call out to an LLM provider; the proposal engine itself
// has no opinion on how a fix is produced.
type FixGenerator interface {
	GenerateFix(req FixRequest) (FixResult, error)
}
