package proposal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
	"github.com/omakh-hive/queen/internal/queenerr"
)

// TestRunner executes a proposal's sandbox test suite and reports the
// outcome. Implementations wrap whatever the sandbox's concrete test
// harness is; the engine only needs pass/fail plus failure detail.
type TestRunner interface {
	RunTests(p *Proposal) (TestOutcome, error)
}

// Engine owns the full proposal lifecycle: validation, the bounded
// auto-fix loop, sandbox materialization, and the hash-chained audit
// trail. Grounded on the teacher's internal/governance package for
// the owns-a-ledger-and-enforces-invariants shape, generalized from
// escalation decisions to proposal transitions.
type Engine struct {
	validator *Validator
	fixer     *AutoFixer
	sandbox   *Sandbox
	ledger    *Ledger
	runner    TestRunner
	metrics   *metrics.Metrics
	log       *zap.Logger

	mu        sync.Mutex
	proposals map[string]*Proposal
}

// New builds a proposal Engine. runner and generator may be nil in
// tests that drive the state machine by hand; a nil runner makes
// RunTests a no-op failure.
func New(validator *Validator, generator FixGenerator, maxFixAttempts int, sandboxRoot string, ledger *Ledger, runner TestRunner, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		validator: validator,
		fixer:     NewAutoFixer(generator, maxFixAttempts),
		sandbox:   NewSandbox(sandboxRoot),
		ledger:    ledger,
		runner:    runner,
		metrics:   m,
		log:       log,
		proposals: make(map[string]*Proposal),
	}
}

// Draft creates a new Proposal in StatusDraft and registers it.
func (e *Engine) Draft(title, description, createdBy string, files []File, priority int, risk RiskLevel) *Proposal {
	now := time.Now()
	p := &Proposal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Files:       files,
		Priority:    priority,
		RiskLevel:   risk,
		Status:      StatusDraft,
		CreatedBy:   createdBy,
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	e.proposals[p.ID] = p
	e.mu.Unlock()

	e.record(p, StatusDraft, StatusDraft, "drafted", now)
	return p
}

// Get returns a proposal by ID, or nil if unknown.
func (e *Engine) Get(id string) *Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proposals[id]
}

// Advance drives p through validating → (fixing loop) → testing →
// ready, or to rejected if validation/auto-fix/testing ultimately
// fails. It runs to a terminal intermediate state (ready or rejected)
// in one call rather than yielding at every micro-transition, since
// nothing external needs to observe the intra-loop states.
func (e *Engine) Advance(p *Proposal) error {
	e.transition(p, StatusValidating, "validation started")

	fixedFiles, fixMsgs := ApplyStaticFixes(p.Files)
	if len(fixMsgs) > 0 {
		p.Files = fixedFiles
		for _, m := range fixMsgs {
			p.log("static-fix", m)
		}
	}

	result := e.validator.Validate(p)
	if !result.Valid {
		e.reject(p, fmt.Sprintf("validation failed: %v", result.Errors))
		return queenerr.New(queenerr.KindProposalInvalid, result.Errors[0])
	}

	if err := e.sandbox.Materialize(p); err != nil {
		e.reject(p, fmt.Sprintf("sandbox materialization failed: %v", err))
		return queenerr.Wrap(queenerr.KindInternal, "materialize sandbox", err)
	}

	for {
		e.transition(p, StatusTesting, "running sandbox tests")

		if e.runner == nil {
			e.reject(p, "no test runner configured")
			return queenerr.New(queenerr.KindProposalTestFailure, "no test runner configured")
		}

		outcome, err := e.runner.RunTests(p)
		if err != nil {
			e.reject(p, fmt.Sprintf("test runner error: %v", err))
			return queenerr.Wrap(queenerr.KindProposalTestFailure, "run tests", err)
		}
		if outcome.Passed {
			e.transition(p, StatusReady, "tests passed")
			e.recordMetric(p)
			return nil
		}

		e.transition(p, StatusFixing, "tests failed, entering auto-fix loop")
		ok, err := e.fixer.Attempt(p, outcome)
		if err != nil {
			e.reject(p, fmt.Sprintf("fix generation error: %v", err))
			return queenerr.Wrap(queenerr.KindInternal, "generate fix", err)
		}
		if !ok {
			e.reject(p, "auto-fix attempts exhausted or issue marked unfixable")
			return queenerr.New(queenerr.KindProposalTestFailure, "exhausted auto-fix attempts")
		}

		if err := e.sandbox.Materialize(p); err != nil {
			e.reject(p, fmt.Sprintf("re-materialize after fix failed: %v", err))
			return queenerr.Wrap(queenerr.KindInternal, "materialize sandbox", err)
		}
	}
}

// Approve transitions a ready proposal to approved. Only an explicit
// admin action may do so — the engine never self-approves.
func (e *Engine) Approve(p *Proposal) error {
	if p.Status != StatusReady {
		return queenerr.New(queenerr.KindInvalidInput, "proposal is not ready for approval")
	}
	e.transition(p, StatusApproved, "approved by admin")
	return nil
}

// Deploy transitions an approved proposal to deployed. Promotion of
// the sandbox contents to production paths is out of scope here.
func (e *Engine) Deploy(p *Proposal) error {
	if p.Status != StatusApproved {
		return queenerr.New(queenerr.KindInvalidInput, "proposal is not approved")
	}
	e.transition(p, StatusDeployed, "deployed")
	e.recordMetric(p)
	return nil
}

// Reject manually rejects a proposal, regardless of its current status.
func (e *Engine) Reject(p *Proposal, reason string) {
	e.reject(p, reason)
}

func (e *Engine) reject(p *Proposal, reason string) {
	e.transition(p, StatusRejected, reason)
	e.recordMetric(p)
}

func (e *Engine) transition(p *Proposal, to Status, reason string) {
	from := p.Status
	now := time.Now()
	p.Status = to
	p.UpdatedAt = now
	e.record(p, from, to, reason, now)
	if e.log != nil {
		e.log.Info("proposal transition",
			zap.String("proposal_id", p.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("reason", reason),
		)
	}
}

func (e *Engine) record(p *Proposal, from, to Status, reason string, at time.Time) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(p.ID, from, to, reason, at); err != nil && e.log != nil {
		e.log.Warn("proposal ledger write failed", zap.String("proposal_id", p.ID), zap.Error(err))
	}
}

func (e *Engine) recordMetric(p *Proposal) {
	if e.metrics != nil {
		e.metrics.ProposalsTotal.WithLabelValues(string(p.Status)).Inc()
		e.metrics.ProposalFixAttempts.Observe(float64(p.Attempts))
	}
}

func (p *Proposal) log(kind, msg string) {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	logs, _ := p.Metadata["static_fix_log"].([]string)
	p.Metadata["static_fix_log"] = append(logs, kind+": "+msg)
}
