package proposal

import (
	"testing"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

func newTestEngine(t *testing.T, generator FixGenerator, runner TestRunner, maxAttempts int) *Engine {
	t.Helper()
	db := openTestDB(t)
	ledger, err := NewLedger(db)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	validator := NewValidator([]string{".go"}, []string{"fmt"})
	return New(validator, generator, maxAttempts, t.TempDir(), ledger, runner, metrics.New(), zap.NewNop())
}

type passingRunner struct{}

func (passingRunner) RunTests(p *Proposal) (TestOutcome, error) {
	return TestOutcome{Passed: true}, nil
}

type failNTimesRunner struct {
	failuresLeft int
}

func (r *failNTimesRunner) RunTests(p *Proposal) (TestOutcome, error) {
	if r.failuresLeft > 0 {
		r.failuresLeft--
		return TestOutcome{Passed: false, ErrorMessage: []string{"import error: missing module"}}, nil
	}
	return TestOutcome{Passed: true}, nil
}

type alwaysFailRunner struct{}

func (alwaysFailRunner) RunTests(p *Proposal) (TestOutcome, error) {
	return TestOutcome{Passed: false, ErrorMessage: []string{"syntax error"}}, nil
}

func TestEngine_AdvanceReachesReadyOnFirstPass(t *testing.T) {
	e := newTestEngine(t, nil, passingRunner{}, 5)
	p := e.Draft("add thing", "desc", "admin", []File{{Path: "pkg/x.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Advance(p); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if p.Status != StatusReady {
		t.Fatalf("expected ready, got %s", p.Status)
	}
}

func TestEngine_AdvanceRejectsInvalidProposal(t *testing.T) {
	e := newTestEngine(t, nil, passingRunner{}, 5)
	p := e.Draft("bad", "desc", "admin", []File{{Path: "/abs/path.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Advance(p); err == nil {
		t.Fatal("expected validation failure")
	}
	if p.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", p.Status)
	}
}

func TestEngine_AdvanceFixesThenPasses(t *testing.T) {
	gen := &stubGenerator{result: FixResult{
		Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: "package pkg // fixed"}},
	}}
	e := newTestEngine(t, gen, &failNTimesRunner{failuresLeft: 1}, 5)
	p := e.Draft("fix me", "desc", "admin", []File{{Path: "pkg/x.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Advance(p); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if p.Status != StatusReady || p.Attempts != 1 {
		t.Fatalf("expected ready after one fix attempt, got status=%s attempts=%d", p.Status, p.Attempts)
	}
}

func TestEngine_AdvanceRejectsAfterMaxAttempts(t *testing.T) {
	gen := &stubGenerator{result: FixResult{Files: nil, Explanation: "tried"}}
	e := newTestEngine(t, gen, alwaysFailRunner{}, 2)
	p := e.Draft("never works", "desc", "admin", []File{{Path: "pkg/x.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Advance(p); err == nil {
		t.Fatal("expected rejection after exhausting attempts")
	}
	if p.Status != StatusRejected || p.Attempts != 2 {
		t.Fatalf("expected rejected after 2 attempts, got status=%s attempts=%d", p.Status, p.Attempts)
	}
}

func TestEngine_ApproveRequiresReady(t *testing.T) {
	e := newTestEngine(t, nil, passingRunner{}, 5)
	p := e.Draft("x", "desc", "admin", []File{{Path: "pkg/x.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Approve(p); err == nil {
		t.Fatal("expected approve to fail before ready")
	}

	if err := e.Advance(p); err != nil {
		t.Fatal(err)
	}
	if err := e.Approve(p); err != nil {
		t.Fatalf("expected approve to succeed once ready, got %v", err)
	}
	if p.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", p.Status)
	}
}

func TestEngine_DeployRequiresApproval(t *testing.T) {
	e := newTestEngine(t, nil, passingRunner{}, 5)
	p := e.Draft("x", "desc", "admin", []File{{Path: "pkg/x.go", Action: ActionCreate, Code: "package pkg"}}, 1, RiskLow)

	if err := e.Deploy(p); err == nil {
		t.Fatal("expected deploy to fail before approval")
	}
}
