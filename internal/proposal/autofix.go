package proposal

import (
	"strings"
	"time"
)

// AutoFixer drives the bounded fix loop: analyze a TestOutcome,
// categorize the top error, request a fix, apply it, and hand control
// back to the caller for re-testing. Grounded on
// original_source/.../core/proposal_auto_fixer.go's Python counterpart
// 1:1 for the categorize→prompt→apply→repeat shape and the
// attempts-exhausted / marked-unfixable exit conditions.
type AutoFixer struct {
	generator   FixGenerator
	maxAttempts int
}

// NewAutoFixer builds an AutoFixer bounded at maxAttempts passes.
func NewAutoFixer(generator FixGenerator, maxAttempts int) *AutoFixer {
	return &AutoFixer{generator: generator, maxAttempts: maxAttempts}
}

// Analyze turns a failed TestOutcome into a FailureAnalysis: the
// categorized error types and a best-guess root cause.
func Analyze(outcome TestOutcome) FailureAnalysis {
	cat := CategoryUnknown
	for _, msg := range outcome.ErrorMessage {
		if c := categorizeError(msg); c != CategoryUnknown {
			cat = c
			break
		}
	}
	return FailureAnalysis{
		FailedTests:  outcome.FailedTests,
		Category:     cat,
		ErrorMessage: outcome.ErrorMessage,
		RootCause:    rootCauseFor(cat),
	}
}

func categorizeError(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "import") || strings.Contains(lower, "module"):
		return CategoryImport
	case strings.Contains(lower, "syntax"):
		return CategorySyntax
	case strings.Contains(lower, "indentation") || strings.Contains(lower, "indent"):
		return CategoryIndentation
	case strings.Contains(lower, "undefined") || strings.Contains(lower, "not defined") || strings.Contains(lower, "undeclared"):
		return CategoryUndefined
	case strings.Contains(lower, "type"):
		return CategoryType
	case strings.Contains(lower, "attribute") || strings.Contains(lower, "field"):
		return CategoryAttribute
	case strings.Contains(lower, "no such file") || strings.Contains(lower, "not found"):
		return CategoryFileNotFound
	default:
		return CategoryUnknown
	}
}

func rootCauseFor(cat ErrorCategory) string {
	switch cat {
	case CategoryImport:
		return "missing or incorrect imports"
	case CategorySyntax, CategoryIndentation:
		return "code syntax issues"
	case CategoryFileNotFound:
		return "file path or structure issues"
	case CategoryUndefined:
		return "identifier not declared"
	case CategoryType, CategoryAttribute:
		return "type mismatch or incorrect usage"
	default:
		return "unknown issue — requires manual investigation"
	}
}

// Attempt runs a single pass of the fix loop against a failing
// outcome: analyze, request a fix, and apply it to p.Files in place if
// one is produced. Returns false once p has exhausted its attempt
// budget or the generator marks the issue unfixable; the caller should
// transition the proposal to rejected in either case.
func (a *AutoFixer) Attempt(p *Proposal, outcome TestOutcome) (ok bool, err error) {
	if p.Attempts >= a.maxAttempts {
		return false, nil
	}

	analysis := Analyze(outcome)
	req := FixRequest{Proposal: p, Analysis: analysis, History: p.FixHistory}

	fix, genErr := a.generator.GenerateFix(req)
	if genErr != nil {
		return false, genErr
	}

	p.Attempts++
	attempt := FixAttempt{
		Attempt:     p.Attempts,
		Category:    analysis.Category,
		RootCause:   analysis.RootCause,
		Explanation: fix.Explanation,
		Unfixable:   fix.Unfixable,
		Timestamp:   time.Now(),
	}
	if fix.Unfixable {
		attempt.UnfixableWhy = fix.Reason
		p.FixHistory = append(p.FixHistory, attempt)
		return false, nil
	}

	applyFix(p, fix.Files)
	p.FixHistory = append(p.FixHistory, attempt)
	return true, nil
}

// applyFix merges fixed files into p.Files by path, replacing an
// existing entry or appending a new one.
func applyFix(p *Proposal, fixed []File) {
	byPath := make(map[string]int, len(p.Files))
	for i, f := range p.Files {
		byPath[f.Path] = i
	}
	for _, f := range fixed {
		if i, ok := byPath[f.Path]; ok {
			p.Files[i] = f
		} else {
			p.Files = append(p.Files, f)
		}
	}
}
