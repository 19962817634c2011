package proposal

import "testing"

func TestApplyStaticFixes_DropsEmptyFiles(t *testing.T) {
	files := []File{
		{Path: "a.go", Action: ActionModify, Code: "package a"},
		{Path: "b.go", Action: ActionModify, Code: "   "},
	}
	kept, msgs := ApplyStaticFixes(files)
	if len(kept) != 1 || kept[0].Path != "a.go" {
		t.Fatalf("expected only a.go kept, got %+v", kept)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one fix message, got %v", msgs)
	}
}

func TestApplyStaticFixes_CorrectsKnownImportMistake(t *testing.T) {
	files := []File{
		{Path: "a.go", Action: ActionModify, Code: `import "github.com/go-redis/redis"`},
	}
	kept, msgs := ApplyStaticFixes(files)
	if kept[0].Code != `import "github.com/redis/go-redis/v9"` {
		t.Fatalf("expected import corrected, got %q", kept[0].Code)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one fix message, got %v", msgs)
	}
}

func TestApplyStaticFixes_NoChangesNoMessages(t *testing.T) {
	files := []File{{Path: "a.go", Action: ActionModify, Code: "package a"}}
	kept, msgs := ApplyStaticFixes(files)
	if len(kept) != 1 || len(msgs) != 0 {
		t.Fatalf("expected no changes, got kept=%v msgs=%v", kept, msgs)
	}
}

func TestAnalyze_CategorizesImportError(t *testing.T) {
	a := Analyze(TestOutcome{ErrorMessage: []string{"cannot find module \"foo\""}})
	if a.Category != CategoryImport {
		t.Fatalf("expected import_error, got %s", a.Category)
	}
}

func TestAnalyze_CategorizesSyntaxError(t *testing.T) {
	a := Analyze(TestOutcome{ErrorMessage: []string{"syntax error: unexpected {"}})
	if a.Category != CategorySyntax {
		t.Fatalf("expected syntax_error, got %s", a.Category)
	}
}

func TestAnalyze_DefaultsToUnknown(t *testing.T) {
	a := Analyze(TestOutcome{ErrorMessage: []string{"something weird happened"}})
	if a.Category != CategoryUnknown {
		t.Fatalf("expected unknown_error, got %s", a.Category)
	}
}

type stubGenerator struct {
	result FixResult
	err    error
}

func (g *stubGenerator) GenerateFix(req FixRequest) (FixResult, error) {
	return g.result, g.err
}

func TestAutoFixer_AttemptAppliesFix(t *testing.T) {
	gen := &stubGenerator{result: FixResult{
		Files:       []File{{Path: "a.go", Action: ActionModify, Code: "package a // fixed"}},
		Explanation: "fixed the import",
	}}
	fixer := NewAutoFixer(gen, 5)
	p := &Proposal{Files: []File{{Path: "a.go", Action: ActionModify, Code: "package a"}}}

	ok, err := fixer.Attempt(p, TestOutcome{FailedTests: []string{"TestFoo"}, ErrorMessage: []string{"import error"}})
	if err != nil || !ok {
		t.Fatalf("expected attempt to succeed, got ok=%v err=%v", ok, err)
	}
	if p.Files[0].Code != "package a // fixed" {
		t.Fatalf("expected fix applied, got %q", p.Files[0].Code)
	}
	if len(p.FixHistory) != 1 || p.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %+v", p.FixHistory)
	}
}

func TestAutoFixer_StopsWhenUnfixable(t *testing.T) {
	gen := &stubGenerator{result: FixResult{Unfixable: true, Reason: "needs a human"}}
	fixer := NewAutoFixer(gen, 5)
	p := &Proposal{Files: []File{{Path: "a.go", Action: ActionModify, Code: "package a"}}}

	ok, err := fixer.Attempt(p, TestOutcome{})
	if err != nil || ok {
		t.Fatalf("expected unfixable to stop the loop, got ok=%v err=%v", ok, err)
	}
	if !p.FixHistory[0].Unfixable {
		t.Fatal("expected the attempt to be recorded as unfixable")
	}
}

func TestAutoFixer_StopsWhenAttemptsExhausted(t *testing.T) {
	gen := &stubGenerator{result: FixResult{Files: nil}}
	fixer := NewAutoFixer(gen, 2)
	p := &Proposal{Attempts: 2}

	ok, err := fixer.Attempt(p, TestOutcome{})
	if err != nil || ok {
		t.Fatalf("expected attempt budget exhausted, got ok=%v err=%v", ok, err)
	}
}
