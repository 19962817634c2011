package proposal

import "testing"

func TestValidator_RejectsEmptyProposal(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{})
	if r.Valid {
		t.Fatal("expected empty proposal to be invalid")
	}
}

func TestValidator_RejectsPathTraversal(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{Files: []File{{Path: "../../etc/passwd", Action: ActionModify, Code: "x"}}})
	if r.Valid {
		t.Fatal("expected traversal path to be invalid")
	}
}

func TestValidator_RejectsDisallowedExtension(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{Files: []File{{Path: "script.sh", Action: ActionModify, Code: "echo hi"}}})
	if r.Valid {
		t.Fatal("expected disallowed extension to be invalid")
	}
}

func TestValidator_RejectsEmptyCode(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: "   "}}})
	if r.Valid {
		t.Fatal("expected empty code to be invalid")
	}
}

func TestValidator_RejectsGoSyntaxError(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: "package x\nfunc ( {"}}})
	if r.Valid {
		t.Fatal("expected syntax error to be invalid")
	}
}

func TestValidator_AcceptsValidGoFile(t *testing.T) {
	v := NewValidator([]string{".go"}, []string{"fmt"})
	code := "package x\n\nimport \"fmt\"\n\nfunc Hello() { fmt.Println(\"hi\") }\n"
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: code}}})
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidator_RejectsUndeclaredImport(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	code := "package x\n\nimport \"github.com/acme/widget\"\n\nfunc Hello() {}\n"
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: code}}})
	if r.Valid {
		t.Fatal("expected undeclared third-party import to be invalid")
	}
}

func TestValidator_AllowsStdlibImportWithoutManifest(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	code := "package x\n\nimport \"strings\"\n\nfunc Hello() { _ = strings.ToUpper(\"x\") }\n"
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/x.go", Action: ActionModify, Code: code}}})
	if !r.Valid {
		t.Fatalf("expected stdlib import to be accepted, got errors: %v", r.Errors)
	}
}

func TestValidator_AllowsDeleteWithAnyPath(t *testing.T) {
	v := NewValidator([]string{".go"}, nil)
	r := v.Validate(&Proposal{Files: []File{{Path: "pkg/old.go", Action: ActionDelete}}})
	if !r.Valid {
		t.Fatalf("expected delete action to skip code checks, got errors: %v", r.Errors)
	}
}
