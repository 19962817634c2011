package proposal

import (
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
)

// Validator checks a Proposal's files against the five rules from
// spec.md §4.7: relative path with an allow-listed extension,
// non-empty code, parseable source for Go files, resolvable imports
// against a declared manifest, and async/await discipline (expressed
// in Go as a goroutine/channel-blocking-call check, since the target
// language has no async/await keyword pair).
type Validator struct {
	allowedExtensions map[string]bool
	knownImports      map[string]bool
}

// NewValidator builds a Validator. knownImports declares every import
// path considered resolvable — typically the module's own packages
// plus its go.mod require list.
func NewValidator(allowedExtensions []string, knownImports []string) *Validator {
	exts := make(map[string]bool, len(allowedExtensions))
	for _, e := range allowedExtensions {
		exts[e] = true
	}
	imports := make(map[string]bool, len(knownImports))
	for _, p := range knownImports {
		imports[p] = true
	}
	return &Validator{allowedExtensions: exts, knownImports: imports}
}

// Validate checks every file in p and returns accumulated errors and
// warnings. An empty proposal (no files) is always invalid.
func (v *Validator) Validate(p *Proposal) ValidationResult {
	var errs, warnings []string

	if len(p.Files) == 0 {
		return ValidationResult{Valid: false, Errors: []string{"proposal has no files"}}
	}

	for i, f := range p.Files {
		fe, fw := v.validateFile(f, i)
		errs = append(errs, fe...)
		warnings = append(warnings, fw...)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

func (v *Validator) validateFile(f File, index int) (errs, warnings []string) {
	if f.Action == ActionDelete {
		if !isValidPath(f.Path) {
			errs = append(errs, fmt.Sprintf("file %d (%s): invalid path", index, f.Path))
		}
		return errs, warnings
	}

	if f.Path == "" || f.Path == "unknown" {
		errs = append(errs, fmt.Sprintf("file %d: invalid path %q", index, f.Path))
		return errs, warnings
	}

	if !isValidPath(f.Path) {
		errs = append(errs, fmt.Sprintf("file %d (%s): path format invalid", index, f.Path))
	}
	if !v.allowedExtensions[filepath.Ext(f.Path)] {
		errs = append(errs, fmt.Sprintf("file %d (%s): extension not in allow-list", index, f.Path))
	}

	if strings.TrimSpace(f.Code) == "" {
		errs = append(errs, fmt.Sprintf("file %d (%s): code is empty", index, f.Path))
		return errs, warnings
	}

	if filepath.Ext(f.Path) == ".go" {
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, f.Path, f.Code, parser.ImportsOnly); err != nil {
			errs = append(errs, fmt.Sprintf("file %s: syntax error: %v", f.Path, err))
			return errs, warnings
		}

		importErrs, importWarnings := v.checkImports(f)
		errs = append(errs, importErrs...)
		warnings = append(warnings, importWarnings...)

		warnings = append(warnings, checkBlockingCalls(f)...)
	}

	return errs, warnings
}

// isValidPath enforces project-relative paths with no traversal.
func isValidPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") {
		return false
	}
	if strings.Contains(path, "..") {
		return false
	}
	return true
}

// checkImports extracts the file's import paths via the parser and
// rejects any that aren't in the known-import manifest. Standard
// library packages (no dot in the first path segment) are always
// considered resolvable.
func (v *Validator) checkImports(f File) (errs, warnings []string) {
	fset := token.NewFileSet()
	tree, err := parser.ParseFile(fset, f.Path, f.Code, parser.ImportsOnly)
	if err != nil {
		return nil, nil
	}
	for _, imp := range tree.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if isStdlibPath(path) {
			continue
		}
		if !v.knownImports[path] {
			errs = append(errs, fmt.Sprintf("file %s: import %q not declared in the package manifest", f.Path, path))
		}
	}
	return errs, warnings
}

func isStdlibPath(path string) bool {
	first := strings.SplitN(path, "/", 2)[0]
	return !strings.Contains(first, ".")
}

var blockingCallPattern = regexp.MustCompile(`\btime\.Sleep\(`)

// checkBlockingCalls flags time.Sleep calls inside a function that
// also spawns a goroutine, a common async-discipline mistake: a
// blocking sleep inside code meant to run concurrently defeats the
// concurrency.
func checkBlockingCalls(f File) []string {
	if !blockingCallPattern.MatchString(f.Code) {
		return nil
	}
	if !strings.Contains(f.Code, "go func") {
		return nil
	}
	return []string{fmt.Sprintf("file %s: time.Sleep found alongside a goroutine launch — consider a context-aware timer", f.Path)}
}

