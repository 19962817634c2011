package proposal

import "strings"

// ApplyStaticFixes performs the zero-LLM auto-fixes spec.md calls out
// by name: dropping empty files and correcting a short list of known
// import mistakes. It returns the rewritten file list and a message
// per change applied. Called before falling back to the FixGenerator
// loop, since these corrections are deterministic and free.
func ApplyStaticFixes(files []File) ([]File, []string) {
	var messages []string

	kept := make([]File, 0, len(files))
	for _, f := range files {
		if f.Action != ActionDelete && strings.TrimSpace(f.Code) == "" {
			messages = append(messages, "dropped empty file "+f.Path)
			continue
		}
		kept = append(kept, f)
	}

	for i, f := range kept {
		fixed := fixKnownImportMistakes(f.Code)
		if fixed != f.Code {
			kept[i].Code = fixed
			messages = append(messages, "corrected imports in "+f.Path)
		}
	}

	return kept, messages
}

// knownImportFixes maps a commonly-wrong import path to its correct
// replacement, mirroring the handful of hand-maintained corrections
// the fixer applies before ever asking an LLM for help.
var knownImportFixes = map[string]string{
	`"github.com/go-redis/redis"`: `"github.com/redis/go-redis/v9"`,
	`"gopkg.in/yaml.v2"`:          `"gopkg.in/yaml.v3"`,
}

func fixKnownImportMistakes(code string) string {
	fixed := code
	for wrong, right := range knownImportFixes {
		fixed = strings.ReplaceAll(fixed, wrong, right)
	}
	return injectMissingStandardImports(fixed)
}

// injectMissingStandardImports adds a single-line stdlib import when
// the code clearly uses the package but never imports it, and the
// insertion point is unambiguous (directly after the last existing
// import line). Anything more ambiguous is left for the FixGenerator.
func injectMissingStandardImports(code string) string {
	checks := []struct {
		usage  string
		impStr string
	}{
		{"context.Background()", `"context"`},
		{"context.TODO()", `"context"`},
		{"fmt.Sprintf(", `"fmt"`},
		{"errors.New(", `"errors"`},
		{"time.Now()", `"time"`},
	}

	lines := strings.Split(code, "\n")
	lastImportIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || (lastImportIdx >= 0 && strings.HasPrefix(trimmed, `"`)) {
			lastImportIdx = i
		}
	}
	if lastImportIdx < 0 {
		return code
	}

	for _, c := range checks {
		if !strings.Contains(code, c.usage) {
			continue
		}
		if strings.Contains(code, c.impStr) {
			continue
		}
		lines = append(lines[:lastImportIdx+1], append([]string{"\t" + c.impStr}, lines[lastImportIdx+1:]...)...)
		lastImportIdx++
	}

	return strings.Join(lines, "\n")
}
