package security

import (
	"regexp"

	"github.com/omakh-hive/queen/internal/config"
)

// patternFamily groups a named risk category with the regexes that
// detect it and the config field used to weigh a hit.
type patternFamily struct {
	name     string
	patterns []*regexp.Regexp
	weight   func(config.GateWeights) int
}

var gate2Families = []patternFamily{
	{
		name: "instruction_override",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override|skip)\s+(all\s+|any\s+)?(the\s+|your\s+)?(previous|prior|above|earlier)?\s*(instructions?|prompts?|rules?|guidelines?)\b`),
			regexp.MustCompile(`(?i)\bdo\s+not\s+follow\s+(the\s+|your\s+)?(previous|prior|above)\s+instructions?\b`),
		},
		weight: func(w config.GateWeights) int { return w.InstructionOverride },
	},
	{
		name: "system_manipulation",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
			regexp.MustCompile(`(?i)\b(act|pretend|roleplay)\s+as\b`),
			regexp.MustCompile(`(?i)\bfrom\s+now\s+on\b`),
			regexp.MustCompile(`(?i)\bgoing\s+forward\b`),
			regexp.MustCompile(`(?i)\bfor\s+all\s+future\s+(responses|messages|interactions)\b`),
			regexp.MustCompile(`(?i)\b(permanently\s+change|new\s+system\s+prompt|system\s+message\s+is)\b`),
		},
		weight: func(w config.GateWeights) int { return w.SystemManipulation },
	},
	{
		name: "jailbreak",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bdan\s+mode\b`),
			regexp.MustCompile(`(?i)\bdeveloper\s+mode\b`),
			regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
			regexp.MustCompile(`(?i)\bbypass(ing)?\s+(your\s+|the\s+)?restrictions?\b`),
			regexp.MustCompile(`(?i)\bwithout\s+(any\s+)?(restrictions?|limitations?|guardrails?)\b`),
			regexp.MustCompile(`(?i)\bignore\s+(your\s+)?(ethical|safety)\s+(guidelines|rules)\b`),
			regexp.MustCompile(`(?i)\bdisable\s+(your\s+|the\s+)?(content\s+)?filters?\b`),
			regexp.MustCompile(`(?i)\bjailbreak\b`),
			regexp.MustCompile(`(?i)\buncensored\s+mode\b`),
		},
		weight: func(w config.GateWeights) int { return w.Jailbreak },
	},
	{
		name: "info_extraction",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\breveal\s+(your\s+)?(system\s+prompt|instructions|credentials)\b`),
			regexp.MustCompile(`(?i)\bshow\s+me\s+(your\s+)?(system\s+prompt|config(uration)?|env(ironment)?\s+variables?)\b`),
			regexp.MustCompile(`(?i)\bprint\s+(the\s+)?(env(ironment)?\s+variables?|\.env)\b`),
			regexp.MustCompile(`(?i)\b(api[_\s-]?key|password|secret|bearer\s+token)\s*[:=]`),
		},
		weight: func(w config.GateWeights) int { return w.InfoExtraction },
	},
	{
		name: "context_poison",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\n\n(system|assistant|user)\s*:`),
			regexp.MustCompile(`\[(SYSTEM|ADMIN|ROOT)\]`),
			regexp.MustCompile(`<\|im_(start|end)\|>`),
		},
		weight: func(w config.GateWeights) int { return w.ContextPoison },
	},
	{
		name: "code_execution",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(execute|run)\s+(this\s+)?(code|command|script)\b`),
			regexp.MustCompile(`\beval\s*\(`),
			regexp.MustCompile(`\bexec\s*\(`),
			regexp.MustCompile(`__import__\s*\(`),
			regexp.MustCompile(`\bsubprocess\.\w+\(`),
			regexp.MustCompile(`\bos\.system\s*\(`),
		},
		weight: func(w config.GateWeights) int { return w.CodeExecution },
	},
}

// Detect is Gate 2. It runs every pattern family against the
// sanitized text and sums the matched families' weights plus a
// per-invisible-character penalty, capping the total at 100.
func Detect(sanitized string, invisibleCount int, weights config.GateWeights, invisibleCharWeight int) (score int, matched []string) {
	for _, fam := range gate2Families {
		for _, p := range fam.patterns {
			if p.MatchString(sanitized) {
				score += fam.weight(weights)
				matched = append(matched, fam.name)
				break
			}
		}
	}

	score += invisibleCount * invisibleCharWeight

	if score > 100 {
		score = 100
	}
	return score, matched
}
