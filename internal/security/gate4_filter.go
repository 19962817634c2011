package security

import "regexp"

// secretPatterns catch provider-specific credential shapes. Each gets
// its own typed placeholder per spec.md §6's "stable, tested" list, so
// callers (and audit logs) can tell which kind of secret leaked
// without re-deriving it from a generic marker. Order matters: the
// Anthropic shape (`sk-ant-...`) must be checked before the generic
// OpenAI shape (`sk-...`), since the latter is a substring of the
// former.
var secretPatterns = []struct {
	name        string
	pattern     *regexp.Regexp
	placeholder string
}{
	{"anthropic_api_key", regexp.MustCompile(`\bsk-ant-api\d{2}-[A-Za-z0-9_-]{20,}\b`), "[ANTHROPIC_API_KEY_REDACTED]"},
	{"openai_api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`), "[OPENAI_API_KEY_REDACTED]"},
	{"google_api_key", regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`), "[GOOGLE_API_KEY_REDACTED]"},
	{"jwt_token", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), "[JWT_TOKEN_REDACTED]"},
	{"private_key_block", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`), "[PRIVATE_KEY_REDACTED]"},
	{"ethereum_private_key", regexp.MustCompile(`\b(?:0x)?[0-9a-fA-F]{64}\b`), "[PRIVATE_KEY_REDACTED]"},
}

// piiPatterns mask rather than flag: the match is replaced in place,
// not blocked, since PII showing up in a response is a leak to
// contain, not an attack to reject.
var (
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`)
	emailPattern      = regexp.MustCompile(`\b([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)
)

// genericLeakPatterns catch credential-shaped substrings that don't
// match a specific provider's key format.
var genericLeakPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"api_key", regexp.MustCompile(`(?i)\b(api[_-]?key)\s*[:=]\s*\S+`)},
	{"password", regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S+`)},
	{"bearer_token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{10,}`)},
}

// outputCodePatterns flag generated output that itself looks like a
// destructive or self-executing payload, reusing the Gate 2
// code-execution family at output time plus SQL DDL.
var outputCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`\bos\.system\s*\(`),
	regexp.MustCompile(`\bsubprocess\.\w+\(`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`__import__\s*\(`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`),
	regexp.MustCompile(`(?i)\bTRUNCATE\s+TABLE\b`),
}

// FilterOutput is Gate 4. It redacts credential-shaped substrings and
// PII, and flags output that itself reads as executable/destructive,
// without ever blocking — by this point the call has already
// completed, so the gate can only contain the blast radius of what
// gets returned.
func FilterOutput(text string) OutputFilterResult {
	result := OutputFilterResult{FilteredText: text, IsSafe: true}

	for _, sp := range secretPatterns {
		if sp.pattern.MatchString(result.FilteredText) {
			result.FilteredText = sp.pattern.ReplaceAllString(result.FilteredText, sp.placeholder)
			result.Redactions = append(result.Redactions, sp.name)
		}
	}

	for _, lp := range genericLeakPatterns {
		if lp.pattern.MatchString(result.FilteredText) {
			result.FilteredText = lp.pattern.ReplaceAllString(result.FilteredText, redactionPlaceholder)
			result.Redactions = append(result.Redactions, lp.name)
		}
	}

	if ssnPattern.MatchString(result.FilteredText) {
		result.FilteredText = ssnPattern.ReplaceAllString(result.FilteredText, "***-**-****")
		result.Redactions = append(result.Redactions, "ssn")
	}

	if creditCardPattern.MatchString(result.FilteredText) {
		result.FilteredText = creditCardPattern.ReplaceAllString(result.FilteredText, "****-****-****-****")
		result.Redactions = append(result.Redactions, "credit_card")
	}

	if emailPattern.MatchString(result.FilteredText) {
		result.FilteredText = emailPattern.ReplaceAllStringFunc(result.FilteredText, maskEmail)
		result.Redactions = append(result.Redactions, "email")
	}

	for _, p := range outputCodePatterns {
		if p.MatchString(text) {
			result.Warnings = append(result.Warnings, "output contains a destructive or self-executing code pattern")
			result.IsSafe = false
			break
		}
	}

	return result
}

const redactionPlaceholder = "[REDACTED]"

// maskEmail replaces a matched email with its local-part's first
// three characters, "***", and its domain preserved, per spec.md §6
// (e.g. "user@example.com" -> "use***@example.com").
func maskEmail(match string) string {
	sub := emailPattern.FindStringSubmatch(match)
	if sub == nil {
		return match
	}
	local, domain := sub[1], sub[2]
	prefixLen := 3
	if len(local) < prefixLen {
		prefixLen = len(local)
	}
	return local[:prefixLen] + "***@" + domain
}
