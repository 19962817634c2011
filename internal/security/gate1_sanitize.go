package security

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invisibleChars is the exact set of zero-width and formatting code
// points original_source's prompt_protection.py strips before any
// pattern match runs, so a steganographic payload can't hide inside
// them.
var invisibleChars = []rune{
	'​', // zero width space
	'‌', // zero width non-joiner
	'‍', // zero width joiner
	'᠎', // mongolian vowel separator
	'﻿', // byte order mark / zero width no-break space
	'⁠', // word joiner
	'⁡', // function application
	'⁢', // invisible times
	'⁣', // invisible separator
	'⁤', // invisible plus
	'­', // soft hyphen
	'͏', // combining grapheme joiner
	'؜', // arabic letter mark
}

var multiWhitespace = regexp.MustCompile(`\s{2,}`)

// Sanitize is Gate 1. It NFC-normalizes the input, strips invisible
// characters, and collapses runs of whitespace, returning the
// sanitized text and the count of invisible characters removed.
//
// Sanitize never blocks; it only conditions text for Gate 2.
func Sanitize(input string) (clean string, invisibleCount int) {
	normalized := norm.NFC.String(input)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if isInvisible(r) {
			invisibleCount++
			continue
		}
		b.WriteRune(r)
	}

	clean = b.String()
	clean = multiWhitespace.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	return clean, invisibleCount
}

func isInvisible(r rune) bool {
	for _, c := range invisibleChars {
		if r == c {
			return true
		}
	}
	return false
}
