package coach

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Replies feed a speech synthesizer, so every markup artifact the model
// emits becomes an audible glitch. The regex battery below strips fenced
// code, XML-ish tags, and markdown decoration, then normalizes whitespace.

// codeBlockRe matches any fenced code block (with or without a language hint).
var codeBlockRe = regexp.MustCompile("(?s)```\\w*\\s*.*?```")

// xmlTagRe matches XML-like opening/closing/self-closing tags that leak
// from tool-use style output.
var xmlTagRe = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9_]*(?:\s[^>]*)?>`)

// headingRe matches markdown heading markers at the start of a line.
var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)

// listMarkerRe matches bullet and numbered list markers at the start of a line.
var listMarkerRe = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)

// emphasisRe matches bold/italic markers around words.
var emphasisRe = regexp.MustCompile(`(\*{1,3}|_{1,3})(\S(?:.*?\S)?)(\*{1,3}|_{1,3})`)

// inlineCodeRe matches backtick-quoted inline spans.
var inlineCodeRe = regexp.MustCompile("`([^`]*)`")

// whitespaceLineRe matches lines containing only horizontal whitespace.
var whitespaceLineRe = regexp.MustCompile(`(?m)^[ \t]+$`)

// blankLineCollapseRe collapses 3+ consecutive newlines to a single blank line.
var blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)

// Sanitize strips markup from a model reply and bounds its length in
// characters. maxChars <= 0 means unbounded.
func Sanitize(text string, maxChars int) string {
	cleaned := codeBlockRe.ReplaceAllString(text, "\n\n")
	cleaned = xmlTagRe.ReplaceAllString(cleaned, " ")
	cleaned = headingRe.ReplaceAllString(cleaned, "")
	cleaned = listMarkerRe.ReplaceAllString(cleaned, "")
	cleaned = emphasisRe.ReplaceAllString(cleaned, "$2")
	cleaned = inlineCodeRe.ReplaceAllString(cleaned, "$1")

	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	return truncateAtBoundary(cleaned, maxChars)
}

// truncateAtBoundary cuts text to at most maxChars runes, preferring a
// sentence end and falling back to a word break.
func truncateAtBoundary(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	cut := runes[:maxChars]

	// Prefer ending on a full sentence within the budget.
	for i := len(cut) - 1; i >= maxChars/2; i-- {
		switch cut[i] {
		case '.', '!', '?':
			return strings.TrimSpace(string(cut[:i+1]))
		}
	}
	// Otherwise break on whitespace.
	for i := len(cut) - 1; i >= maxChars/2; i-- {
		if cut[i] == ' ' || cut[i] == '\n' {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return strings.TrimSpace(string(cut))
}
