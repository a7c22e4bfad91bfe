package coach

import (
	"fmt"
	"strings"
	"time"
)

// basePersona is the fixed coaching identity. Deployments append their own
// flavor via the coach.persona config field.
const basePersona = `You are a supportive career and life coach on a live voice call.
Speak in short, natural sentences that sound good when read aloud.
Ask at most one question per reply. Never use markdown, lists, or headings.`

// noContextMarker tells the model explicitly that no knowledge passages
// were retrieved, so it does not hallucinate citations.
const noContextMarker = "(no knowledge base context available)"

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Persona          string
	RetrievalContext string
	Summary          string
}

// BuildSystemPrompt constructs the system prompt for a reply generation.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	b.WriteString(basePersona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current date: %s\n", time.Now().Format("2006-01-02"))

	if cfg.Summary != "" {
		b.WriteString("\n## Conversation so far\n\n")
		b.WriteString(cfg.Summary)
		b.WriteString("\n")
	}

	b.WriteString("\n## Knowledge base context\n\n")
	if cfg.RetrievalContext != "" {
		b.WriteString(cfg.RetrievalContext)
		b.WriteString("\n\nGround your reply in the context above when it is relevant.\n")
	} else {
		b.WriteString(noContextMarker)
		b.WriteString("\n")
	}

	if cfg.Persona != "" {
		b.WriteString("\n")
		b.WriteString(cfg.Persona)
		b.WriteString("\n")
	}

	return b.String()
}

// buildSummaryPrompt asks the model to fold the transcript window into a
// compact rolling summary, carrying the prior summary forward.
func buildSummaryPrompt(prior string) string {
	var b strings.Builder
	b.WriteString("Condense the coaching conversation transcript into a brief summary ")
	b.WriteString("of the caller's situation, goals, and what has been discussed. ")
	b.WriteString("Write plain prose, a few sentences at most. Output only the summary.\n")
	if prior != "" {
		b.WriteString("\n## Summary of earlier turns\n\n")
		b.WriteString(prior)
		b.WriteString("\n\nFold this into the new summary.\n")
	}
	return b.String()
}

// buildConformancePrompt asks the model to rewrite a draft so its wording
// stays within the vocabulary of the retrieved passages.
func buildConformancePrompt(retrievalContext string) string {
	var b strings.Builder
	b.WriteString("Rewrite the user's draft reply so it uses only vocabulary and phrasing ")
	b.WriteString("consistent with the reference passages below. Keep the meaning, length, ")
	b.WriteString("and spoken tone. Output only the rewritten reply.\n\n")
	b.WriteString("## Reference passages\n\n")
	b.WriteString(retrievalContext)
	return b.String()
}
