// Package assemble packs ranked retrieval candidates into a bounded
// context string for the model prompt.
package assemble

import (
	"fmt"
	"strings"

	"github.com/mentora-ai/mentora/internal/retrieve"
)

// charsPerToken is the estimation ratio used to budget context size.
// Rough, but it only needs to keep prompts bounded, not count exactly.
const charsPerToken = 4

// DefaultTokenBudget bounds assembled context when the caller passes none.
const DefaultTokenBudget = 2000

// summaryLines is how many leading lines survive when an entry is
// truncated to fit the remaining budget.
const summaryLines = 3

// EstimateTokens approximates the token cost of s.
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Context greedily packs candidates, in rank order, into a string whose
// estimated token cost stays within budget. When the next entry would
// overflow, a summarized form (first lines plus an ellipsis) is tried
// once; if even that overflows, assembly stops. An empty candidate list
// yields "".
func Context(candidates []retrieve.Candidate, tokenBudget int) string {
	if len(candidates) == 0 {
		return ""
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	var b strings.Builder
	used := 0
	for i, c := range candidates {
		block := format(i+1, c)
		cost := EstimateTokens(block)
		if used+cost > tokenBudget {
			summary := summarize(i+1, c)
			cost = EstimateTokens(summary)
			if used+cost > tokenBudget {
				break
			}
			block = summary
		}
		b.WriteString(block)
		used += cost
	}
	return strings.TrimRight(b.String(), "\n")
}

// format renders one candidate as a numbered block with its metadata
// header, body and separator.
func format(n int, c retrieve.Candidate) string {
	e := c.Entry
	var b strings.Builder

	title := e.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&b, "[%d] %s", n, title)
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s", e.Source)
		if e.Metadata.Subject != "" {
			fmt.Fprintf(&b, ", %s", e.Metadata.Subject)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(c.Snippet))
	b.WriteString("\n\n")
	return b.String()
}

// summarize renders the truncated form of format: the header plus the
// first few lines of the body and an ellipsis marker.
func summarize(n int, c retrieve.Candidate) string {
	full := format(n, c)
	lines := strings.Split(strings.TrimRight(full, "\n"), "\n")
	// One header line plus summaryLines of body.
	keep := 1 + summaryLines
	if len(lines) <= keep {
		return full
	}
	return strings.Join(lines[:keep], "\n") + "\n...\n\n"
}
