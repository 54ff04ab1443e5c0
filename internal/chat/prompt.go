// Package chat executes one chat turn end to end: history, retrieval,
// streamed generation, citation extraction, persistence.
package chat

import (
	"strings"

	"github.com/atriumhq/atrium/pkg/models"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer the user's questions clearly and concisely."

const groundingInstructions = "Answer using only the information in the reference documents above. " +
	"When you use information from a document, cite it with the exact tag format [Source: <name>], " +
	"where <name> is the document's source label."

// BuildSystemPrompt assembles the system instruction for one turn.
// The agent's own prompt (or the default framing) comes first; when
// contexts were retrieved, a reference-documents block plus grounding
// instructions follow.
func BuildSystemPrompt(agentPrompt string, contexts []models.RetrievalContext) string {
	var b strings.Builder
	if agentPrompt != "" {
		b.WriteString(agentPrompt)
	} else {
		b.WriteString(defaultSystemPrompt)
	}

	if len(contexts) == 0 {
		return b.String()
	}

	b.WriteString("\n\nReference documents:\n")
	for _, c := range contexts {
		b.WriteString("\n[Source: ")
		b.WriteString(c.Source)
		b.WriteString("]\n")
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(groundingInstructions)
	return b.String()
}
