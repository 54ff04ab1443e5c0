package chat

import (
	"regexp"
	"strings"

	"github.com/atriumhq/atrium/pkg/models"
)

// citationPattern matches the literal citation tag the system prompt
// instructs the model to emit.
var citationPattern = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)

// citationSnippetLen bounds the context excerpt carried on a citation.
const citationSnippetLen = 200

// ExtractCitations scans a response for [Source: ...] tags and resolves
// each against the retrieved contexts. The bracket text must be a
// case-insensitive substring of a context's source label; the first
// matching context wins. Tags that resolve to no context are dropped.
// Every match yields its own citation, repeats included.
func ExtractCitations(response string, contexts []models.RetrievalContext) []models.Citation {
	matches := citationPattern.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil
	}

	var citations []models.Citation
	for _, m := range matches {
		label := strings.TrimSpace(m[1])
		key := strings.ToLower(label)
		if key == "" {
			continue
		}

		for _, c := range contexts {
			if !strings.Contains(strings.ToLower(c.Source), key) {
				continue
			}
			citations = append(citations, models.Citation{
				Source:  c.Source,
				ChunkID: c.ChunkID,
				Snippet: snippet(c.Content, citationSnippetLen),
			})
			break
		}
	}
	return citations
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
