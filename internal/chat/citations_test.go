package chat

import (
	"reflect"
	"strings"
	"testing"

	"github.com/atriumhq/atrium/pkg/models"
)

func testContexts() []models.RetrievalContext {
	return []models.RetrievalContext{
		{Content: "Refunds are issued within 30 days of purchase.", Source: "Monthly Report.pdf", ChunkID: "c1", Score: 0.9},
		{Content: "Support is available on weekdays.", Source: "handbook.txt", ChunkID: "c2", Score: 0.8},
	}
}

func TestExtractCitations_SubstringMatch(t *testing.T) {
	got := ExtractCitations("See [Source: report.pdf] for details.", testContexts())
	if len(got) != 1 {
		t.Fatalf("ExtractCitations() returned %d citations, want 1", len(got))
	}
	if got[0].Source != "Monthly Report.pdf" {
		t.Errorf("Source = %q, want %q", got[0].Source, "Monthly Report.pdf")
	}
	if got[0].ChunkID != "c1" {
		t.Errorf("ChunkID = %q, want %q", got[0].ChunkID, "c1")
	}
	if !strings.HasPrefix(got[0].Snippet, "Refunds are issued") {
		t.Errorf("Snippet = %q, want context content prefix", got[0].Snippet)
	}
}

func TestExtractCitations_MatchDirection(t *testing.T) {
	// The bracket text must be contained in the source label, not the
	// other way around.
	contexts := []models.RetrievalContext{
		{Content: "x", Source: "report.pdf", ChunkID: "c1"},
	}
	if got := ExtractCitations("[Source: Monthly Report.pdf]", contexts); len(got) != 0 {
		t.Errorf("bracket text longer than source matched: %v", got)
	}
	if got := ExtractCitations("[Source: port.pdf]", contexts); len(got) != 1 {
		t.Errorf("bracket substring of source did not match: %v", got)
	}
}

func TestExtractCitations_CaseInsensitive(t *testing.T) {
	got := ExtractCitations("[Source: HANDBOOK.TXT]", testContexts())
	if len(got) != 1 || got[0].Source != "handbook.txt" {
		t.Errorf("ExtractCitations() = %v, want handbook.txt citation", got)
	}
}

func TestExtractCitations_UnresolvedTagDropped(t *testing.T) {
	got := ExtractCitations("[Source: nowhere.doc] and [Source: handbook.txt]", testContexts())
	if len(got) != 1 {
		t.Fatalf("ExtractCitations() returned %d citations, want 1", len(got))
	}
	if got[0].Source != "handbook.txt" {
		t.Errorf("Source = %q, want %q", got[0].Source, "handbook.txt")
	}
}

func TestExtractCitations_RepeatedTagPerMatch(t *testing.T) {
	text := "[Source: handbook.txt] more text [Source: handbook.txt]"
	got := ExtractCitations(text, testContexts())
	if len(got) != 2 {
		t.Fatalf("repeated tag produced %d citations, want 2", len(got))
	}
	for i, c := range got {
		if c.Source != "handbook.txt" {
			t.Errorf("citation %d Source = %q, want %q", i, c.Source, "handbook.txt")
		}
	}
}

func TestExtractCitations_Idempotent(t *testing.T) {
	text := "A [Source: report.pdf] B [Source: handbook.txt] C"
	first := ExtractCitations(text, testContexts())
	second := ExtractCitations(text, testContexts())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not idempotent: %v vs %v", first, second)
	}
}

func TestExtractCitations_NoTags(t *testing.T) {
	if got := ExtractCitations("no citations here", testContexts()); got != nil {
		t.Errorf("ExtractCitations() = %v, want nil", got)
	}
}

func TestExtractCitations_SnippetTruncated(t *testing.T) {
	long := strings.Repeat("a", 500)
	contexts := []models.RetrievalContext{{Content: long, Source: "big.txt", ChunkID: "c1"}}

	got := ExtractCitations("[Source: big.txt]", contexts)
	if len(got) != 1 {
		t.Fatalf("ExtractCitations() returned %d citations, want 1", len(got))
	}
	if len(got[0].Snippet) != 200 {
		t.Errorf("Snippet length = %d, want 200", len(got[0].Snippet))
	}
}

func TestBuildSystemPrompt_Defaults(t *testing.T) {
	p := BuildSystemPrompt("", nil)
	if p != defaultSystemPrompt {
		t.Errorf("BuildSystemPrompt with no contexts = %q, want default framing", p)
	}
}

func TestBuildSystemPrompt_ReferenceBlock(t *testing.T) {
	p := BuildSystemPrompt("You are a pirate.", testContexts())
	if !strings.HasPrefix(p, "You are a pirate.") {
		t.Errorf("custom prompt not used verbatim: %q", p)
	}
	if !strings.Contains(p, "[Source: Monthly Report.pdf]\nRefunds are issued") {
		t.Errorf("reference block missing rendered context: %q", p)
	}
	if !strings.Contains(p, "[Source: <name>]") {
		t.Errorf("grounding instructions missing citation format: %q", p)
	}
}
