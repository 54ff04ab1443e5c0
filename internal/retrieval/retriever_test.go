package retrieval

import (
	"context"
	"testing"
)

// stubEmbedder returns a fixed vector per text, keyed by the text
// itself so tests can steer similarity.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func seedIndex(t *testing.T) *CorpusIndex {
	t.Helper()
	ix := NewCorpusIndex()
	err := ix.Upsert(context.Background(), "agent-1", []IndexEntry{
		{ID: "c1", DocumentID: "d1", Source: "guide.pdf", Content: "close match", Vector: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", Source: "guide.pdf", Content: "partial match", Vector: []float32{1, 1, 0}},
		{ID: "c3", DocumentID: "d2", Source: "notes.txt", Content: "unrelated", Vector: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return ix
}

func TestRetrieve_RanksByScoreAndAppliesThreshold(t *testing.T) {
	ix := seedIndex(t)
	emb := &stubEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	r := NewCorpusRetriever(emb, ix)

	got, err := r.Retrieve(context.Background(), "agent-1", "query", 5, 0.5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	// c1 scores 1.0, c2 ~0.71, c3 scores 0 and is filtered out.
	if len(got) != 2 {
		t.Fatalf("Retrieve() returned %d contexts, want 2", len(got))
	}
	if got[0].ChunkID != "c1" || got[1].ChunkID != "c2" {
		t.Errorf("ranking = [%s %s], want [c1 c2]", got[0].ChunkID, got[1].ChunkID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %f < %f", got[0].Score, got[1].Score)
	}
	if got[0].Source != "guide.pdf" {
		t.Errorf("Source = %q, want %q", got[0].Source, "guide.pdf")
	}
}

func TestRetrieve_TopKLimits(t *testing.T) {
	ix := seedIndex(t)
	emb := &stubEmbedder{vectors: map[string][]float32{"query": {1, 1, 1}}}
	r := NewCorpusRetriever(emb, ix)

	got, err := r.Retrieve(context.Background(), "agent-1", "query", 1, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Retrieve(topK=1) returned %d contexts, want 1", len(got))
	}
}

func TestRetrieve_UnknownCorpusIsEmpty(t *testing.T) {
	ix := seedIndex(t)
	r := NewCorpusRetriever(&stubEmbedder{}, ix)

	got, err := r.Retrieve(context.Background(), "no-such-agent", "query", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Retrieve() returned %d contexts, want 0", len(got))
	}
}

func TestIndex_DeleteDocumentRemovesOnlyItsChunks(t *testing.T) {
	ix := seedIndex(t)
	ctx := context.Background()

	if err := ix.DeleteDocument(ctx, "agent-1", "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	n, _ := ix.Count(ctx, "agent-1")
	if n != 1 {
		t.Errorf("Count() after delete = %d, want 1", n)
	}

	hits, _ := ix.Search(ctx, "agent-1", []float32{0, 1, 0}, 10)
	if len(hits) != 1 || hits[0].Entry.DocumentID != "d2" {
		t.Errorf("surviving entries = %v, want only d2", hits)
	}
}

func TestIndex_CapacityEnforced(t *testing.T) {
	ix := NewCorpusIndex(WithMaxVectors(2))
	ctx := context.Background()

	err := ix.Upsert(ctx, "agent-1", []IndexEntry{
		{ID: "a", Vector: []float32{1}},
		{ID: "b", Vector: []float32{1}},
		{ID: "c", Vector: []float32{1}},
	})
	if err == nil {
		t.Fatal("Upsert() over capacity should return error, got nil")
	}
}
