package retrieval

import (
	"context"
	"fmt"

	"github.com/atriumhq/atrium/internal/llm"
	"github.com/atriumhq/atrium/pkg/models"
)

// Retriever answers similarity queries over an agent's corpus.
type Retriever interface {
	Retrieve(ctx context.Context, corpus, query string, topK int, threshold float64) ([]models.RetrievalContext, error)
}

// CorpusRetriever embeds the query and searches the in-memory index.
type CorpusRetriever struct {
	embedder llm.Embedder
	index    *CorpusIndex
}

func NewCorpusRetriever(embedder llm.Embedder, index *CorpusIndex) *CorpusRetriever {
	return &CorpusRetriever{embedder: embedder, index: index}
}

// Retrieve returns up to topK contexts scoring at or above threshold,
// best first.
func (r *CorpusRetriever) Retrieve(ctx context.Context, corpus, query string, topK int, threshold float64) ([]models.RetrievalContext, error) {
	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}

	hits, err := r.index.Search(ctx, corpus, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search corpus: %w", err)
	}

	var out []models.RetrievalContext
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		out = append(out, models.RetrievalContext{
			Content: h.Entry.Content,
			Source:  h.Entry.Source,
			Score:   h.Score,
			ChunkID: h.Entry.ID,
		})
	}
	return out, nil
}

var _ Retriever = (*CorpusRetriever)(nil)
