package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxVectors caps the in-memory index. Exceeding it fails the
// upsert rather than silently degrading search latency.
const DefaultMaxVectors = 50_000

// IndexEntry is one embedded chunk living in a corpus.
type IndexEntry struct {
	ID         string
	DocumentID string
	Source     string
	Content    string
	Vector     []float32
}

// SearchHit pairs an entry with its similarity to the query.
type SearchHit struct {
	Entry IndexEntry
	Score float64
}

// CorpusIndex is an in-memory vector index using brute-force cosine
// similarity, partitioned by corpus (one corpus per agent).
type CorpusIndex struct {
	mu         sync.RWMutex
	entries    map[string]map[string]*IndexEntry // corpus -> entry id -> entry
	maxVectors int
}

// IndexOption configures the corpus index.
type IndexOption func(*CorpusIndex)

// WithMaxVectors overrides the total vector cap.
func WithMaxVectors(max int) IndexOption {
	return func(ix *CorpusIndex) { ix.maxVectors = max }
}

func NewCorpusIndex(opts ...IndexOption) *CorpusIndex {
	ix := &CorpusIndex{
		entries:    make(map[string]map[string]*IndexEntry),
		maxVectors: DefaultMaxVectors,
	}
	for _, opt := range opts {
		opt(ix)
	}
	log.Info().Int("max_vectors", ix.maxVectors).Msg("corpus index initialized")
	return ix
}

func (ix *CorpusIndex) total() int {
	n := 0
	for _, c := range ix.entries {
		n += len(c)
	}
	return n
}

// Upsert adds entries to a corpus, creating the corpus if needed.
func (ix *CorpusIndex) Upsert(_ context.Context, corpus string, entries []IndexEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	c, ok := ix.entries[corpus]
	if !ok {
		c = make(map[string]*IndexEntry)
		ix.entries[corpus] = c
	}

	newCount := 0
	for _, e := range entries {
		if _, exists := c[e.ID]; !exists {
			newCount++
		}
	}
	if total := ix.total() + newCount; total > ix.maxVectors {
		return fmt.Errorf("corpus index capacity exceeded: %d > %d", total, ix.maxVectors)
	}

	for _, e := range entries {
		cp := e
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		c[cp.ID] = &cp
	}
	return nil
}

// Search returns the topK most similar entries in the corpus, best
// first. Entries whose vector length differs from the query are
// skipped.
func (ix *CorpusIndex) Search(_ context.Context, corpus string, vector []float32, topK int) ([]SearchHit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var hits []SearchHit
	for _, e := range ix.entries[corpus] {
		if len(e.Vector) != len(vector) {
			continue
		}
		hits = append(hits, SearchHit{Entry: *e, Score: cosineSimilarity(vector, e.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteDocument removes every entry belonging to a document.
func (ix *CorpusIndex) DeleteDocument(_ context.Context, corpus, documentID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, e := range ix.entries[corpus] {
		if e.DocumentID == documentID {
			delete(ix.entries[corpus], id)
		}
	}
	return nil
}

// DeleteCorpus removes an entire corpus.
func (ix *CorpusIndex) DeleteCorpus(_ context.Context, corpus string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, corpus)
	return nil
}

// Count returns the number of entries in a corpus.
func (ix *CorpusIndex) Count(_ context.Context, corpus string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries[corpus]), nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
