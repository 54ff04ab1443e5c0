package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/atriumhq/atrium/internal/llm"
	"github.com/atriumhq/atrium/internal/objectstore"
	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/pkg/models"
)

// embedBatchSize bounds one embedding request.
const embedBatchSize = 64

// embedConcurrency bounds in-flight embedding requests per document.
const embedConcurrency = 4

// ingestTimeout caps one document's end-to-end indexing run.
const ingestTimeout = 5 * time.Minute

// Ingester runs the document indexing pipeline: fetch the stored
// bytes, extract text, chunk, embed, and upsert into the agent's
// corpus, advancing the document status as it goes.
type Ingester struct {
	store    store.Store
	objects  objectstore.ObjectStore
	embedder llm.Embedder
	index    *CorpusIndex
	chunker  ChunkerConfig
}

func NewIngester(s store.Store, objects objectstore.ObjectStore, embedder llm.Embedder, index *CorpusIndex) *Ingester {
	return &Ingester{
		store:    s,
		objects:  objects,
		embedder: embedder,
		index:    index,
		chunker:  DefaultChunkerConfig(),
	}
}

// IngestAsync kicks off indexing in the background. Failures land on
// the document record, not on the caller.
func (ing *Ingester) IngestAsync(doc *models.Document, bucket string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if err := ing.Ingest(ctx, doc, bucket); err != nil {
			log.Error().Err(err).
				Str("agent", doc.AgentID).
				Str("document", doc.ID).
				Msg("document indexing failed")
		}
	}()
}

// Ingest indexes one document synchronously. On any pipeline error the
// document is moved to the error status with the failure message.
func (ing *Ingester) Ingest(ctx context.Context, doc *models.Document, bucket string) error {
	if err := ing.store.SetDocumentStatus(ctx, doc.AgentID, doc.ID, models.DocumentProcessing, "", 0); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	chunkCount, err := ing.run(ctx, doc, bucket)
	if err != nil {
		if stErr := ing.store.SetDocumentStatus(ctx, doc.AgentID, doc.ID, models.DocumentError, err.Error(), 0); stErr != nil {
			log.Warn().Err(stErr).Str("document", doc.ID).Msg("record indexing failure")
		}
		return err
	}

	if err := ing.store.SetDocumentStatus(ctx, doc.AgentID, doc.ID, models.DocumentIndexed, "", chunkCount); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	log.Info().
		Str("agent", doc.AgentID).
		Str("document", doc.ID).
		Int("chunks", chunkCount).
		Msg("document indexed")
	return nil
}

func (ing *Ingester) run(ctx context.Context, doc *models.Document, bucket string) (int, error) {
	data, err := ing.objects.Get(ctx, bucket, doc.FileName)
	if err != nil {
		var nf *objectstore.ErrObjectNotFound
		if errors.As(err, &nf) {
			return 0, fmt.Errorf("stored file missing: %w", err)
		}
		return 0, fmt.Errorf("fetch stored file: %w", err)
	}

	text, err := ExtractText(data, doc.OriginalName, doc.ContentType)
	if err != nil {
		return 0, err
	}

	chunks := ChunkText(text, ing.chunker)

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := 0; i < len(chunks); i += embedBatchSize {
		start := i
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			batch := chunks[start:end]
			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Text
			}
			vecs, err := ing.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(batch))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	entries := make([]IndexEntry, 0, len(chunks))
	for i, c := range chunks {
		entries = append(entries, IndexEntry{
			ID:         fmt.Sprintf("%s:%d", doc.ID, c.Index),
			DocumentID: doc.ID,
			Source:     doc.OriginalName,
			Content:    c.Text,
			Vector:     vectors[i],
		})
	}

	if err := ing.index.Upsert(ctx, doc.AgentID, entries); err != nil {
		return 0, fmt.Errorf("upsert corpus: %w", err)
	}
	return len(entries), nil
}

// Remove drops a document's chunks from the agent's corpus.
func (ing *Ingester) Remove(ctx context.Context, agentID, documentID string) error {
	return ing.index.DeleteDocument(ctx, agentID, documentID)
}
