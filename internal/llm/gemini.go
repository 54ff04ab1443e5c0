package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/atriumhq/atrium/pkg/models"
)

const defaultEmbedModel = "text-embedding-004"

// GeminiClient implements Generator and Embedder on the Gemini API.
// One client is shared by every agent; the per-agent model name rides
// in on each request.
type GeminiClient struct {
	client     *genai.Client
	embedModel string
}

func NewGeminiClient(ctx context.Context, apiKey, embedModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &GeminiClient{client: cl, embedModel: embedModel}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) Stream(ctx context.Context, req GenerationRequest, emit func(fragment string) error) error {
	m := g.client.GenerativeModel(req.Model)
	if req.SystemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	m.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	cs := m.StartChat()
	for _, turn := range req.History {
		role := "model"
		if turn.Role == models.RoleUser {
			role = "user"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(req.Message))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				t, ok := p.(genai.Text)
				if !ok || len(t) == 0 {
					continue
				}
				if err := emit(string(t)); err != nil {
					return err
				}
			}
		}
	}
}

func (g *GeminiClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.embedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

var (
	_ Generator = (*GeminiClient)(nil)
	_ Embedder  = (*GeminiClient)(nil)
)
