package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atriumhq/atrium/internal/llm"
	"github.com/atriumhq/atrium/internal/retrieval"
	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/pkg/models"
)

const (
	// historyWindow is how much prior conversation is loaded per turn.
	historyWindow = 20
	// modelHistoryTurns is how much of that window the model sees.
	modelHistoryTurns = 10
	// previewLen truncates retrieval previews in the retrieval event.
	previewLen = 500
	// persistTimeout bounds the post-stream persistence step, which
	// runs on a detached context so a dropped client still gets its
	// transcript written.
	persistTimeout = 10 * time.Second
)

// generationFallback stands in for the final answer when the model
// stream dies mid-turn.
const generationFallback = "I'm sorry, I ran into a problem while generating a response. Please try again."

// TurnRequest identifies one chat turn.
type TurnRequest struct {
	AgentID        string
	Message        string
	UserID         string
	ConversationID string
}

// Orchestrator executes chat turns. Events are delivered through the
// emit callback strictly in order: retrieval, content (repeated),
// citations, then done or error.
type Orchestrator struct {
	store     store.Store
	retriever retrieval.Retriever
	generator llm.Generator
}

func NewOrchestrator(s store.Store, r retrieval.Retriever, g llm.Generator) *Orchestrator {
	return &Orchestrator{store: s, retriever: r, generator: g}
}

// ExecuteTurn runs one turn. Domain failures are reported in-band as a
// terminal error event and return nil; a non-nil return means emit
// itself failed (the client is gone) and streaming must stop.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, req TurnRequest, emit func(models.TurnEvent) error) error {
	tracer := otel.Tracer("atrium/chat")
	ctx, span := tracer.Start(ctx, "chat.turn")
	span.SetAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("user.id", req.UserID),
	)
	defer span.End()

	agent, err := o.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return o.fail(emit, "agent not found")
		}
		log.Error().Err(err).Str("agent", req.AgentID).Msg("load agent failed")
		return o.fail(emit, "failed to load agent")
	}

	convID := req.ConversationID
	if convID == "" {
		convID = req.UserID
	}
	span.SetAttributes(attribute.String("conversation.id", convID))

	// History feeds generation only when the caller names a
	// conversation; the user-id default applies to persistence alone.
	var history []models.Message
	if req.ConversationID != "" {
		history, err = o.store.ListMessages(ctx, req.AgentID, convID, historyWindow)
		if err != nil {
			log.Error().Err(err).Str("conversation", convID).Msg("load history failed")
			return o.fail(emit, "failed to load conversation history")
		}
	}

	contexts := o.retrieve(ctx, agent, req.Message)
	if err := emit(models.TurnEvent{Type: models.TurnEventRetrieval, Data: previews(contexts)}); err != nil {
		return err
	}

	full, emitErr, genErr := o.stream(ctx, agent, history, req.Message, contexts, emit)
	if genErr != nil {
		log.Warn().Err(genErr).Str("agent", req.AgentID).Msg("generation failed mid-stream")
	}
	if emitErr == nil && genErr != nil {
		// Close out the answer in-band; the turn still persists.
		if err := emit(models.TurnEvent{Type: models.TurnEventContent, Data: generationFallback}); err != nil {
			emitErr = err
		}
		if full != "" {
			full += "\n\n"
		}
		full += generationFallback
	}

	var citations []models.Citation
	if agent.Settings.IncludeCitations {
		citations = ExtractCitations(full, contexts)
	}
	if emitErr == nil {
		if err := emit(models.TurnEvent{Type: models.TurnEventCitations, Data: citations}); err != nil {
			emitErr = err
		}
	}

	// Persistence runs even when the client disconnected mid-stream.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.persist(pctx, req, convID, full, citations); err != nil {
		log.Error().Err(err).Str("conversation", convID).Msg("persist turn failed")
		if emitErr != nil {
			return emitErr
		}
		return o.fail(emit, "failed to save conversation")
	}

	if emitErr != nil {
		return emitErr
	}
	return emit(models.TurnEvent{Type: models.TurnEventDone})
}

// retrieve degrades to no context on any backend failure.
func (o *Orchestrator) retrieve(ctx context.Context, agent *models.Agent, query string) []models.RetrievalContext {
	if agent.Settings.RetrievalTopK <= 0 {
		return nil
	}
	corpus := agent.CorpusID
	if corpus == "" {
		corpus = agent.ID
	}
	contexts, err := o.retriever.Retrieve(ctx, corpus, query, agent.Settings.RetrievalTopK, agent.Settings.SimilarityThreshold)
	if err != nil {
		log.Warn().Err(err).Str("agent", agent.ID).Msg("retrieval failed, continuing without context")
		return nil
	}
	return contexts
}

// stream runs the model and forwards fragments as content events.
// It returns the accumulated text, the first emit failure (client
// gone), and the generation error, if any.
func (o *Orchestrator) stream(ctx context.Context, agent *models.Agent, history []models.Message, message string, contexts []models.RetrievalContext, emit func(models.TurnEvent) error) (string, error, error) {
	turns := history
	if len(turns) > modelHistoryTurns {
		turns = turns[len(turns)-modelHistoryTurns:]
	}
	genReq := llm.GenerationRequest{
		Model:        agent.Settings.Model,
		SystemPrompt: BuildSystemPrompt(agent.Settings.SystemPrompt, contexts),
		Message:      message,
		Temperature:  agent.Settings.Temperature,
		MaxTokens:    agent.Settings.MaxTokens,
	}
	for _, m := range turns {
		genReq.History = append(genReq.History, llm.Turn{Role: m.Role, Text: m.Content})
	}

	var full strings.Builder
	var emitErr error
	err := o.generator.Stream(ctx, genReq, func(fragment string) error {
		full.WriteString(fragment)
		if err := emit(models.TurnEvent{Type: models.TurnEventContent, Data: fragment}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if emitErr != nil {
		// The abort came from our own callback, not the model.
		return full.String(), emitErr, nil
	}
	return full.String(), nil, err
}

func (o *Orchestrator) persist(ctx context.Context, req TurnRequest, convID, response string, citations []models.Citation) error {
	if err := o.store.TouchConversation(ctx, req.AgentID, convID, req.UserID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	now := time.Now().UTC()
	userMsg := &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	}
	if err := o.store.AppendMessage(ctx, req.AgentID, convID, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	assistantMsg := &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   response,
		Citations: citations,
		Timestamp: now.Add(time.Millisecond),
	}
	if err := o.store.AppendMessage(ctx, req.AgentID, convID, assistantMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

// fail emits the terminal error event. No done event follows it.
func (o *Orchestrator) fail(emit func(models.TurnEvent) error, msg string) error {
	return emit(models.TurnEvent{Type: models.TurnEventError, Data: msg})
}

func previews(contexts []models.RetrievalContext) []models.RetrievalPreview {
	out := make([]models.RetrievalPreview, len(contexts))
	for i, c := range contexts {
		out[i] = models.RetrievalPreview{
			Content: snippet(c.Content, previewLen),
			Source:  c.Source,
			Score:   c.Score,
			ChunkID: c.ChunkID,
		}
	}
	return out
}
