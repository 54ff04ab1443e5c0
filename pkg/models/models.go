// Package models defines the shared domain types for the Atrium
// control plane: agents, conversations, documents, users, and the
// event envelope emitted by the chat orchestrator.
package models

import "time"

// ── Agent ────────────────────────────────────────────────────

type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusIndexing AgentStatus = "indexing"
	AgentStatusError    AgentStatus = "error"
	AgentStatusArchived AgentStatus = "archived"
)

// AgentSettings holds the per-agent generation and retrieval knobs.
// Stored inline on the agent document.
type AgentSettings struct {
	Model               string  `json:"model" firestore:"model"`
	Temperature         float32 `json:"temperature" firestore:"temperature"`
	SystemPrompt        string  `json:"system_prompt" firestore:"systemPrompt"`
	MaxTokens           int     `json:"max_tokens" firestore:"maxTokens"`
	RetrievalTopK       int     `json:"retrieval_top_k" firestore:"retrievalTopK"`
	SimilarityThreshold float64 `json:"similarity_threshold" firestore:"similarityThreshold"`
	IncludeCitations    bool    `json:"include_citations" firestore:"includeCitations"`
	Streaming           bool    `json:"streaming" firestore:"streaming"`
}

// DefaultAgentSettings returns the settings applied to newly created agents.
func DefaultAgentSettings() AgentSettings {
	return AgentSettings{
		Model:               "gemini-1.5-pro",
		Temperature:         0.7,
		MaxTokens:           4096,
		RetrievalTopK:       5,
		SimilarityThreshold: 0.7,
		IncludeCitations:    true,
		Streaming:           true,
	}
}

// Agent is a tenant-scoped chat assistant bound to one object-store
// bucket and one retrieval corpus.
type Agent struct {
	ID            string        `json:"id" firestore:"id"`
	Name          string        `json:"name" firestore:"name"`
	Description   string        `json:"description" firestore:"description"`
	CreatedBy     string        `json:"created_by" firestore:"createdBy"`
	BucketName    string        `json:"bucket_name" firestore:"bucketName"`
	CorpusID      string        `json:"corpus_id" firestore:"corpusId"`
	Status        AgentStatus   `json:"status" firestore:"status"`
	Settings      AgentSettings `json:"settings" firestore:"settings"`
	DocumentCount int           `json:"document_count" firestore:"documentCount"`
	CreatedAt     time.Time     `json:"created_at" firestore:"createdAt,serverTimestamp"`
	UpdatedAt     time.Time     `json:"updated_at" firestore:"updatedAt,serverTimestamp"`
}

// AgentUpdate carries the mutable agent fields for PATCH requests.
// Nil means "leave unchanged".
type AgentUpdate struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Settings    *AgentSettings `json:"settings,omitempty"`
	Status      *AgentStatus   `json:"status,omitempty"`
}

// ── Conversation & Messages ──────────────────────────────────

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Conversation is keyed by (agent id, conversation id). Created
// implicitly on the first turn; its message log is append-only.
type Conversation struct {
	ID            string    `json:"id" firestore:"id"`
	AgentID       string    `json:"agent_id" firestore:"agentId"`
	UserID        string    `json:"user_id" firestore:"userId"`
	LastMessageAt time.Time `json:"last_message_at" firestore:"lastMessageAt,serverTimestamp"`
}

// Message is immutable once written.
type Message struct {
	ID        string      `json:"id" firestore:"id"`
	Role      MessageRole `json:"role" firestore:"role"`
	Content   string      `json:"content" firestore:"content"`
	Citations []Citation  `json:"citations,omitempty" firestore:"citations"`
	Timestamp time.Time   `json:"timestamp" firestore:"timestamp,serverTimestamp"`
}

// Citation is derived from the assistant's response text; it is only
// persisted as part of an assistant Message.
type Citation struct {
	Source     string `json:"source" firestore:"source"`
	ChunkID    string `json:"chunk_id,omitempty" firestore:"chunkId"`
	DocumentID string `json:"document_id,omitempty" firestore:"documentId"`
	Snippet    string `json:"snippet" firestore:"snippet"`
	PageNumber int    `json:"page_number,omitempty" firestore:"pageNumber"`
}

// RetrievalContext is a snippet returned by the retrieval backend for
// one turn. Ephemeral — never persisted directly.
type RetrievalContext struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	ChunkID string  `json:"chunk_id,omitempty"`
}

// ── Document ─────────────────────────────────────────────────

type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentIndexed    DocumentStatus = "indexed"
	DocumentError      DocumentStatus = "error"
)

// statusRank orders document statuses along the forward-only lifecycle
// uploaded → processing → {indexed | error}.
var statusRank = map[DocumentStatus]int{
	DocumentUploaded:   0,
	DocumentProcessing: 1,
	DocumentIndexed:    2,
	DocumentError:      2,
}

// Advances reports whether moving from s to next is a forward
// transition. Status never regresses.
func (s DocumentStatus) Advances(next DocumentStatus) bool {
	return statusRank[next] > statusRank[s]
}

// Document is an uploaded file belonging to one agent.
type Document struct {
	ID           string         `json:"id" firestore:"id"`
	AgentID      string         `json:"agent_id" firestore:"agentId"`
	FileName     string         `json:"file_name" firestore:"fileName"`
	OriginalName string         `json:"original_name" firestore:"originalName"`
	StoragePath  string         `json:"storage_path" firestore:"storagePath"`
	ContentType  string         `json:"content_type" firestore:"contentType"`
	Size         int64          `json:"size" firestore:"size"`
	UploadedBy   string         `json:"uploaded_by" firestore:"uploadedBy"`
	UploadedAt   time.Time      `json:"uploaded_at" firestore:"uploadedAt,serverTimestamp"`
	Status       DocumentStatus `json:"status" firestore:"status"`
	ErrorMessage string         `json:"error_message,omitempty" firestore:"errorMessage"`
	ChunkCount   int            `json:"chunk_count" firestore:"chunkCount"`
}

// ── User ─────────────────────────────────────────────────────

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleStandard UserRole = "user"
)

// User mirrors the identity provider's subject. The first user ever
// provisioned in a deployment becomes the bootstrap admin.
type User struct {
	ID          string    `json:"id" firestore:"id"`
	Email       string    `json:"email" firestore:"email"`
	Role        UserRole  `json:"role" firestore:"role"`
	ExternalID  string    `json:"external_id,omitempty" firestore:"externalId"`
	DisplayName string    `json:"display_name,omitempty" firestore:"displayName"`
	PhotoURL    string    `json:"photo_url,omitempty" firestore:"photoUrl"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt,serverTimestamp"`
	LastLogin   time.Time `json:"last_login" firestore:"lastLogin,serverTimestamp"`
}

// ── Chat wire types ──────────────────────────────────────────

// ChatRequest is the body of POST /api/agents/{agentId}/chat/stream.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RetrievalPreview is the per-context payload of the `retrieval` event.
// Content is truncated to 500 runes.
type RetrievalPreview struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	ChunkID string  `json:"chunk_id,omitempty"`
}

type TurnEventType string

const (
	TurnEventRetrieval TurnEventType = "retrieval"
	TurnEventContent   TurnEventType = "content"
	TurnEventCitations TurnEventType = "citations"
	TurnEventDone      TurnEventType = "done"
	TurnEventError     TurnEventType = "error"
)

// TurnEvent is one event in a chat turn's ordered stream. Data is the
// JSON payload for the SSE frame: []RetrievalPreview for retrieval, a
// string fragment for content, []Citation for citations, a string
// description for error, nil for done.
type TurnEvent struct {
	Type TurnEventType `json:"type"`
	Data any           `json:"data,omitempty"`
}
