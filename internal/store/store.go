// Package store provides the directory-store interface and
// implementations for the Atrium control plane. Handlers and the chat
// orchestrator depend only on the Store interface, so the in-memory
// store (local dev, tests) and the Firestore store (production) are
// interchangeable.
package store

import (
	"context"

	"github.com/atriumhq/atrium/pkg/models"
)

// Store is the primary persistence interface. All mutation is via
// single-document writes; there are no multi-document transactions
// except the bootstrap-admin claim.
type Store interface {
	AgentStore
	DocumentStore
	ConversationStore
	UserStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	ListAgents(ctx context.Context) ([]models.Agent, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, id string, upd models.AgentUpdate) (*models.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// AdjustDocumentCount applies a delta to the agent's document count.
	AdjustDocumentCount(ctx context.Context, id string, delta int) error
}

// ── Document Store ──────────────────────────────────────────

type DocumentStore interface {
	ListDocuments(ctx context.Context, agentID string) ([]models.Document, error)
	GetDocument(ctx context.Context, agentID, docID string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, agentID, docID string) error

	// SetDocumentStatus advances a document along its lifecycle.
	// Transitions that would move the status backward are rejected:
	// uploaded → processing → {indexed | error}, never the other way.
	// errMsg and chunkCount only apply to the error/indexed states.
	SetDocumentStatus(ctx context.Context, agentID, docID string, status models.DocumentStatus, errMsg string, chunkCount int) error
}

// ── Conversation Store ──────────────────────────────────────

// ConversationStore manages per-agent conversations and their
// append-only message logs. Message timestamps are assigned by the
// store at write time (server timestamps on Firestore).
type ConversationStore interface {
	// TouchConversation upserts the conversation record and bumps its
	// last-activity timestamp. Last write wins.
	TouchConversation(ctx context.Context, agentID, convID, userID string) error

	// AppendMessage appends one message to the conversation's log.
	AppendMessage(ctx context.Context, agentID, convID string, msg *models.Message) error

	// ListMessages returns the most recent `limit` messages ordered by
	// timestamp ascending. limit <= 0 means no limit.
	ListMessages(ctx context.Context, agentID, convID string, limit int) ([]models.Message, error)

	// DeleteConversation removes the conversation record and its entire
	// message log. Idempotent: deleting a nonexistent conversation is
	// not an error.
	DeleteConversation(ctx context.Context, agentID, convID string) error
}

// ── User Store ──────────────────────────────────────────────

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)

	// TouchLastLogin bumps the user's last-login timestamp.
	TouchLastLogin(ctx context.Context, id string) error

	// ClaimBootstrapAdmin atomically claims the one-time bootstrap-admin
	// slot for this deployment. It returns true for exactly one caller
	// ever; every later (or concurrent) call returns false.
	ClaimBootstrapAdmin(ctx context.Context) (bool, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrInvalidTransition is returned when a document status update would
// move the status backward.
type ErrInvalidTransition struct {
	From models.DocumentStatus
	To   models.DocumentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return "invalid document status transition: " + string(e.From) + " -> " + string(e.To)
}
