// Package store — in-memory Store implementation.
// Used when no Firestore project is configured (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atriumhq/atrium/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Agents        map[string]*models.Agent        `json:"agents"`
	Documents     map[string]*models.Document     `json:"documents"`     // key: agent:doc
	Conversations map[string]*models.Conversation `json:"conversations"` // key: agent:conv
	Messages      map[string][]*models.Message    `json:"messages"`      // key: agent:conv, append order
	Users         map[string]*models.User         `json:"users"`
	AdminClaimed  bool                            `json:"admin_claimed"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	agents        map[string]*models.Agent
	documents     map[string]*models.Document
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	users         map[string]*models.User
	adminClaimed  bool

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty
// the store persists a JSON snapshot there and reloads it on startup.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		agents:        make(map[string]*models.Agent),
		documents:     make(map[string]*models.Document),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		users:         make(map[string]*models.User),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
		} else {
			m.snapshotPath = filepath.Join(dataDir, "directory.json")
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory directory store configured")
	return m
}

func key(agentID, id string) string { return agentID + ":" + id }

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Agents:        m.agents,
		Documents:     m.documents,
		Conversations: m.conversations,
		Messages:      m.messages,
		Users:         m.users,
		AdminClaimed:  m.adminClaimed,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Corrupt snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Agents != nil {
		m.agents = snap.Agents
	}
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.Conversations != nil {
		m.conversations = snap.Conversations
	}
	if snap.Messages != nil {
		m.messages = snap.Messages
	}
	if snap.Users != nil {
		m.users = snap.Users
	}
	m.adminClaimed = snap.AdminClaimed
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Agents ──────────────────────────────────────────────────

func (m *MemoryStore) ListAgents(_ context.Context) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	cp := *agent
	m.agents[agent.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, id string, upd models.AgentUpdate) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.Settings != nil {
		a.Settings = *upd.Settings
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	m.requestSave()
	return &cp, nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	delete(m.agents, id)
	for k := range m.documents {
		if strings.HasPrefix(k, id+":") {
			delete(m.documents, k)
		}
	}
	for k := range m.conversations {
		if strings.HasPrefix(k, id+":") {
			delete(m.conversations, k)
			delete(m.messages, k)
		}
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) AdjustDocumentCount(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	a.DocumentCount += delta
	if a.DocumentCount < 0 {
		a.DocumentCount = 0
	}
	a.UpdatedAt = time.Now().UTC()
	m.requestSave()
	return nil
}

// ── Documents ───────────────────────────────────────────────

func (m *MemoryStore) ListDocuments(_ context.Context, agentID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Document
	for k, d := range m.documents {
		if strings.HasPrefix(k, agentID+":") {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, agentID, docID string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.documents[key(agentID, docID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: docID}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc.UploadedAt = time.Now().UTC()
	cp := *doc
	m.documents[key(doc.AgentID, doc.ID)] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) SetDocumentStatus(_ context.Context, agentID, docID string, status models.DocumentStatus, errMsg string, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[key(agentID, docID)]
	if !ok {
		return &ErrNotFound{Entity: "document", Key: docID}
	}
	if !d.Status.Advances(status) {
		return &ErrInvalidTransition{From: d.Status, To: status}
	}
	d.Status = status
	if status == models.DocumentError {
		d.ErrorMessage = errMsg
	}
	if status == models.DocumentIndexed {
		d.ChunkCount = chunkCount
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, agentID, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(agentID, docID)
	if _, ok := m.documents[k]; !ok {
		return &ErrNotFound{Entity: "document", Key: docID}
	}
	delete(m.documents, k)
	m.requestSave()
	return nil
}

// ── Conversations ───────────────────────────────────────────

func (m *MemoryStore) TouchConversation(_ context.Context, agentID, convID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(agentID, convID)
	c, ok := m.conversations[k]
	if !ok {
		c = &models.Conversation{ID: convID, AgentID: agentID, UserID: userID}
		m.conversations[k] = c
	}
	c.UserID = userID
	c.LastMessageAt = time.Now().UTC()
	m.requestSave()
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, agentID, convID string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg.Timestamp = time.Now().UTC()
	cp := *msg
	k := key(agentID, convID)
	m.messages[k] = append(m.messages[k], &cp)
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, agentID, convID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[key(agentID, convID)]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]models.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, agentID, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(agentID, convID)
	delete(m.conversations, k)
	delete(m.messages, k)
	m.requestSave()
	return nil
}

// ── Users ───────────────────────────────────────────────────

func (m *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.LastLogin = now
	cp := *user
	m.users[user.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateUserRole(_ context.Context, id string, role models.UserRole) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	u.Role = role
	cp := *u
	m.requestSave()
	return &cp, nil
}

func (m *MemoryStore) TouchLastLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return &ErrNotFound{Entity: "user", Key: id}
	}
	u.LastLogin = time.Now().UTC()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ClaimBootstrapAdmin(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adminClaimed {
		return false, nil
	}
	m.adminClaimed = true
	m.requestSave()
	return true, nil
}
